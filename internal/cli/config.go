package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/store"
)

// EnvPrefix prefixes environment variables read as configuration, e.g.
// SPARQLFLOW_DB or SPARQLFLOW_LOG_FORMAT.
const EnvPrefix = "SPARQLFLOW"

const defaultBitsetThreshold = engine.DefaultBitsetThreshold

// flagKeys maps configuration keys to the persistent flags that override
// them. term_cache_size has no flag.
var flagKeys = map[string]string{
	"db":               "db",
	"log_format":       "log-format",
	"bitset_threshold": "bitset-threshold",
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_format", "text")
	v.SetDefault("bitset_threshold", defaultBitsetThreshold)
	v.SetDefault("term_cache_size", store.DefaultTermCacheSize)
}

// newViper builds the configuration for one invocation.
// Precedence (lowest to highest): defaults < config file < env vars < flags.
func newViper(cmd *cobra.Command, configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, flag := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// loadConfig fills the configurable root options from viper.
func loadConfig(cmd *cobra.Command, opts *RootOptions) error {
	v, err := newViper(cmd, opts.Config)
	if err != nil {
		return err
	}
	opts.Database = v.GetString("db")
	opts.LogFormat = v.GetString("log_format")
	opts.BitsetThreshold = v.GetInt("bitset_threshold")
	opts.TermCacheSize = v.GetInt("term_cache_size")

	if opts.LogFormat != "text" && opts.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q: must be text or json", opts.LogFormat)
	}
	if opts.BitsetThreshold < 0 {
		return fmt.Errorf("bitset threshold must be non-negative, got %d", opts.BitsetThreshold)
	}
	if opts.TermCacheSize < 1 {
		return fmt.Errorf("term cache size must be positive, got %d", opts.TermCacheSize)
	}
	return nil
}

// Logger returns a structured logger writing to w, at debug level when
// verbose.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if o.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// requireDatabase fails with a command error when no database is configured.
func (o *RootOptions) requireDatabase() error {
	if o.Database == "" {
		return NewExitError(ExitCommandError, "database path required (--db, SPARQLFLOW_DB or config file)")
	}
	return nil
}

// openStore opens the configured database.
func (o *RootOptions) openStore(logger *slog.Logger) (*store.Store, error) {
	if err := o.requireDatabase(); err != nil {
		return nil, err
	}
	sopts := []store.Option{store.WithLogger(logger)}
	if o.TermCacheSize > 0 {
		sopts = append(sopts, store.WithTermCacheSize(o.TermCacheSize))
	}
	st, err := store.Open(o.Database, sopts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// queryOptions are the engine options shared by every prepared query.
func (o *RootOptions) queryOptions(logger *slog.Logger) []engine.Option {
	return []engine.Option{
		engine.WithLogger(logger),
		engine.WithBitsetThreshold(o.BitsetThreshold),
	}
}
