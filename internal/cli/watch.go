package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/store"
)

// DefaultDebounce is how long a change file must stay quiet before it is
// applied.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Queries  []string
	Debounce time.Duration
}

// ChangeEvent is one result change printed by watch.
// Row identifies the mapping, so a removal can be matched to the addition
// it retracts.
type ChangeEvent struct {
	Query  string `json:"query"`
	Seq    int64  `json:"seq"`
	Row    string `json:"row"`
	Change string `json:"change"`
}

// ChangeWatcher applies change files written to a directory to a store.
// Files are applied once per quiet period after their last write event.
type ChangeWatcher struct {
	dir      string
	store    *store.Store
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	onApply  func(path string, sum LoadSummary, err error)

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewChangeWatcher starts watching dir. onApply, when set, is called after
// every applied file.
func NewChangeWatcher(dir string, st *store.Store, logger *slog.Logger, debounce time.Duration, onApply func(string, LoadSummary, error)) (*ChangeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	return &ChangeWatcher{
		dir:      dir,
		store:    st,
		watcher:  w,
		logger:   logger,
		debounce: debounce,
		onApply:  onApply,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run handles file events until ctx is cancelled, then waits for pending
// applies to finish.
func (cw *ChangeWatcher) Run(ctx context.Context) error {
	defer cw.wg.Wait()
	defer cw.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isChangeFile(event.Name) {
				continue
			}
			cw.logger.Debug("change file event", "file", event.Name, "op", event.Op.String())
			cw.schedule(ctx, event.Name)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (cw *ChangeWatcher) Close() error {
	return cw.watcher.Close()
}

// schedule debounces rapid writes to the same file.
func (cw *ChangeWatcher) schedule(ctx context.Context, path string) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if t, ok := cw.timers[path]; ok && t.Stop() {
		cw.wg.Done()
	}
	cw.wg.Add(1)
	cw.timers[path] = time.AfterFunc(cw.debounce, func() {
		defer cw.wg.Done()
		cw.mu.Lock()
		delete(cw.timers, path)
		cw.mu.Unlock()
		cw.apply(ctx, path)
	})
}

func (cw *ChangeWatcher) stopTimers() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	for path, t := range cw.timers {
		if t.Stop() {
			cw.wg.Done()
		}
		delete(cw.timers, path)
	}
}

func (cw *ChangeWatcher) apply(ctx context.Context, path string) {
	cf, err := ReadChangeFile(path)
	var sum LoadSummary
	if err == nil {
		sum, err = ApplyChangeFile(ctx, cw.store, cf)
	}
	sum.File = path
	if err != nil {
		cw.logger.Error("change file failed", "file", path, "error", err)
	} else {
		cw.logger.Info("change file applied", "file", path, "added", sum.Added, "removed", sum.Removed)
	}
	if cw.onApply != nil {
		cw.onApply(path, sum, err)
	}
}

func isChangeFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <queries> <changes-dir>",
		Short: "Keep queries live and apply change files as they appear",
		Long: `Host queries over the quad store and print their result changes as
they happen.

Every change file (.yaml or .yml) created or written in changes-dir is
applied to the store once it has been quiet for the debounce period. The
file format is the one load reads. Each result change is printed as
"<query> +{...}" or "<query> -{...}"; with --format json one JSON object
per line.

Example:
  sparqlflow watch --db ./quads.db ./queries ./incoming
  sparqlflow watch --db ./quads.db ./queries ./incoming --query fof --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Queries, "query", "q", nil, "query names to watch (default all)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", DefaultDebounce, "quiet period before a change file is applied")

	return cmd
}

func runWatch(opts *WatchOptions, queriesPath, dir string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("changes directory not found: %s", dir))
	}
	f, err := loadQueriesOrFail(queriesPath)
	if err != nil {
		return err
	}
	names, queries, err := prepareQueries(opts.RootOptions, f, opts.Queries, logger)
	if err != nil {
		return err
	}

	st, err := opts.openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	printer := newChangePrinter(cmd.OutOrStdout(), opts.Format == "json")
	host := engine.NewEngine(engine.WithLogger(logger), engine.WithChangeHandler(printer.print))
	for _, q := range queries {
		host.Register(q)
	}
	if err := host.Attach(ctx, st); err != nil {
		return WrapExitError(ExitCommandError, "failed to read store", err)
	}
	defer st.Unregister(host)

	watcher, err := NewChangeWatcher(dir, st, logger, opts.Debounce, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to watch changes directory", err)
	}
	defer watcher.Close()

	hostErr := make(chan error, 1)
	go func() { hostErr <- host.Run(ctx) }()

	logger.Info("watching", "queries", names, "dir", dir)
	werr := watcher.Run(ctx)
	host.Stop()
	if err := <-hostErr; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return WrapExitError(ExitFailure, "watcher error", werr)
	}
	return nil
}

// changePrinter writes result changes as they are reported. Query ids are
// query names.
type changePrinter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func newChangePrinter(w io.Writer, asJSON bool) *changePrinter {
	return &changePrinter{w: w, json: asJSON}
}

func (p *changePrinter) print(queryID string, changes []engine.ResultChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range changes {
		if p.json {
			row, err := ir.MappingHash(c.Value)
			if err != nil {
				_ = json.NewEncoder(p.w).Encode(map[string]string{"query": queryID, "error": err.Error()})
				continue
			}
			_ = json.NewEncoder(p.w).Encode(ChangeEvent{Query: queryID, Seq: c.Origin.Seq, Row: row, Change: c.String()})
			continue
		}
		fmt.Fprintf(p.w, "%s %s\n", queryID, c.String())
	}
}
