package engine

import "log/slog"

type config struct {
	bitsetThreshold int
	logger          *slog.Logger
	clock           *Clock
	ids             IDGenerator
	onChange        ChangeHandler
	strict          bool
}

// Option configures Prepare, NewNetwork and NewEngine.
type Option func(*config)

func newConfig(opts []Option) *config {
	cfg := &config{
		bitsetThreshold: DefaultBitsetThreshold,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if cfg.ids == nil {
		cfg.ids = UUIDv7Generator{}
	}
	return cfg
}

// WithBitsetThreshold sets the number of distinct bindings below which a
// query uses bitset rows. Queries with more bindings, or more than 32, use
// sorted pairs. Use WithBitsetThreshold(0) to force pairs.
func WithBitsetThreshold(n int) Option {
	return func(c *config) {
		c.bitsetThreshold = n
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithClock sets the clock that stamps deltas arriving without a sequence
// number. Sharing one clock across queries gives their origins a common
// order.
func WithClock(clock *Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithIDGenerator sets the generator for query ids. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *config) {
		c.ids = g
	}
}

// WithChangeHandler sets the callback that receives result changes when a
// query is driven as a Listener.
func WithChangeHandler(h ChangeHandler) Option {
	return func(c *config) {
		c.onChange = h
	}
}

// WithStrictRetractions makes an Engine panic with a COUNT_UNDERFLOW
// *RuntimeError when a quad is removed that it never dispatched. Without
// it the removal is logged at error level and dropped.
func WithStrictRetractions() Option {
	return func(c *config) {
		c.strict = true
	}
}
