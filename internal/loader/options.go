package loader

import (
	"github.com/rs/zerolog"

	"github.com/keshon/guild-warden/internal/metrics"
)

type options struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
	ignore  []string
}

// Option configures a loader.
type Option func(*options)

// WithLogger sets the loader's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records load attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithIgnore skips command files whose path relative to the walk root
// matches any of the doublestar patterns.
func WithIgnore(patterns ...string) Option {
	return func(o *options) { o.ignore = append(o.ignore, patterns...) }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
