package service

import (
	"log/slog"
	"time"

	"github.com/yndnr/beamcal/internal/telemetry/metric"
)

// Option configures an engine.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metric.Registry
	now     func() time.Time
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  slog.Default(),
		metrics: metric.NewRegistry(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// observe records the duration of an operation started at start.
func (o options) observe(operation string, start time.Time, err error) {
	o.metrics.ObserveOperation(operation, o.now().Sub(start).Seconds(), err)
}
