package publish

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for per-tag results.
// If logger is nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithTracer sets the tracer used to create spans. When unset the tracer of
// the global OpenTelemetry provider is used.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithConcurrency limits the number of registry calls in flight within a
// phase. Values < 1 mean one goroutine per tag.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		c.concurrency = n
	}
}
