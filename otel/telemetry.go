package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-consumer"

// Telemetry holds all OpenTelemetry instruments for the consumer runtime
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Consumer metrics
	MessagesConsumed metric.Int64Counter
	PollDuration     metric.Float64Histogram

	// Job metrics
	JobDuration metric.Float64Histogram
	JobsActive  metric.Int64UpDownCounter

	// Post-consume metrics
	BatchRetries metric.Int64Counter
	DeadLetters  metric.Int64Counter
	Commits      metric.Int64Counter

	// Error metrics
	Errors metric.Int64Counter

	// Listener state metrics
	PartitionsPaused metric.Int64UpDownCounter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	messagesConsumed, err := meter.Int64Counter(
		"messaging.consumer.messages",
		metric.WithDescription("Records polled"),
	)
	if err != nil {
		return nil, err
	}

	pollDuration, err := meter.Float64Histogram(
		"consumer.poll.duration",
		metric.WithDescription("Time per batch poll"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"consumer.job.duration",
		metric.WithDescription("Wall time per scheduled job"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	jobsActive, err := meter.Int64UpDownCounter(
		"consumer.jobs.active",
		metric.WithDescription("Jobs currently running on the worker pool"),
	)
	if err != nil {
		return nil, err
	}

	batchRetries, err := meter.Int64Counter(
		"consumer.batch.retries",
		metric.WithDescription("Failed batch cycles that opened a retry pause"),
	)
	if err != nil {
		return nil, err
	}

	deadLetters, err := meter.Int64Counter(
		"consumer.dead_letters",
		metric.WithDescription("Records dispatched to a dead letter topic"),
	)
	if err != nil {
		return nil, err
	}

	commits, err := meter.Int64Counter(
		"consumer.commits",
		metric.WithDescription("Commit round trips issued"),
	)
	if err != nil {
		return nil, err
	}

	errors, err := meter.Int64Counter(
		"consumer.errors",
		metric.WithDescription("Runtime errors encountered"),
	)
	if err != nil {
		return nil, err
	}

	partitionsPaused, err := meter.Int64UpDownCounter(
		"consumer.partitions.paused",
		metric.WithDescription("Partitions currently paused"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:           tracer,
		Propagator:       prop,
		MessagesConsumed: messagesConsumed,
		PollDuration:     pollDuration,
		JobDuration:      jobDuration,
		JobsActive:       jobsActive,
		BatchRetries:     batchRetries,
		DeadLetters:      deadLetters,
		Commits:          commits,
		Errors:           errors,
		PartitionsPaused: partitionsPaused,
	}, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
