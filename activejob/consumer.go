package activejob

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/processing"
	"github.com/hugolhafner/go-consumer/serde"
)

// Consumer adapts a handler registry to the runtime's consumer contract.
// Each record is decoded, dispatched, and marked individually, so a batch
// interrupted by a failure resumes at the first undone job.
type Consumer struct {
	registry     *Registry
	deserialiser serde.Deserialiser[Envelope]
	logger       logger.Logger
}

var _ processing.Consumer = (*Consumer)(nil)

type ConsumerOption func(*Consumer)

// WithDeserialiser replaces the JSON envelope codec.
func WithDeserialiser(d serde.Deserialiser[Envelope]) ConsumerOption {
	return func(c *Consumer) {
		c.deserialiser = d
	}
}

func WithLogger(log logger.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = log
	}
}

func NewConsumer(registry *Registry, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		registry:     registry,
		deserialiser: serde.JSON[Envelope](),
		logger:       logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("component", "active_job")

	return c
}

// NewConsumerFactory returns a factory handing every executor the same
// registry. Consumers are stateless, so sharing the registry is safe.
func NewConsumerFactory(registry *Registry, opts ...ConsumerOption) processing.ConsumerFactory {
	return func() processing.Consumer {
		return NewConsumer(registry, opts...)
	}
}

func (c *Consumer) Consume(ctx context.Context, batch *processing.Batch) error {
	for _, m := range batch.Messages {
		envelope, err := c.deserialiser.Deserialise(m.Topic, m.Value)
		if err != nil {
			return fmt.Errorf("decoding job envelope at offset %d: %w", m.Offset, err)
		}

		job := Job{
			Name:       envelope.Job,
			Args:       envelope.Args,
			EnqueuedAt: envelope.EnqueuedAt,
			Message:    m,
		}

		if err := c.registry.Dispatch(ctx, job); err != nil {
			return fmt.Errorf("job %q at offset %d: %w", job.Name, m.Offset, err)
		}

		c.logger.Debug(
			"job processed",
			"job", job.Name,
			"partition", m.Partition,
			"offset", m.Offset,
		)

		batch.MarkAsConsumed(m)
	}

	return nil
}
