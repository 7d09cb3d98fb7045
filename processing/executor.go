package processing

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
)

// Executor binds one user consumer instance to a (partition, virtual group)
// pair and drives its lifecycle callbacks. At most one job per executor runs
// at a time; the partitioner's group assignment enforces this.
type Executor struct {
	tp           kafka.TopicPartition
	virtualGroup int
	group        string

	consumer    Consumer
	coordinator *Coordinator
	client      kafka.Consumer
	strategy    Strategy
	nonBlocking bool

	logger logger.Logger
}

func NewExecutor(
	tp kafka.TopicPartition,
	virtualGroup int,
	group string,
	consumer Consumer,
	coordinator *Coordinator,
	client kafka.Consumer,
	strategy Strategy,
	nonBlocking bool,
	l logger.Logger,
) *Executor {
	return &Executor{
		tp:           tp,
		virtualGroup: virtualGroup,
		group:        group,
		consumer:     consumer,
		coordinator:  coordinator,
		client:       client,
		strategy:     strategy,
		nonBlocking:  nonBlocking,
		logger: l.With(
			"component", "executor",
			"topic", tp.Topic,
			"partition", tp.Partition,
			"virtual_group", virtualGroup,
		),
	}
}

func (e *Executor) TopicPartition() kafka.TopicPartition {
	return e.tp
}

func (e *Executor) VirtualGroup() int {
	return e.virtualGroup
}

func (e *Executor) Group() string {
	return e.group
}

func (e *Executor) Coordinator() *Coordinator {
	return e.coordinator
}

func (e *Executor) Strategy() Strategy {
	return e.strategy
}

func (e *Executor) Logger() logger.Logger {
	return e.logger
}

// NonBlocking reports whether this executor's consume jobs may outlive a
// poll interval and must not block the queue drain.
func (e *Executor) NonBlocking() bool {
	return e.nonBlocking
}

// Consume runs the user consumer over one virtual group's messages. User
// panics are captured and surfaced as job failure, never past the worker.
func (e *Executor) Consume(ctx context.Context, messages []kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panic: %v", r)
		}
	}()

	batch := NewBatch(messages, e.tp, e.client, e.coordinator)

	if h, ok := e.consumer.(BeforeConsumeHandler); ok {
		if err := h.OnBeforeConsume(ctx); err != nil {
			return fmt.Errorf("before consume: %w", err)
		}
	}

	if err := e.consumer.Consume(ctx, batch); err != nil {
		return err
	}

	if h, ok := e.consumer.(AfterConsumeHandler); ok {
		if err := h.OnAfterConsume(ctx); err != nil {
			return fmt.Errorf("after consume: %w", err)
		}
	}

	return nil
}

// Idle notifies the consumer that the cycle produced no work for it.
func (e *Executor) Idle(ctx context.Context) {
	h, ok := e.consumer.(IdleHandler)
	if !ok {
		return
	}

	if err := e.protect(func() error { return h.OnIdle(ctx) }); err != nil {
		e.logger.Error("Idle handler failed", "error", err)
	}
}

// Periodic ticks the consumer on a quiet partition.
func (e *Executor) Periodic(ctx context.Context) {
	h, ok := e.consumer.(PeriodicHandler)
	if !ok {
		return
	}

	if err := e.protect(func() error { return h.OnPeriodic(ctx) }); err != nil {
		e.logger.Error("Periodic handler failed", "error", err)
	}
}

// Revoked notifies the consumer that its partition left the assignment.
func (e *Executor) Revoked(ctx context.Context) {
	h, ok := e.consumer.(RevokedHandler)
	if !ok {
		return
	}

	if err := e.protect(func() error { return h.OnRevoked(ctx) }); err != nil {
		e.logger.Error("Revoked handler failed", "error", err)
	}
}

// Shutdown notifies the consumer that the process is stopping.
func (e *Executor) Shutdown(ctx context.Context) {
	h, ok := e.consumer.(ShutdownHandler)
	if !ok {
		return
	}

	if err := e.protect(func() error { return h.OnShutdown(ctx) }); err != nil {
		e.logger.Error("Shutdown handler failed", "error", err)
	}
}

func (e *Executor) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panic: %v", r)
		}
	}()

	return fn()
}
