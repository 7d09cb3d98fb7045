package processing

import (
	"context"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Consumer is the user-provided message handler. One instance serves one
// (partition, virtual group) pair and is never invoked concurrently.
type Consumer interface {
	Consume(ctx context.Context, batch *Batch) error
}

// ConsumerFactory builds a fresh consumer instance per executor.
type ConsumerFactory func() Consumer

// Optional lifecycle extensions. A consumer implements the ones it cares
// about; the executor checks at call time.
type (
	BeforeConsumeHandler interface {
		OnBeforeConsume(ctx context.Context) error
	}

	AfterConsumeHandler interface {
		OnAfterConsume(ctx context.Context) error
	}

	IdleHandler interface {
		OnIdle(ctx context.Context) error
	}

	PeriodicHandler interface {
		OnPeriodic(ctx context.Context) error
	}

	RevokedHandler interface {
		OnRevoked(ctx context.Context) error
	}

	ShutdownHandler interface {
		OnShutdown(ctx context.Context) error
	}
)

// Batch is the unit of work handed to a consumer: the messages of one
// virtual partition group plus the offset-control callbacks user code may
// invoke during processing. All callbacks are safe to call from the worker
// goroutine running the consumer.
type Batch struct {
	Messages []kafka.Message

	tp          kafka.TopicPartition
	client      kafka.Consumer
	coordinator *Coordinator
}

func NewBatch(
	messages []kafka.Message, tp kafka.TopicPartition, client kafka.Consumer, coordinator *Coordinator,
) *Batch {
	return &Batch{
		Messages:    messages,
		tp:          tp,
		client:      client,
		coordinator: coordinator,
	}
}

func (b *Batch) TopicPartition() kafka.TopicPartition {
	return b.tp
}

func (b *Batch) Empty() bool {
	return len(b.Messages) == 0
}

// Last returns the highest-offset message of the group.
func (b *Batch) Last() kafka.Message {
	return b.Messages[len(b.Messages)-1]
}

// MarkAsConsumed checkpoints the message: its offset becomes eligible for
// the next commit and the partition's resume position advances past it.
func (b *Batch) MarkAsConsumed(m kafka.Message) {
	b.client.MarkConsumed(m)
	b.coordinator.MarkUserConsumed(m)
}

// Pause stops fetching from the partition and repositions it at offset. A
// non-positive timeout pauses until Resume is called.
func (b *Batch) Pause(offset int64, timeout time.Duration) {
	b.coordinator.Pause().PauseManual(timeout)
	b.client.Pause(b.tp)

	if offset >= 0 {
		b.client.Seek(b.tp, offset)
	}
}

// Resume lifts a manual pause.
func (b *Batch) Resume() {
	b.coordinator.Pause().Resume()
	b.client.Resume(b.tp)
}

// Seek moves the partition's next fetch position.
func (b *Batch) Seek(offset int64) {
	b.client.Seek(b.tp, offset)
}
