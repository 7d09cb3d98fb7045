package kafka

import (
	"context"
	"time"
)

// Client is the full broker surface the runtime depends on. One client is
// owned by exactly one listener; Pause, Resume, Seek, MarkConsumed and
// Produce may additionally be called from worker goroutines and must be
// thread safe.
type Client interface {
	Consumer
	Producer
	Admin

	Ping(ctx context.Context) error

	// Reset tears down and re-establishes the broker connection, discarding
	// any buffered fetches. Used by the listener restart path.
	Reset(ctx context.Context) error

	Close()
}

type Consumer interface {
	Subscribe(topics []string) error

	// BatchPoll fetches the next batch of messages. Rebalance events observed
	// during the poll are recorded on the Rebalance tracker.
	BatchPoll(ctx context.Context) ([]Message, error)

	Pause(partitions ...TopicPartition)
	Resume(partitions ...TopicPartition)

	// Seek moves the next fetch position for the partition. Takes effect on
	// the following poll.
	Seek(tp TopicPartition, offset int64)

	// MarkConsumed marks messages so their offsets become eligible for the
	// next commit.
	MarkConsumed(messages ...Message)

	// CommitMarked synchronously commits every offset marked so far.
	CommitMarked(ctx context.Context) error

	Rebalance() *RebalanceTracker
	GroupID() string
}

type Producer interface {
	// Produce synchronously writes a single record, used for DLQ dispatch.
	Produce(ctx context.Context, topic string, key, value []byte, headers []Header) error

	// ProduceAsync fires the record without waiting for the broker ack.
	ProduceAsync(ctx context.Context, topic string, key, value []byte, headers []Header)

	Flush(ctx context.Context) error
}

type Admin interface {
	// QueryWatermarkOffsets returns the low and high watermark of a partition.
	QueryWatermarkOffsets(ctx context.Context, tp TopicPartition) (low, high int64, err error)

	// OffsetsForTimes resolves, for each partition, the earliest offset whose
	// timestamp is at or after the requested time. Partitions with no
	// resolvable offset are absent from the result.
	OffsetsForTimes(
		ctx context.Context, times map[TopicPartition]time.Time, timeout time.Duration,
	) (map[TopicPartition]int64, error)
}
