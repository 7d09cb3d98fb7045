package processing

import (
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Filter removes messages from a partition batch before jobs are built.
// After Apply, the filter reports whether anything was dropped and where
// consumption should resume from.
type Filter interface {
	// Apply returns the messages that survive filtering, preserving order.
	Apply(messages []kafka.Message) []kafka.Message

	// Applied reports whether the last Apply dropped at least one message.
	Applied() bool

	// Cursor returns the first dropped message, if the filter wants the
	// partition to seek back to it instead of advancing past.
	Cursor() (kafka.Message, bool)

	// Timeout returns how long the partition should stay paused after a
	// cursor seek. Zero means no pause.
	Timeout() time.Duration
}

// FilterFactory builds a fresh filter per partition assignment.
type FilterFactory func(tp kafka.TopicPartition) Filter
