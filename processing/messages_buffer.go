package processing

import (
	"sort"

	"github.com/hugolhafner/go-consumer/kafka"
)

// MessagesBuffer holds one poll generation of raw messages grouped by
// partition. It is owned by the listener goroutine and is never accessed
// concurrently, so no locking is required.
type MessagesBuffer struct {
	groups map[kafka.TopicPartition][]kafka.Message
	size   int
}

func NewMessagesBuffer() *MessagesBuffer {
	return &MessagesBuffer{
		groups: make(map[kafka.TopicPartition][]kafka.Message),
	}
}

// Remap replaces the buffer content with a new batch, grouping messages by
// partition while preserving broker order within each group.
func (b *MessagesBuffer) Remap(messages []kafka.Message) {
	b.Clear()

	for _, m := range messages {
		tp := m.TopicPartition()
		b.groups[tp] = append(b.groups[tp], m)
	}
	b.size = len(messages)
}

// Each visits every partition group in deterministic topic-partition order.
func (b *MessagesBuffer) Each(fn func(tp kafka.TopicPartition, messages []kafka.Message)) {
	tps := make([]kafka.TopicPartition, 0, len(b.groups))
	for tp := range b.groups {
		tps = append(tps, tp)
	}

	sort.Slice(
		tps, func(i, j int) bool {
			if tps[i].Topic != tps[j].Topic {
				return tps[i].Topic < tps[j].Topic
			}
			return tps[i].Partition < tps[j].Partition
		},
	)

	for _, tp := range tps {
		fn(tp, b.groups[tp])
	}
}

func (b *MessagesBuffer) Size() int {
	return b.size
}

func (b *MessagesBuffer) Empty() bool {
	return b.size == 0
}

func (b *MessagesBuffer) Clear() {
	for tp := range b.groups {
		delete(b.groups, tp)
	}
	b.size = 0
}
