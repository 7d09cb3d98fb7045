package processing

import (
	"hash/fnv"

	"github.com/hugolhafner/go-consumer/kafka"
)

// VirtualPartitionerFunc extracts the grouping key from a message. Messages
// with equal keys land in the same virtual group and keep broker order.
type VirtualPartitionerFunc func(m kafka.Message) []byte

// Group is one virtual partition's slice of a batch.
type Group struct {
	ID       int
	Messages []kafka.Message
}

// Partitioner splits a partition batch into virtual groups. With no key
// function or a single partition it degrades to the identity split.
type Partitioner struct {
	fn            VirtualPartitionerFunc
	maxPartitions int
}

func NewPartitioner(fn VirtualPartitionerFunc, maxPartitions int) *Partitioner {
	if maxPartitions < 1 {
		maxPartitions = 1
	}

	return &Partitioner{
		fn:            fn,
		maxPartitions: maxPartitions,
	}
}

// IdentityPartitioner returns the whole batch as a single group.
func IdentityPartitioner() *Partitioner {
	return NewPartitioner(nil, 1)
}

// Call groups the messages. Groups are returned in ascending id order;
// within a group the broker order of the input is preserved.
func (p *Partitioner) Call(messages []kafka.Message) []Group {
	if p.fn == nil || p.maxPartitions == 1 {
		return []Group{{ID: 0, Messages: messages}}
	}

	grouped := make(map[int][]kafka.Message)
	for _, m := range messages {
		id := p.groupID(m)
		grouped[id] = append(grouped[id], m)
	}

	groups := make([]Group, 0, len(grouped))
	for id := 0; id < p.maxPartitions; id++ {
		if msgs, ok := grouped[id]; ok {
			groups = append(groups, Group{ID: id, Messages: msgs})
		}
	}

	return groups
}

func (p *Partitioner) groupID(m kafka.Message) int {
	h := fnv.New32a()
	h.Write(p.fn(m))
	return int(h.Sum32() % uint32(p.maxPartitions))
}
