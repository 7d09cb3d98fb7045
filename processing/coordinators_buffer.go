package processing

import (
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
)

// CoordinatorsBuffer owns the per-partition coordinators of one subscription
// group. Coordinators are created lazily and dropped on revoke or reset.
type CoordinatorsBuffer struct {
	mu sync.Mutex

	coordinators map[kafka.TopicPartition]*Coordinator
	factory      func(tp kafka.TopicPartition) *Coordinator
}

func NewCoordinatorsBuffer(factory func(tp kafka.TopicPartition) *Coordinator) *CoordinatorsBuffer {
	return &CoordinatorsBuffer{
		coordinators: make(map[kafka.TopicPartition]*Coordinator),
		factory:      factory,
	}
}

func (b *CoordinatorsBuffer) FindOrCreate(tp kafka.TopicPartition) *Coordinator {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.coordinators[tp]
	if !ok {
		c = b.factory(tp)
		b.coordinators[tp] = c
	}

	return c
}

func (b *CoordinatorsBuffer) Find(tp kafka.TopicPartition) (*Coordinator, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.coordinators[tp]
	return c, ok
}

// Revoke marks the partition's coordinator as revoked and removes it from
// the buffer. In-flight jobs keep their reference and observe the revoked
// flag in their post-consume handling.
func (b *CoordinatorsBuffer) Revoke(tp kafka.TopicPartition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.coordinators[tp]
	if !ok {
		return
	}

	c.Revoke()
	delete(b.coordinators, tp)
}

func (b *CoordinatorsBuffer) Each(fn func(tp kafka.TopicPartition, c *Coordinator)) {
	b.mu.Lock()
	snapshot := make(map[kafka.TopicPartition]*Coordinator, len(b.coordinators))
	for tp, c := range b.coordinators {
		snapshot[tp] = c
	}
	b.mu.Unlock()

	for tp, c := range snapshot {
		fn(tp, c)
	}
}

// Reset marks every coordinator revoked and empties the buffer. Used on
// listener restart so orphaned callbacks become no-ops.
func (b *CoordinatorsBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tp, c := range b.coordinators {
		c.Revoke()
		delete(b.coordinators, tp)
	}
}
