package processing

import (
	"sort"
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
)

// ExecutorsBuffer stores the executors of one subscription group keyed by
// (partition, virtual group). Executors are created lazily on first message
// arrival and purged on revoke, shutdown or listener restart.
type ExecutorsBuffer struct {
	mu sync.Mutex

	executors map[kafka.TopicPartition]map[int]*Executor
	factory   func(tp kafka.TopicPartition, virtualGroup int, coordinator *Coordinator) *Executor
}

func NewExecutorsBuffer(
	factory func(tp kafka.TopicPartition, virtualGroup int, coordinator *Coordinator) *Executor,
) *ExecutorsBuffer {
	return &ExecutorsBuffer{
		executors: make(map[kafka.TopicPartition]map[int]*Executor),
		factory:   factory,
	}
}

func (b *ExecutorsBuffer) FindOrCreate(
	tp kafka.TopicPartition, virtualGroup int, coordinator *Coordinator,
) *Executor {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups, ok := b.executors[tp]
	if !ok {
		groups = make(map[int]*Executor)
		b.executors[tp] = groups
	}

	e, ok := groups[virtualGroup]
	if !ok {
		e = b.factory(tp, virtualGroup, coordinator)
		groups[virtualGroup] = e
	}

	return e
}

// Find returns the partition's executors in ascending virtual group order.
func (b *ExecutorsBuffer) Find(tp kafka.TopicPartition) []*Executor {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups := b.executors[tp]
	result := make([]*Executor, 0, len(groups))
	for _, e := range groups {
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].VirtualGroup() < result[j].VirtualGroup() })
	return result
}

// Revoke drops every executor of the partition. Jobs already built keep
// their references; the buffer simply stops handing them out.
func (b *ExecutorsBuffer) Revoke(tp kafka.TopicPartition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.executors, tp)
}

// Each visits every executor in deterministic partition and group order.
func (b *ExecutorsBuffer) Each(fn func(e *Executor)) {
	b.mu.Lock()
	tps := make([]kafka.TopicPartition, 0, len(b.executors))
	for tp := range b.executors {
		tps = append(tps, tp)
	}
	b.mu.Unlock()

	sort.Slice(
		tps, func(i, j int) bool {
			if tps[i].Topic != tps[j].Topic {
				return tps[i].Topic < tps[j].Topic
			}
			return tps[i].Partition < tps[j].Partition
		},
	)

	for _, tp := range tps {
		for _, e := range b.Find(tp) {
			fn(e)
		}
	}
}

func (b *ExecutorsBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, groups := range b.executors {
		count += len(groups)
	}
	return count
}

func (b *ExecutorsBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.executors = make(map[kafka.TopicPartition]map[int]*Executor)
}
