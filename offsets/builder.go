// Package offsets normalizes user-provided starting positions into a flat
// topic-partition-offset list ready to subscribe, resolving negative and
// time-based offsets against the broker.
package offsets

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// timesTimeout bounds the single offsets-for-times round trip issued per
// Build, regardless of how many topics carry time-based positions.
const timesTimeout = 2 * time.Second

// InvalidTimeBasedOffsetError reports partitions whose time-based starting
// position could not be resolved by the broker.
type InvalidTimeBasedOffsetError struct {
	Partitions []kafka.TopicPartition
}

func (e InvalidTimeBasedOffsetError) Error() string {
	return fmt.Sprintf("no offset resolvable for time-based positions on %v", e.Partitions)
}

// Start is one normalized subscription entry.
type Start struct {
	kafka.TopicPartition
	Offset int64
}

// Spec describes the starting positions for one topic. Within one form a
// later entry for a partition replaces an earlier one. Across forms, Build
// lets time-based positions override explicit offsets, and explicit offsets
// override the partition list, whatever the registration order.
type Spec struct {
	beginning []int32
	offsets   map[int32]int64
	times     map[int32]time.Time
}

// Partitions starts the listed partitions from the beginning of the log.
func Partitions(partitions ...int32) Spec {
	return Spec{beginning: partitions}
}

// At starts each partition at an explicit offset. Non-negative offsets are
// used as-is; a negative offset -N means the last N messages, clamped to the
// low watermark.
func At(offsets map[int32]int64) Spec {
	return Spec{offsets: offsets}
}

// Since starts each partition at the earliest offset whose record timestamp
// is at or after the given time.
func Since(times map[int32]time.Time) Spec {
	return Spec{times: times}
}

// Merge combines two specs for the same topic. Entries in other replace
// entries for the same partition in s.
func (s Spec) Merge(other Spec) Spec {
	merged := Spec{
		beginning: append(append([]int32(nil), s.beginning...), other.beginning...),
		offsets:   make(map[int32]int64, len(s.offsets)+len(other.offsets)),
		times:     make(map[int32]time.Time, len(s.times)+len(other.times)),
	}
	for p, o := range s.offsets {
		merged.offsets[p] = o
	}
	for p, o := range other.offsets {
		merged.offsets[p] = o
	}
	for p, t := range s.times {
		merged.times[p] = t
	}
	for p, t := range other.times {
		merged.times[p] = t
	}
	return merged
}

// Builder accumulates per-topic specs and resolves them against the broker.
type Builder struct {
	admin  kafka.Admin
	order  []string
	topics map[string]Spec
}

func NewBuilder(admin kafka.Admin) *Builder {
	return &Builder{
		admin:  admin,
		topics: make(map[string]Spec),
	}
}

// Topic registers starting positions for a topic. Registering the same topic
// twice merges the specs: later entries win per partition within each form,
// and the precedence between forms described on Spec still applies.
func (b *Builder) Topic(name string, spec Spec) *Builder {
	if existing, ok := b.topics[name]; ok {
		b.topics[name] = existing.Merge(spec)
		return b
	}

	b.order = append(b.order, name)
	b.topics[name] = spec
	return b
}

// Build resolves every registered position into a concrete offset. Negative
// offsets are clamped against the partition watermarks; time-based positions
// across all topics are batched into a single offsets-for-times call.
func (b *Builder) Build(ctx context.Context) ([]Start, error) {
	starts := make(map[kafka.TopicPartition]int64)
	times := make(map[kafka.TopicPartition]time.Time)

	for _, topic := range b.order {
		spec := b.topics[topic]

		for _, partition := range spec.beginning {
			starts[kafka.TopicPartition{Topic: topic, Partition: partition}] = 0
		}

		for partition, offset := range spec.offsets {
			tp := kafka.TopicPartition{Topic: topic, Partition: partition}

			if offset >= 0 {
				starts[tp] = offset
				continue
			}

			low, high, err := b.admin.QueryWatermarkOffsets(ctx, tp)
			if err != nil {
				return nil, fmt.Errorf("querying watermarks for %s: %w", tp, err)
			}

			starts[tp] = max(low, high+offset)
		}

		for partition, ts := range spec.times {
			times[kafka.TopicPartition{Topic: topic, Partition: partition}] = ts
		}
	}

	if len(times) > 0 {
		resolved, err := b.admin.OffsetsForTimes(ctx, times, timesTimeout)
		if err != nil {
			return nil, fmt.Errorf("resolving time-based offsets: %w", err)
		}

		var missing []kafka.TopicPartition
		for tp := range times {
			offset, ok := resolved[tp]
			if !ok {
				missing = append(missing, tp)
				continue
			}
			starts[tp] = offset
		}

		if len(missing) > 0 {
			sortPartitions(missing)
			return nil, InvalidTimeBasedOffsetError{Partitions: missing}
		}
	}

	list := make([]Start, 0, len(starts))
	for tp, offset := range starts {
		list = append(list, Start{TopicPartition: tp, Offset: offset})
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Topic != list[j].Topic {
			return list[i].Topic < list[j].Topic
		}
		return list[i].Partition < list[j].Partition
	})

	return list, nil
}

func sortPartitions(tps []kafka.TopicPartition) {
	sort.Slice(tps, func(i, j int) bool {
		if tps[i].Topic != tps[j].Topic {
			return tps[i].Topic < tps[j].Topic
		}
		return tps[i].Partition < tps[j].Partition
	})
}
