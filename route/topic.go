package route

import (
	"time"

	"github.com/hugolhafner/go-consumer/processing"
)

// DispatchMethod selects how DLQ records reach the broker.
type DispatchMethod string

const (
	DispatchProduceAsync DispatchMethod = "produce_async"
	DispatchProduceSync  DispatchMethod = "produce_sync"
)

// DeadLetterQueue configures the retry budget and the escalation topic of a
// routed topic. An empty Topic disables dispatch but keeps the skip-on-
// exhaustion behavior.
type DeadLetterQueue struct {
	Topic          string
	MaxRetries     int
	DispatchMethod DispatchMethod
}

func (d DeadLetterQueue) Enabled() bool {
	return d.Topic != ""
}

// VirtualPartitions configures parallel sub-partition processing.
type VirtualPartitions struct {
	Partitioner   processing.VirtualPartitionerFunc
	MaxPartitions int
}

func (v VirtualPartitions) Enabled() bool {
	return v.Partitioner != nil
}

// Periodics configures periodic ticks on quiet partitions.
type Periodics struct {
	Interval time.Duration
}

func (p Periodics) Enabled() bool {
	return p.Interval > 0
}

// Features is the tuple that selects a post-consume strategy.
type Features struct {
	ActiveJob              bool
	DeadLetterQueue        bool
	Filtering              bool
	ManualOffsetManagement bool
	VirtualPartitions      bool
	LongRunningJob         bool
}

// Topic is one routed topic with its feature set and consumer factory.
type Topic struct {
	Name     string
	Consumer processing.ConsumerFactory

	ManualOffsetManagement bool
	DeadLetterQueue        DeadLetterQueue
	Filtering              processing.FilterFactory
	VirtualPartitions      VirtualPartitions
	LongRunningJob         bool
	Periodics              Periodics
	ActiveJob              bool
}

type TopicOption func(*Topic)

func WithManualOffsetManagement() TopicOption {
	return func(t *Topic) {
		t.ManualOffsetManagement = true
	}
}

func WithDeadLetterQueue(topic string, maxRetries int, method DispatchMethod) TopicOption {
	return func(t *Topic) {
		t.DeadLetterQueue = DeadLetterQueue{
			Topic:          topic,
			MaxRetries:     maxRetries,
			DispatchMethod: method,
		}
	}
}

func WithFiltering(factory processing.FilterFactory) TopicOption {
	return func(t *Topic) {
		t.Filtering = factory
	}
}

func WithVirtualPartitions(partitioner processing.VirtualPartitionerFunc, maxPartitions int) TopicOption {
	return func(t *Topic) {
		t.VirtualPartitions = VirtualPartitions{
			Partitioner:   partitioner,
			MaxPartitions: maxPartitions,
		}
	}
}

func WithLongRunningJob() TopicOption {
	return func(t *Topic) {
		t.LongRunningJob = true
	}
}

func WithPeriodics(interval time.Duration) TopicOption {
	return func(t *Topic) {
		t.Periodics = Periodics{Interval: interval}
	}
}

func WithActiveJob() TopicOption {
	return func(t *Topic) {
		t.ActiveJob = true
	}
}

func NewTopic(name string, consumer processing.ConsumerFactory, opts ...TopicOption) *Topic {
	t := &Topic{
		Name:     name,
		Consumer: consumer,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Features returns the strategy selection tuple for this topic.
func (t *Topic) Features() Features {
	return Features{
		ActiveJob:              t.ActiveJob,
		DeadLetterQueue:        t.DeadLetterQueue.Enabled(),
		Filtering:              t.Filtering != nil,
		ManualOffsetManagement: t.ManualOffsetManagement,
		VirtualPartitions:      t.VirtualPartitions.Enabled(),
		LongRunningJob:         t.LongRunningJob,
	}
}

// Partitioner builds the virtual partitioner for this topic, identity when
// virtual partitions are disabled.
func (t *Topic) Partitioner() *processing.Partitioner {
	if !t.VirtualPartitions.Enabled() {
		return processing.IdentityPartitioner()
	}

	return processing.NewPartitioner(t.VirtualPartitions.Partitioner, t.VirtualPartitions.MaxPartitions)
}

// Validate checks the topic configuration. Returned errors are always
// InvalidConfigurationError values.
func (t *Topic) Validate() error {
	if t.Name == "" {
		return InvalidConfigurationError{Field: "topic.name", Reason: "must not be empty"}
	}

	if t.Consumer == nil {
		return InvalidConfigurationError{
			Field: "topic." + t.Name + ".consumer", Reason: "consumer factory is required",
		}
	}

	if t.DeadLetterQueue != (DeadLetterQueue{}) {
		if t.DeadLetterQueue.MaxRetries < 0 {
			return InvalidConfigurationError{
				Field: "topic." + t.Name + ".dead_letter_queue.max_retries", Reason: "must not be negative",
			}
		}

		switch t.DeadLetterQueue.DispatchMethod {
		case DispatchProduceAsync, DispatchProduceSync:
		default:
			return InvalidConfigurationError{
				Field:  "topic." + t.Name + ".dead_letter_queue.dispatch_method",
				Reason: "must be produce_async or produce_sync",
			}
		}

		if t.DeadLetterQueue.Enabled() && t.DeadLetterQueue.Topic == t.Name {
			return InvalidConfigurationError{
				Field: "topic." + t.Name + ".dead_letter_queue.topic", Reason: "must differ from the source topic",
			}
		}
	}

	if t.VirtualPartitions.Enabled() && t.VirtualPartitions.MaxPartitions < 1 {
		return InvalidConfigurationError{
			Field: "topic." + t.Name + ".virtual_partitions.max_partitions", Reason: "must be at least 1",
		}
	}

	if t.Periodics != (Periodics{}) && t.Periodics.Interval <= 0 {
		return InvalidConfigurationError{
			Field: "topic." + t.Name + ".periodics.interval", Reason: "must be positive",
		}
	}

	return nil
}
