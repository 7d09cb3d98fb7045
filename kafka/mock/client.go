package mockkafka

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

var _ kafka.Client = (*Client)(nil)

// ProducedRecord represents a record written via the mock producer.
type ProducedRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []kafka.Header
	Sync    bool
}

// Client is an in-memory kafka.Client. Messages are staged per partition
// with AddMessages and handed out by BatchPoll in offset order, honouring
// pause, resume and seek exactly like a broker-backed client would.
type Client struct {
	mu sync.Mutex

	queues    map[kafka.TopicPartition][]kafka.Message
	positions map[kafka.TopicPartition]int

	paused      map[kafka.TopicPartition]struct{}
	pauseCalls  []kafka.TopicPartition
	resumeCalls []kafka.TopicPartition
	seekCalls   map[kafka.TopicPartition][]int64

	markedOffsets    map[kafka.TopicPartition]kafka.Offset
	committedOffsets map[kafka.TopicPartition]kafka.Offset

	produced   []ProducedRecord
	watermarks map[kafka.TopicPartition][2]int64

	rebalance     *kafka.RebalanceTracker
	subscriptions []string
	subscribed    bool

	maxPollRecords int
	groupID        string

	pollErr    func() error
	commitErr  func() error
	produceErr func(topic string) error
	pingErr    error

	resetCount int
	pingCount  int
	closed     bool
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		queues:           make(map[kafka.TopicPartition][]kafka.Message),
		positions:        make(map[kafka.TopicPartition]int),
		paused:           make(map[kafka.TopicPartition]struct{}),
		seekCalls:        make(map[kafka.TopicPartition][]int64),
		markedOffsets:    make(map[kafka.TopicPartition]kafka.Offset),
		committedOffsets: make(map[kafka.TopicPartition]kafka.Offset),
		watermarks:       make(map[kafka.TopicPartition][2]int64),
		rebalance:        kafka.NewRebalanceTracker(),
		maxPollRecords:   100,
		groupID:          "mock-group",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Subscribe(topics []string) error {
	c.mu.Lock()

	if c.subscribed {
		c.mu.Unlock()
		return nil
	}

	c.subscriptions = topics
	c.subscribed = true

	// auto-assign every staged partition of the subscribed topics
	var partitions []kafka.TopicPartition
	for tp := range c.queues {
		for _, topic := range topics {
			if tp.Topic == topic {
				partitions = append(partitions, tp)
				break
			}
		}
	}
	c.mu.Unlock()

	if len(partitions) > 0 {
		c.rebalance.OnAssigned(partitions)
	}

	return nil
}

func (c *Client) BatchPoll(ctx context.Context) ([]kafka.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	assigned := c.rebalance.Assigned()
	sort.Slice(
		assigned, func(i, j int) bool {
			if assigned[i].Topic != assigned[j].Topic {
				return assigned[i].Topic < assigned[j].Topic
			}
			return assigned[i].Partition < assigned[j].Partition
		},
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pollErr != nil {
		if err := c.pollErr(); err != nil {
			return nil, err
		}
	}

	var messages []kafka.Message

	for len(messages) < c.maxPollRecords {
		progress := false

		for _, tp := range assigned {
			if _, isPaused := c.paused[tp]; isPaused {
				continue
			}

			queue := c.queues[tp]
			pos := c.positions[tp]
			if pos >= len(queue) {
				continue
			}

			messages = append(messages, queue[pos])
			c.positions[tp]++
			progress = true

			if len(messages) >= c.maxPollRecords {
				break
			}
		}

		if !progress {
			break
		}
	}

	return messages, nil
}

func (c *Client) Pause(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tp := range partitions {
		c.paused[tp] = struct{}{}
		c.pauseCalls = append(c.pauseCalls, tp)
	}
}

func (c *Client) Resume(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tp := range partitions {
		delete(c.paused, tp)
		c.resumeCalls = append(c.resumeCalls, tp)
	}
}

func (c *Client) Seek(tp kafka.TopicPartition, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seekCalls[tp] = append(c.seekCalls[tp], offset)

	queue := c.queues[tp]
	pos := len(queue)
	for i, m := range queue {
		if m.Offset >= offset {
			pos = i
			break
		}
	}
	c.positions[tp] = pos
}

func (c *Client) MarkConsumed(messages ...kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range messages {
		tp := m.TopicPartition()
		next := kafka.Offset{
			Offset:      m.Offset + 1,
			LeaderEpoch: m.LeaderEpoch,
		}

		if current, exists := c.markedOffsets[tp]; !exists || next.Offset > current.Offset {
			c.markedOffsets[tp] = next
		}
	}
}

func (c *Client) CommitMarked(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.commitErr != nil {
		if err := c.commitErr(); err != nil {
			return err
		}
	}

	for tp, offset := range c.markedOffsets {
		if current, exists := c.committedOffsets[tp]; !exists || offset.Offset > current.Offset {
			c.committedOffsets[tp] = offset
		}
	}

	return nil
}

func (c *Client) Rebalance() *kafka.RebalanceTracker {
	return c.rebalance
}

func (c *Client) GroupID() string {
	return c.groupID
}

func (c *Client) Produce(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	return c.produce(topic, key, value, headers, true)
}

func (c *Client) ProduceAsync(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) {
	_ = c.produce(topic, key, value, headers, false)
}

func (c *Client) produce(topic string, key, value []byte, headers []kafka.Header, sync bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.produceErr != nil {
		if err := c.produceErr(topic); err != nil {
			return err
		}
	}

	headersCopy := make([]kafka.Header, len(headers))
	for i, h := range headers {
		vCopy := make([]byte, len(h.Value))
		copy(vCopy, h.Value)
		headersCopy[i] = kafka.Header{Key: h.Key, Value: vCopy}
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.produced = append(
		c.produced, ProducedRecord{
			Topic:   topic,
			Key:     keyCopy,
			Value:   valueCopy,
			Headers: headersCopy,
			Sync:    sync,
		},
	)

	return nil
}

func (c *Client) Flush(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pingCount++
	return c.pingErr
}

func (c *Client) QueryWatermarkOffsets(ctx context.Context, tp kafka.TopicPartition) (int64, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wm, ok := c.watermarks[tp]; ok {
		return wm[0], wm[1], nil
	}

	queue := c.queues[tp]
	if len(queue) == 0 {
		return 0, 0, nil
	}

	return queue[0].Offset, queue[len(queue)-1].Offset + 1, nil
}

func (c *Client) OffsetsForTimes(
	ctx context.Context, times map[kafka.TopicPartition]time.Time, timeout time.Duration,
) (map[kafka.TopicPartition]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[kafka.TopicPartition]int64, len(times))
	for tp, ts := range times {
		for _, m := range c.queues[tp] {
			if !m.Timestamp.Before(ts) {
				result[tp] = m.Offset
				break
			}
		}
	}

	return result, nil
}

// Reset mimics the real client's reconnect: pending marks are discarded and
// every partition resumes from its committed offset.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetCount++
	c.markedOffsets = make(map[kafka.TopicPartition]kafka.Offset)

	for tp, queue := range c.queues {
		pos := 0
		if committed, ok := c.committedOffsets[tp]; ok {
			pos = len(queue)
			for i, m := range queue {
				if m.Offset >= committed.Offset {
					pos = i
					break
				}
			}
		}
		c.positions[tp] = pos
	}

	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

// AddMessages stages messages to be returned by BatchPoll for a partition.
// Topic, partition and missing offsets are filled in automatically.
func (c *Client) AddMessages(topic string, partition int32, messages ...kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}

	nextOffset := int64(0)
	if existing := c.queues[tp]; len(existing) > 0 {
		nextOffset = existing[len(existing)-1].Offset + 1
	}

	for i := range messages {
		messages[i].Topic = topic
		messages[i].Partition = partition
		if messages[i].Offset < 0 {
			messages[i].Offset = nextOffset
		}
		if messages[i].Offset >= nextOffset {
			nextOffset = messages[i].Offset + 1
		}
	}

	c.queues[tp] = append(c.queues[tp], messages...)
}

// TriggerAssign simulates the broker assigning partitions.
func (c *Client) TriggerAssign(partitions ...kafka.TopicPartition) {
	c.rebalance.OnAssigned(partitions)
}

// TriggerRevoke simulates the broker revoking partitions.
func (c *Client) TriggerRevoke(partitions ...kafka.TopicPartition) {
	c.rebalance.OnRevoked(partitions)
}

// SetWatermarks overrides the watermarks reported for a partition.
func (c *Client) SetWatermarks(tp kafka.TopicPartition, low, high int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.watermarks[tp] = [2]int64{low, high}
}

// SetPollError configures an error returned by every BatchPoll call.
func (c *Client) SetPollError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.pollErr = nil
	} else {
		c.pollErr = func() error { return err }
	}
}

// SetPollErrorFunc configures a function deciding BatchPoll errors.
func (c *Client) SetPollErrorFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pollErr = fn
}

// SetCommitError configures an error returned by every CommitMarked call.
func (c *Client) SetCommitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.commitErr = nil
	} else {
		c.commitErr = func() error { return err }
	}
}

// SetProduceError configures an error returned by Produce for every topic.
func (c *Client) SetProduceError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.produceErr = nil
	} else {
		c.produceErr = func(string) error { return err }
	}
}

// SetPingError configures an error returned by Ping.
func (c *Client) SetPingError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pingErr = err
}

// ProducedRecords returns a copy of all records written via Produce.
func (c *Client) ProducedRecords() []ProducedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]ProducedRecord, len(c.produced))
	copy(result, c.produced)
	return result
}

// ProducedRecordsForTopic returns all records produced to a topic.
func (c *Client) ProducedRecordsForTopic(topic string) []ProducedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []ProducedRecord
	for _, r := range c.produced {
		if r.Topic == topic {
			result = append(result, r)
		}
	}
	return result
}

// MarkedOffsets returns a copy of the offsets marked but possibly uncommitted.
func (c *Client) MarkedOffsets() map[kafka.TopicPartition]kafka.Offset {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[kafka.TopicPartition]kafka.Offset, len(c.markedOffsets))
	for k, v := range c.markedOffsets {
		result[k] = v
	}
	return result
}

// CommittedOffsets returns a copy of all committed offsets.
func (c *Client) CommittedOffsets() map[kafka.TopicPartition]kafka.Offset {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[kafka.TopicPartition]kafka.Offset, len(c.committedOffsets))
	for k, v := range c.committedOffsets {
		result[k] = v
	}
	return result
}

// CommittedOffset returns the committed offset for a partition.
func (c *Client) CommittedOffset(tp kafka.TopicPartition) (kafka.Offset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset, ok := c.committedOffsets[tp]
	return offset, ok
}

// PausedPartitions returns the set of currently paused partitions.
func (c *Client) PausedPartitions() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]kafka.TopicPartition, 0, len(c.paused))
	for tp := range c.paused {
		result = append(result, tp)
	}
	return result
}

// IsPaused reports whether the partition is currently paused.
func (c *Client) IsPaused(tp kafka.TopicPartition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.paused[tp]
	return ok
}

// PauseCalls returns every Pause invocation in order.
func (c *Client) PauseCalls() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]kafka.TopicPartition, len(c.pauseCalls))
	copy(result, c.pauseCalls)
	return result
}

// ResumeCalls returns every Resume invocation in order.
func (c *Client) ResumeCalls() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]kafka.TopicPartition, len(c.resumeCalls))
	copy(result, c.resumeCalls)
	return result
}

// SeekCalls returns every Seek offset requested for a partition in order.
func (c *Client) SeekCalls(tp kafka.TopicPartition) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]int64, len(c.seekCalls[tp]))
	copy(result, c.seekCalls[tp])
	return result
}

// ResetCount returns how many times Reset was called.
func (c *Client) ResetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resetCount
}

// PingCount returns how many times Ping was called.
func (c *Client) PingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pingCount
}

// IsClosed reports whether Close was called.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, len(c.subscriptions))
	copy(result, c.subscriptions)
	return result
}
