package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ Client = (*KgoClient)(nil)

type KgoClientConfig struct {
	BootstrapServers   []string
	GroupID            string
	SessionTimeout     time.Duration
	HeartbeatInterval  time.Duration
	AutoCommitInterval time.Duration
	MaxPollRecords     int
	MaxWaitTime        time.Duration

	Logger logger.Logger
}

func defaultConfig() KgoClientConfig {
	return KgoClientConfig{
		BootstrapServers:   []string{"localhost:9092"},
		GroupID:            "default-group",
		SessionTimeout:     45 * time.Second,
		HeartbeatInterval:  3 * time.Second,
		AutoCommitInterval: 5 * time.Second,
		MaxPollRecords:     100,
		MaxWaitTime:        time.Second,
		Logger:             logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoClientConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithGroupID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.GroupID = id
	}
}

func WithMaxPollRecords(max int) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.MaxPollRecords = max
	}
}

func WithMaxWaitTime(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.MaxWaitTime = d
	}
}

func WithAutoCommitInterval(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.AutoCommitInterval = d
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.Logger = l.
			With("client", "kgo")
	}
}

type KgoClient struct {
	mu     sync.Mutex
	client *kgo.Client
	admin  *kadm.Client
	config KgoClientConfig

	subscribed bool
	topics     []string
	rebalance  *RebalanceTracker

	logger logger.Logger
}

func NewKgoClient(opts ...KgoOption) (*KgoClient, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoClient{
		config:    cfg,
		rebalance: NewRebalanceTracker(),
		logger:    cfg.Logger,
	}

	if err := kc.connect(); err != nil {
		return nil, err
	}

	return kc, nil
}

func (k *KgoClient) connect() error {
	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(k.config.BootstrapServers...),
		kgo.ConsumerGroup(k.config.GroupID),
		kgo.OnPartitionsAssigned(k.onAssigned),
		kgo.OnPartitionsRevoked(k.onRevoked),
		kgo.OnPartitionsLost(k.onRevoked),
		kgo.WithLogger(newKgoLogger(k.logger)),
		kgo.SessionTimeout(k.config.SessionTimeout),
		kgo.HeartbeatInterval(k.config.HeartbeatInterval),
		kgo.FetchMaxWait(k.config.MaxWaitTime),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(k.config.AutoCommitInterval),
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return fmt.Errorf("create kgo client: %w", err)
	}

	k.client = client
	k.admin = kadm.NewClient(client)

	return nil
}

func (k *KgoClient) onAssigned(ctx context.Context, c *kgo.Client, assigned map[string][]int32) {
	k.rebalance.OnAssigned(mapToTopicPartitions(assigned))
}

func (k *KgoClient) onRevoked(ctx context.Context, c *kgo.Client, revoked map[string][]int32) {
	k.rebalance.OnRevoked(mapToTopicPartitions(revoked))
}

func (k *KgoClient) Subscribe(topics []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return fmt.Errorf("already subscribed")
	}

	k.topics = topics
	k.client.AddConsumeTopics(topics...)
	k.subscribed = true

	return nil
}

func (k *KgoClient) BatchPoll(ctx context.Context) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, k.config.MaxWaitTime)
	defer cancel()

	fetches := k.client.PollRecords(ctx, k.config.MaxPollRecords)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			if !errors.Is(err.Err, context.DeadlineExceeded) && !errors.Is(err.Err, context.Canceled) {
				return nil, fmt.Errorf("batch poll: %w", err.Err)
			}
		}
	}

	return convertRecords(fetches.Records()), nil
}

func (k *KgoClient) MarkConsumed(messages ...Message) {
	k.client.MarkCommitRecords(convertMessagesToKgo(messages)...)
}

func (k *KgoClient) CommitMarked(ctx context.Context) error {
	return k.client.CommitMarkedOffsets(ctx)
}

func (k *KgoClient) Pause(partitions ...TopicPartition) {
	k.client.PauseFetchPartitions(topicPartitionsToMap(partitions))
}

func (k *KgoClient) Resume(partitions ...TopicPartition) {
	k.client.ResumeFetchPartitions(topicPartitionsToMap(partitions))
}

func (k *KgoClient) Seek(tp TopicPartition, offset int64) {
	k.client.SetOffsets(
		map[string]map[int32]kgo.EpochOffset{
			tp.Topic: {tp.Partition: {Epoch: -1, Offset: offset}},
		},
	)
}

func (k *KgoClient) Rebalance() *RebalanceTracker {
	return k.rebalance
}

func (k *KgoClient) GroupID() string {
	return k.config.GroupID
}

func (k *KgoClient) Produce(ctx context.Context, topic string, key, value []byte, headers []Header) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: convertToKgoHeaders(headers),
	}

	results := k.client.ProduceSync(ctx, record)
	return results.FirstErr()
}

func (k *KgoClient) ProduceAsync(ctx context.Context, topic string, key, value []byte, headers []Header) {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: convertToKgoHeaders(headers),
	}

	k.client.Produce(
		ctx, record, func(r *kgo.Record, err error) {
			if err != nil {
				k.logger.Error("Async produce failed", "topic", r.Topic, "error", err)
			}
		},
	)
}

func (k *KgoClient) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func (k *KgoClient) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KgoClient) QueryWatermarkOffsets(ctx context.Context, tp TopicPartition) (int64, int64, error) {
	starts, err := k.admin.ListStartOffsets(ctx, tp.Topic)
	if err != nil {
		return 0, 0, fmt.Errorf("list start offsets: %w", err)
	}

	ends, err := k.admin.ListEndOffsets(ctx, tp.Topic)
	if err != nil {
		return 0, 0, fmt.Errorf("list end offsets: %w", err)
	}

	low, ok := starts.Lookup(tp.Topic, tp.Partition)
	if !ok {
		return 0, 0, fmt.Errorf("no start offset for %s", tp)
	}
	high, ok := ends.Lookup(tp.Topic, tp.Partition)
	if !ok {
		return 0, 0, fmt.Errorf("no end offset for %s", tp)
	}

	return low.Offset, high.Offset, nil
}

func (k *KgoClient) OffsetsForTimes(
	ctx context.Context, times map[TopicPartition]time.Time, timeout time.Duration,
) (map[TopicPartition]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// kadm lists offsets per timestamp across whole topics, so requests are
	// batched by distinct timestamp and filtered back to the asked partitions.
	byMilli := make(map[int64][]string)
	for tp, ts := range times {
		milli := ts.UnixMilli()
		byMilli[milli] = append(byMilli[milli], tp.Topic)
	}

	result := make(map[TopicPartition]int64, len(times))
	for milli, topics := range byMilli {
		listed, err := k.admin.ListOffsetsAfterMilli(ctx, milli, topics...)
		if err != nil {
			return nil, fmt.Errorf("list offsets after %d: %w", milli, err)
		}

		for tp, ts := range times {
			if ts.UnixMilli() != milli {
				continue
			}

			offset, ok := listed.Lookup(tp.Topic, tp.Partition)
			if !ok || offset.Err != nil || offset.Offset < 0 {
				continue
			}
			result[tp] = offset.Offset
		}
	}

	return result, nil
}

// Reset closes the current broker connection and opens a fresh one with the
// same configuration and subscription. Buffered fetches, marks and rebalance
// state from the previous generation are discarded.
func (k *KgoClient) Reset(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.client.CloseAllowingRebalance()
	k.rebalance.Clear()

	if err := k.connect(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	if k.subscribed {
		k.client.AddConsumeTopics(k.topics...)
	}

	return k.client.Ping(ctx)
}

func (k *KgoClient) Close() {
	k.client.CloseAllowingRebalance()
}

func convertMessagesToKgo(messages []Message) []*kgo.Record {
	kgoRecords := make([]*kgo.Record, len(messages))
	for i, m := range messages {
		kgoRecords[i] = &kgo.Record{
			Topic:       m.Topic,
			Partition:   m.Partition,
			Offset:      m.Offset,
			Key:         m.Key,
			Value:       m.Value,
			Headers:     convertToKgoHeaders(m.Headers),
			Timestamp:   m.Timestamp,
			LeaderEpoch: m.LeaderEpoch,
		}
	}

	return kgoRecords
}

func convertRecords(records []*kgo.Record) []Message {
	converted := make([]Message, len(records))
	for i, r := range records {
		converted[i] = Message{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func convertToKgoHeaders(headers []Header) []kgo.RecordHeader {
	kgoHeaders := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		kgoHeaders[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return kgoHeaders
}

func topicPartitionsToMap(tps []TopicPartition) map[string][]int32 {
	m := make(map[string][]int32)
	for _, tp := range tps {
		m[tp.Topic] = append(m[tp.Topic], tp.Partition)
	}
	return m
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return tps
}
