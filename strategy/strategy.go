package strategy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/processing"
	"github.com/hugolhafner/go-consumer/route"
)

// longRunningPause parks a partition while a long-running job holds it. The
// window is lifted explicitly after the job completes, never by expiry.
const longRunningPause = 365 * 24 * time.Hour

// Headers attached to records escalated to the dead letter topic.
const (
	HeaderOriginalTopic     = "original_topic"
	HeaderOriginalPartition = "original_partition"
	HeaderOriginalOffset    = "original_offset"
	HeaderOriginalGroup     = "original_consumer_group"
	HeaderOriginalAttempts  = "original_attempts"
)

// Strategy is the post-consume policy for one routed topic. The behavior is
// a pure function of the topic's feature tuple: each handler is a short
// straight-line walk of the decision tree with feature flags as guards.
type Strategy struct {
	topic     *route.Topic
	features  route.Features
	client    kafka.Client
	logger    logger.Logger
	telemetry *otel.Telemetry
	name      string

	// retry budget applies whenever a dead letter queue block was declared,
	// even with an empty target topic (skip without dispatch)
	budgeted bool
}

var _ processing.Strategy = (*Strategy)(nil)

type Option func(*Strategy)

func WithTelemetry(telemetry *otel.Telemetry) Option {
	return func(s *Strategy) {
		s.telemetry = telemetry
	}
}

func Build(topic *route.Topic, client kafka.Client, log logger.Logger, opts ...Option) *Strategy {
	features := topic.Features()
	name := Name(features)

	s := &Strategy{
		topic:     topic,
		features:  features,
		client:    client,
		name:      name,
		telemetry: otel.Noop(),
		budgeted:  topic.DeadLetterQueue != (route.DeadLetterQueue{}),
		logger:    log.With("component", "strategy", "topic", topic.Name, "strategy", name),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name derives the strategy tag from a feature tuple.
func Name(f route.Features) string {
	var tags []string

	if f.ActiveJob {
		tags = append(tags, "aj")
	}
	if f.DeadLetterQueue {
		tags = append(tags, "dlq")
	}
	if f.Filtering {
		tags = append(tags, "ftr")
	}
	if f.LongRunningJob {
		tags = append(tags, "lrj")
	}
	if f.ManualOffsetManagement {
		tags = append(tags, "mom")
	}
	if f.VirtualPartitions {
		tags = append(tags, "vp")
	}

	if len(tags) == 0 {
		return "default"
	}

	return strings.Join(tags, "_")
}

func (s *Strategy) String() string {
	return s.name
}

// HandleBeforeSchedule parks the partition before a long-running consume job
// starts, so the poll loop cannot trip the broker's liveness deadline while
// the job runs.
func (s *Strategy) HandleBeforeSchedule(kind processing.JobKind, c *processing.Coordinator) {
	if !s.features.LongRunningJob || kind != processing.JobConsume {
		return
	}

	c.Pause().PauseFor(longRunningPause)
	s.client.Pause(c.TopicPartition())
}

// HandleAfterConsume runs once per batch cycle, after every virtual group
// has finished, on the goroutine that drained the coordinator.
func (s *Strategy) HandleAfterConsume(c *processing.Coordinator, last kafka.Message) {
	if c.Revoked() {
		return
	}

	tp := c.TopicPartition()

	if c.Success() {
		s.handleSuccess(c, tp, last)
		return
	}

	if !s.budgeted || c.Pause().Attempt() < s.topic.DeadLetterQueue.MaxRetries {
		s.retryAfterPause(c, tp)
		return
	}

	s.skipExhausted(c, tp)
}

func (s *Strategy) handleSuccess(c *processing.Coordinator, tp kafka.TopicPartition, last kafka.Message) {
	c.Pause().Reset()

	if c.Pause().Manual() {
		return
	}

	// ActiveJob topics mark at batch end even under manual offset
	// management: with virtual partitions the per-job marks arrive out of
	// broker order, so only the aggregate end position is safe to commit.
	if !s.features.ManualOffsetManagement || s.features.ActiveJob {
		s.client.MarkConsumed(last)
		c.MarkConsumed(last)
	}

	if s.features.LongRunningJob {
		c.Pause().Resume()
		s.client.Resume(tp)
	}

	s.handlePostFiltering(c, tp)
}

// handlePostFiltering seeks back to the filter cursor when the filter
// dropped tail messages, optionally parking the partition for the filter's
// throttle window.
func (s *Strategy) handlePostFiltering(c *processing.Coordinator, tp kafka.TopicPartition) {
	if !s.features.Filtering {
		return
	}

	filter := c.Filter()
	if filter == nil || !filter.Applied() {
		return
	}

	cursor, ok := filter.Cursor()
	if !ok {
		return
	}

	s.client.Seek(tp, cursor.Offset)

	if timeout := filter.Timeout(); timeout > 0 {
		c.Pause().PauseFor(timeout)
		s.client.Pause(tp)
	}
}

// retryAfterPause opens the next backoff window and rewinds the fetch
// position to the first unmarked offset.
func (s *Strategy) retryAfterPause(c *processing.Coordinator, tp kafka.TopicPartition) {
	timeout := c.Pause().Pause()
	s.client.Pause(tp)
	s.client.Seek(tp, c.SeekOffset())

	s.telemetry.BatchRetries.Add(context.Background(), 1, metric.WithAttributes(
		otel.AttrTopic.String(tp.Topic),
		otel.AttrStrategy.String(s.name),
	))

	s.logger.Warn(
		"batch failed, pausing partition",
		"partition", tp.Partition,
		"attempt", c.Pause().Attempt(),
		"timeout", timeout.String(),
		"seek_offset", c.SeekOffset(),
	)
}

// skipExhausted runs when the retry budget is spent: dispatch the blocking
// message to the dead letter topic when one is configured, commit past it,
// and force a re-fetch from the new position via a nominal pause.
func (s *Strategy) skipExhausted(c *processing.Coordinator, tp kafka.TopicPartition) {
	attempts := c.Pause().Attempt() + 1
	c.Pause().Reset()

	skippable, found := c.Find(c.SeekOffset())
	if !found {
		s.logger.Error(
			"retries exhausted but no skippable message in batch",
			"partition", tp.Partition, "seek_offset", c.SeekOffset(),
		)
	} else {
		if s.topic.DeadLetterQueue.Enabled() {
			s.dispatchToDLQ(skippable, attempts)
		} else {
			s.logger.Warn(
				"retries exhausted, skipping message",
				"partition", tp.Partition, "offset", skippable.Offset,
			)
		}

		s.client.MarkConsumed(skippable)
		c.MarkConsumed(skippable)
	}

	c.Pause().PauseNominal()
	s.client.Pause(tp)
	s.client.Seek(tp, c.SeekOffset())
}

func (s *Strategy) dispatchToDLQ(m kafka.Message, attempts int) {
	headers := make([]kafka.Header, 0, len(m.Headers)+5)
	headers = append(headers, m.Headers...)
	headers = append(
		headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(m.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.FormatInt(int64(m.Partition), 10))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(m.Offset, 10))},
		kafka.Header{Key: HeaderOriginalGroup, Value: []byte(s.client.GroupID())},
		kafka.Header{Key: HeaderOriginalAttempts, Value: []byte(strconv.Itoa(attempts))},
	)

	ctx := context.Background()
	s.telemetry.Propagator.Inject(ctx, otel.NewKafkaHeadersCarrier(&headers))

	dlq := s.topic.DeadLetterQueue

	switch dlq.DispatchMethod {
	case route.DispatchProduceSync:
		if err := s.client.Produce(ctx, dlq.Topic, m.Key, m.Value, headers); err != nil {
			s.telemetry.Errors.Add(ctx, 1, metric.WithAttributes(
				otel.AttrErrorType.String(otel.ErrorDispatch),
				otel.AttrTopic.String(m.Topic),
			))
			s.logger.Error(
				"dead letter dispatch failed",
				"partition", m.Partition, "offset", m.Offset, "error", err,
			)
			return
		}
	default:
		s.client.ProduceAsync(ctx, dlq.Topic, m.Key, m.Value, headers)
	}

	s.telemetry.DeadLetters.Add(ctx, 1, metric.WithAttributes(
		otel.AttrTopic.String(m.Topic),
		otel.AttrGroup.String(s.client.GroupID()),
	))

	s.logger.Info(
		"message dispatched to dead letter topic",
		"partition", m.Partition, "offset", m.Offset, "dlq_topic", dlq.Topic,
	)
}

// HandleIdle runs when a poll produced no runnable work for the partition,
// which after filtering may still require advancing past dropped messages.
func (s *Strategy) HandleIdle(c *processing.Coordinator) {
	s.handlePostFiltering(c, c.TopicPartition())
}
