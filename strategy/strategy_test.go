//go:build unit

package strategy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/processing"
	"github.com/hugolhafner/go-consumer/route"
	"github.com/hugolhafner/go-consumer/strategy"
)

type nopConsumer struct{}

func (nopConsumer) Consume(context.Context, *processing.Batch) error { return nil }

func nopFactory() processing.Consumer { return nopConsumer{} }

type stubFilter struct {
	applied bool
	cursor  kafka.Message
	hasCur  bool
	timeout time.Duration
}

func (f *stubFilter) Apply(messages []kafka.Message) []kafka.Message { return messages }
func (f *stubFilter) Applied() bool                                  { return f.applied }
func (f *stubFilter) Cursor() (kafka.Message, bool)                  { return f.cursor, f.hasCur }
func (f *stubFilter) Timeout() time.Duration                         { return f.timeout }

func batchMessages(tp kafka.TopicPartition, offsets ...int64) []kafka.Message {
	messages := make([]kafka.Message, 0, len(offsets))
	for _, offset := range offsets {
		messages = append(
			messages, kafka.Message{
				Topic:     tp.Topic,
				Partition: tp.Partition,
				Key:       []byte("k"),
				Value:     []byte("v"),
				Offset:    offset,
			},
		)
	}
	return messages
}

// runCycle drives one batch cycle through the coordinator with the given
// outcome, then runs the post-consume tree.
func runCycle(s *strategy.Strategy, c *processing.Coordinator, messages []kafka.Message, ok bool) {
	c.Start(messages)
	c.Increment()
	c.Decrement(ok)
	s.HandleAfterConsume(c, messages[len(messages)-1])
}

func newCoordinator(tp kafka.TopicPartition) *processing.Coordinator {
	return processing.NewCoordinator(tp, processing.NewPauseTracker(processing.DefaultPauseConfig()))
}

func TestName_FeatureTuples(t *testing.T) {
	t.Parallel()

	require.Equal(t, "default", strategy.Name(route.Features{}))
	require.Equal(t, "dlq", strategy.Name(route.Features{DeadLetterQueue: true}))
	require.Equal(
		t, "aj_dlq_ftr_mom_vp", strategy.Name(
			route.Features{
				ActiveJob:              true,
				DeadLetterQueue:        true,
				Filtering:              true,
				ManualOffsetManagement: true,
				VirtualPartitions:      true,
			},
		),
	)
	require.Equal(t, "lrj", strategy.Name(route.Features{LongRunningJob: true}))
}

func TestHandleAfterConsume_SuccessMarksLastMessage(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic("orders", nopFactory)
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	runCycle(s, c, batchMessages(tp, 10, 11, 12), true)

	client.AssertMarkedOffset(t, tp, 13)
	require.Zero(t, c.Pause().Attempt())
	require.Equal(t, int64(13), c.SeekOffset())
}

func TestHandleAfterConsume_RevokedIsNoop(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	s := strategy.Build(route.NewTopic("orders", nopFactory), client, logger.NewNoopLogger())
	c := newCoordinator(tp)
	c.Revoke()

	runCycle(s, c, batchMessages(tp, 10), true)

	client.AssertNothingMarked(t)
}

func TestHandleAfterConsume_ManualPauseSkipsCommit(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	s := strategy.Build(route.NewTopic("orders", nopFactory), client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	c.Start(batchMessages(tp, 10))
	c.Increment()
	c.Pause().PauseManual(time.Minute)
	c.Decrement(true)
	s.HandleAfterConsume(c, batchMessages(tp, 10)[0])

	client.AssertNothingMarked(t)
}

func TestHandleAfterConsume_ManualOffsetManagementWithoutUserMark(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic("orders", nopFactory, route.WithManualOffsetManagement())
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	runCycle(s, c, batchMessages(tp, 10, 11), true)

	client.AssertNothingMarked(t)
}

func TestHandleAfterConsume_ActiveJobMarksBatchEndDespiteMOM(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic(
		"orders", nopFactory,
		route.WithActiveJob(), route.WithManualOffsetManagement(),
	)
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	runCycle(s, c, batchMessages(tp, 10, 11, 12), true)

	client.AssertMarkedOffset(t, tp, 13)
}

func TestHandleAfterConsume_FailureRetriesWithGrowingPause(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	s := strategy.Build(route.NewTopic("orders", nopFactory), client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	messages := batchMessages(tp, 10)
	runCycle(s, c, messages, false)

	require.Equal(t, 1, c.Pause().Attempt())
	require.True(t, c.Pause().Paused())
	client.AssertPaused(t, tp)
	client.AssertSeekedTo(t, tp, 10)
	client.AssertNoProducedRecords(t)

	// without a dead letter budget the retries never exhaust
	for i := 0; i < 5; i++ {
		runCycle(s, c, messages, false)
	}
	require.Equal(t, 6, c.Pause().Attempt())
	client.AssertNoProducedRecords(t)
	client.AssertNothingMarked(t)
}

func TestHandleAfterConsume_ExhaustedBudgetDispatchesAndSkips(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic(
		"orders", nopFactory,
		route.WithDeadLetterQueue("orders_dlq", 2, route.DispatchProduceSync),
	)
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	messages := batchMessages(tp, 10)

	runCycle(s, c, messages, false)
	require.Equal(t, 1, c.Pause().Attempt())
	client.AssertNoProducedRecords(t)

	runCycle(s, c, messages, false)
	require.Equal(t, 2, c.Pause().Attempt())
	client.AssertNoProducedRecords(t)

	runCycle(s, c, messages, false)

	client.AssertProducedCountForTopic(t, "orders_dlq", 1)
	client.AssertProducedHeader(
		t, "orders_dlq", []byte("k"), strategy.HeaderOriginalOffset, []byte("10"),
	)
	client.AssertProducedHeader(
		t, "orders_dlq", []byte("k"), strategy.HeaderOriginalTopic, []byte("orders"),
	)
	client.AssertMarkedOffset(t, tp, 11)

	require.Zero(t, c.Pause().Attempt())
	require.True(t, c.Pause().Paused())
	require.True(t, c.Pause().Expired(), "nominal pause must lift on the next tick")
	client.AssertSeekedTo(t, tp, 11)
}

func TestHandleAfterConsume_EmptyDLQTopicSkipsWithoutDispatch(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic(
		"orders", nopFactory,
		route.WithDeadLetterQueue("", 0, route.DispatchProduceAsync),
	)
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	runCycle(s, c, batchMessages(tp, 10), false)

	client.AssertNoProducedRecords(t)
	client.AssertMarkedOffset(t, tp, 11)
}

func TestHandleAfterConsume_SuccessAfterFailureResetsBudget(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic(
		"orders", nopFactory,
		route.WithDeadLetterQueue("orders_dlq", 2, route.DispatchProduceAsync),
	)
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	messages := batchMessages(tp, 10)
	runCycle(s, c, messages, false)
	require.Equal(t, 1, c.Pause().Attempt())

	runCycle(s, c, messages, true)

	require.Zero(t, c.Pause().Attempt())
	client.AssertMarkedOffset(t, tp, 11)
	client.AssertNoProducedRecords(t)
}

func TestLongRunningJob_PausesBeforeScheduleAndResumesAfter(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic("orders", nopFactory, route.WithLongRunningJob())
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	messages := batchMessages(tp, 10)
	c.Start(messages)

	s.HandleBeforeSchedule(processing.JobConsume, c)
	require.True(t, c.Pause().Paused())
	require.False(t, c.Pause().Expired())
	client.AssertPaused(t, tp)

	c.Increment()
	c.Decrement(true)
	s.HandleAfterConsume(c, messages[0])

	require.False(t, c.Pause().Paused())
	client.AssertNotPaused(t, tp)
	client.AssertMarkedOffset(t, tp, 11)
}

func TestLongRunningJob_NonConsumeKindsDoNotPause(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	topic := route.NewTopic("orders", nopFactory, route.WithLongRunningJob())
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	s.HandleBeforeSchedule(processing.JobIdle, c)
	s.HandleBeforeSchedule(processing.JobRevoked, c)

	require.False(t, c.Pause().Paused())
	client.AssertNotPaused(t, tp)
}

func TestPostFiltering_SeeksToCursorAndThrottles(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	filter := &stubFilter{
		applied: true,
		cursor:  kafka.Message{Topic: "orders", Partition: 0, Offset: 15},
		hasCur:  true,
		timeout: 5 * time.Second,
	}
	topic := route.NewTopic(
		"orders", nopFactory,
		route.WithFiltering(func(kafka.TopicPartition) processing.Filter { return filter }),
	)
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)
	c.SetFilter(filter)

	runCycle(s, c, batchMessages(tp, 10, 11), true)

	client.AssertSeekedTo(t, tp, 15)
	client.AssertPaused(t, tp)
	require.True(t, c.Pause().Paused())
	require.False(t, c.Pause().Expired())
}

func TestHandleIdle_AdvancesFilterCursor(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	filter := &stubFilter{
		applied: true,
		cursor:  kafka.Message{Topic: "orders", Partition: 0, Offset: 20},
		hasCur:  true,
	}
	topic := route.NewTopic(
		"orders", nopFactory,
		route.WithFiltering(func(kafka.TopicPartition) processing.Filter { return filter }),
	)
	s := strategy.Build(topic, client, logger.NewNoopLogger())
	c := newCoordinator(tp)
	c.SetFilter(filter)

	s.HandleIdle(c)

	client.AssertSeekedTo(t, tp, 20)
	client.AssertNotPaused(t, tp)
}

func TestHandleIdle_WithoutFilteringIsNoop(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	s := strategy.Build(route.NewTopic("orders", nopFactory), client, logger.NewNoopLogger())
	c := newCoordinator(tp)

	s.HandleIdle(c)

	client.AssertNotPaused(t, tp)
	client.AssertNothingMarked(t)
}
