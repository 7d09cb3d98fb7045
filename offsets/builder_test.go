//go:build unit

package offsets_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/offsets"
)

func TestBuilder_PartitionsStartFromBeginning(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.Partitions(2, 0, 1))

	starts, err := builder.Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, []offsets.Start{
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 0}},
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 1}},
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 2}},
	}, starts)
}

func TestBuilder_ExplicitOffsetsPassThrough(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.At(map[int32]int64{0: 42, 1: 0}))

	starts, err := builder.Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, []offsets.Start{
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 0}, Offset: 42},
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 1}, Offset: 0},
	}, starts)
}

func TestBuilder_NegativeOffsetResolvesAgainstWatermarks(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	client := mockkafka.NewClient()
	client.SetWatermarks(tp, 0, 100)

	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.At(map[int32]int64{0: -5}))

	starts, err := builder.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, []offsets.Start{{TopicPartition: tp, Offset: 95}}, starts)
}

func TestBuilder_NegativeOffsetClampsToLowWatermark(t *testing.T) {
	t.Parallel()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	client := mockkafka.NewClient()
	client.SetWatermarks(tp, 98, 100)

	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.At(map[int32]int64{0: -5}))

	starts, err := builder.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, []offsets.Start{{TopicPartition: tp, Offset: 98}}, starts)
}

func TestBuilder_TimeBasedOffsetsResolveInOneCall(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	client := mockkafka.NewClient()
	client.AddMessages("orders", 0,
		mockkafka.Msg("a", "1").WithOffset(10).WithTimestamp(base).Build(),
		mockkafka.Msg("b", "2").WithOffset(11).WithTimestamp(base.Add(time.Minute)).Build(),
		mockkafka.Msg("c", "3").WithOffset(12).WithTimestamp(base.Add(2*time.Minute)).Build(),
	)
	client.AddMessages("events", 1,
		mockkafka.Msg("d", "4").WithOffset(7).WithTimestamp(base.Add(time.Hour)).Build(),
	)

	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.Since(map[int32]time.Time{0: base.Add(30 * time.Second)}))
	builder.Topic("events", offsets.Since(map[int32]time.Time{1: base}))

	starts, err := builder.Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, []offsets.Start{
		{TopicPartition: kafka.TopicPartition{Topic: "events", Partition: 1}, Offset: 7},
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 0}, Offset: 11},
	}, starts)
}

func TestBuilder_MissingTimeBasedOffsetFails(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	client := mockkafka.NewClient()
	client.AddMessages("orders", 0,
		mockkafka.Msg("a", "1").WithOffset(10).WithTimestamp(base).Build(),
	)

	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.Since(map[int32]time.Time{
		0: base,
		1: base,
	}))

	_, err := builder.Build(context.Background())

	var invalid offsets.InvalidTimeBasedOffsetError
	require.ErrorAs(t, err, &invalid)
	require.Equal(
		t,
		[]kafka.TopicPartition{{Topic: "orders", Partition: 1}},
		invalid.Partitions,
	)
}

func TestBuilder_MixedFormsAcrossTopics(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	client := mockkafka.NewClient()
	client.SetWatermarks(kafka.TopicPartition{Topic: "orders", Partition: 1}, 0, 50)
	client.AddMessages("logs", 0,
		mockkafka.Msg("a", "1").WithOffset(3).WithTimestamp(base).Build(),
	)

	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.At(map[int32]int64{0: 5, 1: -10}))
	builder.Topic("logs", offsets.Since(map[int32]time.Time{0: base}))
	builder.Topic("metrics", offsets.Partitions(0))

	starts, err := builder.Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, []offsets.Start{
		{TopicPartition: kafka.TopicPartition{Topic: "logs", Partition: 0}, Offset: 3},
		{TopicPartition: kafka.TopicPartition{Topic: "metrics", Partition: 0}, Offset: 0},
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 0}, Offset: 5},
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 1}, Offset: 40},
	}, starts)
}

func TestBuilder_RepeatedTopicMergesSpecs(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	builder := offsets.NewBuilder(client)
	builder.Topic("orders", offsets.At(map[int32]int64{0: 5}))
	builder.Topic("orders", offsets.At(map[int32]int64{0: 9, 1: 2}))

	starts, err := builder.Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, []offsets.Start{
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 0}, Offset: 9},
		{TopicPartition: kafka.TopicPartition{Topic: "orders", Partition: 1}, Offset: 2},
	}, starts)
}
