//go:build unit

package activejob_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-consumer/activejob"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/processing"
)

func envelope(t *testing.T, job string, args any) []byte {
	t.Helper()

	rawArgs, err := json.Marshal(args)
	require.NoError(t, err)

	data, err := json.Marshal(activejob.Envelope{
		Job:        job,
		Args:       rawArgs,
		EnqueuedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	return data
}

func newBatch(client kafka.Consumer, messages ...kafka.Message) *processing.Batch {
	tp := kafka.TopicPartition{Topic: "jobs", Partition: 0}
	coordinator := processing.NewCoordinator(tp, processing.NewPauseTracker(processing.DefaultPauseConfig()))

	return processing.NewBatch(messages, tp, client, coordinator)
}

func jobMessage(offset int64, value []byte) kafka.Message {
	return kafka.Message{
		Topic:     "jobs",
		Partition: 0,
		Offset:    offset,
		Key:       []byte("k"),
		Value:     value,
	}
}

func TestConsumer_DispatchesJobsInOrder(t *testing.T) {
	t.Parallel()

	var seen []string

	registry := activejob.NewRegistry()
	registry.Register("SendEmail", func(ctx context.Context, job activejob.Job) error {
		var args struct {
			To string `json:"to"`
		}
		require.NoError(t, job.UnmarshalArgs(&args))
		seen = append(seen, args.To)
		return nil
	})

	client := mockkafka.NewClient()
	batch := newBatch(client,
		jobMessage(10, envelope(t, "SendEmail", map[string]string{"to": "a@example.com"})),
		jobMessage(11, envelope(t, "SendEmail", map[string]string{"to": "b@example.com"})),
	)

	consumer := activejob.NewConsumer(registry)
	require.NoError(t, consumer.Consume(context.Background(), batch))
	require.Equal(t, []string{"a@example.com", "b@example.com"}, seen)
}

func TestConsumer_MarksEachJobAfterCompletion(t *testing.T) {
	t.Parallel()

	registry := activejob.NewRegistry()
	registry.Register("Noop", func(ctx context.Context, job activejob.Job) error {
		return nil
	})

	client := mockkafka.NewClient()
	batch := newBatch(client,
		jobMessage(10, envelope(t, "Noop", nil)),
		jobMessage(11, envelope(t, "Noop", nil)),
	)

	consumer := activejob.NewConsumer(registry)
	require.NoError(t, consumer.Consume(context.Background(), batch))

	tp := kafka.TopicPartition{Topic: "jobs", Partition: 0}
	client.AssertMarkedOffset(t, tp, 12)
}

func TestConsumer_FailedJobStopsBatchAfterMarkingPriorJobs(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	registry := activejob.NewRegistry()
	registry.Register("Flaky", func(ctx context.Context, job activejob.Job) error {
		if job.Message.Offset == 11 {
			return boom
		}
		return nil
	})

	client := mockkafka.NewClient()
	batch := newBatch(client,
		jobMessage(10, envelope(t, "Flaky", nil)),
		jobMessage(11, envelope(t, "Flaky", nil)),
		jobMessage(12, envelope(t, "Flaky", nil)),
	)

	consumer := activejob.NewConsumer(registry)
	err := consumer.Consume(context.Background(), batch)
	require.ErrorIs(t, err, boom)

	tp := kafka.TopicPartition{Topic: "jobs", Partition: 0}
	client.AssertMarkedOffset(t, tp, 11)
}

func TestConsumer_UnknownJobFails(t *testing.T) {
	t.Parallel()

	registry := activejob.NewRegistry()

	client := mockkafka.NewClient()
	batch := newBatch(client, jobMessage(10, envelope(t, "Vanished", nil)))

	consumer := activejob.NewConsumer(registry)
	err := consumer.Consume(context.Background(), batch)

	var unknown activejob.UnknownJobError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "Vanished", unknown.Job)
}

func TestConsumer_MalformedEnvelopeFails(t *testing.T) {
	t.Parallel()

	registry := activejob.NewRegistry()

	client := mockkafka.NewClient()
	batch := newBatch(client, jobMessage(10, []byte("not json")))

	consumer := activejob.NewConsumer(registry)
	require.Error(t, consumer.Consume(context.Background(), batch))
}

func TestRegistry_ReplaceAndDispatch(t *testing.T) {
	t.Parallel()

	registry := activejob.NewRegistry()

	var called string
	registry.Register("Job", func(ctx context.Context, job activejob.Job) error {
		called = "first"
		return nil
	})
	registry.Register("Job", func(ctx context.Context, job activejob.Job) error {
		called = "second"
		return nil
	})

	require.NoError(t, registry.Dispatch(context.Background(), activejob.Job{Name: "Job"}))
	require.Equal(t, "second", called)
}

func TestNewConsumerFactory_SharesRegistry(t *testing.T) {
	t.Parallel()

	registry := activejob.NewRegistry()
	factory := activejob.NewConsumerFactory(registry)

	var count int
	registry.Register("Count", func(ctx context.Context, job activejob.Job) error {
		count++
		return nil
	})

	client := mockkafka.NewClient()

	for range 2 {
		consumer := factory()
		batch := newBatch(client, jobMessage(10, envelope(t, "Count", nil)))
		require.NoError(t, consumer.Consume(context.Background(), batch))
	}

	require.Equal(t, 2, count)
}
