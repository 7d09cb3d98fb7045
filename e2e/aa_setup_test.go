//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"

	consumer "github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/processing"
)

const (
	consumeWait  = 10 * time.Second
	shutdownWait = 10 * time.Second
)

// newCluster starts an in-process broker seeded with the given topics, one
// partition each unless stated otherwise.
func newCluster(t *testing.T, partitions int32, topics ...string) []string {
	t.Helper()

	cluster, err := kfake.NewCluster(
		kfake.NumBrokers(1),
		kfake.SeedTopics(partitions, topics...),
	)
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	return cluster.ListenAddrs()
}

func newApp(t *testing.T, opts ...consumer.ConfigOption) *consumer.Application {
	t.Helper()

	base := []consumer.ConfigOption{
		consumer.WithMaxWaitTime(50 * time.Millisecond),
		consumer.WithCommitInterval(50 * time.Millisecond),
		consumer.WithPause(processing.PauseConfig{
			Timeout:    5 * time.Millisecond,
			MaxTimeout: 20 * time.Millisecond,
		}),
	}

	return consumer.NewApplication(append(base, opts...)...)
}

// runApp starts the application in the background and returns a stop
// function that closes it and asserts a clean exit.
func runApp(t *testing.T, app *consumer.Application) func() {
	t.Helper()

	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(context.Background()) }()

	return func() {
		app.Close()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(shutdownWait):
			t.Fatal("timeout waiting for application shutdown")
		}
	}
}

func groupID(t *testing.T, suffix string) string {
	return fmt.Sprintf("e2e-%s-%d", suffix, time.Now().UnixNano())
}

func produce(t *testing.T, addrs []string, topic string, records ...*kgo.Record) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), consumeWait)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(addrs...))
	require.NoError(t, err)
	defer client.Close()

	for _, record := range records {
		record.Topic = topic
		require.NoError(t, client.ProduceSync(ctx, record).FirstErr())
	}
}

func record(key, value string) *kgo.Record {
	return &kgo.Record{Key: []byte(key), Value: []byte(value)}
}

// consumeAll reads expectedCount records from a topic with a throwaway
// group, starting from the beginning.
func consumeAll(t *testing.T, addrs []string, topic string, expectedCount int) []*kgo.Record {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), consumeWait)
	defer cancel()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(addrs...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.FetchMaxWait(50*time.Millisecond),
	)
	require.NoError(t, err)
	defer client.Close()

	var records []*kgo.Record
	for len(records) < expectedCount {
		fetches := client.PollFetches(ctx)
		require.NoError(t, ctx.Err(), "timeout: got %d of %d records", len(records), expectedCount)
		fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	}

	return records
}

func committedOffset(t *testing.T, addrs []string, group, topic string, partition int32) int64 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), consumeWait)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(addrs...))
	require.NoError(t, err)
	defer client.Close()

	offsets, err := kadm.NewClient(client).FetchOffsets(ctx, group)
	if err != nil {
		return -1
	}

	offset, ok := offsets.Lookup(topic, partition)
	if !ok {
		return -1
	}

	return offset.At
}
