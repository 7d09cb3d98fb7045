//go:build e2e

package e2e

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-consumer/processing"
	"github.com/hugolhafner/go-consumer/route"
	"github.com/hugolhafner/go-consumer/strategy"
)

type failing struct {
	mu       sync.Mutex
	attempts int
}

func (f *failing) Consume(context.Context, *processing.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return errors.New("handler rejected the batch")
}

func (f *failing) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestE2E_ExhaustedRetriesDispatchToDeadLetterTopic(t *testing.T) {
	t.Parallel()

	addrs := newCluster(t, 1, "orders", "orders-dlq")
	group := groupID(t, "orders")
	handler := &failing{}

	app := newApp(t)
	require.NoError(t, app.RegisterBrokers(
		addrs,
		route.NewSubscriptionGroup(
			group,
			route.NewTopic(
				"orders", func() processing.Consumer { return handler },
				route.WithDeadLetterQueue("orders-dlq", 2, route.DispatchProduceSync),
			),
		),
	))
	stop := runApp(t, app)
	defer stop()

	produce(t, addrs, "orders", record("k1", "poison"))

	dispatched := consumeAll(t, addrs, "orders-dlq", 1)
	require.Len(t, dispatched, 1)
	require.Equal(t, []byte("poison"), dispatched[0].Value)
	require.GreaterOrEqual(t, handler.attemptCount(), 2)

	headers := make(map[string]string, len(dispatched[0].Headers))
	for _, h := range dispatched[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "orders", headers[strategy.HeaderOriginalTopic])
	require.Equal(t, "0", headers[strategy.HeaderOriginalPartition])
	require.Equal(t, "0", headers[strategy.HeaderOriginalOffset])
	require.Equal(t, group, headers[strategy.HeaderOriginalGroup])
	require.NotEmpty(t, headers[strategy.HeaderOriginalAttempts])
}

func TestE2E_RetriesRecoverWithoutDispatch(t *testing.T) {
	t.Parallel()

	addrs := newCluster(t, 1, "orders", "orders-dlq")
	group := groupID(t, "orders")

	// Fails once, then succeeds; the record must never reach the DLQ.
	var mu sync.Mutex
	var calls int
	handler := consumeFunc(func(context.Context, *processing.Batch) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	app := newApp(t)
	require.NoError(t, app.RegisterBrokers(
		addrs,
		route.NewSubscriptionGroup(
			group,
			route.NewTopic(
				"orders", func() processing.Consumer { return handler },
				route.WithDeadLetterQueue("orders-dlq", 3, route.DispatchProduceSync),
			),
		),
	))
	stop := runApp(t, app)

	produce(t, addrs, "orders", record("k1", "flaky"))

	require.Eventually(
		t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return calls >= 2
		},
		consumeWait, 10*time.Millisecond,
	)

	stop()

	require.EqualValues(t, 1, committedOffset(t, addrs, group, "orders", 0))
}

type consumeFunc func(ctx context.Context, batch *processing.Batch) error

func (f consumeFunc) Consume(ctx context.Context, batch *processing.Batch) error {
	return f(ctx, batch)
}
