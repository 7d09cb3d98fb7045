//go:build unit

package consumer_test

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	consumer "github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/processing"
	"github.com/hugolhafner/go-consumer/route"
	"github.com/hugolhafner/go-consumer/runner"
)

type appConsumer struct {
	mu      sync.Mutex
	batches [][]kafka.Message
}

func (c *appConsumer) Consume(_ context.Context, batch *processing.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch.Messages)
	return nil
}

func (c *appConsumer) OnIdle(context.Context) error     { return nil }
func (c *appConsumer) OnPeriodic(context.Context) error { return nil }
func (c *appConsumer) OnRevoked(context.Context) error  { return nil }
func (c *appConsumer) OnShutdown(context.Context) error { return nil }

func (c *appConsumer) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func newAppGroup(id string, handler *appConsumer) *route.SubscriptionGroup {
	topic := route.NewTopic("orders", func() processing.Consumer { return handler })
	return route.NewSubscriptionGroup(id, topic)
}

func TestApplication_RunWithoutRegistrationsFails(t *testing.T) {
	t.Parallel()

	app := consumer.NewApplication()

	err := app.Run(context.Background())

	var invalid consumer.InvalidConfigurationError
	require.ErrorAs(t, err, &invalid)
}

func TestApplication_RegisterRejectsDuplicateGroup(t *testing.T) {
	t.Parallel()

	app := consumer.NewApplication()
	handler := &appConsumer{}

	require.NoError(t, app.Register(newAppGroup("group-a", handler), mockkafka.NewClient()))

	err := app.Register(newAppGroup("group-a", handler), mockkafka.NewClient())

	var invalid consumer.InvalidConfigurationError
	require.ErrorAs(t, err, &invalid)
}

func TestApplication_RegisterValidatesGroup(t *testing.T) {
	t.Parallel()

	app := consumer.NewApplication()

	err := app.Register(route.NewSubscriptionGroup(""), mockkafka.NewClient())

	var invalid consumer.InvalidConfigurationError
	require.ErrorAs(t, err, &invalid)
}

func TestApplication_RunConsumesUntilClosed(t *testing.T) {
	t.Parallel()

	handler := &appConsumer{}
	client := mockkafka.NewClient()
	client.AddMessages(
		"orders", 0,
		mockkafka.Msg("k", "v1").WithOffset(10).Build(),
		mockkafka.Msg("k", "v2").WithOffset(11).Build(),
	)

	app := consumer.NewApplication(consumer.WithConcurrency(2))
	require.NoError(t, app.Register(newAppGroup("group-a", handler), client))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(
		t, func() bool { return handler.batchCount() > 0 },
		2*time.Second, time.Millisecond,
	)

	app.Close()
	require.NoError(t, <-done)
	require.True(t, app.Status().Stopped())
}

func TestApplication_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	handler := &appConsumer{}
	app := consumer.NewApplication()
	require.NoError(t, app.Register(newAppGroup("group-a", handler), mockkafka.NewClient()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(
		t, func() bool { return app.Status().Phase() >= runner.PhaseRunning },
		2*time.Second, time.Millisecond,
	)

	cancel()
	require.NoError(t, <-done)
	require.True(t, app.Status().Stopped())
}

func TestApplication_SecondRunFails(t *testing.T) {
	t.Parallel()

	handler := &appConsumer{}
	app := consumer.NewApplication()
	require.NoError(t, app.Register(newAppGroup("group-a", handler), mockkafka.NewClient()))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(
		t, func() bool { return app.Status().Phase() >= runner.PhaseRunning },
		2*time.Second, time.Millisecond,
	)

	require.ErrorIs(t, app.Run(context.Background()), consumer.ErrAlreadyRunning)

	app.Close()
	require.NoError(t, <-done)
}

func TestApplication_RunAfterCloseFails(t *testing.T) {
	t.Parallel()

	handler := &appConsumer{}
	app := consumer.NewApplication()
	require.NoError(t, app.Register(newAppGroup("group-a", handler), mockkafka.NewClient()))

	app.Close()

	require.ErrorIs(t, app.Run(context.Background()), consumer.ErrClosed)
}

func TestApplication_RunRejectsInvalidLicense(t *testing.T) {
	t.Parallel()

	handler := &appConsumer{}
	app := consumer.NewApplication(consumer.WithLicenseToken("not-a-token"))
	require.NoError(t, app.Register(newAppGroup("group-a", handler), mockkafka.NewClient()))

	err := app.Run(context.Background())

	var invalid consumer.InvalidLicenseTokenError
	require.ErrorAs(t, err, &invalid)
}

func TestApplication_RunAcceptsValidLicense(t *testing.T) {
	t.Parallel()

	payload := `{"id":"cust-1","expires_on":"2999-01-01"}`
	token := base64.StdEncoding.EncodeToString([]byte(payload))

	handler := &appConsumer{}
	app := consumer.NewApplication(consumer.WithLicenseToken(token))
	require.NoError(t, app.Register(newAppGroup("group-a", handler), mockkafka.NewClient()))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(
		t, func() bool { return app.Status().Phase() >= runner.PhaseRunning },
		2*time.Second, time.Millisecond,
	)

	app.Close()
	require.NoError(t, <-done)
}
