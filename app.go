package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/route"
	"github.com/hugolhafner/go-consumer/runner"
	"github.com/hugolhafner/go-consumer/scheduling"
)

const Version = "v0.1.0" // x-release-please-version

type registration struct {
	group  *route.SubscriptionGroup
	client kafka.Client
}

// Application supervises one listener per registered subscription group over
// a shared worker pool. Register groups first, then Run once; Close stops a
// running application from any goroutine.
type Application struct {
	config Config
	logger logger.Logger
	status *runner.Status

	mu            sync.Mutex
	running       bool
	registrations []registration
	closeOnce     sync.Once
	closedCh      chan struct{}
}

func NewApplication(opts ...ConfigOption) *Application {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewApplicationWithConfig(config)
}

func NewApplicationWithConfig(config Config) *Application {
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}

	return &Application{
		config:   config,
		logger:   config.Logger.With("component", "application"),
		status:   runner.NewStatus(),
		closedCh: make(chan struct{}),
	}
}

// Register routes a subscription group over an existing broker client. The
// client is owned by the application from here on and closed with its
// listener.
func (a *Application) Register(group *route.SubscriptionGroup, client kafka.Client) error {
	if group == nil {
		return InvalidConfigurationError{Field: "subscription_group", Reason: "must not be nil"}
	}
	if client == nil {
		return InvalidConfigurationError{Field: "client", Reason: "must not be nil"}
	}
	if err := group.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	for _, r := range a.registrations {
		if r.group.ID == group.ID {
			return InvalidConfigurationError{
				Field: "subscription_group.id", Reason: "group " + group.ID + " registered twice",
			}
		}
	}

	a.registrations = append(a.registrations, registration{group: group, client: client})
	return nil
}

// RegisterBrokers is Register with a broker client built from the application
// config. The group ID doubles as the Kafka consumer group.
func (a *Application) RegisterBrokers(servers []string, group *route.SubscriptionGroup) error {
	if group == nil {
		return InvalidConfigurationError{Field: "subscription_group", Reason: "must not be nil"}
	}

	client, err := kafka.NewKgoClient(
		kafka.WithBootstrapServers(servers),
		kafka.WithGroupID(group.ID),
		kafka.WithMaxPollRecords(a.config.MaxMessages),
		kafka.WithMaxWaitTime(a.config.MaxWaitTime),
		kafka.WithLogger(a.config.Logger),
	)
	if err != nil {
		return fmt.Errorf("building broker client for %s: %w", group.ID, err)
	}

	if err := a.Register(group, client); err != nil {
		client.Close()
		return err
	}

	return nil
}

// Status exposes the process lifecycle phase shared with every listener.
func (a *Application) Status() *runner.Status {
	return a.status
}

// Run validates the license, starts one listener per registered group and
// blocks until every listener returned. Context cancellation and Close both
// trigger the same quiet-then-stop sequence.
func (a *Application) Run(ctx context.Context) error {
	if err := validateLicense(a.config.LicenseToken, time.Now()); err != nil {
		return err
	}

	if err := a.startRunning(); err != nil {
		return err
	}
	defer a.Close()

	a.mu.Lock()
	registrations := make([]registration, len(a.registrations))
	copy(registrations, a.registrations)
	a.mu.Unlock()

	if len(registrations) == 0 {
		return InvalidConfigurationError{
			Field: "subscription_groups", Reason: "at least one group must be registered before Run",
		}
	}

	queue := scheduling.NewJobsQueue()
	scheduler, err := scheduling.NewScheduler(
		queue, a.config.Concurrency, a.config.Logger,
		scheduling.WithTelemetry(a.config.Telemetry),
	)
	if err != nil {
		return err
	}

	listeners := make([]*runner.Listener, 0, len(registrations))
	committers := make([]*committer.PeriodicCommitter, 0, len(registrations))
	for _, r := range registrations {
		commit := committer.NewPeriodicCommitter(
			committer.WithMaxInterval(a.config.CommitInterval),
			committer.WithMaxCount(a.config.CommitMaxCount),
		)

		listener, err := runner.NewListener(runner.ListenerConfig{
			Group:           r.group,
			Client:          r.client,
			Scheduler:       scheduler,
			Queue:           queue,
			Status:          a.status,
			Committer:       commit,
			Telemetry:       a.config.Telemetry,
			Pause:           a.config.Pause,
			PingInterval:    a.config.PingInterval,
			ShutdownTimeout: a.config.ShutdownTimeout,
			Logger:          a.config.Logger,
		})
		if err != nil {
			_ = scheduler.Shutdown(a.config.ShutdownTimeout)
			return fmt.Errorf("building listener for %s: %w", r.group.ID, err)
		}

		listeners = append(listeners, listener)
		committers = append(committers, commit)
	}

	a.status.Transition(runner.PhaseRunning)
	a.logger.Info("application started", "version", Version, "groups", len(listeners))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-a.closedCh:
		case <-runCtx.Done():
		}

		a.status.Transition(runner.PhaseQuieting)
		cancel()
	}()

	g, gctx := errgroup.WithContext(runCtx)
	for _, listener := range listeners {
		g.Go(func() error { return listener.Run(gctx) })
	}

	runErr := g.Wait()

	a.status.Transition(runner.PhaseStopping)
	if err := scheduler.Shutdown(a.config.ShutdownTimeout); err != nil {
		a.logger.Error("worker pool shutdown failed", "error", err)
	}
	for _, commit := range committers {
		commit.Close()
	}
	queue.Close()
	a.status.Transition(runner.PhaseStopped)

	a.logger.Info("application stopped")
	return runErr
}

// Close requests a stop. Safe to call multiple times and before Run.
func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}
