package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"go.opentelemetry.io/otel/metric"

	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/processing"
	"github.com/hugolhafner/go-consumer/route"
	"github.com/hugolhafner/go-consumer/scheduling"
	"github.com/hugolhafner/go-consumer/strategy"
)

// ListenerConfig wires one subscription group's fetch loop.
type ListenerConfig struct {
	Group     *route.SubscriptionGroup
	Client    kafka.Client
	Scheduler *scheduling.Scheduler
	Queue     *scheduling.JobsQueue
	Status    *Status
	Committer committer.Committer
	Telemetry *otel.Telemetry

	Pause           processing.PauseConfig
	PingInterval    time.Duration
	RestartBackoff  backoff.Backoff
	ShutdownTimeout time.Duration

	Logger logger.Logger
}

// Listener owns one subscription group end to end: the broker client, the
// per-partition buffers and trackers, and the scheduling of every job kind.
// Polling and committing happen on the listener goroutine; workers reach the
// client (marking, pausing, seeking, dead letter dispatch) only through
// coordinator callbacks.
type Listener struct {
	config ListenerConfig

	group     *route.SubscriptionGroup
	client    kafka.Client
	scheduler *scheduling.Scheduler
	queue     *scheduling.JobsQueue
	status    *Status

	coordinators *processing.CoordinatorsBuffer
	executors    *processing.ExecutorsBuffer
	usage        *processing.UsageTracker
	messages     *processing.MessagesBuffer
	strategies   map[string]*strategy.Strategy
	filters      map[kafka.TopicPartition]processing.Filter
	builder      processing.JobsBuilder

	lastPing time.Time

	stopMu  sync.Mutex
	stopped bool

	telemetry *otel.Telemetry
	logger    logger.Logger
}

func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Group == nil {
		return nil, fmt.Errorf("listener: subscription group is required")
	}
	if config.Client == nil {
		return nil, fmt.Errorf("listener: client is required")
	}
	if config.Scheduler == nil || config.Queue == nil {
		return nil, fmt.Errorf("listener: scheduler and queue are required")
	}
	if err := config.Group.Validate(); err != nil {
		return nil, err
	}

	if config.Status == nil {
		config.Status = NewStatus()
	}
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 5 * time.Second
	}
	if config.RestartBackoff == nil {
		config.RestartBackoff = backoff.NewFixed(time.Second)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.Pause == (processing.PauseConfig{}) {
		config.Pause = processing.DefaultPauseConfig()
	}
	if config.Telemetry == nil {
		config.Telemetry = otel.Noop()
	}

	l := &Listener{
		config:     config,
		group:      config.Group,
		client:     config.Client,
		scheduler:  config.Scheduler,
		queue:      config.Queue,
		status:     config.Status,
		usage:      processing.NewUsageTracker(),
		messages:   processing.NewMessagesBuffer(),
		strategies: make(map[string]*strategy.Strategy, len(config.Group.Topics)),
		filters:    make(map[kafka.TopicPartition]processing.Filter),
		telemetry:  config.Telemetry,
		logger:     config.Logger.With("component", "listener", "subscription_group", config.Group.ID),
	}

	for _, topic := range config.Group.Topics {
		l.strategies[topic.Name] = strategy.Build(
			topic, config.Client, config.Logger, strategy.WithTelemetry(config.Telemetry),
		)
	}

	l.coordinators = processing.NewCoordinatorsBuffer(
		func(tp kafka.TopicPartition) *processing.Coordinator {
			return processing.NewCoordinator(tp, processing.NewPauseTracker(config.Pause))
		},
	)
	l.executors = processing.NewExecutorsBuffer(l.buildExecutor)

	return l, nil
}

func (l *Listener) buildExecutor(
	tp kafka.TopicPartition, virtualGroup int, coordinator *processing.Coordinator,
) *processing.Executor {
	topic, _ := l.group.Topic(tp.Topic)

	return processing.NewExecutor(
		tp,
		virtualGroup,
		l.client.GroupID(),
		topic.Consumer(),
		coordinator,
		l.client,
		l.strategies[tp.Topic],
		topic.LongRunningJob,
		l.logger,
	)
}

// Run executes the fetch loop until the process status requests a stop or
// the context is cancelled. Any error inside one iteration triggers a full
// restart rather than an exit.
func (l *Listener) Run(ctx context.Context) error {
	l.queue.Register(l.group.ID)

	if err := l.client.Subscribe(l.group.TopicNames()); err != nil {
		return fmt.Errorf("subscribing %s: %w", l.group.ID, err)
	}

	l.logger.Info("listener started", "topics", l.group.TopicNames())

	var attempts uint
	for ctx.Err() == nil && !l.status.Done() {
		if err := l.iteration(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}

			l.telemetry.Errors.Add(ctx, 1, metric.WithAttributes(
				otel.AttrErrorType.String(otel.ErrorFetchLoop),
				otel.AttrGroup.String(l.group.ID),
			))
			l.logger.Error("fetch loop error, restarting", "error", err)
			l.restart(ctx)

			select {
			case <-ctx.Done():
			case <-time.After(l.config.RestartBackoff.Next(attempts)):
			}
			attempts++
			continue
		}
		attempts = 0
	}

	return l.Shutdown(ctx)
}

// iteration is one pass of the running phase: resume expired pauses, poll,
// handle revocations, then build and schedule idle, consume and periodic
// jobs with a queue drain between each stage.
func (l *Listener) iteration(ctx context.Context) error {
	l.resumePausedPartitions()

	pollStart := time.Now()
	polled, err := l.client.BatchPoll(ctx)
	if err != nil {
		return fmt.Errorf("batch poll: %w", err)
	}

	groupAttr := metric.WithAttributes(otel.AttrGroup.String(l.group.ID))
	l.telemetry.PollDuration.Record(ctx, time.Since(pollStart).Seconds(), groupAttr)
	l.telemetry.MessagesConsumed.Add(ctx, int64(len(polled)), groupAttr)

	l.messages.Remap(polled)

	l.scheduleRevoked(ctx)
	l.wait(ctx)

	if l.status.Done() {
		return nil
	}

	l.scheduleFlow(ctx)
	l.wait(ctx)

	l.schedulePeriodic(ctx)
	l.wait(ctx)

	return nil
}

// resumePausedPartitions lifts every expired non-manual pause window.
func (l *Listener) resumePausedPartitions() {
	l.coordinators.Each(
		func(tp kafka.TopicPartition, c *processing.Coordinator) {
			if !c.Pause().Expired() || c.Pause().Manual() {
				return
			}

			c.Pause().Resume()
			l.client.Resume(tp)
			l.logger.Debug("partition resumed", "topic", tp.Topic, "partition", tp.Partition)
		},
	)
}

// scheduleRevoked notifies executors of partitions the broker took away.
// Jobs are built against the current executors, then the buffers are purged
// so a reassignment starts clean.
func (l *Listener) scheduleRevoked(ctx context.Context) {
	revoked := l.client.Rebalance().TakeRevoked()
	if len(revoked) == 0 {
		return
	}

	l.logger.Info("partitions revoked", "partitions", revoked)

	jobs := make([]processing.Job, 0, len(revoked))
	for _, tp := range revoked {
		l.usage.Revoke(tp)
		l.coordinators.Revoke(tp)
		delete(l.filters, tp)

		for _, executor := range l.executors.Find(tp) {
			jobs = append(jobs, l.builder.Revoked(executor))
		}
		l.executors.Revoke(tp)
	}

	if len(jobs) > 0 {
		l.scheduler.OnScheduleRevocation(ctx, l.group.ID, jobs)
	}
}

// scheduleFlow turns the polled batch into idle and consume jobs. A
// partition whose batch filtered down to nothing gets an idle job; everything
// else is split by the topic's partitioner into per-group consume jobs.
func (l *Listener) scheduleFlow(ctx context.Context) {
	var idleJobs, consumeJobs []processing.Job

	l.messages.Each(
		func(tp kafka.TopicPartition, messages []kafka.Message) {
			topic, ok := l.group.Topic(tp.Topic)
			if !ok {
				l.logger.Warn("polled message for unrouted topic", "topic", tp.Topic)
				return
			}

			l.usage.Track(tp)
			coordinator := l.coordinators.FindOrCreate(tp)

			filtered := l.applyFilter(topic, tp, coordinator, messages)
			coordinator.Start(filtered)

			strat := l.strategies[tp.Topic]
			coordinator.OnFinished(
				func(last kafka.Message) {
					strat.HandleAfterConsume(coordinator, last)
					if l.config.Committer != nil {
						l.config.Committer.RecordProcessed(len(filtered))
					}
				},
			)

			if len(filtered) == 0 {
				executor := l.executors.FindOrCreate(tp, 0, coordinator)
				idleJobs = append(idleJobs, l.builder.Idle(executor))
				return
			}

			for _, group := range topic.Partitioner().Call(filtered) {
				executor := l.executors.FindOrCreate(tp, group.ID, coordinator)
				coordinator.Increment()
				consumeJobs = append(consumeJobs, l.builder.Consume(executor, group.Messages))
			}
		},
	)

	if len(idleJobs) > 0 {
		l.scheduler.OnScheduleIdle(ctx, l.group.ID, idleJobs)
	}
	if len(consumeJobs) > 0 {
		l.scheduler.OnScheduleConsumption(ctx, l.group.ID, consumeJobs)
	}

	l.messages.Clear()
}

// applyFilter runs the topic's filter over the batch, keeping one filter
// instance per partition assignment.
func (l *Listener) applyFilter(
	topic *route.Topic, tp kafka.TopicPartition,
	coordinator *processing.Coordinator, messages []kafka.Message,
) []kafka.Message {
	if topic.Filtering == nil {
		return messages
	}

	filter, ok := l.filters[tp]
	if !ok {
		filter = topic.Filtering(tp)
		l.filters[tp] = filter
	}
	coordinator.SetFilter(filter)

	return filter.Apply(messages)
}

// schedulePeriodic ticks partitions that have periodics enabled and saw no
// activity within the configured interval.
func (l *Listener) schedulePeriodic(ctx context.Context) {
	var jobs []processing.Job

	for _, tp := range l.client.Rebalance().Assigned() {
		topic, ok := l.group.Topic(tp.Topic)
		if !ok || !topic.Periodics.Enabled() {
			continue
		}
		if l.usage.Active(tp, topic.Periodics.Interval) {
			continue
		}

		l.usage.Track(tp)
		coordinator := l.coordinators.FindOrCreate(tp)
		executor := l.executors.FindOrCreate(tp, 0, coordinator)
		jobs = append(jobs, l.builder.Periodic(executor))
	}

	if len(jobs) > 0 {
		l.scheduler.OnSchedulePeriodic(ctx, l.group.ID, jobs)
	}
}

// wait blocks until the group's queue shard drains, pumping management work
// on every tick so the session stays alive while jobs run.
func (l *Listener) wait(ctx context.Context) {
	l.queue.Wait(ctx, l.group.ID, func() { l.tick(ctx) })
	l.tick(ctx)
}

func (l *Listener) tick(ctx context.Context) {
	l.scheduler.OnManage(ctx, l.group.ID)

	if l.config.Committer != nil {
		select {
		case <-l.config.Committer.C():
			if err := l.client.CommitMarked(ctx); err != nil {
				l.telemetry.Errors.Add(ctx, 1, metric.WithAttributes(
					otel.AttrErrorType.String(otel.ErrorCommit),
					otel.AttrGroup.String(l.group.ID),
				))
				l.logger.Error("periodic commit failed", "error", err)
				break
			}
			l.telemetry.Commits.Add(ctx, 1, metric.WithAttributes(otel.AttrGroup.String(l.group.ID)))
		default:
		}
	}

	if time.Since(l.lastPing) >= l.config.PingInterval {
		l.lastPing = time.Now()
		if err := l.client.Ping(ctx); err != nil {
			l.logger.Warn("broker ping failed", "error", err)
		}
	}
}

// restart recovers from a fetch loop error: the queue shard is cleared,
// stale user-consumer state is discarded and the client reconnects. The
// loop then resumes as if freshly assigned.
func (l *Listener) restart(ctx context.Context) {
	l.scheduler.OnClear(l.group.ID)
	l.coordinators.Reset()
	l.executors.Clear()
	l.messages.Clear()
	l.usage.Clear()
	l.filters = make(map[kafka.TopicPartition]processing.Filter)

	if err := l.client.Reset(ctx); err != nil {
		l.logger.Error("client reset failed", "error", err)
	}
}

// Shutdown notifies every executor, drains the queue shard, commits what was
// marked and closes the client. Safe to call from a foreign goroutine and
// idempotent.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.stopMu.Lock()
	defer l.stopMu.Unlock()

	if l.stopped {
		return nil
	}
	l.stopped = true

	l.status.Transition(PhaseStopping)
	l.logger.Info("listener stopping")

	var jobs []processing.Job
	l.coordinators.Each(
		func(tp kafka.TopicPartition, _ *processing.Coordinator) {
			for _, executor := range l.executors.Find(tp) {
				jobs = append(jobs, l.builder.Shutdown(executor))
			}
		},
	)
	if len(jobs) > 0 {
		l.scheduler.OnScheduleShutdown(ctx, l.group.ID, jobs)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), l.config.ShutdownTimeout)
	defer cancel()
	l.queue.Wait(drainCtx, l.group.ID, func() { l.tick(drainCtx) })

	if err := l.client.CommitMarked(drainCtx); err != nil {
		l.logger.Error("final commit failed", "error", err)
	}
	if err := l.client.Ping(drainCtx); err != nil {
		l.logger.Debug("final ping failed", "error", err)
	}

	l.client.Close()
	l.logger.Info("listener stopped")

	return nil
}
