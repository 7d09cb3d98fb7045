package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/processing"
)

// Scheduler fans jobs out to a bounded worker pool. Jobs for all
// subscription groups share the pool; drain accounting stays per group in
// the queue.
type Scheduler struct {
	queue     *JobsQueue
	pool      *ants.Pool
	telemetry *otel.Telemetry
	logger    logger.Logger
}

type Option func(*Scheduler)

func WithTelemetry(telemetry *otel.Telemetry) Option {
	return func(s *Scheduler) {
		s.telemetry = telemetry
	}
}

func NewScheduler(queue *JobsQueue, concurrency int, log logger.Logger, opts ...Option) (*Scheduler, error) {
	log = log.With("component", "scheduler")

	pool, err := ants.NewPool(
		concurrency,
		ants.WithLogger(antsLogger{log}),
		ants.WithPanicHandler(
			func(v any) {
				log.Error("worker panic", "panic", v)
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	s := &Scheduler{queue: queue, pool: pool, telemetry: otel.Noop(), logger: log}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// OnScheduleConsumption enqueues consume and periodic jobs in offset order
// and dispatches them.
func (s *Scheduler) OnScheduleConsumption(ctx context.Context, group string, jobs []processing.Job) {
	for _, job := range jobs {
		job.BeforeSchedule()
		s.queue.Push(group, job)
	}

	s.dispatch(ctx, group)
}

// OnScheduleIdle enqueues idle jobs for partitions whose poll produced no
// runnable work.
func (s *Scheduler) OnScheduleIdle(ctx context.Context, group string, jobs []processing.Job) {
	for _, job := range jobs {
		job.BeforeSchedule()
		s.queue.Push(group, job)
	}

	s.dispatch(ctx, group)
}

// OnSchedulePeriodic enqueues periodic tick jobs for quiet partitions.
func (s *Scheduler) OnSchedulePeriodic(ctx context.Context, group string, jobs []processing.Job) {
	for _, job := range jobs {
		job.BeforeSchedule()
		s.queue.Push(group, job)
	}

	s.dispatch(ctx, group)
}

// OnScheduleRevocation puts revocation jobs ahead of any queued consumption.
func (s *Scheduler) OnScheduleRevocation(ctx context.Context, group string, jobs []processing.Job) {
	for _, job := range jobs {
		job.BeforeSchedule()
		s.queue.PushFront(group, job)
	}

	s.dispatch(ctx, group)
}

// OnScheduleShutdown puts shutdown jobs ahead of any queued consumption.
func (s *Scheduler) OnScheduleShutdown(ctx context.Context, group string, jobs []processing.Job) {
	for _, job := range jobs {
		job.BeforeSchedule()
		s.queue.PushFront(group, job)
	}

	s.dispatch(ctx, group)
}

// OnManage is the periodic management hook. The pool does its own
// housekeeping so there is nothing to rebalance here.
func (s *Scheduler) OnManage(ctx context.Context, group string) {
	s.dispatch(ctx, group)
}

// OnClear drops every job still queued for a group. In-flight jobs finish on
// their own.
func (s *Scheduler) OnClear(group string) {
	s.queue.Clear(group)
}

func (s *Scheduler) dispatch(ctx context.Context, group string) {
	for {
		job, ok := s.queue.Pop(group)
		if !ok {
			return
		}

		kindAttr := metric.WithAttributes(otel.AttrJobKind.String(job.Kind().String()))

		err := s.pool.Submit(
			func() {
				defer s.queue.Complete(group, job)

				s.telemetry.JobsActive.Add(ctx, 1, kindAttr)
				defer s.telemetry.JobsActive.Add(ctx, -1, kindAttr)

				start := time.Now()
				job.Call(ctx)
				s.telemetry.JobDuration.Record(ctx, time.Since(start).Seconds(), kindAttr)
			},
		)
		if err != nil {
			s.logger.Error(
				"dropping job, pool rejected it",
				"group", group, "kind", job.Kind().String(), "error", err,
			)
			s.queue.Complete(group, job)
		}
	}
}

// Shutdown releases the worker pool, waiting up to timeout for running jobs.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	if err := s.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("releasing worker pool: %w", err)
	}

	return nil
}

type antsLogger struct {
	log logger.Logger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...))
}
