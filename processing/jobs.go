package processing

import (
	"context"

	"github.com/hugolhafner/go-consumer/kafka"
)

type JobKind int

const (
	JobConsume JobKind = iota
	JobIdle
	JobRevoked
	JobShutdown
	JobPeriodic
)

func (k JobKind) String() string {
	switch k {
	case JobConsume:
		return "consume"
	case JobIdle:
		return "idle"
	case JobRevoked:
		return "revoked"
	case JobShutdown:
		return "shutdown"
	case JobPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// Job is a schedulable unit of work bound to one executor. BeforeSchedule
// runs on the listener goroutine prior to enqueueing; Call runs on a worker.
type Job interface {
	Kind() JobKind
	Executor() *Executor

	// NonBlocking jobs are excluded from the queue drain accounting so a
	// long-running consumer does not stall the fetch loop.
	NonBlocking() bool

	BeforeSchedule()
	Call(ctx context.Context)
}

type baseJob struct {
	kind     JobKind
	executor *Executor
}

func (j baseJob) Kind() JobKind {
	return j.kind
}

func (j baseJob) Executor() *Executor {
	return j.executor
}

func (j baseJob) NonBlocking() bool {
	return false
}

func (j baseJob) BeforeSchedule() {
	j.executor.Strategy().HandleBeforeSchedule(j.kind, j.executor.Coordinator())
}

// ConsumeJob runs the user consumer over one virtual group's slice of the
// batch and reports the result to the coordinator.
type ConsumeJob struct {
	baseJob
	messages []kafka.Message
}

func (j *ConsumeJob) NonBlocking() bool {
	return j.executor.NonBlocking()
}

func (j *ConsumeJob) Messages() []kafka.Message {
	return j.messages
}

func (j *ConsumeJob) Call(ctx context.Context) {
	err := j.executor.Consume(ctx, j.messages)
	if err != nil {
		j.executor.Logger().Error(
			"Consume job failed", "error", err, "first_offset", j.messages[0].Offset,
		)
	}

	j.executor.Coordinator().Decrement(err == nil)
}

// IdleJob fires when a poll cycle yielded no consumable messages for the
// partition, letting filters advance their cursors. It never touches the
// coordinator's job counter.
type IdleJob struct {
	baseJob
}

func (j *IdleJob) Call(ctx context.Context) {
	j.executor.Idle(ctx)
	j.executor.Strategy().HandleIdle(j.executor.Coordinator())
}

// RevokedJob notifies a consumer that its partition was reassigned.
type RevokedJob struct {
	baseJob
}

func (j *RevokedJob) NonBlocking() bool {
	return j.executor.NonBlocking()
}

func (j *RevokedJob) Call(ctx context.Context) {
	j.executor.Revoked(ctx)
}

// ShutdownJob notifies a consumer that the process is stopping.
type ShutdownJob struct {
	baseJob
}

func (j *ShutdownJob) Call(ctx context.Context) {
	j.executor.Shutdown(ctx)
}

// PeriodicJob ticks a consumer on a partition without recent activity.
type PeriodicJob struct {
	baseJob
}

func (j *PeriodicJob) Call(ctx context.Context) {
	j.executor.Periodic(ctx)
}

// JobsBuilder constructs the typed jobs scheduled by the listener.
type JobsBuilder struct{}

func (JobsBuilder) Consume(e *Executor, messages []kafka.Message) Job {
	return &ConsumeJob{baseJob: baseJob{kind: JobConsume, executor: e}, messages: messages}
}

func (JobsBuilder) Idle(e *Executor) Job {
	return &IdleJob{baseJob{kind: JobIdle, executor: e}}
}

func (JobsBuilder) Revoked(e *Executor) Job {
	return &RevokedJob{baseJob{kind: JobRevoked, executor: e}}
}

func (JobsBuilder) Shutdown(e *Executor) Job {
	return &ShutdownJob{baseJob{kind: JobShutdown, executor: e}}
}

func (JobsBuilder) Periodic(e *Executor) Job {
	return &PeriodicJob{baseJob{kind: JobPeriodic, executor: e}}
}
