package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/processing"
)

// waitTick bounds how long a Wait loop sleeps between checks, so the caller's
// tick function runs at least this often while jobs drain.
const waitTick = 200 * time.Millisecond

// JobsQueue holds scheduled jobs sharded by subscription group. Blocking
// jobs are tracked from Push until Complete; non-blocking jobs pass through
// without affecting Wait.
type JobsQueue struct {
	mu     sync.Mutex
	shards map[string]*shard
	closed bool
}

type shard struct {
	jobs    []processing.Job
	tracked int
}

func NewJobsQueue() *JobsQueue {
	return &JobsQueue{shards: make(map[string]*shard)}
}

// Register creates the shard for a subscription group. Registering twice is
// harmless.
func (q *JobsQueue) Register(group string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.shards[group]; !ok {
		q.shards[group] = &shard{}
	}
}

func (q *JobsQueue) shard(group string) *shard {
	s, ok := q.shards[group]
	if !ok {
		s = &shard{}
		q.shards[group] = s
	}

	return s
}

func (q *JobsQueue) Push(group string, job processing.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	s := q.shard(group)
	s.jobs = append(s.jobs, job)
	if !job.NonBlocking() {
		s.tracked++
	}
}

// PushFront schedules ahead of everything already queued. Used for
// revocation and shutdown work that must not sit behind a consumption
// backlog.
func (q *JobsQueue) PushFront(group string, job processing.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	s := q.shard(group)
	s.jobs = append([]processing.Job{job}, s.jobs...)
	if !job.NonBlocking() {
		s.tracked++
	}
}

func (q *JobsQueue) Pop(group string) (processing.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.shard(group)
	if len(s.jobs) == 0 {
		return nil, false
	}

	job := s.jobs[0]
	s.jobs = s.jobs[1:]

	return job, true
}

// Complete releases a blocking job from the shard's drain accounting. Must
// be called exactly once per blocking job after Call returns.
func (q *JobsQueue) Complete(group string, job processing.Job) {
	if job.NonBlocking() {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.shard(group)
	if s.tracked > 0 {
		s.tracked--
	}
}

// Size reports queued plus in-flight blocking jobs for a group.
func (q *JobsQueue) Size(group string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.shard(group).tracked
}

func (q *JobsQueue) Empty(group string) bool {
	return q.Size(group) == 0
}

// Wait blocks until every blocking job of the group has completed, invoking
// tick between checks. It returns early when ctx is done.
func (q *JobsQueue) Wait(ctx context.Context, group string, tick func()) {
	for {
		if q.Empty(group) {
			return
		}

		if tick != nil {
			tick()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(waitTick):
		}
	}
}

// Clear drops everything queued for a group and resets its drain accounting.
func (q *JobsQueue) Clear(group string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.shard(group)
	s.jobs = nil
	s.tracked = 0
}

// Close rejects further pushes. Queued jobs stay poppable so shutdown work
// can still drain.
func (q *JobsQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
}
