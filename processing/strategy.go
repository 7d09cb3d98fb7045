package processing

import (
	"github.com/hugolhafner/go-consumer/kafka"
)

// Strategy is the feature-composed post-consume policy of a topic. The
// concrete decision tables live outside this package; executors and jobs
// only need the hook points.
type Strategy interface {
	// HandleBeforeSchedule runs on the listener goroutine right before a job
	// is handed to the scheduler.
	HandleBeforeSchedule(kind JobKind, c *Coordinator)

	// HandleAfterConsume runs once per batch cycle, on the goroutine that
	// completed the cycle's last job. It decides between mark-consumed,
	// retry-after-pause and skip-with-DLQ.
	HandleAfterConsume(c *Coordinator, last kafka.Message)

	// HandleIdle runs after an idle job, advancing filter cursors on cycles
	// that produced no consumable messages.
	HandleIdle(c *Coordinator)
}
