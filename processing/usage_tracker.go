package processing

import (
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// UsageTracker records the last activity time per partition. Periodic jobs
// are only built for partitions that have been quiet for the configured
// interval, so a partition that receives messages in a poll, or gets a
// periodic job, reports activity here.
type UsageTracker struct {
	mu sync.Mutex

	lastActive map[kafka.TopicPartition]time.Time
	now        func() time.Time
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		lastActive: make(map[kafka.TopicPartition]time.Time),
		now:        time.Now,
	}
}

// Track marks the partition as active now.
func (u *UsageTracker) Track(tp kafka.TopicPartition) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.lastActive[tp] = u.now()
}

// Active reports whether the partition saw activity within the window.
// Unknown partitions are not active.
func (u *UsageTracker) Active(tp kafka.TopicPartition, window time.Duration) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	last, ok := u.lastActive[tp]
	if !ok {
		return false
	}

	return u.now().Sub(last) < window
}

// Revoke drops tracking for a partition that left the assignment.
func (u *UsageTracker) Revoke(tp kafka.TopicPartition) {
	u.mu.Lock()
	defer u.mu.Unlock()

	delete(u.lastActive, tp)
}

func (u *UsageTracker) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.lastActive = make(map[kafka.TopicPartition]time.Time)
}
