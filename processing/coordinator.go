package processing

import (
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Coordinator tracks the outstanding jobs of one partition's batch across
// virtual partition groups. The listener increments before scheduling, the
// worker that finishes the last job fires the finished callbacks with the
// batch's highest-offset message and the aggregate success flag visible.
type Coordinator struct {
	mu sync.Mutex

	tp    kafka.TopicPartition
	pause *PauseTracker

	outstanding int
	success     bool
	fired       bool
	revoked     bool
	userMarked  bool

	seekOffset  int64
	lastMessage kafka.Message
	messages    []kafka.Message

	filter    Filter
	callbacks []func(last kafka.Message)
}

func NewCoordinator(tp kafka.TopicPartition, pause *PauseTracker) *Coordinator {
	return &Coordinator{
		tp:    tp,
		pause: pause,
	}
}

func (c *Coordinator) TopicPartition() kafka.TopicPartition {
	return c.tp
}

// Start opens a new batch cycle. Any callbacks left over from a previous
// cycle are dropped.
func (c *Coordinator) Start(messages []kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outstanding = 0
	c.success = true
	c.fired = false
	c.userMarked = false
	c.callbacks = nil

	c.messages = messages
	if len(messages) > 0 {
		c.seekOffset = messages[0].Offset
		c.lastMessage = messages[len(messages)-1]
	}
}

// Find returns the batch message at the given offset, if it is part of the
// current cycle.
func (c *Coordinator) Find(offset int64) (kafka.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.messages {
		if m.Offset == offset {
			return m, true
		}
	}

	return kafka.Message{}, false
}

// OnFinished installs a callback fired once per cycle when the last job
// completes. Must be called before the first Increment of the cycle.
func (c *Coordinator) OnFinished(fn func(last kafka.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callbacks = append(c.callbacks, fn)
}

func (c *Coordinator) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outstanding++
}

// Decrement records one finished job. When the count drains to zero the
// finished callbacks run synchronously on the calling goroutine, outside the
// coordinator lock so they can read back coordinator state.
func (c *Coordinator) Decrement(ok bool) {
	c.mu.Lock()

	if c.outstanding > 0 {
		c.outstanding--
	}
	if !ok {
		c.success = false
	}

	if c.outstanding != 0 || c.fired {
		c.mu.Unlock()
		return
	}

	c.fired = true
	callbacks := c.callbacks
	last := c.lastMessage
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(last)
	}
}

func (c *Coordinator) Success() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.success
}

// Revoke marks the partition as lost. Post-consume handlers become no-ops.
func (c *Coordinator) Revoke() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.revoked = true
}

func (c *Coordinator) Revoked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.revoked
}

// MarkConsumed advances the seek offset past the message. The offset never
// moves backwards within a cycle.
func (c *Coordinator) MarkConsumed(m kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if next := m.Offset + 1; next > c.seekOffset {
		c.seekOffset = next
	}
}

// MarkUserConsumed is MarkConsumed plus a record that the user explicitly
// checkpointed. Manual offset management strategies commit only when this
// was called during the cycle.
func (c *Coordinator) MarkUserConsumed(m kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userMarked = true
	if next := m.Offset + 1; next > c.seekOffset {
		c.seekOffset = next
	}
}

func (c *Coordinator) UserMarked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.userMarked
}

// SeekOffset is the first offset not yet marked consumed, the position to
// resume from on retry or skip.
func (c *Coordinator) SeekOffset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.seekOffset
}

func (c *Coordinator) Pause() *PauseTracker {
	return c.pause
}

// SetFilter attaches the filter applied to the current cycle's batch.
func (c *Coordinator) SetFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filter = f
}

func (c *Coordinator) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.filter
}
