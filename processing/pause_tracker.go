package processing

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PauseConfig controls the retry pause windows applied to a partition after
// a failed batch.
type PauseConfig struct {
	Timeout                time.Duration
	MaxTimeout             time.Duration
	WithExponentialBackoff bool
}

func DefaultPauseConfig() PauseConfig {
	return PauseConfig{
		Timeout:                time.Second,
		MaxTimeout:             30 * time.Second,
		WithExponentialBackoff: true,
	}
}

// PauseTracker holds the per-partition backoff state: how many consecutive
// failures were seen, whether the partition is currently paused, and when the
// pause expires. The attempt counter and the pause flag move independently so
// that a success can reset the backoff while a manual pause stays in place.
type PauseTracker struct {
	mu sync.Mutex

	config PauseConfig
	bo     *backoff.ExponentialBackOff

	attempt   int
	paused    bool
	manual    bool
	expiresAt time.Time

	now func() time.Time
}

func NewPauseTracker(config PauseConfig) *PauseTracker {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = config.Timeout
	bo.MaxInterval = config.MaxTimeout
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &PauseTracker{
		config: config,
		bo:     bo,
		now:    time.Now,
	}
}

// Pause records a failed attempt and opens a pause window, returning its
// duration. The window grows per the configured backoff and is capped at
// MaxTimeout.
func (p *PauseTracker) Pause() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempt++

	timeout := p.config.Timeout
	if p.config.WithExponentialBackoff {
		timeout = p.bo.NextBackOff()
	}
	if timeout > p.config.MaxTimeout {
		timeout = p.config.MaxTimeout
	}

	p.paused = true
	p.manual = false
	p.expiresAt = p.now().Add(timeout)

	return timeout
}

// PauseNominal opens a pause window that is already expired, so the next
// resume sweep lifts it immediately. Used after a DLQ skip to force a
// re-fetch from the new position without delaying the partition.
func (p *PauseTracker) PauseNominal() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = true
	p.manual = false
	p.expiresAt = p.now()
}

// PauseFor opens a pause window of fixed length without recording a failed
// attempt. Used to park a partition while a long-running job executes or a
// filter throttles consumption.
func (p *PauseTracker) PauseFor(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = true
	p.manual = false
	p.expiresAt = p.now().Add(timeout)
}

// PauseManual opens a user-requested pause. A non-positive timeout pauses
// until an explicit Resume.
func (p *PauseTracker) PauseManual(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = true
	p.manual = true

	if timeout > 0 {
		p.expiresAt = p.now().Add(timeout)
	} else {
		p.expiresAt = time.Time{}
	}
}

// Resume clears the pause flag. The attempt counter is left alone.
func (p *PauseTracker) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = false
	p.manual = false
	p.expiresAt = time.Time{}
}

// Reset clears the attempt counter and backoff progression after a success.
// A pause in progress is not lifted.
func (p *PauseTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempt = 0
	p.bo.Reset()
}

func (p *PauseTracker) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.paused
}

func (p *PauseTracker) Manual() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.manual
}

// Expired reports whether the pause window has elapsed. Manual pauses with no
// timeout never expire.
func (p *PauseTracker) Expired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused {
		return false
	}
	if p.expiresAt.IsZero() {
		return false
	}

	return !p.now().Before(p.expiresAt)
}

func (p *PauseTracker) Attempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.attempt
}
