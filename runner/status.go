package runner

import "sync/atomic"

// Phase is a stage of the process lifecycle.
type Phase int32

const (
	PhaseBooting Phase = iota
	PhaseRunning
	PhaseQuieting
	PhaseQuiet
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseBooting:
		return "booting"
	case PhaseRunning:
		return "running"
	case PhaseQuieting:
		return "quieting"
	case PhaseQuiet:
		return "quiet"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is the process-wide lifecycle cell shared by the application and
// every listener. Phases only move forward; a listener restart does not
// change the phase.
type Status struct {
	phase atomic.Int32
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) Phase() Phase {
	return Phase(s.phase.Load())
}

// Transition advances the phase. Backward transitions are ignored.
func (s *Status) Transition(next Phase) {
	for {
		current := s.phase.Load()
		if int32(next) <= current {
			return
		}
		if s.phase.CompareAndSwap(current, int32(next)) {
			return
		}
	}
}

func (s *Status) Running() bool {
	return s.Phase() == PhaseRunning
}

func (s *Status) Quieting() bool {
	return s.Phase() == PhaseQuieting
}

func (s *Status) Quiet() bool {
	return s.Phase() == PhaseQuiet
}

// Done reports whether a stop was requested in any form.
func (s *Status) Done() bool {
	return s.Phase() >= PhaseQuieting
}

func (s *Status) Stopped() bool {
	return s.Phase() == PhaseStopped
}
