package bot

import (
	"fmt"
	"time"
)

// Phase is one node of the runtime lifecycle:
//
//	Starting -> Connected -> Retrying -> ... -> Stopped | Failed
//
// Stopped and Failed are terminal. Stopped means the runtime unwound
// cleanly after a shutdown signal; Failed means it gave up on its own.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseConnected Phase = "connected"
	PhaseRetrying  Phase = "retrying"
	PhaseStopped   Phase = "stopped"
	PhaseFailed    Phase = "failed"
)

// State is an observable snapshot of where a runtime is in its lifecycle.
type State struct {
	Phase Phase

	// Attempt and Backoff are meaningful only while retrying: which
	// consecutive failed connection attempt this is and how long the
	// runtime sleeps before the next.
	Attempt int
	Backoff time.Duration

	// Err is the error that drove the last transition, if any.
	Err error
}

func (s State) String() string {
	if s.Phase == PhaseRetrying {
		return fmt.Sprintf("retrying (attempt %d, backoff %s)", s.Attempt, s.Backoff)
	}
	return string(s.Phase)
}

// Outcome is a runtime's terminal result, one per bot.
type Outcome struct {
	Bot   string
	Phase Phase // PhaseStopped or PhaseFailed
	Err   error // nil for a clean stop
}

// Failed reports whether the runtime ended in failure.
func (o Outcome) Failed() bool { return o.Phase == PhaseFailed }
