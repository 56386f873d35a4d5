package engine

import (
	"fmt"

	"github.com/adalundhe/rebound/core/failure"
)

// transitions lists the legal moves of the decision state machine.
// retry_scheduled -> analyzing happens outside the engine, when the retried
// attempt fails and the caller submits a new signal.
var transitions = map[failure.State][]failure.State{
	failure.StateAnalyzing: {failure.StateDeciding},
	failure.StateDeciding: {
		failure.StateRetryScheduled,
		failure.StateEscalated,
		failure.StateSkipped,
		failure.StatePermanentlyFailed,
	},
	failure.StateRetryScheduled: {failure.StateAnalyzing},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to failure.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Final reports whether s ends the engine invocation.
func Final(s failure.State) bool {
	switch s {
	case failure.StateRetryScheduled, failure.StateEscalated, failure.StateSkipped, failure.StatePermanentlyFailed:
		return true
	}
	return false
}

// FullyTerminal reports whether s ends the task as well as the invocation.
func FullyTerminal(s failure.State) bool {
	return s == failure.StateSkipped || s == failure.StatePermanentlyFailed
}

// machine tracks one invocation.
type machine struct {
	state failure.State
}

func newMachine() *machine {
	return &machine{state: failure.StateAnalyzing}
}

func (m *machine) to(next failure.State) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("engine: illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}
