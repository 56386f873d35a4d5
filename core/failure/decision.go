package failure

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// State is a state of the decision state machine.
type State string

const (
	StateAnalyzing         State = "analyzing"
	StateDeciding          State = "deciding"
	StateRetryScheduled    State = "retry_scheduled"
	StateEscalated         State = "escalated"
	StateSkipped           State = "skipped"
	StatePermanentlyFailed State = "permanently_failed"
)

// ExitState maps a final strategy to the state the invocation exits in.
func ExitState(s Strategy) State {
	switch s {
	case StrategyEscalate:
		return StateEscalated
	case StrategySkip:
		return StateSkipped
	case StrategyPermanentlyFailed:
		return StatePermanentlyFailed
	default:
		return StateRetryScheduled
	}
}

// Decision is the single output of the engine for one failure. A decision is
// produced fresh per call and consumed once by the caller.
type Decision struct {
	ID           string        `json:"id"`
	TaskID       string        `json:"task_id"`
	PatternID    string        `json:"pattern_id"`
	Strategy     Strategy      `json:"strategy"`
	Delay        time.Duration `json:"delay"`
	Confidence   float64       `json:"confidence"`
	Rationale    string        `json:"rationale"`
	Terminal     bool          `json:"terminal"`
	AdvisoryUsed bool          `json:"advisory_used"`
	State        State         `json:"state"`
	DecidedAt    time.Time     `json:"decided_at"`
}

var decisionNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8e-9a55-0d9e4c1b7f21")

// DecisionID derives a stable identifier for the decision taken on a given
// task attempt, so that repeated analysis of the same failure yields the
// same id.
func DecisionID(sig Signal, patternID string) string {
	key := sig.TaskID + "\x00" + strconv.Itoa(sig.Attempt()) + "\x00" + patternID + "\x00" + sig.Class()
	return uuid.NewSHA1(decisionNamespace, []byte(key)).String()
}

// ClampConfidence forces a confidence value into [0,1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
