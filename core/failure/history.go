package failure

// PatternStats summarizes historical outcomes for one pattern at the attempt
// depth of the current failure.
type PatternStats struct {
	// Samples is the number of resolved attempts the summary is based on.
	Samples int `json:"samples"`

	// SuccessRate is the fraction of those attempts that later succeeded.
	SuccessRate float64 `json:"success_rate"`

	// InflectionAttempt is the attempt depth after which retries of this
	// pattern historically stop paying off. Zero means unknown.
	InflectionAttempt int `json:"inflection_attempt"`
}

// History is the per-call summary of attempt history supplied by the caller.
// A nil History is valid and means "no history".
type History struct {
	Patterns   map[string]PatternStats `json:"patterns,omitempty"`
	Terminated map[string]bool         `json:"terminated,omitempty"`
}

// Stats returns the stats for a pattern.
func (h *History) Stats(patternID string) (PatternStats, bool) {
	if h == nil || h.Patterns == nil {
		return PatternStats{}, false
	}
	s, ok := h.Patterns[patternID]
	return s, ok
}

// IsTerminated reports whether a terminal decision was already issued for
// this task under the given pattern.
func (h *History) IsTerminated(patternID string) bool {
	if h == nil || h.Terminated == nil {
		return false
	}
	return h.Terminated[patternID]
}
