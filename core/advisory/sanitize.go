package advisory

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/adalundhe/rebound/core/failure"
)

// maxRationale bounds rationale text copied from a backend.
const maxRationale = 240

// sanitize validates a backend answer and normalizes it.
func sanitize(rec *Recommendation) (Recommendation, error) {
	if rec == nil {
		return Recommendation{}, ErrNoRecommendation
	}

	strategy, err := failure.ParseStrategy(string(rec.Strategy))
	if err != nil {
		return Recommendation{}, fmt.Errorf("advisory: %w", err)
	}

	return Recommendation{
		PatternID:  strings.TrimSpace(rec.PatternID),
		Strategy:   strategy,
		Confidence: failure.ClampConfidence(rec.Confidence),
		Rationale:  cleanRationale(rec.Rationale),
	}, nil
}

// cleanRationale collapses whitespace, drops control characters and
// truncates.
func cleanRationale(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxRationale {
		return string(runes[:maxRationale-1]) + "…"
	}
	return s
}
