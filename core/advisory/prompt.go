package advisory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adalundhe/rebound/core/failure"
)

// systemPrompt instructs a language model backend to answer in JSON only.
const systemPrompt = `You classify task failures for an automated retry controller.
Given a failure signal and the locally matched candidate patterns, choose a
recovery strategy. Answer with a single JSON object and nothing else:
{"pattern_id": "<candidate id or empty>", "strategy": "<strategy>", "confidence": <0..1>, "rationale": "<one sentence>"}
Allowed strategies: %s.
Prefer a listed candidate when one fits. Use low confidence when unsure.`

// SystemPrompt returns the instructions shared by every model backend.
func SystemPrompt() string {
	names := make([]string, 0, len(failure.Strategies()))
	for _, s := range failure.Strategies() {
		names = append(names, s.String())
	}
	return fmt.Sprintf(systemPrompt, strings.Join(names, ", "))
}

// maxPromptMessage bounds how much of the raw message is sent upstream.
const maxPromptMessage = 2000

// UserPrompt renders req for a model backend.
func UserPrompt(req Request) string {
	var b strings.Builder
	sig := req.Signal

	msg := sig.RawMessage
	if len(msg) > maxPromptMessage {
		msg = msg[:maxPromptMessage] + "...(truncated)"
	}

	fmt.Fprintf(&b, "Failure message:\n%s\n\n", msg)
	if hint := sig.Hint(); hint != "" {
		fmt.Fprintf(&b, "Kind hint: %s\n", hint)
	}
	if sig.StatusCode != 0 {
		fmt.Fprintf(&b, "Status code: %d\n", sig.StatusCode)
	}
	fmt.Fprintf(&b, "Attempt: %d\nResource class: %s\n", sig.Attempt(), sig.Class())

	if len(req.Candidates) > 0 {
		b.WriteString("\nCandidate patterns:\n")
		for _, c := range req.Candidates {
			fmt.Fprintf(&b, "- %s (category %s, strategy %s, confidence %.2f, max attempts %d)\n",
				c.Pattern.ID, c.Pattern.Category, c.Pattern.Strategy, c.Confidence, c.Pattern.MaxAttempts)
			if stats, ok := req.History.Stats(c.Pattern.ID); ok && stats.Samples > 0 {
				fmt.Fprintf(&b, "  history: %d samples, success rate %.2f\n", stats.Samples, stats.SuccessRate)
			}
		}
	}

	return b.String()
}

// ParseRecommendation extracts the JSON object from a model reply. Code
// fences and surrounding prose are tolerated.
func ParseRecommendation(text string) (*Recommendation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: reply has no JSON object", ErrNoRecommendation)
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(text[start:end+1]), &rec); err != nil {
		return nil, fmt.Errorf("decode recommendation: %w", err)
	}
	return &rec, nil
}
