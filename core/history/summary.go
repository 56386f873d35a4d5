package history

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/adalundhe/rebound/core/failure"
)

// depthStats is the resolved outcome count of one pattern at one attempt
// depth.
type depthStats struct {
	depth     int
	samples   int
	successes int
}

func (d depthStats) rate() float64 {
	if d.samples == 0 {
		return 0
	}
	return float64(d.successes) / float64(d.samples)
}

// Summary builds the history summary for a task about to be decided at the
// given attempt depth.
func (s *Store) Summary(ctx context.Context, taskID string, attempt int) (*failure.History, error) {
	patterns, err := s.PatternStats(ctx, attempt)
	if err != nil {
		return nil, err
	}
	terminated, err := s.terminated(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &failure.History{Patterns: patterns, Terminated: terminated}, nil
}

// PatternStats returns per-pattern statistics for the given attempt depth.
// Results are cached until the next outcome is recorded.
func (s *Store) PatternStats(ctx context.Context, attempt int) (map[string]failure.PatternStats, error) {
	if attempt < 0 {
		attempt = 0
	}
	if cached, ok := s.summaries.Get(attempt); ok {
		return copyStats(cached), nil
	}

	byPattern, err := s.depthStats(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]failure.PatternStats, len(byPattern))
	for id, depths := range byPattern {
		out[id] = s.summarize(depths, attempt)
	}
	s.summaries.Add(attempt, out)
	return copyStats(out), nil
}

func (s *Store) depthStats(ctx context.Context) (map[string][]depthStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_id, attempt_count,
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'succeeded' THEN 1 ELSE 0 END)
		FROM recovery_attempts
		WHERE outcome != 'pending'
		GROUP BY pattern_id, attempt_count
		ORDER BY pattern_id, attempt_count
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]depthStats)
	for rows.Next() {
		var (
			id string
			d  depthStats
		)
		if err := rows.Scan(&id, &d.depth, &d.samples, &d.successes); err != nil {
			return nil, fmt.Errorf("failed to scan pattern stats: %w", err)
		}
		out[id] = append(out[id], d)
	}
	return out, rows.Err()
}

// summarize reports the success rate at attempt, falling back to the
// sample-weighted rate over all depths when that depth has no data.
func (s *Store) summarize(depths []depthStats, attempt int) failure.PatternStats {
	var (
		rates   = make([]float64, len(depths))
		weights = make([]float64, len(depths))
		xs      = make([]float64, len(depths))
		total   int
	)
	for i, d := range depths {
		rates[i] = d.rate()
		weights[i] = float64(d.samples)
		xs[i] = float64(d.depth)
		total += d.samples
	}

	stats := failure.PatternStats{
		Samples:     total,
		SuccessRate: stat.Mean(rates, weights),
	}
	for _, d := range depths {
		if d.depth == attempt {
			stats.Samples = d.samples
			stats.SuccessRate = d.rate()
			break
		}
	}

	if total >= s.config.MinSamples && len(depths) >= 2 {
		stats.InflectionAttempt = inflection(xs, rates, weights, s.config.InflectionRate)
	}
	return stats
}

// inflection fits a weighted line through success rate by depth and returns
// the depth at which the fitted rate crosses threshold. Zero means success
// does not drop with depth.
func inflection(depths, rates, weights []float64, threshold float64) int {
	alpha, beta := stat.LinearRegression(depths, rates, weights, false)
	if math.IsNaN(beta) || beta > -1e-9 {
		return 0
	}
	crossing := (threshold - alpha) / beta
	if math.IsNaN(crossing) || math.IsInf(crossing, 0) {
		return 0
	}
	if crossing < 1 {
		return 1
	}
	if crossing > math.MaxInt32 {
		return 0
	}
	return int(math.Floor(crossing + 1e-6))
}

// terminated lists patterns under which the task already received a
// terminal decision.
func (s *Store) terminated(ctx context.Context, taskID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT pattern_id FROM recovery_attempts
		WHERE task_id = ? AND strategy IN (?, ?, ?)
	`, taskID,
		string(failure.StrategyEscalate),
		string(failure.StrategySkip),
		string(failure.StrategyPermanentlyFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query terminal attempts: %w", err)
	}
	defer rows.Close()

	var out map[string]bool
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan terminal attempt: %w", err)
		}
		if out == nil {
			out = make(map[string]bool)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func copyStats(in map[string]failure.PatternStats) map[string]failure.PatternStats {
	out := make(map[string]failure.PatternStats, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
