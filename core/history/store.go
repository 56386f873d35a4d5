// Package history is a reference attempt-history store.
//
// Callers append one Attempt per applied decision, record its outcome once
// the retry finishes and ask for a Summary before the next decision. The
// engine never reads the store; it only sees the failure.History the caller
// passes in.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/adalundhe/rebound/core/failure"
)

// DefaultPath is the default database location, relative to the working
// directory.
const DefaultPath = ".rebound/history.db"

var (
	ErrNotFound = errors.New("history: attempt not found")
	ErrResolved = errors.New("history: attempt already resolved")
)

// Config configures a Store.
type Config struct {
	Path string `yaml:"path"`

	// SummaryCacheSize bounds the number of cached per-depth pattern
	// summaries.
	SummaryCacheSize int `yaml:"summary_cache_size"`

	// MinSamples is the number of resolved attempts a pattern needs before
	// an inflection point is estimated for it.
	MinSamples int `yaml:"min_samples"`

	// InflectionRate is the success rate below which retries are
	// considered to stop paying off.
	InflectionRate float64 `yaml:"inflection_rate"`

	// Retention is how long resolved attempts are kept by Prune. Zero keeps
	// them forever.
	Retention time.Duration `yaml:"retention"`
}

func DefaultConfig() Config {
	return Config{
		Path:             DefaultPath,
		SummaryCacheSize: 256,
		MinSamples:       10,
		InflectionRate:   0.5,
		Retention:        30 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.SummaryCacheSize <= 0 {
		c.SummaryCacheSize = def.SummaryCacheSize
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
	if c.InflectionRate <= 0 || c.InflectionRate > 1 {
		c.InflectionRate = def.InflectionRate
	}
	if c.Retention < 0 {
		c.Retention = 0
	}
	return c
}

// Store persists attempts in SQLite. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	path      string
	config    Config
	summaries *lru.Cache[int, map[string]failure.PatternStats]
	now       func() time.Time
}

// Open opens or creates the store at config.Path.
func Open(config Config) (*Store, error) {
	config = config.withDefaults()

	cache, err := lru.New[int, map[string]failure.PatternStats](config.SummaryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary cache: %w", err)
	}

	s := &Store{
		path:      config.Path,
		config:    config,
		summaries: cache,
		now:       time.Now,
	}
	if err := s.initSQLite(config.Path); err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS recovery_attempts (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	pattern_id TEXT NOT NULL,
	strategy TEXT NOT NULL,
	confidence REAL NOT NULL,
	attempt_count INTEGER NOT NULL,
	resource_class TEXT NOT NULL,
	decided_at INTEGER NOT NULL,
	outcome TEXT NOT NULL DEFAULT 'pending',
	resolved_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_attempts_task ON recovery_attempts(task_id);
CREATE INDEX IF NOT EXISTS idx_attempts_pattern ON recovery_attempts(pattern_id, attempt_count);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON recovery_attempts(outcome);
`

func (s *Store) initSQLite(path string) error {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; WAL keeps readers off the writer's back.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.db = db
	return nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a new attempt and returns it with its id and timestamp
// filled in. Outcome defaults to pending.
func (s *Store) Append(ctx context.Context, a failure.Attempt) (failure.Attempt, error) {
	if a.TaskID == "" {
		return a, fmt.Errorf("history: attempt needs a task id")
	}
	if a.PatternID == "" {
		return a, fmt.Errorf("history: attempt needs a pattern id")
	}
	if !a.Strategy.Valid() {
		return a, fmt.Errorf("history: unknown strategy %q", a.Strategy)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.DecidedAt.IsZero() {
		a.DecidedAt = s.now()
	}
	if a.Outcome == "" {
		a.Outcome = failure.OutcomePending
	}
	if a.ResourceClass == "" {
		a.ResourceClass = failure.DefaultResourceClass
	}

	var resolvedAt sql.NullInt64
	if a.Outcome != failure.OutcomePending {
		resolvedAt = sql.NullInt64{Int64: s.now().UnixNano(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recovery_attempts
		(id, task_id, pattern_id, strategy, confidence, attempt_count, resource_class,
		 decided_at, outcome, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.TaskID, a.PatternID, string(a.Strategy), a.Confidence, a.AttemptCount,
		a.ResourceClass, a.DecidedAt.UnixNano(), string(a.Outcome), resolvedAt,
	)
	if err != nil {
		return a, fmt.Errorf("failed to append attempt: %w", err)
	}

	if a.Outcome != failure.OutcomePending {
		s.summaries.Purge()
	}
	return a, nil
}

// RecordOutcome resolves a pending attempt. Recording the same outcome twice
// is a no-op; changing a resolved outcome returns ErrResolved.
func (s *Store) RecordOutcome(ctx context.Context, id string, outcome failure.Outcome) error {
	if outcome != failure.OutcomeSucceeded && outcome != failure.OutcomeFailed {
		return fmt.Errorf("history: cannot record outcome %q", outcome)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE recovery_attempts SET outcome = ?, resolved_at = ?
		WHERE id = ? AND outcome = 'pending'
	`, string(outcome), s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	if n == 1 {
		s.summaries.Purge()
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT outcome FROM recovery_attempts WHERE id = ?`, id).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to read attempt: %w", err)
	case failure.Outcome(current) == outcome:
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrResolved, id, current)
	}
}

// Get returns one attempt.
func (s *Store) Get(ctx context.Context, id string) (failure.Attempt, error) {
	row := s.db.QueryRowContext(ctx, selectAttempts+` WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return failure.Attempt{}, ErrNotFound
	}
	return a, err
}

// Attempts returns every attempt for a task in attempt order.
func (s *Store) Attempts(ctx context.Context, taskID string) ([]failure.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, selectAttempts+`
		WHERE task_id = ? ORDER BY attempt_count, decided_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []failure.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes resolved attempts older than the configured retention and
// returns the number removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.config.Retention == 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.config.Retention).UnixNano()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM recovery_attempts WHERE outcome != 'pending' AND decided_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.summaries.Purge()
	}
	return n, nil
}

const selectAttempts = `
	SELECT id, task_id, pattern_id, strategy, confidence, attempt_count,
	       resource_class, decided_at, outcome
	FROM recovery_attempts`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (failure.Attempt, error) {
	var (
		a         failure.Attempt
		strategy  string
		outcome   string
		decidedAt int64
	)
	err := row.Scan(&a.ID, &a.TaskID, &a.PatternID, &strategy, &a.Confidence,
		&a.AttemptCount, &a.ResourceClass, &decidedAt, &outcome)
	if err != nil {
		return a, err
	}
	a.Strategy = failure.Strategy(strategy)
	a.Outcome = failure.Outcome(outcome)
	a.DecidedAt = time.Unix(0, decidedAt).UTC()
	return a, nil
}
