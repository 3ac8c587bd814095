package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentix-ortho/agent-oracle/internal/diagnosis"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/internal/simulator"
	"github.com/dentix-ortho/agent-oracle/internal/trace"
)

// ErrNotFound marks a lookup that matched no row.
var ErrNotFound = errors.New("store: not found")

// DB is the query surface the store needs. Satisfied by *pgxpool.Pool and by
// pgxmock in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists scenarios, run verdicts, transcripts, tool calls, and
// diagnosis findings.
type Store struct {
	db DB
}

// New creates a store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &Store{db: pool}
}

// NewWithDB allows injecting mocks for tests.
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

// SaveScenario upserts a test case. An edit to an existing id bumps the
// stored version; the definition itself is immutable per version.
func (s *Store) SaveScenario(ctx context.Context, tc scenario.TestCase) error {
	definition, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("store: encode scenario: %w", err)
	}
	query := `
		INSERT INTO scenarios (id, version, definition)
		VALUES ($1, 1, $2)
		ON CONFLICT (id) DO UPDATE
		SET version = scenarios.version + 1,
		    definition = EXCLUDED.definition,
		    updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, tc.ID, definition); err != nil {
		return fmt.Errorf("store: save scenario: %w", err)
	}
	return nil
}

// GetScenario loads one test case by id.
func (s *Store) GetScenario(ctx context.Context, id string) (scenario.TestCase, int, error) {
	query := `SELECT version, definition FROM scenarios WHERE id = $1`

	var version int
	var definition []byte
	err := s.db.QueryRow(ctx, query, id).Scan(&version, &definition)
	if errors.Is(err, pgx.ErrNoRows) {
		return scenario.TestCase{}, 0, fmt.Errorf("%w: scenario %q", ErrNotFound, id)
	}
	if err != nil {
		return scenario.TestCase{}, 0, fmt.Errorf("store: load scenario: %w", err)
	}

	var tc scenario.TestCase
	if err := json.Unmarshal(definition, &tc); err != nil {
		return scenario.TestCase{}, 0, fmt.Errorf("store: decode scenario: %w", err)
	}
	tc.Version = version
	return tc, version, nil
}

// ListScenarioIDs returns the stored scenario ids in lexical order.
func (s *Store) ListScenarioIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list scenarios: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan scenario id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RunRecord is one persisted run row.
type RunRecord struct {
	ID               uuid.UUID          `json:"id"`
	ScenarioID       string             `json:"scenario_id"`
	SessionID        string             `json:"session_id"`
	Pass             bool               `json:"pass"`
	Failure          string             `json:"failure,omitempty"`
	Reason           string             `json:"reason,omitempty"`
	TerminalCategory string             `json:"terminal_category,omitempty"`
	Turns            int                `json:"turns"`
	UnhandledTurns   int                `json:"unhandled_turns"`
	Duration         time.Duration      `json:"duration"`
	Verdict          *simulator.Verdict `json:"verdict,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// InsertRun persists one verdict plus its transcript and returns the run id.
func (s *Store) InsertRun(ctx context.Context, scenarioID string, v *simulator.Verdict) (uuid.UUID, error) {
	verdict, err := json.Marshal(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: encode verdict: %w", err)
	}

	runID := uuid.New()
	query := `
		INSERT INTO runs (id, scenario_id, session_id, pass, failure, reason,
		                  terminal_category, turns, unhandled_turns, duration_ms, verdict)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := s.db.Exec(ctx, query,
		runID,
		scenarioID,
		v.SessionID,
		v.Pass,
		string(v.Failure),
		v.Reason,
		string(v.TerminalCategory),
		v.Turns,
		v.UnhandledTurns,
		v.Duration.Milliseconds(),
		verdict,
	); err != nil {
		return uuid.Nil, fmt.Errorf("store: insert run: %w", err)
	}

	turnQuery := `
		INSERT INTO transcript_turns (id, run_id, idx, role, content, category, booking_confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, turn := range v.Transcript {
		if _, err := s.db.Exec(ctx, turnQuery,
			uuid.New(),
			runID,
			turn.Index,
			turn.Role,
			turn.Content,
			string(turn.Category),
			turn.BookingConfirmed,
		); err != nil {
			return uuid.Nil, fmt.Errorf("store: insert transcript turn %d: %w", turn.Index, err)
		}
	}
	return runID, nil
}

// GetRun loads one run row.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	query := `
		SELECT scenario_id, session_id, pass, failure, reason, terminal_category,
		       turns, unhandled_turns, duration_ms, verdict, created_at
		FROM runs WHERE id = $1
	`
	var rec RunRecord
	var durationMS int64
	var verdict []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&rec.ScenarioID,
		&rec.SessionID,
		&rec.Pass,
		&rec.Failure,
		&rec.Reason,
		&rec.TerminalCategory,
		&rec.Turns,
		&rec.UnhandledTurns,
		&durationMS,
		&verdict,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load run: %w", err)
	}

	rec.ID = id
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if len(verdict) > 0 {
		var v simulator.Verdict
		if err := json.Unmarshal(verdict, &v); err != nil {
			return nil, fmt.Errorf("store: decode verdict: %w", err)
		}
		rec.Verdict = &v
	}
	return &rec, nil
}

// InsertToolCalls persists the captured trace bundle for one run.
func (s *Store) InsertToolCalls(ctx context.Context, runID uuid.UUID, bundle trace.Bundle) error {
	query := `
		INSERT INTO tool_calls (id, run_id, tool, input, output, status, error, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, call := range bundle.ToolCalls {
		if _, err := s.db.Exec(ctx, query,
			uuid.New(),
			runID,
			call.Tool,
			call.Input,
			call.Output,
			call.Status,
			call.Error,
			call.StartTime,
			call.EndTime,
		); err != nil {
			return fmt.Errorf("store: insert tool call: %w", err)
		}
	}
	return nil
}

// InsertFindings persists the detector output for one run. Findings are
// derived data; rerunning detection replaces them upstream, never here.
func (s *Store) InsertFindings(ctx context.Context, runID uuid.UUID, findings []diagnosis.Finding, unverified bool) error {
	query := `
		INSERT INTO findings (id, run_id, code, severity, confidence, evidence, unverified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, f := range findings {
		if _, err := s.db.Exec(ctx, query,
			uuid.New(),
			runID,
			string(f.Code),
			string(f.Severity),
			f.Confidence,
			f.Evidence,
			unverified && f.NeedsVerification,
		); err != nil {
			return fmt.Errorf("store: insert finding: %w", err)
		}
	}
	return nil
}
