package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	"github.com/dentix-ortho/agent-oracle/internal/diagnosis"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/internal/simulator"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithDB(mock), mock
}

func TestSaveScenarioUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO scenarios").
		WithArgs("tc-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tc := scenario.TestCase{
		ID:               "tc-1",
		Persona:          scenario.Persona{Name: "Dana"},
		Goals:            []scenario.Goal{{ID: "g", Type: scenario.GoalBookingConfirmed, Required: true}},
		InitialUtterance: "hi",
	}
	require.NoError(t, s.SaveScenario(context.Background(), tc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScenarioNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT version, definition FROM scenarios").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"version", "definition"}))

	_, _, err := s.GetScenario(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetScenarioRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)

	definition := []byte(`{
		"id": "tc-1",
		"persona": {"name": "Dana", "inventory": {"parent_phone": "2155551234"}},
		"goals": [{"id": "g", "type": "booking_confirmed", "required": true}],
		"initial_utterance": "hi"
	}`)
	mock.ExpectQuery("SELECT version, definition FROM scenarios").
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows([]string{"version", "definition"}).AddRow(3, definition))

	tc, version, err := s.GetScenario(context.Background(), "tc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, 3, tc.Version)
	assert.Equal(t, "2155551234", tc.Persona.Inventory.ParentPhone)
	require.Len(t, tc.Goals, 1)
	assert.Equal(t, scenario.GoalBookingConfirmed, tc.Goals[0].Type)
}

func TestInsertRunPersistsTranscript(t *testing.T) {
	s, mock := newMockStore(t)

	v := &simulator.Verdict{
		TestCaseID:       "tc-1",
		SessionID:        "sess-1",
		Pass:             true,
		TerminalCategory: classifier.CategoryBookingConfirmed,
		Turns:            1,
		Duration:         1500 * time.Millisecond,
		Transcript: []scenario.TurnView{
			{Index: 1, Role: "user", Content: "hi"},
			{Index: 2, Role: "assistant", Content: "booked!", Category: classifier.CategoryBookingConfirmed, BookingConfirmed: true},
		},
	}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(pgxmock.AnyArg(), "tc-1", "sess-1", true, "", "",
			"booking_confirmed", 1, 0, int64(1500), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO transcript_turns").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 1, "user", "hi", "", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO transcript_turns").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 2, "assistant", "booked!", "booking_confirmed", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	runID, err := s.InsertRun(context.Background(), "tc-1", v)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, runID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT scenario_id, session_id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"scenario_id"}))

	_, err := s.GetRun(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertFindings(t *testing.T) {
	s, mock := newMockStore(t)
	runID := uuid.New()

	mock.ExpectExec("INSERT INTO findings").
		WithArgs(pgxmock.AnyArg(), runID, "missing_auth_token", "critical", 0.95,
			"booking call failed with empty token", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertFindings(context.Background(), runID, []diagnosis.Finding{
		{
			Code:       diagnosis.CodeMissingAuthToken,
			Severity:   scenario.SeverityCritical,
			Confidence: 0.95,
			Evidence:   "booking call failed with empty token",
		},
	}, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListScenarioIDs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM scenarios").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("alpha").AddRow("beta"))

	ids, err := s.ListScenarioIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}
