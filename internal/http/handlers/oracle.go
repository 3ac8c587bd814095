package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dentix-ortho/agent-oracle/internal/diagnosis"
	"github.com/dentix-ortho/agent-oracle/internal/runner"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/internal/store"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// ScenarioStore is the persistence surface for test-case definitions.
type ScenarioStore interface {
	SaveScenario(ctx context.Context, tc scenario.TestCase) error
	GetScenario(ctx context.Context, id string) (scenario.TestCase, int, error)
	ListScenarioIDs(ctx context.Context) ([]string, error)
}

// RunReader loads persisted run records.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*store.RunRecord, error)
}

// RunLauncher executes a selected scenario set.
type RunLauncher interface {
	Execute(ctx context.Context, cases []scenario.TestCase) *runner.Report
}

// OracleHandler serves the admin API: scenario management, run execution,
// and after-the-fact session diagnosis.
type OracleHandler struct {
	scenarios ScenarioStore
	runs      RunReader
	launcher  RunLauncher
	fetcher   runner.TraceFetcher
	synth     *diagnosis.Synthesizer
	logger    *logging.Logger
}

// NewOracleHandler wires the admin API. scenarios and runs may be nil when
// the service runs without a database; scenario selection then falls back to
// the builtin set.
func NewOracleHandler(scenarios ScenarioStore, runs RunReader, launcher RunLauncher, fetcher runner.TraceFetcher, synth *diagnosis.Synthesizer, logger *logging.Logger) *OracleHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OracleHandler{
		scenarios: scenarios,
		runs:      runs,
		launcher:  launcher,
		fetcher:   fetcher,
		synth:     synth,
		logger:    logger,
	}
}

// CreateScenario stores one validated test case definition.
func (h *OracleHandler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	if h.scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, "scenario store not configured")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	tc, err := scenario.Parse(body, "request")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.scenarios.SaveScenario(r.Context(), *tc); err != nil {
		h.logger.Error("scenario save failed", "scenario", tc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "scenario save failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": tc.ID})
}

// ListScenarios returns the stored scenario ids.
func (h *OracleHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	ids, err := h.scenarioIDs(r.Context())
	if err != nil {
		h.logger.Error("scenario list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scenario list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": ids})
}

// GetScenario returns one stored test case.
func (h *OracleHandler) GetScenario(w http.ResponseWriter, r *http.Request) {
	if h.scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, "scenario store not configured")
		return
	}
	id := chi.URLParam(r, "id")
	tc, _, err := h.scenarios.GetScenario(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scenario not found")
		return
	}
	if err != nil {
		h.logger.Error("scenario load failed", "scenario", id, "error", err)
		writeError(w, http.StatusInternalServerError, "scenario load failed")
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

type executeRequest struct {
	Scenarios string `json:"scenarios"`
}

// ExecuteRuns runs the selected scenarios and returns the aggregate report.
func (h *OracleHandler) ExecuteRuns(w http.ResponseWriter, r *http.Request) {
	if h.launcher == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not configured")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Scenarios == "" {
		req.Scenarios = "all"
	}

	available, err := h.availableCases(r.Context())
	if err != nil {
		h.logger.Error("scenario load failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scenario load failed")
		return
	}
	selected := scenario.Select(available, req.Scenarios)
	if len(selected) == 0 {
		writeError(w, http.StatusBadRequest, "no scenarios match selector "+req.Scenarios)
		return
	}

	report := h.launcher.Execute(r.Context(), selected)
	writeJSON(w, http.StatusOK, report)
}

// GetRun returns one persisted run record.
func (h *OracleHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	rec, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("run load failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "run load failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DiagnoseSession fetches a session's trace and synthesizes a root-cause
// report on demand. Findings are derived, never served from storage.
func (h *OracleHandler) DiagnoseSession(w http.ResponseWriter, r *http.Request) {
	if h.fetcher == nil || h.synth == nil {
		writeError(w, http.StatusServiceUnavailable, "diagnosis not configured")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	bundle := h.fetcher.FetchBundle(r.Context(), sessionID)
	findings := diagnosis.Detect(r.Context(), bundle)
	d := h.synth.Synthesize(r.Context(), bundle, findings)
	writeJSON(w, http.StatusOK, d)
}

func (h *OracleHandler) scenarioIDs(ctx context.Context) ([]string, error) {
	if h.scenarios == nil {
		var ids []string
		for _, tc := range scenario.Builtin() {
			ids = append(ids, tc.ID)
		}
		return ids, nil
	}
	return h.scenarios.ListScenarioIDs(ctx)
}

func (h *OracleHandler) availableCases(ctx context.Context) ([]scenario.TestCase, error) {
	if h.scenarios == nil {
		return scenario.Builtin(), nil
	}
	ids, err := h.scenarios.ListScenarioIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return scenario.Builtin(), nil
	}
	var cases []scenario.TestCase
	for _, id := range ids {
		tc, _, err := h.scenarios.GetScenario(ctx, id)
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, nil
}
