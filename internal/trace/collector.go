package trace

import (
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// Collector accumulates the live tool-call history for one session. Tool
// invocations are sequential per session, so no locking is needed; each run
// owns its own collector.
type Collector struct {
	bundle Bundle
	logger *logging.Logger
}

// NewCollector starts an empty bundle for one session.
func NewCollector(sessionID string, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Collector{
		bundle: Bundle{SessionID: sessionID},
		logger: logger,
	}
}

// AddTrace records the id of a store trace contributing to the bundle.
func (c *Collector) AddTrace(id string) {
	c.bundle.TraceIDs = append(c.bundle.TraceIDs, id)
}

// Append records one tool invocation. Timestamps must be non-decreasing in
// invocation order; a record arriving with an earlier clock is clamped to
// the previous record's start time so the invariant holds for consumers.
func (c *Collector) Append(rec ToolCallRecord) {
	if n := len(c.bundle.ToolCalls); n > 0 {
		prev := c.bundle.ToolCalls[n-1]
		if rec.StartTime.Before(prev.StartTime) {
			c.logger.Warn("tool call timestamp regressed, clamping",
				"session_id", c.bundle.SessionID,
				"tool", rec.Tool,
			)
			rec.StartTime = prev.StartTime
		}
	}
	c.bundle.ToolCalls = append(c.bundle.ToolCalls, rec)
}

// AppendGeneration records one LLM step.
func (c *Collector) AppendGeneration(rec GenerationRecord) {
	c.bundle.Generations = append(c.bundle.Generations, rec)
}

// Bundle returns a copy of the collected history.
func (c *Collector) Bundle() Bundle {
	out := c.bundle
	out.ToolCalls = append([]ToolCallRecord(nil), c.bundle.ToolCalls...)
	out.Generations = append([]GenerationRecord(nil), c.bundle.Generations...)
	return out
}
