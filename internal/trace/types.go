package trace

import "time"

// Call statuses. Stores report these in varying shapes; everything is
// normalized to success/error at ingestion.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolCallRecord is one tool invocation made by the agent under test.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Input     string          `json:"input,omitempty"`
	Output    string          `json:"output,omitempty"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
}

// GenerationRecord is one LLM step inside the agent's run.
type GenerationRecord struct {
	ID        string    `json:"id"`
	Model     string    `json:"model,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Bundle is the ordered tool-call and generation history for one session.
// The unit the failure-pattern detector consumes.
type Bundle struct {
	SessionID   string             `json:"session_id"`
	TraceIDs    []string           `json:"trace_ids,omitempty"`
	ToolCalls   []ToolCallRecord   `json:"tool_calls"`
	Generations []GenerationRecord `json:"generations,omitempty"`

	// Unavailable marks a bundle that is empty because the store could not
	// be reached, not because the session made no calls. Consumers must
	// report insufficient evidence instead of a clean bill of health.
	Unavailable       bool   `json:"unavailable,omitempty"`
	UnavailableReason string `json:"unavailable_reason,omitempty"`
}

// Empty reports whether the bundle carries no evidence at all.
func (b Bundle) Empty() bool {
	return len(b.ToolCalls) == 0 && len(b.Generations) == 0
}

// CallsTo returns the tool calls whose tool name matches exactly, in order.
func (b Bundle) CallsTo(tool string) []ToolCallRecord {
	var out []ToolCallRecord
	for _, c := range b.ToolCalls {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}
