package diagnosis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/internal/trace"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// SlotVerifier is the system-of-record check used to confirm or refute
// patterns flagged as needing external verification.
type SlotVerifier interface {
	SlotOccupied(ctx context.Context, slot time.Time) (occupied bool, holder string, err error)
}

// Diagnosis is the synthesized root-cause report for one session.
type Diagnosis struct {
	SessionID string `json:"session_id"`

	// InsufficientEvidence is set when the trace store was unreachable or
	// the session produced no trace at all. No verdict is fabricated.
	InsufficientEvidence bool   `json:"insufficient_evidence,omitempty"`
	EvidenceNote         string `json:"evidence_note,omitempty"`

	Findings          []Finding `json:"findings"`
	Primary           *Finding  `json:"primary,omitempty"`
	Remediation       string    `json:"remediation,omitempty"`
	VerificationSteps []string  `json:"verification_steps,omitempty"`

	// Unverified marks a primary cause whose external verification could
	// not be completed; its confidence is reported as-is, never upgraded.
	Unverified bool `json:"unverified,omitempty"`
}

// Synthesizer ranks fired patterns and runs external verification where the
// catalog demands it.
type Synthesizer struct {
	verifier      SlotVerifier
	verifyTimeout time.Duration
	logger        *logging.Logger
}

// NewSynthesizer builds a synthesizer. The verifier may be nil; verification
// then always degrades to unverified.
func NewSynthesizer(verifier SlotVerifier, verifyTimeout time.Duration, logger *logging.Logger) *Synthesizer {
	if verifyTimeout <= 0 {
		verifyTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Synthesizer{verifier: verifier, verifyTimeout: verifyTimeout, logger: logger}
}

var severityRank = map[scenario.Severity]int{
	scenario.SeverityCritical: 4,
	scenario.SeverityHigh:     3,
	scenario.SeverityMedium:   2,
	scenario.SeverityLow:      1,
}

// Synthesize selects the primary root cause from the fired patterns and
// attaches the catalog's remediation template. Safe to call repeatedly over
// the same inputs.
func (s *Synthesizer) Synthesize(ctx context.Context, bundle trace.Bundle, findings []Finding) Diagnosis {
	d := Diagnosis{SessionID: bundle.SessionID}

	if bundle.Unavailable {
		d.InsufficientEvidence = true
		d.EvidenceNote = "insufficient evidence: trace store unavailable: " + bundle.UnavailableReason
		return d
	}
	if len(findings) == 0 {
		if bundle.Empty() {
			d.InsufficientEvidence = true
			d.EvidenceNote = "insufficient evidence: session produced no trace records"
		}
		return d
	}

	ranked := make([]Finding, len(findings))
	copy(ranked, findings)
	for i := range ranked {
		if ranked[i].NeedsVerification {
			ranked[i] = s.verify(ctx, ranked[i], &d)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if severityRank[ranked[i].Severity] != severityRank[ranked[j].Severity] {
			return severityRank[ranked[i].Severity] > severityRank[ranked[j].Severity]
		}
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return catalogPriority(ranked[i].Code) < catalogPriority(ranked[j].Code)
	})

	d.Findings = ranked
	d.Primary = &ranked[0]
	if entry, ok := entryFor(ranked[0].Code); ok {
		d.Remediation = entry.Remediation
		d.VerificationSteps = entry.VerificationSteps
	}
	return d
}

// verify runs the point-in-time system-of-record check for one finding.
// Confidence is upgraded only on a confirming fact; any failure to check
// leaves the finding unverified at its original confidence.
func (s *Synthesizer) verify(ctx context.Context, f Finding, d *Diagnosis) Finding {
	if s.verifier == nil || f.SlotTime.IsZero() {
		d.Unverified = true
		f.Evidence += " (unverified: no system-of-record check available)"
		return f
	}

	ctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	occupied, holder, err := s.verifier.SlotOccupied(ctx, f.SlotTime)
	if err != nil {
		s.logger.Warn("system-of-record verification failed",
			"session_id", d.SessionID,
			"code", string(f.Code),
			"error", err,
		)
		d.Unverified = true
		f.Evidence += " (unverified: system of record unreachable)"
		return f
	}

	if occupied {
		f.Confidence = minFloat(f.Confidence+0.35, 0.99)
		f.Evidence += fmt.Sprintf("; verified: slot %s is now held by %q",
			f.SlotTime.Format(time.RFC3339), holder)
	} else {
		f.Evidence += fmt.Sprintf("; verified: slot %s is still open in the schedule of record",
			f.SlotTime.Format(time.RFC3339))
	}
	f.NeedsVerification = false
	return f
}

func catalogPriority(code Code) int {
	if entry, ok := entryFor(code); ok {
		return entry.Priority
	}
	return len(catalog) + 1
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
