package diagnosis

import (
	"time"

	"github.com/dentix-ortho/agent-oracle/internal/scenario"
)

// Code identifies one catalog failure pattern.
type Code string

const (
	CodeMissingAuthToken              Code = "missing_auth_token"
	CodeUpstreamInfrastructureFailure Code = "upstream_infrastructure_failure"
	CodeConcurrentBookingRace         Code = "concurrent_booking_race"
	CodeDuplicateResourceCreation     Code = "duplicate_resource_creation"
	CodeSlotFreshnessDecay            Code = "slot_freshness_decay"
	CodePhantomUnavailability         Code = "phantom_unavailability"
)

// CatalogEntry is the static description of one failure pattern. Priority
// breaks severity/confidence ties when selecting the primary root cause;
// lower is more urgent.
type CatalogEntry struct {
	Code              Code
	Severity          scenario.Severity
	Priority          int
	Remediation       string
	VerificationSteps []string
	NeedsVerification bool
}

var catalog = []CatalogEntry{
	{
		Code:     CodeMissingAuthToken,
		Severity: scenario.SeverityCritical,
		Priority: 1,
		Remediation: "Inject the practice-management auth token into the booking tool's credentials " +
			"before the agent is allowed to take live traffic; an empty token fails every booking.",
		VerificationSteps: []string{
			"Inspect the booking tool's request payload for the token field.",
			"Confirm the credential store entry for the booking integration is populated.",
		},
	},
	{
		Code:     CodeUpstreamInfrastructureFailure,
		Severity: scenario.SeverityHigh,
		Priority: 2,
		Remediation: "Check the upstream service health and gateway logs for the window of the failure; " +
			"retry policy alone cannot mask a hard 5xx from the scheduling backend.",
		VerificationSteps: []string{
			"Correlate the error timestamp with upstream deploy and incident timelines.",
			"Replay the failing call against the upstream once it reports healthy.",
		},
	},
	{
		Code:     CodeConcurrentBookingRace,
		Severity: scenario.SeverityHigh,
		Priority: 3,
		Remediation: "Serialize booking calls per session and add an idempotency key so near-simultaneous " +
			"submissions cannot double-book or cancel each other out.",
		VerificationSteps: []string{
			"Compare the two booking payloads for identical slot targets.",
			"Check the schedule of record for duplicate or missing entries at the slot time.",
		},
	},
	{
		Code:     CodeDuplicateResourceCreation,
		Severity: scenario.SeverityMedium,
		Priority: 4,
		Remediation: "Deduplicate create calls on a per-session resource key; the agent should look up " +
			"before creating when a prior turn already created the resource.",
		VerificationSteps: []string{
			"List the created resources in the system of record for this session.",
			"Remove or merge the surplus records.",
		},
	},
	{
		Code:     CodeSlotFreshnessDecay,
		Severity: scenario.SeverityMedium,
		Priority: 5,
		Remediation: "Re-fetch availability immediately before booking, or shorten the conversation path " +
			"between offering a slot and committing it; offered slots go stale.",
		VerificationSteps: []string{
			"Measure the lookup-to-booking gap across recent sessions.",
			"Check whether the target slot was taken by another caller inside the gap.",
		},
	},
	{
		Code:     CodePhantomUnavailability,
		Severity: scenario.SeverityMedium,
		Priority: 6,
		Remediation: "Audit the booking tool's slot-matching logic: the store reported availability that the " +
			"booking call then denied. Verify against the schedule of record before trusting the denial.",
		VerificationSteps: []string{
			"Query the schedule of record for the slot at booking time.",
			"If the slot is genuinely free, capture the booking tool's raw denial for the integration owner.",
		},
		NeedsVerification: true,
	},
}

// Catalog returns the full pattern catalog in priority order.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out
}

// entryFor looks up a catalog entry by code.
func entryFor(code Code) (CatalogEntry, bool) {
	for _, e := range catalog {
		if e.Code == code {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// Finding is one fired failure pattern with its run-specific evidence.
type Finding struct {
	Code              Code              `json:"code"`
	Severity          scenario.Severity `json:"severity"`
	Confidence        float64           `json:"confidence"`
	Evidence          string            `json:"evidence"`
	NeedsVerification bool              `json:"needs_verification,omitempty"`

	// SlotTime is the booking target for patterns that verification can
	// check against the system of record. Zero when unknown.
	SlotTime time.Time `json:"slot_time,omitempty"`
}
