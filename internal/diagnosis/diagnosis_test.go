package diagnosis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentix-ortho/agent-oracle/internal/trace"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func lookupCall(at time.Time, output string) trace.ToolCallRecord {
	return trace.ToolCallRecord{
		Tool:      "chord_ortho_patient",
		Output:    output,
		Status:    trace.StatusSuccess,
		StartTime: at,
	}
}

func bookingCall(at time.Time, input, errMsg string) trace.ToolCallRecord {
	status := trace.StatusSuccess
	if errMsg != "" {
		status = trace.StatusError
	}
	return trace.ToolCallRecord{
		Tool:      "schedule_appointment_ortho",
		Input:     input,
		Status:    status,
		Error:     errMsg,
		StartTime: at,
	}
}

func findByCode(findings []Finding, code Code) *Finding {
	for i := range findings {
		if findings[i].Code == code {
			return &findings[i]
		}
	}
	return nil
}

func TestSlotFreshnessBaseConfidenceInsideEscalationWindow(t *testing.T) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		lookupCall(t0, "3 open slots"),
		bookingCall(t0.Add(45*time.Second), `{"token":"tok"}`, "slot no longer available"),
	}}

	f := findByCode(Detect(context.Background(), b), CodeSlotFreshnessDecay)
	require.NotNil(t, f)
	assert.InDelta(t, 0.6, f.Confidence, 0.001, "45s gap stays at base confidence")
	assert.Contains(t, f.Evidence, "45s")
}

func TestSlotFreshnessEscalatesBeyondThreshold(t *testing.T) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		lookupCall(t0, "3 open slots"),
		bookingCall(t0.Add(180*time.Second), `{"token":"tok"}`, "slot no longer available"),
	}}

	f := findByCode(Detect(context.Background(), b), CodeSlotFreshnessDecay)
	require.NotNil(t, f)
	assert.InDelta(t, 0.9, f.Confidence, 0.001)
}

func TestSlotFreshnessSilentUnderBaseThreshold(t *testing.T) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		lookupCall(t0, "3 open slots"),
		bookingCall(t0.Add(20*time.Second), `{"token":"tok"}`, ""),
	}}
	assert.Nil(t, findByCode(Detect(context.Background(), b), CodeSlotFreshnessDecay))
}

func TestConcurrentBookingRaceEvidenceCarriesGap(t *testing.T) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		bookingCall(t0, `{"token":"tok","slot":"a"}`, ""),
		bookingCall(t0.Add(200*time.Millisecond), `{"token":"tok","slot":"b"}`, ""),
	}}

	f := findByCode(Detect(context.Background(), b), CodeConcurrentBookingRace)
	require.NotNil(t, f)
	assert.Contains(t, f.Evidence, "200")
}

func TestBookingRaceIgnoresDistinctTools(t *testing.T) {
	// A booking call landing right after a different booking tool is normal
	// orchestration, not a serialization failure.
	other := trace.ToolCallRecord{
		Tool:      "book_consultation_slot",
		Input:     `{"token":"tok","slot":"a"}`,
		Status:    trace.StatusSuccess,
		StartTime: t0,
	}
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		other,
		bookingCall(t0.Add(100*time.Millisecond), `{"token":"tok","slot":"b"}`, ""),
	}}
	assert.Nil(t, findByCode(Detect(context.Background(), b), CodeConcurrentBookingRace))
}

func TestMissingAuthTokenFires(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty token", input: `{"token":"","patient":"Mia"}`},
		{name: "absent token", input: `{"patient":"Mia"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
				bookingCall(t0, tt.input, "unauthorized"),
			}}
			f := findByCode(Detect(context.Background(), b), CodeMissingAuthToken)
			require.NotNil(t, f)
			assert.Contains(t, f.Evidence, "unauthorized")
		})
	}
}

func TestMissingAuthTokenSilentOnSuccessfulCall(t *testing.T) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		bookingCall(t0, `{"patient":"Mia"}`, ""),
	}}
	assert.Nil(t, findByCode(Detect(context.Background(), b), CodeMissingAuthToken))
}

func TestUpstreamInfrastructureFailure(t *testing.T) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		bookingCall(t0, `{"token":"tok"}`, "502 Bad Gateway"),
	}}
	f := findByCode(Detect(context.Background(), b), CodeUpstreamInfrastructureFailure)
	require.NotNil(t, f)
	assert.Contains(t, f.Evidence, "502")
}

func TestDuplicateResourceCreation(t *testing.T) {
	payload := `{"token":"tok","patient":"Mia","slot":"2026-03-01 09:30"}`
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		bookingCall(t0, payload, ""),
		bookingCall(t0.Add(10*time.Second), payload, ""),
	}}
	f := findByCode(Detect(context.Background(), b), CodeDuplicateResourceCreation)
	require.NotNil(t, f)
	assert.Contains(t, f.Evidence, "2 create calls")
}

func TestDetectIsIdempotent(t *testing.T) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		lookupCall(t0, "3 open slots"),
		bookingCall(t0.Add(45*time.Second), `{"slot":"x"}`, "slot no longer available"),
		bookingCall(t0.Add(45*time.Second+200*time.Millisecond), `{"slot":"x"}`, "502 Bad Gateway"),
	}}
	assert.Equal(t, Detect(context.Background(), b), Detect(context.Background(), b))
}

func TestDetectReturnsNothingForUnavailableBundle(t *testing.T) {
	assert.Nil(t, Detect(context.Background(), trace.Bundle{Unavailable: true}))
	assert.Nil(t, Detect(context.Background(), trace.Bundle{}))
}

type fakeVerifier struct {
	occupied bool
	holder   string
	err      error
	calls    int
}

func (v *fakeVerifier) SlotOccupied(_ context.Context, _ time.Time) (bool, string, error) {
	v.calls++
	return v.occupied, v.holder, v.err
}

func TestSynthesizerPrefersHighestSeverity(t *testing.T) {
	// Scenario: a failed booking with an empty token co-fires with the
	// lower-severity freshness pattern; the token is the primary cause.
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		lookupCall(t0, "3 open slots"),
		bookingCall(t0.Add(45*time.Second), `{"token":""}`, "unauthorized"),
	}}
	findings := Detect(context.Background(), b)
	require.NotNil(t, findByCode(findings, CodeMissingAuthToken))
	require.NotNil(t, findByCode(findings, CodeSlotFreshnessDecay))

	d := NewSynthesizer(nil, 0, nil).Synthesize(context.Background(), b, findings)
	require.NotNil(t, d.Primary)
	assert.Equal(t, CodeMissingAuthToken, d.Primary.Code)
	assert.NotEmpty(t, d.Remediation)
	assert.NotEmpty(t, d.VerificationSteps)
}

func TestSynthesizerInsufficientEvidence(t *testing.T) {
	d := NewSynthesizer(nil, 0, nil).Synthesize(context.Background(),
		trace.Bundle{SessionID: "s", Unavailable: true, UnavailableReason: "store down"}, nil)
	assert.True(t, d.InsufficientEvidence)
	assert.Contains(t, d.EvidenceNote, "insufficient evidence")
	assert.Nil(t, d.Primary)
}

func phantomBundle() (trace.Bundle, []Finding) {
	b := trace.Bundle{SessionID: "s", ToolCalls: []trace.ToolCallRecord{
		lookupCall(t0, "3 open slots"),
		bookingCall(t0.Add(10*time.Second),
			`{"token":"tok","start_time":"2026-03-01 09:30"}`, "slot no longer available"),
	}}
	return b, Detect(context.Background(), b)
}

func TestPhantomUnavailabilityVerificationUpgradesConfidence(t *testing.T) {
	b, findings := phantomBundle()
	phantom := findByCode(findings, CodePhantomUnavailability)
	require.NotNil(t, phantom)
	require.True(t, phantom.NeedsVerification)
	base := phantom.Confidence

	verifier := &fakeVerifier{occupied: true, holder: "Avery Chen"}
	d := NewSynthesizer(verifier, time.Second, nil).Synthesize(context.Background(), b, findings)

	verified := findByCode(d.Findings, CodePhantomUnavailability)
	require.NotNil(t, verified)
	assert.Equal(t, 1, verifier.calls)
	assert.Greater(t, verified.Confidence, base)
	assert.Contains(t, verified.Evidence, "Avery Chen")
	assert.False(t, d.Unverified)
}

func TestPhantomUnavailabilityUnreachableVerifierStaysUnverified(t *testing.T) {
	b, findings := phantomBundle()
	phantom := findByCode(findings, CodePhantomUnavailability)
	require.NotNil(t, phantom)
	base := phantom.Confidence

	verifier := &fakeVerifier{err: errors.New("connection refused")}
	d := NewSynthesizer(verifier, time.Second, nil).Synthesize(context.Background(), b, findings)

	assert.True(t, d.Unverified)
	unverified := findByCode(d.Findings, CodePhantomUnavailability)
	require.NotNil(t, unverified)
	assert.Equal(t, base, unverified.Confidence, "confidence never silently upgraded")
	assert.Contains(t, unverified.Evidence, "unverified")
}
