package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dentix-ortho/agent-oracle/internal/trace"
)

var tracer = otel.Tracer("oracle/diagnosis")

// Detection thresholds.
const (
	slotFreshnessBase     = 30 * time.Second
	slotFreshnessEscalate = 120 * time.Second
	raceThreshold         = 500 * time.Millisecond
)

var (
	transportFailureRe = regexp.MustCompile(`(?i)\b(502|bad\s+gateway|503|service\s+unavailable|gateway\s+time.?out|connection\s+(refused|reset)|i/o\s+timeout)\b`)
	unavailabilityRe   = regexp.MustCompile(`(?i)\b(no\s+longer\s+available|unavailable|already\s+(booked|taken)|slot\s+(is\s+)?taken)\b`)
	emptyResultRe      = regexp.MustCompile(`(?i)\b(no\s+(open\s+)?(slots?|availability|appointments?|results?)|0\s+(slots?|results?))\b`)
)

func isBookingCall(tool string) bool {
	l := strings.ToLower(tool)
	return strings.Contains(l, "schedule") || strings.Contains(l, "book")
}

func isSlotLookup(tool string) bool {
	l := strings.ToLower(tool)
	return strings.Contains(l, "slot") || strings.Contains(l, "availab") || strings.Contains(l, "patient")
}

// Detect evaluates every catalog rule independently against one captured
// bundle. Pure and idempotent: the same bundle always yields the same
// findings in the same order. Patterns routinely co-fire.
func Detect(ctx context.Context, b trace.Bundle) []Finding {
	_, span := tracer.Start(ctx, "diagnosis.detect")
	defer span.End()
	span.SetAttributes(
		attribute.String("oracle.session_id", b.SessionID),
		attribute.Int("oracle.tool_calls", len(b.ToolCalls)),
	)

	if b.Unavailable || b.Empty() {
		return nil
	}

	var findings []Finding
	findings = append(findings, detectMissingAuthToken(b)...)
	findings = append(findings, detectUpstreamFailure(b)...)
	findings = append(findings, detectBookingRace(b)...)
	findings = append(findings, detectDuplicateCreation(b)...)
	findings = append(findings, detectSlotFreshness(b)...)
	findings = append(findings, detectPhantomUnavailability(b)...)
	span.SetAttributes(attribute.Int("oracle.findings", len(findings)))
	return findings
}

func detectMissingAuthToken(b trace.Bundle) []Finding {
	var out []Finding
	for _, call := range b.ToolCalls {
		if !isBookingCall(call.Tool) || call.Status != trace.StatusError {
			continue
		}
		token, present := tokenField(call.Input)
		if present && token != "" {
			continue
		}
		entry, _ := entryFor(CodeMissingAuthToken)
		out = append(out, Finding{
			Code:       CodeMissingAuthToken,
			Severity:   entry.Severity,
			Confidence: 0.95,
			Evidence: fmt.Sprintf("booking call %q at %s failed with an absent or empty auth token: %s",
				call.Tool, call.StartTime.Format(time.RFC3339), firstNonEmpty(call.Error, call.Output)),
		})
	}
	return out
}

func detectUpstreamFailure(b trace.Bundle) []Finding {
	var out []Finding
	for _, call := range b.ToolCalls {
		message := firstNonEmpty(call.Error, call.Output)
		if call.Status != trace.StatusError || !transportFailureRe.MatchString(message) {
			continue
		}
		entry, _ := entryFor(CodeUpstreamInfrastructureFailure)
		out = append(out, Finding{
			Code:       CodeUpstreamInfrastructureFailure,
			Severity:   entry.Severity,
			Confidence: 0.9,
			Evidence: fmt.Sprintf("call %q at %s failed with a transport-layer signature: %s",
				call.Tool, call.StartTime.Format(time.RFC3339), message),
		})
	}
	return out
}

func detectBookingRace(b trace.Bundle) []Finding {
	// Proximity only counts between calls to the same booking tool; two
	// different tools firing close together is ordinary orchestration.
	seen := make(map[string]bool)
	var out []Finding
	for _, call := range b.ToolCalls {
		if !isBookingCall(call.Tool) || seen[call.Tool] {
			continue
		}
		seen[call.Tool] = true

		bookings := b.CallsTo(call.Tool)
		for i := 1; i < len(bookings); i++ {
			gap := bookings[i].StartTime.Sub(bookings[i-1].StartTime)
			if gap < 0 {
				gap = -gap
			}
			if gap >= raceThreshold {
				continue
			}
			entry, _ := entryFor(CodeConcurrentBookingRace)
			out = append(out, Finding{
				Code:       CodeConcurrentBookingRace,
				Severity:   entry.Severity,
				Confidence: 0.85,
				Evidence: fmt.Sprintf("two %q calls only %dms apart (serialization threshold %dms)",
					call.Tool, gap.Milliseconds(), raceThreshold.Milliseconds()),
			})
		}
	}
	return out
}

func detectDuplicateCreation(b trace.Bundle) []Finding {
	counts := make(map[string]int)
	for _, call := range b.ToolCalls {
		if !isBookingCall(call.Tool) {
			continue
		}
		key := call.Tool + "|" + strings.Join(strings.Fields(call.Input), " ")
		counts[key]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		if counts[k] > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []Finding
	for _, k := range keys {
		entry, _ := entryFor(CodeDuplicateResourceCreation)
		tool := strings.SplitN(k, "|", 2)[0]
		out = append(out, Finding{
			Code:       CodeDuplicateResourceCreation,
			Severity:   entry.Severity,
			Confidence: 0.8,
			Evidence: fmt.Sprintf("%d create calls to %q with an identical payload in one session",
				counts[k], tool),
		})
	}
	return out
}

func detectSlotFreshness(b trace.Bundle) []Finding {
	var firstBooking *trace.ToolCallRecord
	var lastLookup *trace.ToolCallRecord
	for i := range b.ToolCalls {
		call := &b.ToolCalls[i]
		if isBookingCall(call.Tool) {
			if firstBooking == nil {
				firstBooking = call
			}
			continue
		}
		if isSlotLookup(call.Tool) && (firstBooking == nil || call.StartTime.Before(firstBooking.StartTime)) {
			lastLookup = call
		}
	}
	if firstBooking == nil || lastLookup == nil {
		return nil
	}

	gap := firstBooking.StartTime.Sub(lastLookup.StartTime)
	if gap <= slotFreshnessBase {
		return nil
	}

	entry, _ := entryFor(CodeSlotFreshnessDecay)
	confidence := 0.6
	note := "within escalation threshold"
	if gap > slotFreshnessEscalate {
		confidence = 0.9
		note = "beyond escalation threshold"
	}
	return []Finding{{
		Code:       CodeSlotFreshnessDecay,
		Severity:   entry.Severity,
		Confidence: confidence,
		Evidence: fmt.Sprintf("%.0fs elapsed between the last slot lookup and the first booking call (%s)",
			gap.Seconds(), note),
	}}
}

func detectPhantomUnavailability(b trace.Bundle) []Finding {
	var out []Finding
	for i, call := range b.ToolCalls {
		if !isBookingCall(call.Tool) || call.Status != trace.StatusError {
			continue
		}
		message := firstNonEmpty(call.Error, call.Output)
		if !unavailabilityRe.MatchString(message) {
			continue
		}
		lookup := priorNonEmptyLookup(b.ToolCalls[:i])
		if lookup == nil {
			continue
		}
		entry, _ := entryFor(CodePhantomUnavailability)
		out = append(out, Finding{
			Code:       CodePhantomUnavailability,
			Severity:   entry.Severity,
			Confidence: 0.5,
			Evidence: fmt.Sprintf("booking call at %s denied with %q although lookup %q had returned results",
				call.StartTime.Format(time.RFC3339), message, lookup.Tool),
			NeedsVerification: true,
			SlotTime:          slotTimeFromInput(call.Input),
		})
	}
	return out
}

func priorNonEmptyLookup(calls []trace.ToolCallRecord) *trace.ToolCallRecord {
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		if !isSlotLookup(call.Tool) || call.Status != trace.StatusSuccess {
			continue
		}
		output := strings.TrimSpace(call.Output)
		if output == "" || output == "[]" || emptyResultRe.MatchString(output) {
			continue
		}
		return &calls[i]
	}
	return nil
}

// tokenField digs the auth token out of a JSON tool input. present is false
// when no token-shaped key exists at all.
func tokenField(input string) (value string, present bool) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(input), &decoded); err != nil {
		return "", false
	}
	for k, v := range decoded {
		normalized := strings.ReplaceAll(strings.ToLower(k), "_", "")
		if normalized != "token" && normalized != "authtoken" && normalized != "apikey" {
			continue
		}
		s, _ := v.(string)
		return s, true
	}
	return "", false
}

// slotTimeFromInput extracts the booking target time when the payload names
// one. Zero time when absent; verification then degrades to unverified.
func slotTimeFromInput(input string) time.Time {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(input), &decoded); err != nil {
		return time.Time{}
	}
	for _, key := range []string{"start_time", "startTime", "slot", "slot_time", "appointment_time"} {
		raw, ok := decoded[key].(string)
		if !ok {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
