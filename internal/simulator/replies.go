package simulator

import (
	"fmt"

	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	"github.com/dentix-ortho/agent-oracle/internal/goals"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
)

// continuations are the generic replies used when no handler matches the
// classification. Rotated so repeated unhandled turns don't loop verbatim.
var continuations = []string{
	"Okay.",
	"Sure, go ahead.",
	"Sounds good.",
}

// nextUserUtterance picks the persona's next reply from the latest
// classification. handled is false when only the generic continuation
// applied, which the caller counts against the unhandled-turn threshold.
func nextUserUtterance(res classifier.Result, p scenario.Persona, collected map[string]goals.FieldState, unhandled int) (reply string, handled bool) {
	inv := p.Inventory

	switch res.Category {
	case classifier.CategoryPhoneRequested:
		return reveal(p, "parent_phone", "It's %s.", "I'd rather not give my number out."), true
	case classifier.CategoryNameRequested:
		return reveal(p, "parent_name", "My name is %s.", "I'd prefer not to say."), true
	case classifier.CategoryChildNameAsked:
		return reveal(p, "child_name", "This is for %s.", "I'd prefer not to say."), true
	case classifier.CategoryDOBRequested:
		return reveal(p, "child_dob", "Date of birth is %s.", "I don't have that handy right now."), true
	case classifier.CategoryEmailRequested:
		return reveal(p, "parent_email", "It's %s.", "I don't use email much, sorry."), true
	case classifier.CategoryInsuranceAsked:
		return reveal(p, "insurance_provider", "We have %s.", "We don't have insurance."), true
	case classifier.CategorySlotOffered:
		if t, ok := inv.Field("preferred_time"); ok {
			return pad(p, fmt.Sprintf("Does %s work?", t)), true
		}
		return pad(p, "The earliest you have works for us."), true
	case classifier.CategoryAddressOffered:
		return "Got it, thanks.", true
	case classifier.CategoryBookingConfirmed:
		return "Wonderful, thank you so much!", true
	case classifier.CategoryTransferRequested:
		return "Okay, I'll hold.", true
	case classifier.CategoryGoodbye:
		return "Thanks, goodbye!", true
	case classifier.CategoryErrorMessage:
		return "That's alright, can we try again?", true
	default:
		return continuations[unhandled%len(continuations)], false
	}
}

// reveal answers a field request from the inventory. A persona with no value
// for the field declines rather than inventing one.
func reveal(p scenario.Persona, field, format, decline string) string {
	value, ok := p.Inventory.Field(field)
	if !ok {
		return decline
	}
	return pad(p, fmt.Sprintf(format, value))
}

// pad decorates a reply per persona traits.
func pad(p scenario.Persona, reply string) string {
	if p.Traits.Verbosity == "chatty" {
		reply = "Oh, of course. " + reply
	}
	if p.Traits.ProvidesExtraInfo {
		reply += " By the way, we just moved to the area."
	}
	return reply
}
