package classifier

import (
	"fmt"
	"strings"
)

// Category is the semantic conversation state inferred from one agent utterance.
type Category string

const (
	CategoryBookingConfirmed  Category = "booking_confirmed"
	CategoryTransferRequested Category = "transfer_requested"
	CategoryNameRequested     Category = "name_requested"
	CategoryChildNameAsked    Category = "child_name_requested"
	CategoryPhoneRequested    Category = "phone_requested"
	CategoryEmailRequested    Category = "email_requested"
	CategoryDOBRequested      Category = "dob_requested"
	CategoryInsuranceAsked    Category = "insurance_requested"
	CategorySlotOffered       Category = "slot_offered"
	CategoryAddressOffered    Category = "address_offered"
	CategoryErrorMessage      Category = "error_message"
	CategoryGoodbye           Category = "goodbye"
	CategoryUnknown           Category = "unknown"
)

// Taxonomy lists every category Tier 2 is allowed to return.
// CategoryUnknown is deliberately excluded: the LLM must commit to a state,
// and an out-of-taxonomy answer is a classification failure, not "unknown".
func Taxonomy() []Category {
	return []Category{
		CategoryBookingConfirmed,
		CategoryTransferRequested,
		CategoryNameRequested,
		CategoryChildNameAsked,
		CategoryPhoneRequested,
		CategoryEmailRequested,
		CategoryDOBRequested,
		CategoryInsuranceAsked,
		CategorySlotOffered,
		CategoryAddressOffered,
		CategoryErrorMessage,
		CategoryGoodbye,
	}
}

// ParseCategory validates a raw category string against the taxonomy.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Taxonomy() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("classifier: category %q is not in the taxonomy", raw)
}

// Result is the structured verdict for one agent utterance.
//
// BookingConfirmed is independent of Category: production utterances
// routinely pair an affirmative booking statement with a follow-up question,
// and the follow-up may win the category.
type Result struct {
	Category         Category `json:"category"`
	Confidence       float64  `json:"confidence"`
	Tier             int      `json:"tier"`
	PatternID        string   `json:"pattern_id,omitempty"`
	BookingConfirmed bool     `json:"booking_confirmed"`
}
