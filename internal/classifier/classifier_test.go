package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentix-ortho/agent-oracle/internal/llm"
	"github.com/dentix-ortho/agent-oracle/internal/observability/metrics"
)

type fakeLLM struct {
	text  string
	err   error
	calls int
}

func (f *fakeLLM) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text}, nil
}

func newTier1Only() *Classifier {
	return New(nil, nil, Config{EnableTier2: false}, nil)
}

func TestClassifyTier1Categories(t *testing.T) {
	c := newTier1Only()

	tests := []struct {
		name         string
		utterance    string
		wantCategory Category
		wantBooking  bool
	}{
		{
			name:         "appointment booked",
			utterance:    "Great news! Your appointment is booked for Tuesday at 10am.",
			wantCategory: CategoryBookingConfirmed,
			wantBooking:  true,
		},
		{
			name:         "all set with follow-up question",
			utterance:    "You're all set! Would you like directions to our office?",
			wantCategory: CategoryBookingConfirmed,
			wantBooking:  true,
		},
		{
			name:         "transfer",
			utterance:    "One moment, I'm transferring you to our scheduling coordinator.",
			wantCategory: CategoryTransferRequested,
		},
		{
			name:         "phone request",
			utterance:    "Could I get the best phone number to reach you?",
			wantCategory: CategoryPhoneRequested,
		},
		{
			name:         "name request",
			utterance:    "Of course! May I have your name please?",
			wantCategory: CategoryNameRequested,
		},
		{
			name:         "child name request",
			utterance:    "And what is your child's full name?",
			wantCategory: CategoryChildNameAsked,
		},
		{
			name:         "dob request",
			utterance:    "What is the patient's date of birth?",
			wantCategory: CategoryDOBRequested,
		},
		{
			name:         "insurance request",
			utterance:    "Do you have dental insurance we should have on file?",
			wantCategory: CategoryInsuranceAsked,
		},
		{
			name:         "slot offer",
			utterance:    "We have an opening on Thursday morning. Would Thursday at 9 work for you?",
			wantCategory: CategorySlotOffered,
		},
		{
			name:         "address offer",
			utterance:    "We're located at 1200 Chestnut Street, Suite 4.",
			wantCategory: CategoryAddressOffered,
		},
		{
			name:         "goodbye",
			utterance:    "Thanks for calling! Have a great day!",
			wantCategory: CategoryGoodbye,
		},
		{
			name:         "exposed upstream error",
			utterance:    "502 Bad Gateway",
			wantCategory: CategoryErrorMessage,
		},
		{
			name:         "no match",
			utterance:    "Braces come in several colors and materials.",
			wantCategory: CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(context.Background(), Input{Utterance: tt.utterance})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, res.Category)
			assert.Equal(t, tt.wantBooking, res.BookingConfirmed)
			assert.Equal(t, 1, res.Tier)
			if tt.wantCategory != CategoryUnknown {
				assert.NotEmpty(t, res.PatternID)
				assert.Greater(t, res.Confidence, 0.0)
			} else {
				assert.Zero(t, res.Confidence)
			}
		})
	}
}

func TestClassifyTier1Deterministic(t *testing.T) {
	c := newTier1Only()
	utterance := "Your appointment is confirmed. Anything else I can help with?"

	first, err := c.Classify(context.Background(), Input{Utterance: utterance})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(context.Background(), Input{Utterance: utterance})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestClassifyWordBoundaries(t *testing.T) {
	c := newTier1Only()

	// "scheduling" must not leak into the booking-confirmation group.
	res, err := c.Classify(context.Background(), Input{Utterance: "I'm pulling up our scheduling options now."})
	require.NoError(t, err)
	assert.NotEqual(t, CategoryBookingConfirmed, res.Category)
	assert.False(t, res.BookingConfirmed)
}

func TestClassifyEmptyUtterance(t *testing.T) {
	c := newTier1Only()
	res, err := c.Classify(context.Background(), Input{Utterance: "   "})
	require.NoError(t, err)
	assert.Equal(t, CategoryUnknown, res.Category)
}

func TestClassifyTier2Fallback(t *testing.T) {
	fake := &fakeLLM{text: `{"category":"slot_offered","confidence":0.82}`}
	c := New(fake, nil, Config{EnableTier2: true, Model: "test-model"}, nil)

	res, err := c.Classify(context.Background(), Input{Utterance: "How about we find a time that suits the family calendar?"})
	require.NoError(t, err)
	assert.Equal(t, CategorySlotOffered, res.Category)
	assert.InDelta(t, 0.82, res.Confidence, 0.001)
	assert.Equal(t, 2, res.Tier)
	assert.Equal(t, 1, fake.calls)
}

func TestClassifyTier2NotConsultedWhenTier1Matches(t *testing.T) {
	fake := &fakeLLM{text: `{"category":"goodbye","confidence":0.9}`}
	c := New(fake, nil, Config{EnableTier2: true, Model: "test-model"}, nil)

	res, err := c.Classify(context.Background(), Input{Utterance: "Your appointment is booked."})
	require.NoError(t, err)
	assert.Equal(t, CategoryBookingConfirmed, res.Category)
	assert.Zero(t, fake.calls)
}

func TestClassifyForceTier2KeepsBookingFlag(t *testing.T) {
	fake := &fakeLLM{text: `{"category":"address_offered","confidence":0.7}`}
	c := New(fake, nil, Config{EnableTier2: true, Model: "test-model"}, nil)

	res, err := c.Classify(context.Background(), Input{
		Utterance:  "You're all set! We're located downtown. PAYLOAD: {\"slot\":\"tue-10\"}",
		ForceTier2: true,
	})
	require.NoError(t, err)
	assert.Equal(t, CategoryAddressOffered, res.Category)
	assert.True(t, res.BookingConfirmed, "booking flag must survive a different winning category")
}

func TestClassifyTier2OutsideTaxonomy(t *testing.T) {
	fake := &fakeLLM{text: `{"category":"small_talk","confidence":0.9}`}
	c := New(fake, nil, Config{EnableTier2: true, Model: "test-model"}, nil)

	res, err := c.Classify(context.Background(), Input{Utterance: "Lovely weather we're having."})
	require.ErrorIs(t, err, ErrAmbiguous)
	assert.Equal(t, CategoryUnknown, res.Category)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, 2, res.Tier)
}

func TestClassifyTier2LLMError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("model timeout")}
	c := New(fake, nil, Config{EnableTier2: true, Model: "test-model"}, nil)

	res, err := c.Classify(context.Background(), Input{Utterance: "Hmm, let me think about that."})
	require.ErrorIs(t, err, ErrAmbiguous)
	assert.Equal(t, CategoryUnknown, res.Category)
}

func TestClassifyTier2DisabledReturnsUnknown(t *testing.T) {
	c := newTier1Only()
	res, err := c.Classify(context.Background(), Input{Utterance: "Let me look into the options for the doctor."})
	require.NoError(t, err)
	assert.Equal(t, CategoryUnknown, res.Category)
	assert.Zero(t, res.Confidence)
}

func TestClassificationCounterTracksTierAndCategory(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewOracleMetrics(reg)

	fake := &fakeLLM{text: `{"category":"slot_offered","confidence":0.82}`}
	c := New(fake, nil, Config{EnableTier2: true, Model: "test-model", Metrics: m}, nil)

	_, err := c.Classify(context.Background(), Input{Utterance: "Your appointment is booked."})
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), Input{Utterance: "How about a time that suits the family calendar?"})
	require.NoError(t, err)

	counts := map[string]float64{}
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "oracle_classifier_classifications_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			var tier, category string
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "tier":
					tier = label.GetValue()
				case "category":
					category = label.GetValue()
				}
			}
			counts[tier+"/"+category] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, counts["1/"+string(CategoryBookingConfirmed)])
	assert.Equal(t, 1.0, counts["2/"+string(CategorySlotOffered)])
}

func TestParseTier2Response(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Category
		wantErr bool
	}{
		{name: "plain json", raw: `{"category":"goodbye","confidence":0.9}`, want: CategoryGoodbye},
		{name: "fenced json", raw: "```json\n{\"category\":\"goodbye\",\"confidence\":0.9}\n```", want: CategoryGoodbye},
		{name: "json with prose", raw: `Sure! {"category":"phone_requested","confidence":0.6} hope that helps`, want: CategoryPhoneRequested},
		{name: "confidence clamped", raw: `{"category":"goodbye","confidence":3.5}`, want: CategoryGoodbye},
		{name: "unknown not allowed", raw: `{"category":"unknown","confidence":0.4}`, wantErr: true},
		{name: "garbage", raw: "no json here", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseTier2Response(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAmbiguous)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Category)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("  Booking_Confirmed ")
	require.NoError(t, err)
	assert.Equal(t, CategoryBookingConfirmed, c)

	_, err = ParseCategory("vibe_check")
	assert.Error(t, err)
}
