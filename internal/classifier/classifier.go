package classifier

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dentix-ortho/agent-oracle/internal/llm"
	"github.com/dentix-ortho/agent-oracle/internal/observability/metrics"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

var tracer = otel.Tracer("oracle/classifier")

// Input carries one agent utterance plus per-call classification hints.
type Input struct {
	Utterance string
	// ForceTier2 skips Tier 1 category selection. Used for utterances that
	// carry a structured payload block Tier 1 is known not to parse reliably.
	ForceTier2 bool
}

// Config configures the two-tier classifier.
type Config struct {
	EnableTier2  bool
	Model        string
	Tier2Timeout time.Duration
	MaxTokens    int32

	// Metrics is optional; a nil handle records nothing.
	Metrics *metrics.OracleMetrics
}

// Classifier maps free-text agent utterances to conversation-state results.
// Tier 1 is pure pattern matching; Tier 2 is an LLM fallback consulted only
// when no Tier 1 pattern matches (or when disambiguation is forced).
type Classifier struct {
	llm    llm.Client
	cache  *Cache
	cfg    Config
	logger *logging.Logger
}

// New builds a classifier. The LLM client may be nil when Tier 2 is disabled.
func New(client llm.Client, cache *Cache, cfg Config, logger *logging.Logger) *Classifier {
	if cfg.EnableTier2 && client == nil {
		panic("classifier: tier 2 enabled without an llm client")
	}
	if cfg.Tier2Timeout <= 0 {
		cfg.Tier2Timeout = 10 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{llm: client, cache: cache, cfg: cfg, logger: logger}
}

// Classify returns the conversation-state result for one utterance.
//
// Tier 1 never errors. Tier 2 failures degrade to a zero-confidence unknown
// result and return ErrAmbiguous (wrapped) so callers can record the
// condition instead of silently absorbing it.
func (c *Classifier) Classify(ctx context.Context, in Input) (Result, error) {
	ctx, span := tracer.Start(ctx, "classifier.classify")
	defer span.End()

	utterance := strings.TrimSpace(in.Utterance)
	if utterance == "" {
		return Result{Category: CategoryUnknown, Tier: 1}, nil
	}

	booking := matchesBookingConfirmation(utterance)

	if !in.ForceTier2 {
		if res, ok := classifyTier1(utterance); ok {
			res.BookingConfirmed = booking
			span.SetAttributes(
				attribute.String("classifier.category", string(res.Category)),
				attribute.Int("classifier.tier", 1),
				attribute.String("classifier.pattern_id", res.PatternID),
			)
			c.cfg.Metrics.ObserveClassification("1", string(res.Category))
			return res, nil
		}
	}

	if !c.cfg.EnableTier2 {
		c.cfg.Metrics.ObserveClassification("1", string(CategoryUnknown))
		return Result{Category: CategoryUnknown, Confidence: 0, Tier: 1, BookingConfirmed: booking}, nil
	}

	res, err := c.classifyTier2(ctx, utterance)
	res.BookingConfirmed = res.BookingConfirmed || booking
	span.SetAttributes(
		attribute.String("classifier.category", string(res.Category)),
		attribute.Int("classifier.tier", 2),
	)
	c.cfg.Metrics.ObserveClassification("2", string(res.Category))
	if err != nil {
		c.logger.Warn("tier 2 classification failed",
			"error", err,
			"utterance_len", len(utterance),
		)
	}
	return res, err
}

// classifyTier1 runs the ordered pattern library. The first group with any
// matching pattern wins; the strongest matching pattern inside that group
// supplies the confidence and pattern id.
func classifyTier1(utterance string) (Result, bool) {
	for _, group := range patternGroups {
		var best *tierPattern
		for i := range group.patterns {
			p := &group.patterns[i]
			if !p.regex.MatchString(utterance) {
				continue
			}
			if best == nil || p.weight > best.weight {
				best = p
			}
		}
		if best != nil {
			return Result{
				Category:   group.category,
				Confidence: best.weight,
				Tier:       1,
				PatternID:  string(group.category) + "/" + best.id,
			}, true
		}
	}
	return Result{}, false
}

// matchesBookingConfirmation reports whether any booking-confirmation
// pattern matches, independent of which category wins the turn.
func matchesBookingConfirmation(utterance string) bool {
	for _, p := range bookingConfirmedGroup().patterns {
		if p.regex.MatchString(utterance) {
			return true
		}
	}
	return false
}
