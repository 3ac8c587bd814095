package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dentix-ortho/agent-oracle/internal/llm"
)

// ErrAmbiguous marks a Tier 2 classification that produced no usable
// category: the LLM errored, timed out, or answered outside the taxonomy.
// Callers receive a zero-confidence unknown result alongside this error.
var ErrAmbiguous = errors.New("classifier: ambiguous classification")

const tier2PromptTemplate = `Classify this orthodontic booking agent utterance into ONE conversation state. Respond with JSON only.

States:
%s

The utterance is what the AGENT said to the caller, not the caller's message.

Utterance: %s

Respond with: {"category":"<state_name>","confidence":<0.0-1.0>}`

func buildTier2Prompt(utterance string) string {
	var states strings.Builder
	for _, c := range Taxonomy() {
		states.WriteString("- ")
		states.WriteString(string(c))
		states.WriteString("\n")
	}
	return fmt.Sprintf(tier2PromptTemplate, strings.TrimRight(states.String(), "\n"), utterance)
}

func (c *Classifier) classifyTier2(ctx context.Context, utterance string) (Result, error) {
	if cached, ok := c.cache.Get(ctx, utterance); ok {
		return cached, nil
	}

	tier2Ctx, cancel := context.WithTimeout(ctx, c.cfg.Tier2Timeout)
	defer cancel()

	resp, err := c.llm.Complete(tier2Ctx, llm.Request{
		Model:       c.cfg.Model,
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: buildTier2Prompt(utterance)}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return ambiguousResult(), fmt.Errorf("%w: %v", ErrAmbiguous, err)
	}

	res, err := parseTier2Response(resp.Text)
	if err != nil {
		return ambiguousResult(), err
	}

	c.cache.Put(ctx, utterance, res)
	return res, nil
}

func ambiguousResult() Result {
	return Result{Category: CategoryUnknown, Confidence: 0, Tier: 2}
}

type tier2Payload struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// parseTier2Response decodes the LLM reply. An answer outside the taxonomy is
// a classification failure, never a silent default.
func parseTier2Response(raw string) (Result, error) {
	text := extractJSONObject(stripCodeFence(raw))
	if text == "" {
		return ambiguousResult(), fmt.Errorf("%w: empty response", ErrAmbiguous)
	}

	var payload tier2Payload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return ambiguousResult(), fmt.Errorf("%w: undecodable response", ErrAmbiguous)
	}

	category, err := ParseCategory(payload.Category)
	if err != nil {
		return ambiguousResult(), fmt.Errorf("%w: %v", ErrAmbiguous, err)
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Result{Category: category, Confidence: confidence, Tier: 2}, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}
