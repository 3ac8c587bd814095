package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dentix-ortho/agent-oracle/internal/classifier"
)

func parseTerminalCategory(raw string) (classifier.Category, error) {
	return classifier.ParseCategory(raw)
}

// wireConstraint is the on-disk constraint form; max_time is a duration
// string ("90s", "2m") rather than nanoseconds.
type wireConstraint struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	MaxTurns    int    `json:"max_turns,omitempty"`
	MaxTime     string `json:"max_time,omitempty"`
}

type wireGoal struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	RequiredFields []string `json:"required_fields,omitempty"`
	Priority       int      `json:"priority,omitempty"`
	Required       bool     `json:"required"`
}

type wireTestCase struct {
	ID                 string           `json:"id"`
	Version            int              `json:"version"`
	Persona            Persona          `json:"persona"`
	Goals              []wireGoal       `json:"goals"`
	Constraints        []wireConstraint `json:"constraints,omitempty"`
	InitialUtterance   string           `json:"initial_utterance"`
	TerminalCategories []string         `json:"terminal_categories,omitempty"`
}

// Parse parses and validates one scenario JSON document. source names the
// origin for error messages.
func Parse(data []byte, source string) (*TestCase, error) {
	return parse(data, source)
}

// LoadFile parses and validates one scenario JSON file.
func LoadFile(path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return parse(data, path)
}

// LoadDir loads every *.json scenario under dir, sorted by test case id.
func LoadDir(dir string) ([]TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario: read dir %s: %w", dir, err)
	}

	var cases []TestCase
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		tc, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		cases = append(cases, *tc)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, nil
}

func parse(data []byte, source string) (*TestCase, error) {
	var wire wireTestCase
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("scenario: decode %s: %w", source, err)
	}

	tc := &TestCase{
		ID:               wire.ID,
		Version:          wire.Version,
		Persona:          wire.Persona,
		InitialUtterance: wire.InitialUtterance,
	}

	for _, g := range wire.Goals {
		goalType, err := ParseGoalType(g.Type)
		if err != nil {
			return nil, fmt.Errorf("scenario: %s: %w", source, err)
		}
		if goalType == GoalCustom {
			return nil, fmt.Errorf("scenario: %s: custom goals require Go predicates and cannot be loaded from JSON", source)
		}
		tc.Goals = append(tc.Goals, Goal{
			ID:             g.ID,
			Type:           goalType,
			RequiredFields: g.RequiredFields,
			Priority:       g.Priority,
			Required:       g.Required,
		})
	}

	for _, c := range wire.Constraints {
		constraintType, err := ParseConstraintType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("scenario: %s: %w", source, err)
		}
		constraint := Constraint{
			ID:          c.ID,
			Type:        constraintType,
			Severity:    Severity(c.Severity),
			Description: c.Description,
			Pattern:     c.Pattern,
			MaxTurns:    c.MaxTurns,
		}
		if c.MaxTime != "" {
			d, err := time.ParseDuration(c.MaxTime)
			if err != nil {
				return nil, fmt.Errorf("scenario: %s: constraint %q: invalid max_time: %w", source, c.ID, err)
			}
			constraint.MaxTime = d
		}
		tc.Constraints = append(tc.Constraints, constraint)
	}

	for _, raw := range wire.TerminalCategories {
		category, err := parseTerminalCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("scenario: %s: %w", source, err)
		}
		tc.TerminalCategories = append(tc.TerminalCategories, category)
	}

	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}
