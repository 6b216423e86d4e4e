package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusContradicted Status = "contradicted"
	StatusSuperseded   Status = "superseded"
	StatusPromoted     Status = "promoted"
)

func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusActive, StatusContradicted, StatusSuperseded, StatusPromoted:
		return true
	}
	return false
}

type MentionRole string

const (
	RoleSubject MentionRole = "subject"
	RoleObject  MentionRole = "object"
	RoleOther   MentionRole = "other"
)

// Mention is an entity reference inside a proposition's text. EntityID is nil
// until the mention has been resolved; resolution does not change the span.
type Mention struct {
	Start    int         `json:"start"`
	End      int         `json:"end"`
	Type     string      `json:"type"`
	EntityID *uuid.UUID  `json:"entity_id,omitempty"`
	Role     MentionRole `json:"role"`
}

// Proposition is an atomic natural-language statement with epistemic metadata.
// The text is the system of record; the structured fields annotate it.
//
// Propositions are immutable values: every update goes through a With* method
// that returns a copy with Revised bumped and ID preserved.
type Proposition struct {
	ID         uuid.UUID   `json:"id"`
	ContextID  string      `json:"context_id"`
	Text       string      `json:"text"`
	Mentions   []Mention   `json:"mentions,omitempty"`
	Confidence float32     `json:"confidence"`
	Decay      float32     `json:"decay"`
	Importance float32     `json:"importance"`
	Level      int         `json:"level"`
	SourceIDs  []uuid.UUID `json:"source_ids,omitempty"`
	Grounding  []string    `json:"grounding,omitempty"`
	Status     Status      `json:"status"`
	Created    time.Time   `json:"created"`
	Revised    time.Time   `json:"revised"`
	Reasoning  string      `json:"reasoning,omitempty"`
	Embedding  []float32   `json:"-"`
}

func validateUnitInterval(field string, v float32) error {
	if math.IsNaN(float64(v)) || v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0,1], got %v", field, v)
	}
	return nil
}

// NewProposition creates a directly observed (level 0) proposition.
// Confidence and decay outside [0,1] fail immediately.
func NewProposition(contextID, text string, confidence, decay float32) (*Proposition, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("proposition text must not be empty")
	}
	if err := validateUnitInterval("confidence", confidence); err != nil {
		return nil, err
	}
	if err := validateUnitInterval("decay", decay); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Proposition{
		ID:         uuid.New(),
		ContextID:  contextID,
		Text:       text,
		Confidence: confidence,
		Decay:      decay,
		Importance: 0.5,
		Level:      0,
		Status:     StatusActive,
		Created:    now,
		Revised:    now,
	}, nil
}

// Validate checks the bound invariants on an assembled proposition, e.g. one
// decoded from a request body.
func (p *Proposition) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("proposition text must not be empty")
	}
	if err := validateUnitInterval("confidence", p.Confidence); err != nil {
		return err
	}
	if err := validateUnitInterval("decay", p.Decay); err != nil {
		return err
	}
	if err := validateUnitInterval("importance", p.Importance); err != nil {
		return err
	}
	if p.Level < 0 {
		return fmt.Errorf("level must be non-negative, got %d", p.Level)
	}
	if p.Level > 0 && len(p.SourceIDs) == 0 {
		return fmt.Errorf("derived proposition (level %d) requires source ids", p.Level)
	}
	if p.Status != "" && !ValidStatus(string(p.Status)) {
		return fmt.Errorf("unknown status %q", p.Status)
	}
	return nil
}

// clone copies p with fresh slice backing so the original stays untouched.
func (p Proposition) clone() Proposition {
	c := p
	if p.Mentions != nil {
		c.Mentions = append([]Mention(nil), p.Mentions...)
	}
	if p.SourceIDs != nil {
		c.SourceIDs = append([]uuid.UUID(nil), p.SourceIDs...)
	}
	if p.Grounding != nil {
		c.Grounding = append([]string(nil), p.Grounding...)
	}
	if p.Embedding != nil {
		c.Embedding = append([]float32(nil), p.Embedding...)
	}
	return c
}

// touch bumps Revised, keeping it non-decreasing even under clock skew.
func (p *Proposition) touch() {
	now := time.Now()
	if now.After(p.Revised) {
		p.Revised = now
	}
}

// WithConfidence returns a copy with the given confidence. Values outside
// [0,1] fail; callers that clamp (merge formulas) clamp before calling.
func (p Proposition) WithConfidence(confidence float32) (Proposition, error) {
	if err := validateUnitInterval("confidence", confidence); err != nil {
		return Proposition{}, err
	}
	c := p.clone()
	c.Confidence = confidence
	c.touch()
	return c, nil
}

// WithDecay returns a copy with the given decay rate.
func (p Proposition) WithDecay(decay float32) (Proposition, error) {
	if err := validateUnitInterval("decay", decay); err != nil {
		return Proposition{}, err
	}
	c := p.clone()
	c.Decay = decay
	c.touch()
	return c, nil
}

// WithStatus returns a copy with the given lifecycle status.
func (p Proposition) WithStatus(status Status) Proposition {
	c := p.clone()
	c.Status = status
	c.touch()
	return c
}

// WithResolvedMentions returns a copy with the mention list replaced.
func (p Proposition) WithResolvedMentions(mentions []Mention) Proposition {
	c := p.clone()
	c.Mentions = append([]Mention(nil), mentions...)
	c.touch()
	return c
}

// WithGrounding returns a copy whose grounding is the set union of the
// existing grounding and the additional source identifiers. Grounding only
// ever grows.
func (p Proposition) WithGrounding(additional ...string) Proposition {
	c := p.clone()
	seen := make(map[string]bool, len(c.Grounding)+len(additional))
	merged := make([]string, 0, len(c.Grounding)+len(additional))
	for _, g := range c.Grounding {
		if !seen[g] {
			seen[g] = true
			merged = append(merged, g)
		}
	}
	for _, g := range additional {
		if g != "" && !seen[g] {
			seen[g] = true
			merged = append(merged, g)
		}
	}
	sort.Strings(merged)
	c.Grounding = merged
	c.touch()
	return c
}

// WithReasoning returns a copy with the free-text explanation replaced.
func (p Proposition) WithReasoning(reasoning string) Proposition {
	c := p.clone()
	c.Reasoning = reasoning
	c.touch()
	return c
}

// EffectiveConfidence is the stored confidence discounted by time-based
// decay: confidence * exp(-k * decay * ageDays). It equals the stored
// confidence at age zero and never increases with elapsed time.
func (p *Proposition) EffectiveConfidence(at time.Time, k float64) float32 {
	age := at.Sub(p.Revised)
	if age <= 0 || p.Decay == 0 || k == 0 {
		return p.Confidence
	}
	days := age.Hours() / 24
	factor := math.Exp(-k * float64(p.Decay) * days)
	return p.Confidence * float32(factor)
}

// PropositionWithScore pairs a proposition with its similarity to a query.
type PropositionWithScore struct {
	Proposition
	Score float32 `json:"score"`
}
