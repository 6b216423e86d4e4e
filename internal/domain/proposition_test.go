package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProposition_Validation(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		confidence float32
		decay      float32
		wantErr    bool
	}{
		{"valid", "Alice works at Acme", 0.9, 0.1, false},
		{"zero bounds", "Bob lives in Berlin", 0, 0, false},
		{"one bounds", "Carol likes tea", 1, 1, false},
		{"empty text", "   ", 0.5, 0.1, true},
		{"confidence above one", "x", 1.01, 0.1, true},
		{"negative confidence", "x", -0.1, 0.1, true},
		{"decay above one", "x", 0.5, 1.5, true},
		{"negative decay", "x", 0.5, -0.2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProposition("ctx-1", tt.text, tt.confidence, tt.decay)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, p.ID)
			assert.Equal(t, StatusActive, p.Status)
			assert.Equal(t, float32(0.5), p.Importance)
			assert.Equal(t, 0, p.Level)
			assert.False(t, p.Revised.Before(p.Created))
		})
	}
}

func TestProposition_WithConfidence_CopyOnWrite(t *testing.T) {
	p, err := NewProposition("ctx-1", "Alice works at Acme", 0.6, 0.1)
	require.NoError(t, err)

	updated, err := p.WithConfidence(0.8)
	require.NoError(t, err)

	assert.Equal(t, float32(0.6), p.Confidence, "original must not change")
	assert.Equal(t, float32(0.8), updated.Confidence)
	assert.Equal(t, p.ID, updated.ID)
	assert.False(t, updated.Revised.Before(p.Revised))

	_, err = p.WithConfidence(1.2)
	assert.Error(t, err)
}

func TestProposition_WithGrounding_Union(t *testing.T) {
	p, err := NewProposition("ctx-1", "Alice works at Acme", 0.6, 0.1)
	require.NoError(t, err)

	a := p.WithGrounding("doc-1", "doc-2")
	b := a.WithGrounding("doc-2", "doc-3", "doc-1")

	assert.Equal(t, []string{"doc-1", "doc-2"}, a.Grounding)
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, b.Grounding)
	assert.Empty(t, p.Grounding, "original must not change")
}

func TestProposition_WithResolvedMentions(t *testing.T) {
	p, err := NewProposition("ctx-1", "Alice works at Acme", 0.6, 0.1)
	require.NoError(t, err)

	entity := uuid.New()
	resolved := []Mention{
		{Start: 0, End: 5, Type: "person", EntityID: &entity, Role: RoleSubject},
		{Start: 15, End: 19, Type: "org", Role: RoleObject},
	}

	updated := p.WithResolvedMentions(resolved)
	assert.Len(t, updated.Mentions, 2)
	assert.Empty(t, p.Mentions)
	assert.Equal(t, &entity, updated.Mentions[0].EntityID)
}

func TestProposition_EffectiveConfidence(t *testing.T) {
	p, err := NewProposition("ctx-1", "Alice works at Acme", 0.8, 0.5)
	require.NoError(t, err)

	const k = 0.1

	// Age zero: effective equals stored.
	assert.Equal(t, p.Confidence, p.EffectiveConfidence(p.Revised, k))

	// Monotone non-increasing over time.
	day := p.EffectiveConfidence(p.Revised.Add(24*time.Hour), k)
	week := p.EffectiveConfidence(p.Revised.Add(7*24*time.Hour), k)
	assert.Less(t, day, p.Confidence)
	assert.Less(t, week, day)

	// Zero decay never loses confidence.
	stable, err := p.WithDecay(0)
	require.NoError(t, err)
	assert.Equal(t, stable.Confidence, stable.EffectiveConfidence(stable.Revised.Add(365*24*time.Hour), k))
}

func TestProposition_Validate_DerivedRequiresSources(t *testing.T) {
	p, err := NewProposition("ctx-1", "Alice is employed", 0.7, 0.1)
	require.NoError(t, err)

	p.Level = 1
	assert.Error(t, p.Validate())

	p.SourceIDs = []uuid.UUID{uuid.New()}
	assert.NoError(t, p.Validate())
}

func TestPropositionQuery_Matches(t *testing.T) {
	entity := uuid.New()
	p, err := NewProposition("ctx-1", "Alice works at Acme", 0.9, 0.1)
	require.NoError(t, err)
	withMention := p.WithResolvedMentions([]Mention{
		{Start: 0, End: 5, Type: "person", EntityID: &entity, Role: RoleSubject},
	})

	active := StatusActive
	contradicted := StatusContradicted
	one := 1

	assert.True(t, (&PropositionQuery{ContextID: "ctx-1"}).Matches(&withMention))
	assert.False(t, (&PropositionQuery{ContextID: "ctx-2"}).Matches(&withMention))
	assert.True(t, (&PropositionQuery{Status: &active}).Matches(&withMention))
	assert.False(t, (&PropositionQuery{Status: &contradicted}).Matches(&withMention))
	assert.False(t, (&PropositionQuery{MinLevel: &one}).Matches(&withMention))
	assert.True(t, (&PropositionQuery{EntityID: &entity}).Matches(&withMention))

	other := uuid.New()
	assert.False(t, (&PropositionQuery{EntityID: &other}).Matches(&withMention))
}
