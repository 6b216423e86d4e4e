package domain

import (
	"context"

	"github.com/google/uuid"
)

// PropositionQuery filters a population before listing or clustering.
// Zero-value fields are ignored.
type PropositionQuery struct {
	ContextID string
	Status    *Status
	MinLevel  *int
	MaxLevel  *int
	EntityID  *uuid.UUID
}

// Matches reports whether a proposition satisfies the query.
func (q *PropositionQuery) Matches(p *Proposition) bool {
	if q == nil {
		return true
	}
	if q.ContextID != "" && p.ContextID != q.ContextID {
		return false
	}
	if q.Status != nil && p.Status != *q.Status {
		return false
	}
	if q.MinLevel != nil && p.Level < *q.MinLevel {
		return false
	}
	if q.MaxLevel != nil && p.Level > *q.MaxLevel {
		return false
	}
	if q.EntityID != nil {
		found := false
		for _, m := range p.Mentions {
			if m.EntityID != nil && *m.EntityID == *q.EntityID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type PropositionStore interface {
	Create(ctx context.Context, p *Proposition) error
	GetByID(ctx context.Context, id uuid.UUID) (*Proposition, error)
	// Save persists a revised copy under its existing id.
	Save(ctx context.Context, p *Proposition) error
	// SearchSimilar returns active propositions in the context whose
	// embedding similarity to the query embedding meets the threshold,
	// best matches first, at most topK.
	SearchSimilar(ctx context.Context, contextID string, embedding []float32, topK int, threshold float32) ([]PropositionWithScore, error)
	List(ctx context.Context, q PropositionQuery) ([]Proposition, error)
	CountByContext(ctx context.Context, contextID string) (int, error)
	ListContextIDs(ctx context.Context) ([]string, error)
}

// HistoryStore is the per-source processing ledger: resumable bookmarks plus
// a content-hash set for window dedup. Records are never deleted.
type HistoryStore interface {
	GetLastBookmark(ctx context.Context, sourceID string) (*Bookmark, error)
	IsProcessed(ctx context.Context, contentHash string) (bool, error)
	RecordProcessed(ctx context.Context, record *ProcessedWindow) error
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RelationClassifier judges how a new statement relates to each candidate
// proposition. Implementations must be safe to retry; the engine treats any
// candidate absent from the response as unrelated.
type RelationClassifier interface {
	ClassifyRelations(ctx context.Context, statement string, candidates []Proposition) ([]RelationJudgment, error)
}

// ExtractedProposition is a candidate statement pulled out of raw text.
type ExtractedProposition struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
	Decay      float32 `json:"decay"`
	Importance float32 `json:"importance"`
}

// Extractor pulls candidate statements out of a formatted text window.
type Extractor interface {
	ExtractPropositions(ctx context.Context, text string) ([]ExtractedProposition, error)
}

// WindowFormatter renders source items to the text handed to the window
// processing capability. Pure function, no side effects.
type WindowFormatter interface {
	Format(items []SourceItem) string
}

// WindowProcessor is the external capability a formatted window is handed to.
type WindowProcessor interface {
	Process(ctx context.Context, windowText string, meta WindowMeta) (*WindowOutcome, error)
}
