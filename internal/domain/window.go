package domain

import (
	"context"
	"time"
)

// SourceItem is one element of an ordered, append-only source.
type SourceItem struct {
	Index int       `json:"index"`
	Role  string    `json:"role,omitempty"`
	Text  string    `json:"text"`
	At    time.Time `json:"at,omitzero"`
}

// WindowSource is an ordered source that grows over time, read in windows by
// the incremental processor.
type WindowSource interface {
	ID() string
	Size(ctx context.Context) (int, error)
	Slice(ctx context.Context, start, end int) ([]SourceItem, error)
}

// Bookmark records how far into a source processing has advanced. It only
// moves forward.
type Bookmark struct {
	SourceID    string    `json:"source_id"`
	LastIndex   int       `json:"last_index"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ProcessedWindow is the ledger entry written after a window has been handed
// to the processing capability. The ledger tracks what was looked at, not
// what was found.
type ProcessedWindow struct {
	SourceID    string    `json:"source_id"`
	EndIndex    int       `json:"end_index"`
	ContentHash string    `json:"content_hash"`
	ProcessedAt time.Time `json:"processed_at"`
}

// WindowMeta describes the window handed to the processing capability.
type WindowMeta struct {
	SourceID    string `json:"source_id"`
	ContextID   string `json:"context_id"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	ContentHash string `json:"content_hash"`
}

// WindowOutcome is what the external processing capability produced for one
// window. Its persistence side effects have already happened by the time it
// is returned.
type WindowOutcome struct {
	Extracted int              `json:"extracted"`
	Revisions []RevisionResult `json:"revisions,omitempty"`
}
