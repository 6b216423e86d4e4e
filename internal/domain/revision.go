package domain

import "github.com/google/uuid"

// Relation is the classifier's judgment of how a new statement relates to an
// existing proposition.
type Relation string

const (
	RelationIdentical     Relation = "identical"
	RelationSimilar       Relation = "similar"
	RelationContradictory Relation = "contradictory"
	RelationUnrelated     Relation = "unrelated"
)

func ValidRelation(r string) bool {
	switch Relation(r) {
	case RelationIdentical, RelationSimilar, RelationContradictory, RelationUnrelated:
		return true
	}
	return false
}

// RelationJudgment is one classifier verdict about a candidate proposition.
// Candidates absent from a classifier response are treated as unrelated.
type RelationJudgment struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Relation    Relation  `json:"relation"`
	Score       float32   `json:"score"`
	Reasoning   string    `json:"reasoning,omitempty"`
}

// RevisionKind tags the outcome of revising one proposition against the store.
type RevisionKind string

const (
	RevisionNew          RevisionKind = "new"
	RevisionMerged       RevisionKind = "merged"
	RevisionReinforced   RevisionKind = "reinforced"
	RevisionContradicted RevisionKind = "contradicted"
)

// RevisionResult is the tagged outcome of one revision call. Exactly one kind
// applies and no variant loses data:
//
//   - new: Revised is the incoming proposition, persisted unchanged; Original is nil.
//   - merged: Original is the pre-merge record, Revised the merged record saved
//     under the original id.
//   - reinforced: Original is the pre-boost record, Revised the reinforced record.
//   - contradicted: Original is the demoted original (status contradicted,
//     reduced confidence), Revised the incoming proposition persisted separately.
type RevisionResult struct {
	Kind     RevisionKind `json:"kind"`
	Original *Proposition `json:"original,omitempty"`
	Revised  *Proposition `json:"revised"`
}
