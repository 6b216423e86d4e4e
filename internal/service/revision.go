package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Revision constants. Merge and reinforcement formulas clamp where stated;
// everything else fails validation instead of clamping.
const (
	DefaultRevisionTopK      = 5
	DefaultRevisionThreshold = 0.5

	MergeConfidenceWeight      = 0.3
	MergeMaxConfidence         = 0.99
	ReinforceConfidenceWeight  = 0.1
	ReinforceMaxConfidence     = 0.95
	ContradictionPenalty       = 0.3
	ContradictionMinConfidence = 0.05
)

// RevisionEngine decides, for each incoming proposition, whether it
// duplicates, reinforces, contradicts, or extends existing knowledge, and
// issues the corresponding store mutation.
type RevisionEngine struct {
	store      domain.PropositionStore
	embedder   domain.EmbeddingClient
	classifier domain.RelationClassifier
	logger     *zap.Logger

	topK      int
	threshold float32
	decayK    float64

	// Per-id locks so two concurrent revisions targeting the same existing
	// proposition cannot race on read-modify-write.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewRevisionEngine(
	store domain.PropositionStore,
	embedder domain.EmbeddingClient,
	classifier domain.RelationClassifier,
	logger *zap.Logger,
) *RevisionEngine {
	return &RevisionEngine{
		store:      store,
		embedder:   embedder,
		classifier: classifier,
		logger:     logger,
		topK:       DefaultRevisionTopK,
		threshold:  DefaultRevisionThreshold,
		decayK:     DefaultDecayK,
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

// SetRetrieval overrides the candidate retrieval parameters.
func (e *RevisionEngine) SetRetrieval(topK int, threshold float32) {
	if topK > 0 {
		e.topK = topK
	}
	if threshold > 0 {
		e.threshold = threshold
	}
}

// SetDecayK overrides the decay rate constant used for candidate ranking.
func (e *RevisionEngine) SetDecayK(k float64) {
	e.decayK = k
}

func (e *RevisionEngine) lockFor(id uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Revise compares the new proposition to its nearest active neighbours and
// persists the outcome. The incoming proposition must validate; the result is
// always exactly one of new / merged / reinforced / contradicted.
func (e *RevisionEngine) Revise(ctx context.Context, newProp *domain.Proposition) (*domain.RevisionResult, error) {
	if err := newProp.Validate(); err != nil {
		return nil, err
	}

	if len(newProp.Embedding) == 0 {
		embedding, err := e.embedder.Embed(ctx, newProp.Text)
		if err != nil {
			return nil, fmt.Errorf("embed proposition: %w", err)
		}
		newProp.Embedding = embedding
	}

	candidates, err := e.store.SearchSimilar(ctx, newProp.ContextID, newProp.Embedding, e.topK, e.threshold)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}

	// Nothing to compare against: persist as-is without invoking the
	// classifier at all.
	if len(candidates) == 0 {
		return e.persistAsNew(ctx, newProp)
	}

	ranked := rankByEffectiveConfidence(candidates, time.Now(), e.decayK)
	candidateProps := make([]domain.Proposition, len(ranked))
	byID := make(map[uuid.UUID]*domain.PropositionWithScore, len(ranked))
	for i := range ranked {
		candidateProps[i] = ranked[i].Proposition
		byID[ranked[i].ID] = &ranked[i]
	}

	judgments, err := e.classifier.ClassifyRelations(ctx, newProp.Text, candidateProps)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A failed or malformed classification never drops the new
		// proposition; degrade to the no-match path.
		e.logger.Warn("classification failed, storing as new",
			zap.String("context_id", newProp.ContextID),
			zap.Error(err))
		return e.persistAsNew(ctx, newProp)
	}

	identical, contradictory, similar := e.bucketJudgments(judgments, byID)

	switch {
	case identical != nil:
		return e.merge(ctx, identical, newProp)
	case contradictory != nil:
		return e.contradict(ctx, contradictory, newProp)
	case similar != nil:
		return e.reinforce(ctx, similar, newProp)
	default:
		return e.persistAsNew(ctx, newProp)
	}
}

// bucketJudgments resolves the classifier output into at most one target per
// category, honouring the fixed priority identical > contradictory > similar.
// Judgments referencing unknown candidate ids are dropped; within each
// category the highest-scoring candidate wins.
func (e *RevisionEngine) bucketJudgments(
	judgments []domain.RelationJudgment,
	byID map[uuid.UUID]*domain.PropositionWithScore,
) (identical, contradictory, similar *domain.PropositionWithScore) {
	var identicalScore, contradictoryScore, similarScore float32 = -1, -1, -1

	for _, j := range judgments {
		candidate, ok := byID[j.CandidateID]
		if !ok {
			e.logger.Debug("dropping judgment for unknown candidate",
				zap.String("candidate_id", j.CandidateID.String()))
			continue
		}
		switch j.Relation {
		case domain.RelationIdentical:
			if j.Score > identicalScore {
				identical, identicalScore = candidate, j.Score
			}
		case domain.RelationContradictory:
			if j.Score > contradictoryScore {
				contradictory, contradictoryScore = candidate, j.Score
			}
		case domain.RelationSimilar:
			if j.Score > similarScore {
				similar, similarScore = candidate, j.Score
			}
		}
	}
	return identical, contradictory, similar
}

func (e *RevisionEngine) persistAsNew(ctx context.Context, p *domain.Proposition) (*domain.RevisionResult, error) {
	if err := e.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("persist new proposition: %w", err)
	}
	e.logger.Debug("proposition stored as new",
		zap.String("id", p.ID.String()),
		zap.String("context_id", p.ContextID))
	return &domain.RevisionResult{Kind: domain.RevisionNew, Revised: p}, nil
}

// merge folds the new proposition into an identical existing one. The
// original text is retained; the new statement contributes confidence and
// grounding only.
func (e *RevisionEngine) merge(ctx context.Context, target *domain.PropositionWithScore, newProp *domain.Proposition) (*domain.RevisionResult, error) {
	lock := e.lockFor(target.ID)
	lock.Lock()
	defer lock.Unlock()

	original, err := e.store.GetByID(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("load merge target: %w", err)
	}

	confidence := original.Confidence + newProp.Confidence*MergeConfidenceWeight
	if confidence > MergeMaxConfidence {
		confidence = MergeMaxConfidence
	}

	merged, err := original.WithConfidence(confidence)
	if err != nil {
		return nil, err
	}
	merged, err = merged.WithDecay((original.Decay + newProp.Decay) / 2)
	if err != nil {
		return nil, err
	}
	merged = merged.WithGrounding(newProp.Grounding...)

	if err := e.store.Save(ctx, &merged); err != nil {
		return nil, fmt.Errorf("save merged proposition: %w", err)
	}

	e.logger.Debug("propositions merged",
		zap.String("id", original.ID.String()),
		zap.Float32("confidence", merged.Confidence))

	return &domain.RevisionResult{Kind: domain.RevisionMerged, Original: original, Revised: &merged}, nil
}

// contradict demotes the original and persists the new proposition alongside
// it. Both records survive.
func (e *RevisionEngine) contradict(ctx context.Context, target *domain.PropositionWithScore, newProp *domain.Proposition) (*domain.RevisionResult, error) {
	lock := e.lockFor(target.ID)
	lock.Lock()
	defer lock.Unlock()

	original, err := e.store.GetByID(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("load contradiction target: %w", err)
	}

	confidence := original.Confidence * ContradictionPenalty
	if confidence < ContradictionMinConfidence {
		confidence = ContradictionMinConfidence
	}

	demoted, err := original.WithConfidence(confidence)
	if err != nil {
		return nil, err
	}
	demoted = demoted.WithStatus(domain.StatusContradicted)

	if err := e.store.Save(ctx, &demoted); err != nil {
		return nil, fmt.Errorf("save contradicted proposition: %w", err)
	}
	if err := e.store.Create(ctx, newProp); err != nil {
		return nil, fmt.Errorf("persist contradicting proposition: %w", err)
	}

	e.logger.Info("proposition contradicted",
		zap.String("original_id", original.ID.String()),
		zap.String("new_id", newProp.ID.String()),
		zap.Float32("demoted_confidence", demoted.Confidence))

	return &domain.RevisionResult{Kind: domain.RevisionContradicted, Original: &demoted, Revised: newProp}, nil
}

// reinforce boosts a similar existing proposition instead of storing a
// near-duplicate.
func (e *RevisionEngine) reinforce(ctx context.Context, target *domain.PropositionWithScore, newProp *domain.Proposition) (*domain.RevisionResult, error) {
	lock := e.lockFor(target.ID)
	lock.Lock()
	defer lock.Unlock()

	original, err := e.store.GetByID(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("load reinforcement target: %w", err)
	}

	confidence := original.Confidence + newProp.Confidence*ReinforceConfidenceWeight
	if confidence > ReinforceMaxConfidence {
		confidence = ReinforceMaxConfidence
	}

	reinforced, err := original.WithConfidence(confidence)
	if err != nil {
		return nil, err
	}
	reinforced = reinforced.WithGrounding(newProp.Grounding...)

	if err := e.store.Save(ctx, &reinforced); err != nil {
		return nil, fmt.Errorf("save reinforced proposition: %w", err)
	}

	e.logger.Debug("proposition reinforced",
		zap.String("id", original.ID.String()),
		zap.Float32("confidence", reinforced.Confidence))

	return &domain.RevisionResult{Kind: domain.RevisionReinforced, Original: original, Revised: &reinforced}, nil
}

// ReviseAll processes propositions in input order; later elements see the
// store state left by earlier ones. A classification failure degrades that
// element to new; a store failure aborts the batch at that element.
func (e *RevisionEngine) ReviseAll(ctx context.Context, props []*domain.Proposition) ([]domain.RevisionResult, error) {
	results := make([]domain.RevisionResult, 0, len(props))
	for i, p := range props {
		result, err := e.Revise(ctx, p)
		if err != nil {
			return results, fmt.Errorf("revise element %d: %w", i, err)
		}
		results = append(results, *result)
	}
	return results, nil
}
