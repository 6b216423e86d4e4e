package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/Harshitk-cp/credence/internal/llm"
	"github.com/Harshitk-cp/credence/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockPropositionStore implements domain.PropositionStore for testing.
type mockPropositionStore struct {
	props     map[uuid.UUID]*domain.Proposition
	createErr error
}

func newMockPropositionStore() *mockPropositionStore {
	return &mockPropositionStore{props: make(map[uuid.UUID]*domain.Proposition)}
}

func (m *mockPropositionStore) Create(ctx context.Context, p *domain.Proposition) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *p
	m.props[p.ID] = &cp
	return nil
}

func (m *mockPropositionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Proposition, error) {
	p, ok := m.props[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPropositionStore) Save(ctx context.Context, p *domain.Proposition) error {
	if _, ok := m.props[p.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	m.props[p.ID] = &cp
	return nil
}

func (m *mockPropositionStore) SearchSimilar(ctx context.Context, contextID string, embedding []float32, topK int, threshold float32) ([]domain.PropositionWithScore, error) {
	var results []domain.PropositionWithScore
	for _, p := range m.props {
		if p.ContextID != contextID || p.Status != domain.StatusActive || len(p.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(embedding, p.Embedding)
		if score >= threshold {
			results = append(results, domain.PropositionWithScore{Proposition: *p, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *mockPropositionStore) List(ctx context.Context, q domain.PropositionQuery) ([]domain.Proposition, error) {
	var results []domain.Proposition
	for _, p := range m.props {
		if q.Matches(p) {
			results = append(results, *p)
		}
	}
	return results, nil
}

func (m *mockPropositionStore) CountByContext(ctx context.Context, contextID string) (int, error) {
	count := 0
	for _, p := range m.props {
		if p.ContextID == contextID {
			count++
		}
	}
	return count, nil
}

func (m *mockPropositionStore) ListContextIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range m.props {
		if !seen[p.ContextID] {
			seen[p.ContextID] = true
			ids = append(ids, p.ContextID)
		}
	}
	return ids, nil
}

// mockEmbedder returns a fixed vector so revision tests can pin candidate
// retrieval via explicit embeddings instead.
type mockEmbedder struct {
	vec []float32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return append([]float32(nil), m.vec...), nil
}

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func within(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func setupRevisionTest() (*RevisionEngine, *mockPropositionStore, *llm.MockClient) {
	propStore := newMockPropositionStore()
	classifier := llm.NewMockClient()
	engine := NewRevisionEngine(propStore, &mockEmbedder{vec: []float32{1, 0, 0}}, classifier, testLogger())
	return engine, propStore, classifier
}

func seedProposition(t *testing.T, s *mockPropositionStore, confidence, decay float32, embedding []float32) *domain.Proposition {
	t.Helper()
	p, err := domain.NewProposition("ctx-1", "User prefers dark mode", confidence, decay)
	if err != nil {
		t.Fatalf("seed proposition: %v", err)
	}
	p.Embedding = embedding
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("seed create: %v", err)
	}
	return p
}

func newStatement(t *testing.T, confidence, decay float32, embedding []float32) *domain.Proposition {
	t.Helper()
	p, err := domain.NewProposition("ctx-1", "User likes dark themes", confidence, decay)
	if err != nil {
		t.Fatalf("new statement: %v", err)
	}
	p.Embedding = embedding
	return p
}

func TestRevisionEngine_EmptyStore_StoresAsNew(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	prop := newStatement(t, 0.8, 0.2, []float32{1, 0, 0})
	result, err := engine.Revise(ctx, prop)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Kind != domain.RevisionNew {
		t.Fatalf("expected kind new, got %s", result.Kind)
	}
	if len(propStore.props) != 1 {
		t.Fatalf("expected 1 stored proposition, got %d", len(propStore.props))
	}
	// No candidates means the classifier is never consulted
	if len(classifier.ClassifyRelationsCalls) != 0 {
		t.Fatalf("expected classifier not to be called, got %d calls", len(classifier.ClassifyRelationsCalls))
	}
}

func TestRevisionEngine_IdenticalMerges(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	existing := seedProposition(t, propStore, 0.8, 0.0, []float32{1, 0, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: existing.ID, Relation: domain.RelationIdentical, Score: 0.95},
	}

	prop := newStatement(t, 0.9, 0.1, []float32{1, 0, 0})
	prop.Grounding = []string{"conversation-2:0-5"}

	result, err := engine.Revise(ctx, prop)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Kind != domain.RevisionMerged {
		t.Fatalf("expected kind merged, got %s", result.Kind)
	}
	// 0.8 + 0.9*0.3 = 1.07 clamps at 0.99
	if !within(result.Revised.Confidence, 0.99) {
		t.Fatalf("expected merged confidence 0.99, got %f", result.Revised.Confidence)
	}
	// (0.0 + 0.1) / 2
	if !within(result.Revised.Decay, 0.05) {
		t.Fatalf("expected merged decay 0.05, got %f", result.Revised.Decay)
	}
	if result.Revised.ID != existing.ID {
		t.Fatal("expected merge to keep the original id")
	}
	if result.Revised.Text != existing.Text {
		t.Fatal("expected merge to keep the original text")
	}
	if len(propStore.props) != 1 {
		t.Fatalf("expected merge to not add a record, got %d", len(propStore.props))
	}
	if len(result.Revised.Grounding) != 1 || result.Revised.Grounding[0] != "conversation-2:0-5" {
		t.Fatalf("expected merged grounding to absorb the new source, got %v", result.Revised.Grounding)
	}
}

func TestRevisionEngine_ContradictionDemotesAndKeepsBoth(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	existing := seedProposition(t, propStore, 0.9, 0.1, []float32{1, 0, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: existing.ID, Relation: domain.RelationContradictory, Score: 0.9},
	}

	prop := newStatement(t, 0.75, 0.2, []float32{1, 0, 0})
	result, err := engine.Revise(ctx, prop)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Kind != domain.RevisionContradicted {
		t.Fatalf("expected kind contradicted, got %s", result.Kind)
	}
	// 0.9 * 0.3 = 0.27
	if !within(result.Original.Confidence, 0.27) {
		t.Fatalf("expected demoted confidence 0.27, got %f", result.Original.Confidence)
	}
	if result.Original.Status != domain.StatusContradicted {
		t.Fatalf("expected contradicted status, got %s", result.Original.Status)
	}
	if result.Revised.Status != domain.StatusActive {
		t.Fatalf("expected new proposition active, got %s", result.Revised.Status)
	}
	// Both records survive
	if len(propStore.props) != 2 {
		t.Fatalf("expected 2 stored propositions, got %d", len(propStore.props))
	}
}

func TestRevisionEngine_ContradictionConfidenceFloor(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	existing := seedProposition(t, propStore, 0.1, 0.1, []float32{1, 0, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: existing.ID, Relation: domain.RelationContradictory, Score: 0.9},
	}

	result, err := engine.Revise(ctx, newStatement(t, 0.8, 0.2, []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// 0.1 * 0.3 = 0.03 clamps up to the 0.05 floor
	if !within(result.Original.Confidence, 0.05) {
		t.Fatalf("expected floored confidence 0.05, got %f", result.Original.Confidence)
	}
}

func TestRevisionEngine_SimilarReinforces(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	existing := seedProposition(t, propStore, 0.7, 0.2, []float32{1, 0, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: existing.ID, Relation: domain.RelationSimilar, Score: 0.8},
	}

	prop := newStatement(t, 0.8, 0.2, []float32{1, 0, 0})
	result, err := engine.Revise(ctx, prop)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Kind != domain.RevisionReinforced {
		t.Fatalf("expected kind reinforced, got %s", result.Kind)
	}
	// 0.7 + 0.8*0.1 = 0.78
	if !within(result.Revised.Confidence, 0.78) {
		t.Fatalf("expected reinforced confidence 0.78, got %f", result.Revised.Confidence)
	}
	if len(propStore.props) != 1 {
		t.Fatalf("expected reinforcement to not add a record, got %d", len(propStore.props))
	}
}

func TestRevisionEngine_ReinforceClampsAtCap(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	existing := seedProposition(t, propStore, 0.94, 0.2, []float32{1, 0, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: existing.ID, Relation: domain.RelationSimilar, Score: 0.8},
	}

	result, err := engine.Revise(ctx, newStatement(t, 0.9, 0.2, []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !within(result.Revised.Confidence, 0.95) {
		t.Fatalf("expected reinforced confidence capped at 0.95, got %f", result.Revised.Confidence)
	}
}

func TestRevisionEngine_IdenticalWinsOverContradictory(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	first := seedProposition(t, propStore, 0.8, 0.1, []float32{1, 0, 0})
	second := seedProposition(t, propStore, 0.8, 0.1, []float32{0.9, 0.1, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: second.ID, Relation: domain.RelationContradictory, Score: 0.99},
		{CandidateID: first.ID, Relation: domain.RelationIdentical, Score: 0.6},
	}

	result, err := engine.Revise(ctx, newStatement(t, 0.8, 0.1, []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Kind != domain.RevisionMerged {
		t.Fatalf("expected identical to take priority, got %s", result.Kind)
	}
	if result.Revised.ID != first.ID {
		t.Fatal("expected merge into the identical candidate")
	}
}

func TestRevisionEngine_HighestScoringSimilarWins(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	weaker := seedProposition(t, propStore, 0.6, 0.1, []float32{1, 0, 0})
	stronger := seedProposition(t, propStore, 0.6, 0.1, []float32{0.9, 0.1, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: weaker.ID, Relation: domain.RelationSimilar, Score: 0.6},
		{CandidateID: stronger.ID, Relation: domain.RelationSimilar, Score: 0.9},
	}

	result, err := engine.Revise(ctx, newStatement(t, 0.8, 0.1, []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Kind != domain.RevisionReinforced {
		t.Fatalf("expected kind reinforced, got %s", result.Kind)
	}
	if result.Revised.ID != stronger.ID {
		t.Fatal("expected the highest-scoring similar candidate to be reinforced")
	}
}

func TestRevisionEngine_ClassifierFailureDegradesToNew(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	seedProposition(t, propStore, 0.8, 0.1, []float32{1, 0, 0})
	classifier.ClassifyRelationsError = errors.New("model timeout")

	result, err := engine.Revise(ctx, newStatement(t, 0.8, 0.1, []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("expected classification failure to degrade, got %v", err)
	}
	if result.Kind != domain.RevisionNew {
		t.Fatalf("expected kind new, got %s", result.Kind)
	}
	if len(propStore.props) != 2 {
		t.Fatalf("expected new proposition stored alongside existing, got %d", len(propStore.props))
	}
}

func TestRevisionEngine_CancellationPropagates(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()

	seedProposition(t, propStore, 0.8, 0.1, []float32{1, 0, 0})

	ctx, cancel := context.WithCancel(context.Background())
	classifier.ClassifyRelationsFunc = func(statement string, candidates []domain.Proposition) ([]domain.RelationJudgment, error) {
		cancel()
		return nil, ctx.Err()
	}

	_, err := engine.Revise(ctx, newStatement(t, 0.8, 0.1, []float32{1, 0, 0}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// Cancelled revision must not persist the new proposition
	if len(propStore.props) != 1 {
		t.Fatalf("expected only the seeded proposition, got %d", len(propStore.props))
	}
}

func TestRevisionEngine_UnknownCandidateDropped(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	seedProposition(t, propStore, 0.8, 0.1, []float32{1, 0, 0})
	classifier.ClassifyRelationsResponse = []domain.RelationJudgment{
		{CandidateID: uuid.New(), Relation: domain.RelationIdentical, Score: 0.95},
	}

	result, err := engine.Revise(ctx, newStatement(t, 0.8, 0.1, []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Kind != domain.RevisionNew {
		t.Fatalf("expected unknown candidate to be dropped, got %s", result.Kind)
	}
}

func TestRevisionEngine_InvalidPropositionRejected(t *testing.T) {
	engine, propStore, _ := setupRevisionTest()
	ctx := context.Background()

	prop := &domain.Proposition{ID: uuid.New(), ContextID: "ctx-1", Text: "too sure", Confidence: 1.5}
	if _, err := engine.Revise(ctx, prop); err == nil {
		t.Fatal("expected validation error for confidence > 1")
	}
	if len(propStore.props) != 0 {
		t.Fatal("expected nothing stored after validation failure")
	}
}

func TestRevisionEngine_ReviseAll_LaterElementsSeeEarlierState(t *testing.T) {
	engine, propStore, classifier := setupRevisionTest()
	ctx := context.Background()

	// Judge everything identical to whatever candidate is retrieved first.
	classifier.ClassifyRelationsFunc = func(statement string, candidates []domain.Proposition) ([]domain.RelationJudgment, error) {
		if len(candidates) == 0 {
			return nil, nil
		}
		return []domain.RelationJudgment{
			{CandidateID: candidates[0].ID, Relation: domain.RelationIdentical, Score: 0.95},
		}, nil
	}

	first := newStatement(t, 0.8, 0.2, []float32{1, 0, 0})
	second := newStatement(t, 0.9, 0.2, []float32{1, 0, 0})

	results, err := engine.ReviseAll(ctx, []*domain.Proposition{first, second})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Kind != domain.RevisionNew {
		t.Fatalf("expected first element new, got %s", results[0].Kind)
	}
	if results[1].Kind != domain.RevisionMerged {
		t.Fatalf("expected second element merged into the first, got %s", results[1].Kind)
	}
	if len(propStore.props) != 1 {
		t.Fatalf("expected 1 stored proposition after merge, got %d", len(propStore.props))
	}
}
