package llm

import (
	"context"

	"github.com/Harshitk-cp/credence/internal/domain"
)

// MockClient is a configurable LLM client for testing.
// Set the response fields to control what each method returns.
type MockClient struct {
	ClassifyRelationsResponse []domain.RelationJudgment
	ClassifyRelationsError    error
	ExtractResponse           []domain.ExtractedProposition
	ExtractError              error

	// ClassifyRelationsFunc overrides the static response when set, so tests
	// can make judgments depend on the candidates actually retrieved.
	ClassifyRelationsFunc func(statement string, candidates []domain.Proposition) ([]domain.RelationJudgment, error)

	// Call tracking for assertions
	ClassifyRelationsCalls []struct {
		Statement  string
		Candidates []domain.Proposition
	}
	ExtractCalls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		ClassifyRelationsResponse: []domain.RelationJudgment{},
		ExtractResponse:           []domain.ExtractedProposition{},
	}
}

func (c *MockClient) ClassifyRelations(ctx context.Context, statement string, candidates []domain.Proposition) ([]domain.RelationJudgment, error) {
	c.ClassifyRelationsCalls = append(c.ClassifyRelationsCalls, struct {
		Statement  string
		Candidates []domain.Proposition
	}{statement, candidates})
	if c.ClassifyRelationsFunc != nil {
		return c.ClassifyRelationsFunc(statement, candidates)
	}
	if c.ClassifyRelationsError != nil {
		return nil, c.ClassifyRelationsError
	}
	return c.ClassifyRelationsResponse, nil
}

func (c *MockClient) ExtractPropositions(ctx context.Context, windowText string) ([]domain.ExtractedProposition, error) {
	c.ExtractCalls = append(c.ExtractCalls, windowText)
	if c.ExtractError != nil {
		return nil, c.ExtractError
	}
	return c.ExtractResponse, nil
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.ClassifyRelationsResponse = []domain.RelationJudgment{}
	c.ClassifyRelationsError = nil
	c.ClassifyRelationsFunc = nil
	c.ExtractResponse = []domain.ExtractedProposition{}
	c.ExtractError = nil
	c.ClassifyRelationsCalls = nil
	c.ExtractCalls = nil
}
