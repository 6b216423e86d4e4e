package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/google/uuid"
)

// Client bundles the two language-model capabilities the engine needs.
type Client interface {
	domain.RelationClassifier
	domain.Extractor
}

// Provider constants
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// NewClient creates an LLM client based on the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewClient(provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(apiKey), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicClient(apiKey), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid options: openai, anthropic, mock)", provider)
	}
}

func formatCandidates(candidates []domain.Proposition) string {
	var sb strings.Builder
	for i, c := range candidates {
		sb.WriteString(fmt.Sprintf("%d. [id: %s] %s\n", i+1, c.ID, c.Text))
	}
	return sb.String()
}

// stripFences removes markdown code fences models sometimes wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

type wireJudgment struct {
	ID        string  `json:"id"`
	Relation  string  `json:"relation"`
	Score     float32 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// parseJudgments decodes classifier output. Entries with unparseable ids are
// skipped; unrecognized relations degrade to unrelated rather than failing
// the whole classification.
func parseJudgments(raw string) ([]domain.RelationJudgment, error) {
	raw = stripFences(raw)

	var wire []wireJudgment
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse classification result: %w (raw: %s)", err, raw)
	}

	judgments := make([]domain.RelationJudgment, 0, len(wire))
	for _, w := range wire {
		id, err := uuid.Parse(w.ID)
		if err != nil {
			continue
		}
		relation := domain.Relation(w.Relation)
		if !domain.ValidRelation(string(relation)) {
			relation = domain.RelationUnrelated
		}
		judgments = append(judgments, domain.RelationJudgment{
			CandidateID: id,
			Relation:    relation,
			Score:       w.Score,
			Reasoning:   w.Reasoning,
		})
	}
	return judgments, nil
}
