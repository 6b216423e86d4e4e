package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/credence/internal/domain"
	"go.uber.org/zap"
)

// ExtractionProcessor is the production window-processing capability: it
// extracts candidate statements from the window text and runs each through
// the revision engine. All persistence happens via the engine before the
// outcome is returned.
type ExtractionProcessor struct {
	extractor domain.Extractor
	engine    *RevisionEngine
	logger    *zap.Logger
}

func NewExtractionProcessor(extractor domain.Extractor, engine *RevisionEngine, logger *zap.Logger) *ExtractionProcessor {
	return &ExtractionProcessor{
		extractor: extractor,
		engine:    engine,
		logger:    logger,
	}
}

func (p *ExtractionProcessor) Process(ctx context.Context, windowText string, meta domain.WindowMeta) (*domain.WindowOutcome, error) {
	extracted, err := p.extractor.ExtractPropositions(ctx, windowText)
	if err != nil {
		return nil, fmt.Errorf("extract propositions: %w", err)
	}

	grounding := fmt.Sprintf("%s:%d-%d", meta.SourceID, meta.StartIndex, meta.EndIndex)

	props := make([]*domain.Proposition, 0, len(extracted))
	for _, e := range extracted {
		prop, err := domain.NewProposition(meta.ContextID, e.Text, e.Confidence, e.Decay)
		if err != nil {
			// One malformed extraction should not sink the window.
			p.logger.Warn("skipping invalid extracted proposition",
				zap.String("text", e.Text),
				zap.Error(err))
			continue
		}
		if e.Importance > 0 && e.Importance <= 1 {
			prop.Importance = e.Importance
		}
		withSource := prop.WithGrounding(grounding)
		props = append(props, &withSource)
	}

	revisions, err := p.engine.ReviseAll(ctx, props)
	if err != nil {
		return nil, fmt.Errorf("revise extracted propositions: %w", err)
	}

	return &domain.WindowOutcome{
		Extracted: len(props),
		Revisions: revisions,
	}, nil
}
