package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/Harshitk-cp/credence/internal/store"
	"go.uber.org/zap"
)

// Window processing defaults.
const (
	DefaultWindowSize      = 20
	DefaultOverlapSize     = 2
	DefaultTriggerInterval = 4
)

// WindowConfig tunes how much of a growing source is (re-)analyzed per call.
type WindowConfig struct {
	WindowSize      int
	OverlapSize     int
	TriggerInterval int
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		WindowSize:      DefaultWindowSize,
		OverlapSize:     DefaultOverlapSize,
		TriggerInterval: DefaultTriggerInterval,
	}
}

// IncrementalProcessor decides whether new content in an ordered source
// warrants analysis, formats a window, dedups it by content hash, and hands
// it to the external processing capability. Bookmarks only advance; calls
// for the same source id are serialized, distinct sources run independently.
type IncrementalProcessor struct {
	history   domain.HistoryStore
	formatter domain.WindowFormatter
	processor domain.WindowProcessor
	logger    *zap.Logger
	cfg       WindowConfig

	mu      sync.Mutex
	sources map[string]*sync.Mutex
}

func NewIncrementalProcessor(
	history domain.HistoryStore,
	formatter domain.WindowFormatter,
	processor domain.WindowProcessor,
	cfg WindowConfig,
	logger *zap.Logger,
) *IncrementalProcessor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = DefaultOverlapSize
	}
	if cfg.TriggerInterval <= 0 {
		cfg.TriggerInterval = DefaultTriggerInterval
	}
	return &IncrementalProcessor{
		history:   history,
		formatter: formatter,
		processor: processor,
		logger:    logger,
		cfg:       cfg,
		sources:   make(map[string]*sync.Mutex),
	}
}

func (p *IncrementalProcessor) sourceLock(sourceID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.sources[sourceID]
	if !ok {
		l = &sync.Mutex{}
		p.sources[sourceID] = l
	}
	return l
}

// Analyze processes the source only if at least TriggerInterval items have
// arrived since the last bookmark. A nil outcome with nil error means no
// work was warranted.
func (p *IncrementalProcessor) Analyze(ctx context.Context, source domain.WindowSource, contextID string) (*domain.WindowOutcome, error) {
	return p.analyze(ctx, source, contextID, false)
}

// AnalyzeNow skips the trigger gate but still honours content-hash dedup.
// An empty source is a no-op.
func (p *IncrementalProcessor) AnalyzeNow(ctx context.Context, source domain.WindowSource, contextID string) (*domain.WindowOutcome, error) {
	return p.analyze(ctx, source, contextID, true)
}

func (p *IncrementalProcessor) analyze(ctx context.Context, source domain.WindowSource, contextID string, force bool) (*domain.WindowOutcome, error) {
	lock := p.sourceLock(source.ID())
	lock.Lock()
	defer lock.Unlock()

	size, err := source.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("source size: %w", err)
	}
	if size == 0 {
		return nil, nil
	}

	lastIndex := 0
	bookmark, err := p.history.GetLastBookmark(ctx, source.ID())
	switch {
	case err == nil:
		lastIndex = bookmark.LastIndex
	case errors.Is(err, store.ErrNotFound):
		// First sight of this source.
	default:
		return nil, fmt.Errorf("read bookmark: %w", err)
	}

	newItems := size - lastIndex
	if !force && newItems < p.cfg.TriggerInterval {
		return nil, nil
	}

	startIndex := lastIndex - p.cfg.OverlapSize
	if startIndex < 0 {
		startIndex = 0
	}
	endIndex := startIndex + p.cfg.WindowSize
	if endIndex > size {
		endIndex = size
	}

	items, err := source.Slice(ctx, startIndex, endIndex)
	if err != nil {
		return nil, fmt.Errorf("read source window: %w", err)
	}

	text := p.formatter.Format(items)
	hash := contentHash(text)

	processed, err := p.history.IsProcessed(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check window hash: %w", err)
	}
	if processed {
		p.logger.Debug("window already processed, skipping",
			zap.String("source_id", source.ID()),
			zap.String("hash", hash))
		return nil, nil
	}

	meta := domain.WindowMeta{
		SourceID:    source.ID(),
		ContextID:   contextID,
		StartIndex:  startIndex,
		EndIndex:    endIndex,
		ContentHash: hash,
	}

	outcome, err := p.processor.Process(ctx, text, meta)
	if err != nil {
		// No bookmark advance on failure; the window stays eligible.
		return nil, fmt.Errorf("process window: %w", err)
	}

	record := &domain.ProcessedWindow{
		SourceID:    source.ID(),
		EndIndex:    endIndex,
		ContentHash: hash,
		ProcessedAt: time.Now(),
	}
	if err := p.history.RecordProcessed(ctx, record); err != nil {
		return nil, fmt.Errorf("record processed window: %w", err)
	}

	p.logger.Info("window processed",
		zap.String("source_id", source.ID()),
		zap.Int("start", startIndex),
		zap.Int("end", endIndex),
		zap.Int("extracted", outcome.Extracted))

	return outcome, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// TranscriptFormatter renders source items one per line as "role: text".
type TranscriptFormatter struct{}

func (TranscriptFormatter) Format(items []domain.SourceItem) string {
	var sb strings.Builder
	for _, item := range items {
		if item.Role != "" {
			sb.WriteString(item.Role)
			sb.WriteString(": ")
		}
		sb.WriteString(item.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// SliceSource adapts an in-memory item list to the WindowSource contract.
type SliceSource struct {
	SourceID string
	Items    []domain.SourceItem
}

func (s *SliceSource) ID() string { return s.SourceID }

func (s *SliceSource) Size(ctx context.Context) (int, error) {
	return len(s.Items), nil
}

func (s *SliceSource) Slice(ctx context.Context, start, end int) ([]domain.SourceItem, error) {
	if start < 0 || end > len(s.Items) || start > end {
		return nil, fmt.Errorf("window [%d,%d) out of range for %d items", start, end, len(s.Items))
	}
	return s.Items[start:end], nil
}
