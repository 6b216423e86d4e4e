package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/credence/internal/domain"
	"go.uber.org/zap"
)

const defaultSweepInterval = 6 * time.Hour

// SweepResult summarizes one deduplication sweep across all contexts.
type SweepResult struct {
	ContextsSwept   int `json:"contexts_swept"`
	ClustersFound   int `json:"clusters_found"`
	LargestCluster  int `json:"largest_cluster"`
	PropositionsHit int `json:"propositions_hit"`
}

// SweepService periodically runs the clustering engine over every context
// and reports residual near-duplicates. It is read-only: surfacing
// consolidation opportunities is its job, acting on them is not.
type SweepService struct {
	store    domain.PropositionStore
	clusters *ClusterEngine
	logger   *zap.Logger

	threshold float32
	topK      int
	interval  time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewSweepService(store domain.PropositionStore, clusters *ClusterEngine, logger *zap.Logger) *SweepService {
	return &SweepService{
		store:     store,
		clusters:  clusters,
		logger:    logger,
		threshold: DefaultClusterThreshold,
		topK:      DefaultClusterTopK,
		interval:  defaultSweepInterval,
		stopCh:    make(chan struct{}),
	}
}

func (s *SweepService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *SweepService) SetThreshold(threshold float32, topK int) {
	if threshold > 0 {
		s.threshold = threshold
	}
	if topK > 0 {
		s.topK = topK
	}
}

func (s *SweepService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sweep worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				s.RunSweep(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("sweep worker stopped")
				return
			}
		}
	}()
}

func (s *SweepService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *SweepService) RunSweep(ctx context.Context) *SweepResult {
	result := &SweepResult{}

	contexts, err := s.store.ListContextIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list contexts for sweep", zap.Error(err))
		return result
	}

	active := domain.StatusActive
	for _, contextID := range contexts {
		clusters, err := s.clusters.FindClustersInStore(ctx,
			domain.PropositionQuery{ContextID: contextID, Status: &active},
			s.threshold, s.topK)
		if err != nil {
			s.logger.Error("sweep failed for context",
				zap.String("context_id", contextID),
				zap.Error(err))
			continue
		}

		result.ContextsSwept++
		result.ClustersFound += len(clusters)
		for _, c := range clusters {
			result.PropositionsHit += 1 + len(c.Similar)
			if len(c.Similar) > result.LargestCluster {
				result.LargestCluster = len(c.Similar)
			}
		}

		if len(clusters) > 0 {
			s.logger.Info("sweep found consolidation candidates",
				zap.String("context_id", contextID),
				zap.Int("clusters", len(clusters)),
				zap.Int("largest", len(clusters[0].Similar)))
		}
	}

	return result
}
