package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Harshitk-cp/credence/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultClusterThreshold = 0.85
	DefaultClusterTopK      = 10
)

// ClusterEngine runs batch pairwise-similarity sweeps over a proposition
// population, producing deduplication clusters. It only reads embeddings;
// acting on a cluster is the caller's decision.
type ClusterEngine struct {
	store  domain.PropositionStore
	logger *zap.Logger
}

func NewClusterEngine(store domain.PropositionStore, logger *zap.Logger) *ClusterEngine {
	return &ClusterEngine{store: store, logger: logger}
}

// FindClustersInStore lists the population matching the query and clusters it.
func (e *ClusterEngine) FindClustersInStore(ctx context.Context, q domain.PropositionQuery, threshold float32, topK int) ([]domain.ClusterResult, error) {
	population, err := e.store.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list cluster population: %w", err)
	}
	return e.FindClusters(population, threshold, topK, nil), nil
}

// FindClusters groups near-duplicate propositions. The optional query filter
// is applied before any pairwise comparison. Anchor selection is
// deterministic: every qualifying unordered pair lands in the cluster
// anchored at the smaller id, and a proposition appears as a similar entry in
// at most one cluster. Singletons produce no cluster.
func (e *ClusterEngine) FindClusters(population []domain.Proposition, threshold float32, topK int, q *domain.PropositionQuery) []domain.ClusterResult {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}
	if topK <= 0 {
		topK = DefaultClusterTopK
	}

	// Filter before the O(n^2) sweep.
	var pool []domain.Proposition
	for i := range population {
		if len(population[i].Embedding) == 0 {
			continue
		}
		if q != nil && !q.Matches(&population[i]) {
			continue
		}
		pool = append(pool, population[i])
	}
	if len(pool) < 2 {
		return nil
	}

	// Ordinal id order makes anchor selection deterministic.
	sort.Slice(pool, func(i, j int) bool {
		return pool[i].ID.String() < pool[j].ID.String()
	})

	claimed := make(map[string]bool, len(pool))
	var clusters []domain.ClusterResult

	for i := 0; i < len(pool); i++ {
		anchor := pool[i]

		var entries []domain.SimilarEntry
		for j := i + 1; j < len(pool); j++ {
			if claimed[pool[j].ID.String()] {
				continue
			}
			score := cosineSimilarity(anchor.Embedding, pool[j].Embedding)
			if score >= threshold {
				entries = append(entries, domain.SimilarEntry{Proposition: pool[j], Score: score})
			}
		}
		if len(entries) == 0 {
			continue
		}

		// Keep the strongest matches; anything truncated out stays free to
		// join a later cluster.
		sort.SliceStable(entries, func(a, b int) bool {
			return entries[a].Score > entries[b].Score
		})
		if len(entries) > topK {
			entries = entries[:topK]
		}
		for _, entry := range entries {
			claimed[entry.Proposition.ID.String()] = true
		}

		clusters = append(clusters, domain.ClusterResult{Anchor: anchor, Similar: entries})
	}

	// Largest consolidation opportunities first.
	sort.SliceStable(clusters, func(a, b int) bool {
		if len(clusters[a].Similar) != len(clusters[b].Similar) {
			return len(clusters[a].Similar) > len(clusters[b].Similar)
		}
		return clusters[a].Anchor.ID.String() < clusters[b].Anchor.ID.String()
	})

	if e.logger != nil && len(clusters) > 0 {
		e.logger.Debug("clustering sweep complete",
			zap.Int("population", len(pool)),
			zap.Int("clusters", len(clusters)))
	}

	return clusters
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}
