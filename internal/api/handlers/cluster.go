package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/Harshitk-cp/credence/internal/service"
)

type ClusterHandler struct {
	engine *service.ClusterEngine
	sweep  *service.SweepService
}

func NewClusterHandler(engine *service.ClusterEngine, sweep *service.SweepService) *ClusterHandler {
	return &ClusterHandler{engine: engine, sweep: sweep}
}

type findClustersRequest struct {
	ContextID string  `json:"context_id"`
	Status    string  `json:"status,omitempty"`
	Threshold float32 `json:"threshold,omitempty"`
	TopK      int     `json:"top_k,omitempty"`
}

type findClustersResponse struct {
	Clusters []domain.ClusterResult `json:"clusters"`
	Count    int                    `json:"count"`
}

// FindClusters runs a pairwise-similarity sweep over the context's
// propositions and returns deduplication clusters, largest first.
func (h *ClusterHandler) FindClusters(w http.ResponseWriter, r *http.Request) {
	var req findClustersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContextID == "" {
		writeError(w, http.StatusBadRequest, "context_id is required")
		return
	}

	q := domain.PropositionQuery{ContextID: req.ContextID}
	if req.Status != "" {
		if !domain.ValidStatus(req.Status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status := domain.Status(req.Status)
		q.Status = &status
	} else {
		active := domain.StatusActive
		q.Status = &active
	}

	clusters, err := h.engine.FindClustersInStore(r.Context(), q, req.Threshold, req.TopK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "clustering failed")
		return
	}

	writeJSON(w, http.StatusOK, findClustersResponse{
		Clusters: clusters,
		Count:    len(clusters),
	})
}

// TriggerSweep runs the global deduplication sweep immediately instead of
// waiting for the next scheduled tick.
func (h *ClusterHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result := h.sweep.RunSweep(r.Context())
	writeJSON(w, http.StatusOK, result)
}
