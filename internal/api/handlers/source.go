package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/Harshitk-cp/credence/internal/service"
	"github.com/go-chi/chi/v5"
)

type SourceHandler struct {
	processor *service.IncrementalProcessor
}

func NewSourceHandler(processor *service.IncrementalProcessor) *SourceHandler {
	return &SourceHandler{processor: processor}
}

type analyzeSourceRequest struct {
	ContextID string              `json:"context_id"`
	Items     []domain.SourceItem `json:"items"`
	Force     bool                `json:"force,omitempty"`
}

type analyzeSourceResponse struct {
	Analyzed  bool                    `json:"analyzed"`
	Extracted int                     `json:"extracted"`
	Revisions []domain.RevisionResult `json:"revisions,omitempty"`
}

// Analyze submits the current state of an ordered source for incremental
// processing. The caller posts the full item list; bookmarks and content
// hashes decide how much of it actually gets analyzed. With force=true the
// new-item trigger gate is skipped.
func (h *SourceHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "id")
	if sourceID == "" {
		writeError(w, http.StatusBadRequest, "source id is required")
		return
	}

	var req analyzeSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContextID == "" {
		writeError(w, http.StatusBadRequest, "context_id is required")
		return
	}

	source := &service.SliceSource{SourceID: sourceID, Items: req.Items}

	var (
		outcome *domain.WindowOutcome
		err     error
	)
	if req.Force {
		outcome, err = h.processor.AnalyzeNow(r.Context(), source, req.ContextID)
	} else {
		outcome, err = h.processor.Analyze(r.Context(), source, req.ContextID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "source analysis failed")
		return
	}

	if outcome == nil {
		writeJSON(w, http.StatusOK, analyzeSourceResponse{Analyzed: false})
		return
	}

	writeJSON(w, http.StatusOK, analyzeSourceResponse{
		Analyzed:  true,
		Extracted: outcome.Extracted,
		Revisions: outcome.Revisions,
	})
}
