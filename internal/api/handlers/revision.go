package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/Harshitk-cp/credence/internal/service"
)

type RevisionHandler struct {
	engine *service.RevisionEngine
}

func NewRevisionHandler(engine *service.RevisionEngine) *RevisionHandler {
	return &RevisionHandler{engine: engine}
}

type reviseRequest struct {
	ContextID  string   `json:"context_id"`
	Text       string   `json:"text"`
	Confidence float32  `json:"confidence"`
	Decay      float32  `json:"decay"`
	Importance float32  `json:"importance,omitempty"`
	Grounding  []string `json:"grounding,omitempty"`
}

func (r reviseRequest) toProposition() (*domain.Proposition, error) {
	prop, err := domain.NewProposition(r.ContextID, r.Text, r.Confidence, r.Decay)
	if err != nil {
		return nil, err
	}
	if r.Importance > 0 && r.Importance <= 1 {
		prop.Importance = r.Importance
	}
	if len(r.Grounding) > 0 {
		grounded := prop.WithGrounding(r.Grounding...)
		prop = &grounded
	}
	return prop, nil
}

// Revise runs a single proposition through the revision pipeline and
// returns the outcome kind plus the affected records.
func (h *RevisionHandler) Revise(w http.ResponseWriter, r *http.Request) {
	var req reviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prop, err := req.toProposition()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.engine.Revise(r.Context(), prop)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "revision failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type reviseBatchRequest struct {
	Propositions []reviseRequest `json:"propositions"`
}

type reviseBatchResponse struct {
	Results []domain.RevisionResult `json:"results"`
	Count   int                     `json:"count"`
}

// ReviseBatch processes propositions in order; each element sees the store
// state left by the previous ones.
func (h *RevisionHandler) ReviseBatch(w http.ResponseWriter, r *http.Request) {
	var req reviseBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Propositions) == 0 {
		writeError(w, http.StatusBadRequest, "propositions is required")
		return
	}

	props := make([]*domain.Proposition, 0, len(req.Propositions))
	for _, pr := range req.Propositions {
		prop, err := pr.toProposition()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		props = append(props, prop)
	}

	results, err := h.engine.ReviseAll(r.Context(), props)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "batch revision failed")
		return
	}

	writeJSON(w, http.StatusOK, reviseBatchResponse{
		Results: results,
		Count:   len(results),
	})
}
