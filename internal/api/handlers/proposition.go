package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/Harshitk-cp/credence/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type PropositionHandler struct {
	store domain.PropositionStore
}

func NewPropositionHandler(store domain.PropositionStore) *PropositionHandler {
	return &PropositionHandler{store: store}
}

type createPropositionRequest struct {
	ContextID  string   `json:"context_id"`
	Text       string   `json:"text"`
	Confidence float32  `json:"confidence"`
	Decay      float32  `json:"decay"`
	Importance float32  `json:"importance,omitempty"`
	Grounding  []string `json:"grounding,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Create stores a proposition directly, bypassing the revision pipeline.
// Useful for seeding and for callers that run their own consolidation.
func (h *PropositionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPropositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prop, err := domain.NewProposition(req.ContextID, req.Text, req.Confidence, req.Decay)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Importance > 0 && req.Importance <= 1 {
		prop.Importance = req.Importance
	}
	prop.Reasoning = req.Reasoning
	if len(req.Grounding) > 0 {
		grounded := prop.WithGrounding(req.Grounding...)
		prop = &grounded
	}

	if err := h.store.Create(r.Context(), prop); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create proposition")
		return
	}

	writeJSON(w, http.StatusCreated, prop)
}

func (h *PropositionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposition id")
		return
	}

	prop, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "proposition not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get proposition")
		return
	}

	writeJSON(w, http.StatusOK, prop)
}

type listPropositionsResponse struct {
	Propositions []domain.Proposition `json:"propositions"`
	Count        int                  `json:"count"`
}

// List returns propositions filtered by query params: context_id (required),
// status, min_level, max_level, entity_id.
func (h *PropositionHandler) List(w http.ResponseWriter, r *http.Request) {
	contextID := r.URL.Query().Get("context_id")
	if contextID == "" {
		writeError(w, http.StatusBadRequest, "context_id is required")
		return
	}

	q := domain.PropositionQuery{ContextID: contextID}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.Status(s)
		if !domain.ValidStatus(s) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		q.Status = &status
	}
	if v := r.URL.Query().Get("min_level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_level")
			return
		}
		q.MinLevel = &n
	}
	if v := r.URL.Query().Get("max_level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_level")
			return
		}
		q.MaxLevel = &n
	}
	if v := r.URL.Query().Get("entity_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid entity_id")
			return
		}
		q.EntityID = &id
	}

	props, err := h.store.List(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list propositions")
		return
	}

	writeJSON(w, http.StatusOK, listPropositionsResponse{
		Propositions: props,
		Count:        len(props),
	})
}
