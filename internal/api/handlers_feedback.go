package api

import (
	"net/http"

	"focusift/internal/feedback"
	"focusift/internal/session"
)

type FeedbackHandler struct {
	registry *session.Registry
}

func NewFeedbackHandler(reg *session.Registry) *FeedbackHandler {
	return &FeedbackHandler{registry: reg}
}

type feedbackRequest struct {
	Technique string `json:"technique"`
	Liked     *bool  `json:"liked"`
}

type feedbackResponse struct {
	Technique string         `json:"technique"`
	Entry     feedback.Entry `json:"entry"`
}

// Get handles GET /api/feedback
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFor(h.registry, w, r)
	if !ok {
		return
	}
	snap := c.FeedbackSnapshot(r.Context())
	if snap == nil {
		snap = feedback.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snap)
}

// Record handles POST /api/feedback
func (h *FeedbackHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Liked == nil {
		writeError(w, http.StatusBadRequest, "liked is required")
		return
	}
	c, ok := controllerFor(h.registry, w, r)
	if !ok {
		return
	}

	entry, err := c.Feedback(r.Context(), req.Technique, *req.Liked)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Technique: req.Technique, Entry: entry})
}
