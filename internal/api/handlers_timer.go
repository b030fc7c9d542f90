package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"focusift/internal/session"
)

// eventBuffer is how many events a slow SSE client may lag behind before
// it starts missing them.
const eventBuffer = 64

type TimerHandler struct {
	registry *session.Registry
}

func NewTimerHandler(reg *session.Registry) *TimerHandler {
	return &TimerHandler{registry: reg}
}

type startRequest struct {
	// Minutes is accepted as a JSON number or string and validated as
	// user input.
	Minutes json.RawMessage `json:"minutes"`
}

func (req startRequest) input() string {
	raw := req.Minutes
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

type visibilityRequest struct {
	Hidden *bool `json:"hidden"`
}

// Start handles POST /api/timer/start
func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, ok := controllerFor(h.registry, w, r)
	if !ok {
		return
	}

	st, err := c.Start(r.Context(), req.input())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Stop handles POST /api/timer/stop
func (h *TimerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFor(h.registry, w, r)
	if !ok {
		return
	}
	st, err := c.Stop(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Visibility handles POST /api/timer/visibility
func (h *TimerHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Hidden == nil {
		writeError(w, http.StatusBadRequest, "hidden is required")
		return
	}
	c, ok := controllerFor(h.registry, w, r)
	if !ok {
		return
	}

	c.Signal(*req.Hidden)
	writeJSON(w, http.StatusAccepted, map[string]bool{"hidden": *req.Hidden})
}

// Status handles GET /api/timer/status
func (h *TimerHandler) Status(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFor(h.registry, w, r)
	if !ok {
		return
	}
	st, err := c.Status(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Events handles GET /api/timer/events as a server-sent event stream. The
// first message is the current status; every controller event follows.
func (h *TimerHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	c, ok := controllerFor(h.registry, w, r)
	if !ok {
		return
	}

	events, cancel := c.Subscribe(eventBuffer)
	defer cancel()

	st, err := c.Status(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "status", st); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, string(e.Type), e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
