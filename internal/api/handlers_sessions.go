package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"focusift/internal/event"
	"focusift/internal/persist"
	"focusift/internal/storage"
)

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 365
)

// SessionHandler stores and lists finished session summaries.
type SessionHandler struct {
	store     storage.Storage
	persister persist.Persister
	now       func() time.Time
}

func NewSessionHandler(store storage.Storage) *SessionHandler {
	h := &SessionHandler{store: store, now: time.Now}
	if store != nil {
		h.persister = persist.NewStorePersister(store)
	}
	return h
}

// Create handles POST /api/session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.persister == nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	var req event.SessionSummary
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if caller := GetIdentity(r).ID; caller != "" {
		if req.UserID == "" {
			req.UserID = caller
		} else if req.UserID != caller {
			writeError(w, http.StatusForbidden, "userId does not match the signed-in user")
			return
		}
	}

	rec, err := h.persister.Persist(r.Context(), req)
	if err != nil {
		if errors.Is(err, event.ErrInvalidSummary) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save session: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// List handles GET /api/sessions?days=N
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(maxHistoryDays))
			return
		}
		days = n
	}

	end := h.now()
	start := end.AddDate(0, 0, -days)
	recs, err := h.store.GetSessions(r.Context(), GetIdentity(r).ID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sessions: "+err.Error())
		return
	}
	if recs == nil {
		recs = []event.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
