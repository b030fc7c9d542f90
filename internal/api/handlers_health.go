package api

import (
	"net/http"

	"focusift/internal/catalog"
	"focusift/internal/session"
	"focusift/internal/storage"
)

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     string       `json:"status"`
	DB         ServiceCheck `json:"db"`
	Techniques int          `json:"techniques"`
	Users      int          `json:"activeUsers"`
}

type HealthHandler struct {
	store    storage.Storage
	catalog  *catalog.Catalog
	registry *session.Registry
}

func NewHealthHandler(store storage.Storage, cat *catalog.Catalog, reg *session.Registry) *HealthHandler {
	return &HealthHandler{store: store, catalog: cat, registry: reg}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", DB: ServiceCheck{Status: "ok"}}

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			resp.DB = ServiceCheck{Status: "error", Message: err.Error()}
			resp.Status = "degraded"
		}
	}
	if h.catalog != nil {
		resp.Techniques = h.catalog.Len()
	}
	if h.registry != nil {
		resp.Users = len(h.registry.Users())
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
