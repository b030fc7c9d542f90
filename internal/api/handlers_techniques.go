package api

import (
	"net/http"

	"focusift/internal/catalog"
)

type TechniqueHandler struct {
	catalog *catalog.Catalog
}

func NewTechniqueHandler(cat *catalog.Catalog) *TechniqueHandler {
	return &TechniqueHandler{catalog: cat}
}

// List handles GET /api/techniques?category=&level=
func (h *TechniqueHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeJSON(w, http.StatusOK, []catalog.Technique{})
		return
	}

	q := r.URL.Query()
	cat := catalog.Category(q.Get("category"))
	lvl := catalog.Level(q.Get("level"))
	if cat != "" && !cat.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category: "+string(cat))
		return
	}
	if lvl != "" && !lvl.Valid() {
		writeError(w, http.StatusBadRequest, "unknown level: "+string(lvl))
		return
	}

	writeJSON(w, http.StatusOK, h.catalog.Filter(cat, lvl))
}
