package api

import (
	"net/http"

	"github.com/okian/arena/pkg/logger"
)

// ContestsHandler serves contest results for polling clients.
type ContestsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewContestsHandler creates a new contests handler.
func NewContestsHandler(deps Dependencies, log logger.Logger) *ContestsHandler {
	return &ContestsHandler{deps: deps, logger: log}
}

// HandleList handles GET /contests.
func (h *ContestsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.deps.ListContests(r.Context())
	if err != nil {
		writeDomainError(r.Context(), h.logger, w, "api.list_contests", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleGet handles GET /contests/{id}.
func (h *ContestsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Contest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), h.logger, w, "api.get_contest", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view)
}
