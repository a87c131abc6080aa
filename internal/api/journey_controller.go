package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stat7/core"
)

type JourneyController struct {
	log *core.JourneyLog
}

func NewJourneyController(jl *core.JourneyLog) *JourneyController {
	return &JourneyController{log: jl}
}

// Get handles GET /journeys/{id} — all journey entries for a bit-chain id.
func (c *JourneyController) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := c.log.ForBitChain(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Since handles GET /journeys?since=<RFC3339>.
func (c *JourneyController) Since(w http.ResponseWriter, r *http.Request) {
	sinceParam := r.URL.Query().Get("since")
	since := time.Time{}
	if sinceParam != "" {
		parsed, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		since = parsed
	}
	entries, err := c.log.Since(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
