package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stat7/core"
)

type AnchorController struct {
	graph *core.AnchorGraph
}

func NewAnchorController(g *core.AnchorGraph) *AnchorController {
	return &AnchorController{graph: g}
}

// Get handles GET /anchors/{id}.
func (c *AnchorController) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := c.graph.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "anchor not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ByCoord handles GET /anchors/by-coord?realm=...&horizon=....
func (c *AnchorController) ByCoord(w http.ResponseWriter, r *http.Request) {
	realm := core.Realm(r.URL.Query().Get("realm"))
	var out []core.Anchor
	for _, a := range c.graph.AllSnapshot() {
		if realm != "" && a.Coord.Realm != realm {
			continue
		}
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, out)
}
