package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"stat7/core"
)

type RetrievalController struct {
	engine *core.RetrievalEngine
}

func NewRetrievalController(e *core.RetrievalEngine) *RetrievalController {
	return &RetrievalController{engine: e}
}

type retrieveRequest struct {
	Mode                string  `json:"mode"`
	SemanticQuery       string  `json:"semantic_query"`
	SeedAnchorIDs       []string `json:"seed_anchor_ids"`
	Realm               string  `json:"realm"`
	Horizon             string  `json:"horizon"`
	MaxResults          int     `json:"max_results"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	ExcludeConflicts    bool    `json:"exclude_conflicts"`
	IncludeProvenance   bool    `json:"include_provenance"`
	ProvenanceDepth     int     `json:"provenance_depth"`
}

// Retrieve handles POST /retrieve.
func (c *RetrievalController) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := core.Query{
		Mode:                core.QueryMode(req.Mode),
		SemanticQuery:       req.SemanticQuery,
		SeedAnchorIDs:       req.SeedAnchorIDs,
		MaxResults:          req.MaxResults,
		ConfidenceThreshold: req.ConfidenceThreshold,
		ExcludeConflicts:    req.ExcludeConflicts,
		IncludeProvenance:   req.IncludeProvenance,
		ProvenanceDepth:     req.ProvenanceDepth,
	}
	if req.Realm != "" || req.Horizon != "" {
		cf := &core.CoordFilter{}
		if req.Realm != "" {
			realm := core.Realm(req.Realm)
			cf.Realm = &realm
		}
		if req.Horizon != "" {
			horizon := core.Horizon(req.Horizon)
			cf.Horizon = &horizon
		}
		q.CoordFilter = cf
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	assembly, err := c.engine.Retrieve(ctx, q)
	if err != nil {
		switch err {
		case core.ErrRetrievalTimeout:
			writeError(w, http.StatusGatewayTimeout, err)
		case core.ErrRetrievalCancelled:
			writeError(w, http.StatusRequestTimeout, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, assembly)
}
