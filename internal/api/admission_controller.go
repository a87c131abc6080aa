package api

// AdmissionController exposes C9's process_bitchain pipeline over HTTP, in
// the request-decode / service-call / JSON-encode shape of the teacher's
// walletserver controllers.

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"stat7/core"
)

type AdmissionController struct {
	orchestrator *core.Orchestrator
}

func NewAdmissionController(o *core.Orchestrator) *AdmissionController {
	return &AdmissionController{orchestrator: o}
}

type admitRequest struct {
	Realm          string  `json:"realm"`
	Lineage        uint64  `json:"lineage"`
	Adjacency      float64 `json:"adjacency"`
	Horizon        string  `json:"horizon"`
	Luminosity     float64 `json:"luminosity"`
	Polarity       string  `json:"polarity"`
	Dimensionality uint64  `json:"dimensionality"`
	Payload        string  `json:"payload"`
	Text           string  `json:"text"`
	RequesterID    string  `json:"requester_id"`
}

type admitResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status"`
	BitChainID string `json:"bitchain_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Admit handles POST /admit.
func (c *AdmissionController) Admit(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	coord, err := core.MakeCoord(
		core.Realm(req.Realm),
		req.Lineage,
		req.Adjacency,
		core.Horizon(req.Horizon),
		req.Luminosity,
		core.Polarity(req.Polarity),
		req.Dimensionality,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	bc := core.BitChain{
		Coord:   coord,
		Payload: []byte(req.Payload),
		Text:    req.Text,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := c.orchestrator.ProcessBitChain(ctx, bc, authTokenFrom(r.Context()), req.RequesterID, "admit")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, httpStatusFor(result.Status), admitResponse{
		Success:    result.Success,
		Status:     string(result.Status),
		BitChainID: result.BitChainID,
		Reason:     result.Reason,
	})
}

func httpStatusFor(status core.JourneyStatus) int {
	switch status {
	case core.StatusAdmitted, core.StatusRepaired:
		return http.StatusCreated
	case core.StatusRejectedAuth:
		return http.StatusUnauthorized
	case core.StatusRejectedPolicy:
		return http.StatusForbidden
	case core.StatusRejectedPresent, core.StatusRejectedEscape:
		return http.StatusUnprocessableEntity
	case core.StatusUnrecoverable:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}
