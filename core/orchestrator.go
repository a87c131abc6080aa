// core/orchestrator.go
package core

// Integration Orchestrator (C9) — wires the collapse gate (C6), conservator
// (C8), recovery gate (C7) and bit-chain store into the single admission
// pipeline described in spec §4.9: collapse → (recover | repair-then-recover)
// → register, every step journaled.

import (
	"context"
	"time"
)

// Orchestrator runs process_bitchain end to end.
type Orchestrator struct {
	gate        *CollapseGate
	conservator *Conservator
	recovery    *RecoveryGate
	bitchains   *BitChainStore
	anchors     *AnchorGraph
	provider    *DegradingProvider
	journey     *JourneyLog
	metrics     *HealthLogger
	limiter     *RateLimiter
}

// NewOrchestrator wires all admission-path components together. anchors,
// provider and metrics may be nil to disable anchor indexing, embedding and
// metrics recording respectively.
func NewOrchestrator(gate *CollapseGate, conservator *Conservator, recovery *RecoveryGate, bitchains *BitChainStore, anchors *AnchorGraph, provider *DegradingProvider, journey *JourneyLog, metrics *HealthLogger, limiter *RateLimiter) *Orchestrator {
	return &Orchestrator{
		gate:        gate,
		conservator: conservator,
		recovery:    recovery,
		bitchains:   bitchains,
		anchors:     anchors,
		provider:    provider,
		journey:     journey,
		metrics:     metrics,
		limiter:     limiter,
	}
}

// ProcessResult is the outcome of one admission attempt (spec §4.9).
type ProcessResult struct {
	Success    bool
	Status     JourneyStatus
	BitChainID string
	Journey    []JourneyEntry
	Reason     string
}

// ProcessBitChain runs the full §4.9 admission pipeline for bc, submitted by
// requesterID with authToken. intent is a free-form audit label (e.g.
// "admit", "replay"). The returned ProcessResult.Journey carries one entry
// per pipeline stage actually traversed: ENTRY, COLLAPSED{BOUND|ESCAPED},
// (GATED|REPAIRED, possibly both on a repair-then-regate path), ROUTED.
func (o *Orchestrator) ProcessBitChain(ctx context.Context, bc BitChain, authToken, requesterID, intent string) (ProcessResult, error) {
	now := time.Now().UTC()
	var trail []JourneyEntry

	if o.limiter != nil && !o.limiter.Allow(requesterID) {
		entry, err := o.stage(bc.ID, requesterID, intent, StageRouted, StatusRejectedPolicy, "rate_limited", nil, nil, now)
		if err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{Success: false, Status: StatusRejectedPolicy, Journey: []JourneyEntry{entry}, Reason: "rate_limited"}, nil
	}

	working := bc
	if working.ID == "" {
		working.ID = AddressHex(working.Coord)
	}

	entryEntry, err := o.stage(working.ID, requesterID, intent, StageEntry, StatusEntered, "", nil, nil, now)
	if err != nil {
		return ProcessResult{}, err
	}
	trail = append(trail, entryEntry)

	report := o.gate.Run(working.ID, working.Coord)
	collapseEntry, err := o.stage(working.ID, requesterID, intent, StageCollapsed, collapseStatus(report.Result), "", collapseSummaryOf(report), nil, now)
	if err != nil {
		return ProcessResult{}, err
	}
	trail = append(trail, collapseEntry)

	status := StatusAdmitted
	reason := ""

	if report.Result == Escaped {
		repaired, outcome := o.conservator.Attempt(working)
		repairEntry, err := o.stage(working.ID, requesterID, intent, StageRepaired, repairOutcomeStatus(outcome), "", collapseSummaryOf(outcome.FinalReport), outcome.Applied, now)
		if err != nil {
			return ProcessResult{}, err
		}
		trail = append(trail, repairEntry)

		if !outcome.Recovered {
			routed, err := o.stage(working.ID, requesterID, intent, StageRouted, StatusUnrecoverable, "collapse_escaped_unrepairable", nil, nil, now)
			if err != nil {
				return ProcessResult{}, err
			}
			trail = append(trail, routed)
			o.recordMetrics(StatusUnrecoverable, working.ID)
			return ProcessResult{Success: false, Status: StatusUnrecoverable, BitChainID: working.ID, Journey: trail, Reason: "collapse_escaped_unrepairable"}, nil
		}
		working = repaired
		status = StatusRepaired
		reason = "repaired_and_admitted: " + joinNames(outcome.Applied)
	}

	rr, resolvedRequester, gated, err := o.recovery.Evaluate(working, authToken, requesterID)
	if err != nil {
		return ProcessResult{}, err
	}
	if rr != ReasonNone {
		rejectStatus := recoveryReasonStatus(rr)
		entry, jerr := o.stage(working.ID, resolvedRequester, intent, StageRouted, rejectStatus, string(rr), nil, nil, now)
		if jerr != nil {
			return ProcessResult{}, jerr
		}
		trail = append(trail, entry)
		o.recordMetrics(rejectStatus, working.ID)
		return ProcessResult{Success: false, Status: rejectStatus, BitChainID: working.ID, Journey: trail, Reason: string(rr)}, nil
	}
	// The GATED(pass) entry was already written durably by RecoveryGate's
	// own audit-before-return check (spec §4.7 check 4); thread it into the
	// returned trail instead of writing a second entry for the same check.
	if gated != nil {
		trail = append(trail, *gated)
	}

	storedID, err := o.bitchains.Put(working)
	if err != nil {
		return ProcessResult{}, err
	}
	working.ID = storedID
	if o.anchors != nil && o.provider != nil && working.Text != "" {
		anchorCtx := AnchorContext{Realm: working.Coord.Realm, Polarity: working.Coord.Polarity}
		emb, degraded, err := o.provider.Embed(ctx, working.Text)
		if err == nil {
			anchorCtx.DegradedEmbedding = degraded
			if _, err := o.anchors.CreateOrUpdateAnchor(emb, working.Text, working.ID, anchorCtx); err != nil {
				return ProcessResult{}, err
			}
		}
	}

	// ROUTED is the sole writer of the terminal status: RecoveryGate's
	// GATED(pass) entry above records the gate check, not the outcome.
	routed, err := o.stage(working.ID, resolvedRequester, intent, StageRouted, status, reason, nil, nil, now)
	if err != nil {
		return ProcessResult{}, err
	}
	trail = append(trail, routed)
	o.recordMetrics(status, working.ID)
	return ProcessResult{Success: true, Status: status, BitChainID: working.ID, Journey: trail, Reason: reason}, nil
}

// stage journals one pipeline step. Falls back to an unpersisted in-memory
// entry when no journey log is wired (tests, dry runs).
func (o *Orchestrator) stage(bitChainID, requesterID, action, stageName string, status JourneyStatus, detail string, collapse *CollapseSummary, repairActions []string, now time.Time) (JourneyEntry, error) {
	e := JourneyEntry{
		BitChainID:    bitChainID,
		RequesterID:   requesterID,
		Action:        action,
		Stage:         stageName,
		Status:        status,
		Detail:        detail,
		Collapse:      collapse,
		RepairActions: repairActions,
		Timestamp:     now,
	}
	if o.journey == nil {
		return e, nil
	}
	return o.journey.AppendStage(e)
}

func collapseStatus(v CollapseVerdict) JourneyStatus {
	return JourneyStatus(v)
}

func repairOutcomeStatus(o RepairOutcome) JourneyStatus {
	if o.Recovered {
		return JourneyStatus(Bound)
	}
	return JourneyStatus(Escaped)
}

func (o *Orchestrator) recordMetrics(status JourneyStatus, bitChainID string) {
	if o.metrics != nil {
		o.metrics.RecordAdmission(status, bitChainID)
	}
}

func recoveryReasonStatus(r RecoveryReason) JourneyStatus {
	switch r {
	case ReasonPresence:
		return StatusRejectedPresent
	case ReasonAuth:
		return StatusRejectedAuth
	case ReasonPolicy:
		return StatusRejectedPolicy
	default:
		return StatusUnrecoverable
	}
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}
