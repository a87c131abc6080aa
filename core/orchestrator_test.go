package core

import (
	"context"
	"testing"
	"time"
)

func newTestOrchestrator(t *testing.T, grantReq string) (*Orchestrator, *BitChainStore, *JourneyLog) {
	t.Helper()
	bitchains, err := NewBitChainStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBitChainStore: %v", err)
	}
	journey, err := NewJourneyLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewJourneyLog: %v", err)
	}
	policy, err := NewPolicySet(t.TempDir())
	if err != nil {
		t.Fatalf("NewPolicySet: %v", err)
	}
	if grantReq != "" {
		if err := policy.Grant(grantReq, RealmData, PolarityNeutral); err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}
	auth := NewStaticAuthenticator(map[string]string{"tok-1": "req-1"})
	gate := NewCollapseGate(7)
	conservator := NewConservator(gate, DefaultRepairActions())
	recovery := NewRecoveryGate(auth, policy, journey, nil)

	orch := NewOrchestrator(gate, conservator, recovery, bitchains, nil, nil, journey, nil, nil)
	return orch, bitchains, journey
}

func TestProcessBitChainAdmitsValidRecord(t *testing.T) {
	orch, bitchains, journey := newTestOrchestrator(t, "req-1")
	coord, err := MakeCoord(RealmData, 1, 50.0, HorizonGenesis, 50.0, PolarityNeutral, 0)
	if err != nil {
		t.Fatalf("MakeCoord: %v", err)
	}
	bc := BitChain{Coord: coord, Payload: []byte("payload")}

	result, err := orch.ProcessBitChain(context.Background(), bc, "tok-1", "req-1", "admit")
	if err != nil {
		t.Fatalf("ProcessBitChain: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got status=%v reason=%v", result.Status, result.Reason)
	}
	if result.Status != StatusAdmitted && result.Status != StatusRepaired {
		t.Fatalf("expected ADMITTED or REPAIRED, got %v", result.Status)
	}
	stored, ok, err := bitchains.Get(result.BitChainID)
	if err != nil || !ok {
		t.Fatalf("expected bit-chain to be stored under its returned id: ok=%v err=%v", ok, err)
	}
	if string(stored.Payload) != "payload" {
		t.Fatalf("stored payload mismatch: %q", stored.Payload)
	}
	entries, err := journey.ForBitChain(result.BitChainID)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a journey entry for the admitted record: %v, err=%v", entries, err)
	}
}

func TestProcessBitChainJourneyHasOneEntryPerStage(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, "req-1")
	coord, err := MakeCoord(RealmData, 1, 50.0, HorizonGenesis, 50.0, PolarityNeutral, 0)
	if err != nil {
		t.Fatalf("MakeCoord: %v", err)
	}
	bc := BitChain{Coord: coord, Payload: []byte("payload")}

	result, err := orch.ProcessBitChain(context.Background(), bc, "tok-1", "req-1", "admit")
	if err != nil {
		t.Fatalf("ProcessBitChain: %v", err)
	}
	if result.Status == StatusUnrecoverable {
		t.Skip("collapse gate escaped before a GATED/ROUTED stage was reached for this coordinate/seed")
	}
	if len(result.Journey) < 3 {
		t.Fatalf("expected at least ENTRY, COLLAPSED and ROUTED stages, got %d entries: %+v", len(result.Journey), result.Journey)
	}
	stages := make([]string, len(result.Journey))
	for i, e := range result.Journey {
		stages[i] = e.Stage
	}
	if stages[0] != StageEntry {
		t.Fatalf("expected first stage ENTRY, got %v", stages)
	}
	if stages[1] != StageCollapsed {
		t.Fatalf("expected second stage COLLAPSED, got %v", stages)
	}
	if stages[len(stages)-1] != StageRouted {
		t.Fatalf("expected last stage ROUTED, got %v", stages)
	}
	collapseEntry := result.Journey[1]
	if collapseEntry.Collapse == nil {
		t.Fatalf("expected the COLLAPSED entry to carry a structured C6 report")
	}

	// Exactly one writer of the terminal status: the GATED(pass) entry (if
	// present) must not duplicate the ROUTED entry's status.
	var routedCount, gatedCount int
	for _, e := range result.Journey {
		if e.Stage == StageRouted {
			routedCount++
		}
		if e.Stage == StageGated && e.Status == StatusGatePassed {
			gatedCount++
		}
	}
	if routedCount != 1 {
		t.Fatalf("expected exactly one ROUTED entry, got %d", routedCount)
	}
	if gatedCount > 1 {
		t.Fatalf("expected at most one GATED(pass) entry, got %d", gatedCount)
	}
}

func TestProcessBitChainRejectsWithoutPolicy(t *testing.T) {
	orch, bitchains, _ := newTestOrchestrator(t, "")
	coord, err := MakeCoord(RealmData, 1, 50.0, HorizonGenesis, 50.0, PolarityNeutral, 0)
	if err != nil {
		t.Fatalf("MakeCoord: %v", err)
	}
	bc := BitChain{Coord: coord, Payload: []byte("payload")}

	result, err := orch.ProcessBitChain(context.Background(), bc, "tok-1", "req-1", "admit")
	if err != nil {
		t.Fatalf("ProcessBitChain: %v", err)
	}
	if result.Status == StatusUnrecoverable {
		t.Skip("collapse gate escaped before policy was reached for this coordinate/seed")
	}
	if result.Success {
		t.Fatalf("expected rejection without a policy grant")
	}
	if result.Status != StatusRejectedPolicy {
		t.Fatalf("expected REJECTED_POLICY, got %v", result.Status)
	}
	if _, ok, _ := bitchains.Get(result.BitChainID); ok {
		t.Fatalf("rejected record should not be persisted")
	}
}

func TestProcessBitChainRejectsBadAuth(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, "req-1")
	coord, err := MakeCoord(RealmData, 1, 50.0, HorizonGenesis, 50.0, PolarityNeutral, 0)
	if err != nil {
		t.Fatalf("MakeCoord: %v", err)
	}
	bc := BitChain{Coord: coord, Payload: []byte("payload")}

	result, err := orch.ProcessBitChain(context.Background(), bc, "bad-token", "req-1", "admit")
	if err != nil {
		t.Fatalf("ProcessBitChain: %v", err)
	}
	if result.Status == StatusUnrecoverable {
		t.Skip("collapse gate escaped before auth was reached for this coordinate/seed")
	}
	if result.Success || result.Status != StatusRejectedAuth {
		t.Fatalf("expected REJECTED_AUTH, got success=%v status=%v", result.Success, result.Status)
	}
}

func TestProcessBitChainRateLimited(t *testing.T) {
	bitchains, err := NewBitChainStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBitChainStore: %v", err)
	}
	journey, err := NewJourneyLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewJourneyLog: %v", err)
	}
	policy, err := NewPolicySet(t.TempDir())
	if err != nil {
		t.Fatalf("NewPolicySet: %v", err)
	}
	if err := policy.Grant("req-1", RealmData, PolarityNeutral); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	auth := NewStaticAuthenticator(map[string]string{"tok-1": "req-1"})
	gate := NewCollapseGate(7)
	conservator := NewConservator(gate, DefaultRepairActions())
	recovery := NewRecoveryGate(auth, policy, journey, nil)
	limiter := NewRateLimiter(0.0001, 1)

	orch := NewOrchestrator(gate, conservator, recovery, bitchains, nil, nil, journey, nil, limiter)
	coord, err := MakeCoord(RealmData, 1, 50.0, HorizonGenesis, 50.0, PolarityNeutral, 0)
	if err != nil {
		t.Fatalf("MakeCoord: %v", err)
	}
	bc := BitChain{Coord: coord, Payload: []byte("payload")}

	if _, err := orch.ProcessBitChain(context.Background(), bc, "tok-1", "req-1", "admit"); err != nil {
		t.Fatalf("ProcessBitChain (first): %v", err)
	}
	result, err := orch.ProcessBitChain(context.Background(), bc, "tok-1", "req-1", "admit")
	if err != nil {
		t.Fatalf("ProcessBitChain (second): %v", err)
	}
	if result.Success {
		t.Fatalf("second call within the burst window should be rate limited")
	}
	if result.Reason != "rate_limited" {
		t.Fatalf("expected rate_limited reason, got %q", result.Reason)
	}
}

func TestProcessBitChainIndexesAnchorWhenWired(t *testing.T) {
	bitchains, err := NewBitChainStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBitChainStore: %v", err)
	}
	journey, err := NewJourneyLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewJourneyLog: %v", err)
	}
	policy, err := NewPolicySet(t.TempDir())
	if err != nil {
		t.Fatalf("NewPolicySet: %v", err)
	}
	if err := policy.Grant("req-1", RealmData, PolarityNeutral); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	auth := NewStaticAuthenticator(map[string]string{"tok-1": "req-1"})
	gate := NewCollapseGate(7)
	conservator := NewConservator(gate, DefaultRepairActions())
	recovery := NewRecoveryGate(auth, policy, journey, nil)

	local := NewLocalProvider(16, 3)
	provider := NewDegradingProvider(local, local, 0, time.Millisecond, nil)
	anchors, err := NewAnchorGraph(t.TempDir(), provider, 0.9, 0.8, 0.0001)
	if err != nil {
		t.Fatalf("NewAnchorGraph: %v", err)
	}

	orch := NewOrchestrator(gate, conservator, recovery, bitchains, anchors, provider, journey, nil, nil)
	coord, err := MakeCoord(RealmData, 1, 50.0, HorizonGenesis, 50.0, PolarityNeutral, 0)
	if err != nil {
		t.Fatalf("MakeCoord: %v", err)
	}
	bc := BitChain{Coord: coord, Payload: []byte("payload"), Text: "concept text"}

	result, err := orch.ProcessBitChain(context.Background(), bc, "tok-1", "req-1", "admit")
	if err != nil {
		t.Fatalf("ProcessBitChain: %v", err)
	}
	if result.Status == StatusUnrecoverable {
		t.Skip("collapse gate escaped for this coordinate/seed")
	}
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Status)
	}
	if anchors.Len() != 1 {
		t.Fatalf("expected one anchor indexed from the admitted bit-chain's text, got %d", anchors.Len())
	}
}
