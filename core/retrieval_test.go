package core

import (
	"context"
	"testing"
	"time"
)

func newTestRetrievalEngine(t *testing.T) (*RetrievalEngine, *AnchorGraph, *DegradingProvider) {
	t.Helper()
	engine, graph, provider, _ := newTestRetrievalEngineWithBitChains(t)
	return engine, graph, provider
}

func newTestRetrievalEngineWithBitChains(t *testing.T) (*RetrievalEngine, *AnchorGraph, *DegradingProvider, *BitChainStore) {
	t.Helper()
	local := NewLocalProvider(32, 11)
	provider := NewDegradingProvider(local, local, 0, time.Millisecond, nil)
	graph, err := NewAnchorGraph(t.TempDir(), provider, 0.999, 0.8, 0.0001)
	if err != nil {
		t.Fatalf("NewAnchorGraph: %v", err)
	}
	bitchains, err := NewBitChainStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBitChainStore: %v", err)
	}
	engine, err := NewRetrievalEngine(graph, bitchains, provider, DefaultConflictDetector, time.Minute, 64)
	if err != nil {
		t.Fatalf("NewRetrievalEngine: %v", err)
	}
	return engine, graph, provider, bitchains
}

// seedBitChain puts a bit-chain with the given payload and optional parent
// lineage id, returning its derived content id.
func seedBitChain(t *testing.T, bs *BitChainStore, payload []byte, parentID string) string {
	t.Helper()
	coord, err := MakeCoord(RealmData, 1, 10.0, HorizonGenesis, 50.0, PolarityNeutral, 1)
	if err != nil {
		t.Fatalf("MakeCoord: %v", err)
	}
	id, err := bs.Put(BitChain{Coord: coord, Payload: payload, LineageParentID: parentID})
	if err != nil {
		t.Fatalf("BitChainStore.Put: %v", err)
	}
	return id
}

func seedAnchor(t *testing.T, g *AnchorGraph, provider *DegradingProvider, text, utterance string, realm Realm, polarity Polarity) string {
	t.Helper()
	emb, _, err := provider.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	id, err := g.CreateOrUpdateAnchor(emb, text, utterance, AnchorContext{Realm: realm, Polarity: polarity})
	if err != nil {
		t.Fatalf("CreateOrUpdateAnchor: %v", err)
	}
	return id
}

func TestRetrieveSemanticSimilarity(t *testing.T) {
	engine, graph, provider := newTestRetrievalEngine(t)
	seedAnchor(t, graph, provider, "database performance tuning", "u1", RealmData, PolarityNeutral)
	seedAnchor(t, graph, provider, "quarterly sales report", "u2", RealmData, PolarityNeutral)

	assembly, err := engine.Retrieve(context.Background(), Query{
		Mode:                ModeSemanticSimilarity,
		SemanticQuery:       "database performance tuning",
		ConfidenceThreshold: 0.5,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(assembly.Items) == 0 {
		t.Fatalf("expected at least one result")
	}
}

func TestRetrieveCachesRepeatQuery(t *testing.T) {
	engine, graph, provider := newTestRetrievalEngine(t)
	seedAnchor(t, graph, provider, "database performance tuning", "u1", RealmData, PolarityNeutral)

	q := Query{Mode: ModeSemanticSimilarity, SemanticQuery: "database performance tuning", ConfidenceThreshold: 0.5}
	first, err := engine.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if first.CacheHit {
		t.Fatalf("first retrieve should not be a cache hit")
	}
	second, err := engine.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !second.CacheHit {
		t.Fatalf("second identical retrieve should be a cache hit")
	}
}

func TestRetrieveCancelledContext(t *testing.T) {
	engine, _, _ := newTestRetrievalEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Retrieve(ctx, Query{Mode: ModeSemanticSimilarity, SemanticQuery: "x"})
	if err != ErrRetrievalCancelled {
		t.Fatalf("expected ErrRetrievalCancelled, got %v", err)
	}
}

func TestRetrieveUnknownModeIsValidationError(t *testing.T) {
	engine, _, _ := newTestRetrievalEngine(t)
	_, err := engine.Retrieve(context.Background(), Query{Mode: QueryMode("NOT_A_MODE")})
	if err == nil {
		t.Fatalf("expected an error for an unknown query mode")
	}
}

func TestConflictAwareFlagsOpposingPolarity(t *testing.T) {
	engine, graph, provider := newTestRetrievalEngine(t)
	seedAnchor(t, graph, provider, "the policy is good", "u1", RealmPattern, PolarityPositive)
	seedAnchor(t, graph, provider, "the policy is good", "u2", RealmPattern, PolarityNegative)

	assembly, err := engine.Retrieve(context.Background(), Query{
		Mode:                ModeConflictAware,
		SemanticQuery:       "the policy is good",
		ConfidenceThreshold: -1,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	foundConflict := false
	for _, item := range assembly.Items {
		if len(item.ConflictFlags) > 0 {
			foundConflict = true
		}
	}
	if !foundConflict {
		t.Fatalf("expected at least one conflict flag across opposing-polarity anchors")
	}
}

func TestTemporalSequenceOrdersNewestFirst(t *testing.T) {
	engine, graph, provider := newTestRetrievalEngine(t)
	seedAnchor(t, graph, provider, "first event", "u1", RealmEvent, PolarityNeutral)
	time.Sleep(2 * time.Millisecond)
	seedAnchor(t, graph, provider, "second event", "u2", RealmEvent, PolarityNeutral)

	assembly, err := engine.Retrieve(context.Background(), Query{Mode: ModeTemporalSequence})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(assembly.Items) < 2 {
		t.Fatalf("expected at least 2 temporal items, got %d", len(assembly.Items))
	}
}

func TestInvalidateCacheDropsEntries(t *testing.T) {
	engine, graph, provider := newTestRetrievalEngine(t)
	seedAnchor(t, graph, provider, "invalidate me", "u1", RealmData, PolarityNeutral)

	q := Query{Mode: ModeSemanticSimilarity, SemanticQuery: "invalidate me", ConfidenceThreshold: 0.5}
	if _, err := engine.Retrieve(context.Background(), q); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	engine.InvalidateCache("")
	result, err := engine.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.CacheHit {
		t.Fatalf("expected cache miss after InvalidateCache")
	}
}

func TestProvenanceChainWalksLineage(t *testing.T) {
	engine, _, _, bitchains := newTestRetrievalEngineWithBitChains(t)

	grandparent := seedBitChain(t, bitchains, []byte("grandparent"), "")
	parent := seedBitChain(t, bitchains, []byte("parent"), grandparent)
	child := seedBitChain(t, bitchains, []byte("child"), parent)

	assembly, err := engine.Retrieve(context.Background(), Query{
		Mode:            ModeProvenanceChain,
		SeedAnchorIDs:   []string{child},
		ProvenanceDepth: 10,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(assembly.Items) != 3 {
		t.Fatalf("expected 3 ancestors (child, parent, grandparent), got %d", len(assembly.Items))
	}
	if assembly.Items[0].AnchorID != child {
		t.Fatalf("expected first item to be the seed itself, got %s", assembly.Items[0].AnchorID)
	}
	if assembly.Items[1].AnchorID != parent || assembly.Items[2].AnchorID != grandparent {
		t.Fatalf("expected walk order child -> parent -> grandparent, got %v", assembly.Items)
	}
}

func TestProvenanceChainRespectsDepthLimit(t *testing.T) {
	engine, _, _, bitchains := newTestRetrievalEngineWithBitChains(t)

	grandparent := seedBitChain(t, bitchains, []byte("gp2"), "")
	parent := seedBitChain(t, bitchains, []byte("p2"), grandparent)
	child := seedBitChain(t, bitchains, []byte("c2"), parent)

	assembly, err := engine.Retrieve(context.Background(), Query{
		Mode:            ModeProvenanceChain,
		SeedAnchorIDs:   []string{child},
		ProvenanceDepth: 1,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(assembly.Items) != 1 {
		t.Fatalf("expected depth limit of 1 to return only the seed, got %d", len(assembly.Items))
	}
}

func TestProvenanceChainNilStoreIsUnavailable(t *testing.T) {
	local := NewLocalProvider(32, 11)
	provider := NewDegradingProvider(local, local, 0, time.Millisecond, nil)
	graph, err := NewAnchorGraph(t.TempDir(), provider, 0.999, 0.8, 0.0001)
	if err != nil {
		t.Fatalf("NewAnchorGraph: %v", err)
	}
	engine, err := NewRetrievalEngine(graph, nil, provider, DefaultConflictDetector, time.Minute, 64)
	if err != nil {
		t.Fatalf("NewRetrievalEngine: %v", err)
	}
	assembly, err := engine.Retrieve(context.Background(), Query{
		Mode:          ModeProvenanceChain,
		SeedAnchorIDs: []string{"anything"},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if assembly.Reason != "provenance_store_unavailable" {
		t.Fatalf("expected provenance_store_unavailable reason, got %q", assembly.Reason)
	}
}

func TestAnchorNeighborhoodWalksGraphEdges(t *testing.T) {
	engine, graph, provider := newTestRetrievalEngine(t)
	a := seedAnchor(t, graph, provider, "database performance tuning", "u1", RealmData, PolarityNeutral)
	b := seedAnchor(t, graph, provider, "database performance tuning", "u2", RealmData, PolarityNeutral)

	assembly, err := engine.Retrieve(context.Background(), Query{
		Mode:          ModeAnchorNeighborhood,
		SeedAnchorIDs: []string{a},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	found := false
	for _, it := range assembly.Items {
		if it.AnchorID == a || it.AnchorID == b {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the seed anchor to appear in its own neighborhood, got %v", assembly.Items)
	}
}

func TestCompositeMergesAcrossModes(t *testing.T) {
	engine, graph, provider := newTestRetrievalEngine(t)
	a := seedAnchor(t, graph, provider, "database performance tuning", "u1", RealmData, PolarityNeutral)
	seedAnchor(t, graph, provider, "quarterly sales report", "u2", RealmData, PolarityNeutral)

	assembly, err := engine.Retrieve(context.Background(), Query{
		Mode:                ModeComposite,
		SemanticQuery:       "database performance tuning",
		SeedAnchorIDs:       []string{a},
		ConfidenceThreshold: 0.5,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(assembly.Items) == 0 {
		t.Fatalf("expected composite assembly to merge at least one result")
	}
	for i := 1; i < len(assembly.Items); i++ {
		if assembly.Items[i-1].RelevanceScore < assembly.Items[i].RelevanceScore {
			t.Fatalf("expected composite items sorted by descending relevance, got %v", assembly.Items)
		}
	}
}
