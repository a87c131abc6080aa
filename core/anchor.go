// core/anchor.go
package core

// Semantic Anchor Graph (C4) — embedding-backed deduplicating store over
// utterances (spec §3, §4.4). Anchors are partitioned by realm: each realm
// gets its own writer lock (single-writer, multi-reader) per spec §5, while
// readers observe a stable snapshot of the in-memory arena.
//
// The arena+indices representation (spec §9 design note on cyclic graphs)
// avoids owning references across anchors: adjacency edges are a separate
// append-only set of (id, id) pairs rather than pointers, so neighborhood
// search (C5 ANCHOR_NEIGHBORHOOD) has no cycle hazards.
//
// Dedup-by-similarity and the heat/last-seen bookkeeping follow the idiom in
// other_examples/2fb425f2_forwardnetworks-forward-mcp__internal-service-semantic_cache.go.go
// and other_examples/d5ef4996_MrWong99-glyphoxa__pkg-memory-store.go.go.

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Anchor is the embedding-indexed deduplicating wrapper over one or more
// utterances sharing meaning (spec §3).
type Anchor struct {
	AnchorID        string    `json:"anchor_id"`
	Embedding       Vector    `json:"embedding"`
	ConceptText     string    `json:"concept_text"`
	Coord           Coord     `json:"coord"`
	UtteranceIDs    []string  `json:"utterance_ids"`
	Heat            float64   `json:"heat"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
	ProvenanceDepth int       `json:"provenance_depth"`
	DegradedEmbed   bool      `json:"degraded_embedding,omitempty"`
}

// AnchorContext supplies the fields MakeCoord can't infer from the
// embedding alone when minting a new anchor (spec §4.4 "Coordinate
// assignment for a new anchor").
type AnchorContext struct {
	Realm              Realm
	Polarity           Polarity
	AncestorAnchorIDs  []string
	NestingDepth       uint64
	DegradedEmbedding  bool
}

const (
	defaultThetaMerge = 0.92
	// H_peak / H_floor / A_crystal govern the anchor state machine
	// (spec §4.4). These are conservative defaults; production configures
	// them via pkg/config.
	defaultHeatPeak     = 80.0
	defaultHeatFloor    = 5.0
	defaultCrystalAge   = 30 * 24 * time.Hour
)

type realmPartition struct {
	mu      sync.RWMutex
	anchors map[string]*Anchor // anchor id -> anchor (owned copies)
	order   []string           // insertion order within this realm
}

// edge is an adjacency edge between two anchors with cosine ≥ θ_edge,
// stored as a flat append-only pair rather than a pointer (spec §9).
type edge struct {
	a, b  string
	score float64
}

// AnchorGraph is the C4 capability: dedup-by-similarity insert, similarity
// search, neighborhood edges, and scheduled heat decay / state transitions.
type AnchorGraph struct {
	thetaMerge float64
	thetaEdge  float64
	lambda     float64
	provider   EmbeddingProvider
	store      *Store

	partitionsMu sync.RWMutex
	partitions   map[Realm]*realmPartition

	edgesMu sync.RWMutex
	edges   []edge

	byID   sync.Map // anchor id -> Realm, for O(1) Get without scanning partitions
}

// NewAnchorGraph constructs an AnchorGraph persisting to dir (the
// "anchors/" directory, spec §6), with θ_merge/θ_edge/λ as configured
// (spec §6 configuration table).
func NewAnchorGraph(dir string, provider EmbeddingProvider, thetaMerge, thetaEdge, lambda float64) (*AnchorGraph, error) {
	if thetaMerge <= 0 {
		thetaMerge = defaultThetaMerge
	}
	s, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	g := &AnchorGraph{
		thetaMerge: thetaMerge,
		thetaEdge:  thetaEdge,
		lambda:     lambda,
		provider:   provider,
		store:      s,
		partitions: make(map[Realm]*realmPartition),
	}
	for _, id := range s.Keys() {
		var a Anchor
		if ok, err := s.Get(id, &a); err == nil && ok {
			g.loadAnchor(&a)
		}
	}
	return g, nil
}

func (g *AnchorGraph) loadAnchor(a *Anchor) {
	p := g.partitionFor(a.Coord.Realm)
	p.mu.Lock()
	p.anchors[a.AnchorID] = a
	p.order = append(p.order, a.AnchorID)
	p.mu.Unlock()
	g.byID.Store(a.AnchorID, a.Coord.Realm)
}

func (g *AnchorGraph) partitionFor(realm Realm) *realmPartition {
	g.partitionsMu.RLock()
	p, ok := g.partitions[realm]
	g.partitionsMu.RUnlock()
	if ok {
		return p
	}
	g.partitionsMu.Lock()
	defer g.partitionsMu.Unlock()
	if p, ok = g.partitions[realm]; ok {
		return p
	}
	p = &realmPartition{anchors: make(map[string]*Anchor)}
	g.partitions[realm] = p
	return p
}

// Get returns the anchor with the given id, if any.
func (g *AnchorGraph) Get(anchorID string) (Anchor, bool) {
	realmAny, ok := g.byID.Load(anchorID)
	if !ok {
		return Anchor{}, false
	}
	p := g.partitionFor(realmAny.(Realm))
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.anchors[anchorID]
	if !ok {
		return Anchor{}, false
	}
	return *a, true
}

// Scored is an (anchor id, score) pair returned by similarity search.
type Scored struct {
	AnchorID string
	Score    float64
}

// FindSimilar returns the top-k anchors by cosine similarity to embedding,
// filtered to score ≥ threshold (spec §4.4). Search spans all realms, unlike
// CreateOrUpdateAnchor's merge search, which only looks within the new
// utterance's realm.
func (g *AnchorGraph) FindSimilar(embedding Vector, k int, threshold float64) []Scored {
	var all []Scored
	g.partitionsMu.RLock()
	partitions := make([]*realmPartition, 0, len(g.partitions))
	for _, p := range g.partitions {
		partitions = append(partitions, p)
	}
	g.partitionsMu.RUnlock()

	for _, p := range partitions {
		p.mu.RLock()
		for _, a := range p.anchors {
			score := Similarity(embedding, a.Embedding)
			if score >= threshold {
				all = append(all, Scored{AnchorID: a.AnchorID, Score: score})
			}
		}
		p.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].AnchorID < all[j].AnchorID
	})
	if k > 0 && len(all) > k {
		all = all[:k]
	}
	return all
}

// maxAdjacencyInRealm returns 100·(max cosine to any existing anchor in
// realm), used for new-anchor coordinate assignment (spec §4.4).
func (g *AnchorGraph) maxAdjacencyInRealm(realm Realm, embedding Vector) float64 {
	p := g.partitionFor(realm)
	p.mu.RLock()
	defer p.mu.RUnlock()
	var max float64
	for _, a := range p.anchors {
		if s := Similarity(embedding, a.Embedding); s > max {
			max = s
		}
	}
	return max * 100
}

func (g *AnchorGraph) maxLineage(ancestorIDs []string) uint64 {
	var max uint64
	for _, id := range ancestorIDs {
		if a, ok := g.Get(id); ok && a.Coord.Lineage > max {
			max = a.Coord.Lineage
		}
	}
	return max
}

// CreateOrUpdateAnchor is the C4 deduplicating insert algorithm (spec
// §4.4): embed the concept, search for an existing anchor with cosine ≥
// θ_merge, tie-break by heat then created_at (earlier wins); if found,
// append the utterance and bump heat; else mint a new anchor with a fresh
// coordinate.
func (g *AnchorGraph) CreateOrUpdateAnchor(embedding Vector, conceptText, utteranceID string, ctx AnchorContext) (string, error) {
	// Both helpers take partition read locks of their own, so they run
	// before this realm's writer lock is taken.
	lineage := 1 + g.maxLineage(ctx.AncestorAnchorIDs)
	adjacency := g.maxAdjacencyInRealm(ctx.Realm, embedding)

	p := g.partitionFor(ctx.Realm)
	p.mu.Lock()

	var best *Anchor
	for _, a := range p.anchors {
		score := Similarity(embedding, a.Embedding)
		if score < g.thetaMerge {
			continue
		}
		if best == nil ||
			a.Heat > best.Heat ||
			(a.Heat == best.Heat && a.CreatedAt.Before(best.CreatedAt)) {
			best = a
		}
	}

	now := time.Now().UTC()
	if best != nil {
		defer p.mu.Unlock()
		for _, u := range best.UtteranceIDs {
			if u == utteranceID {
				// P-MERGE-IDEMPOTENT: identical args produce one anchor,
				// utterance not duplicated.
				return best.AnchorID, nil
			}
		}
		best.UtteranceIDs = append(best.UtteranceIDs, utteranceID)
		best.LastUpdatedAt = now
		best.Heat += 1.0
		// concept_text remains the first-writer's text (stable witness,
		// spec §4.4); the new variant is not separately stored beyond its
		// utterance id, since utterances are looked up via the bit-chain
		// store by caller.
		if err := g.store.Put(best.AnchorID, *best); err != nil {
			return "", err
		}
		return best.AnchorID, nil
	}

	coord, err := MakeCoord(ctx.Realm, lineage, adjacency, HorizonGenesis, 50.0, ctx.Polarity, ctx.NestingDepth)
	if err != nil {
		p.mu.Unlock()
		return "", err
	}
	a := &Anchor{
		AnchorID:        uuid.NewString(),
		Embedding:       embedding,
		ConceptText:     conceptText,
		Coord:           coord,
		UtteranceIDs:    []string{utteranceID},
		Heat:            50.0,
		CreatedAt:       now,
		LastUpdatedAt:   now,
		ProvenanceDepth: len(ctx.AncestorAnchorIDs),
		DegradedEmbed:   ctx.DegradedEmbedding,
	}
	p.anchors[a.AnchorID] = a
	p.order = append(p.order, a.AnchorID)
	g.byID.Store(a.AnchorID, ctx.Realm)
	stored := *a
	// refreshEdges read-locks every partition, this one included.
	p.mu.Unlock()
	g.refreshEdges(a)
	if err := g.store.Put(a.AnchorID, stored); err != nil {
		return "", err
	}
	return a.AnchorID, nil
}

// refreshEdges records adjacency edges from a to every anchor with cosine ≥
// θ_edge (spec §4.5 ANCHOR_NEIGHBORHOOD). Called only at anchor creation
// since mutation never changes an anchor's embedding.
func (g *AnchorGraph) refreshEdges(a *Anchor) {
	g.partitionsMu.RLock()
	partitions := make([]*realmPartition, 0, len(g.partitions))
	for _, p := range g.partitions {
		partitions = append(partitions, p)
	}
	g.partitionsMu.RUnlock()

	g.edgesMu.Lock()
	defer g.edgesMu.Unlock()
	for _, p := range partitions {
		p.mu.RLock()
		for _, other := range p.anchors {
			if other.AnchorID == a.AnchorID {
				continue
			}
			score := Similarity(a.Embedding, other.Embedding)
			if score >= g.thetaEdge {
				g.edges = append(g.edges, edge{a: a.AnchorID, b: other.AnchorID, score: score})
			}
		}
		p.mu.RUnlock()
	}
}

// Neighbors returns the adjacency edges touching anchorID.
func (g *AnchorGraph) Neighbors(anchorID string) []Scored {
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()
	var out []Scored
	for _, e := range g.edges {
		switch anchorID {
		case e.a:
			out = append(out, Scored{AnchorID: e.b, Score: e.score})
		case e.b:
			out = append(out, Scored{AnchorID: e.a, Score: e.score})
		}
	}
	return out
}

// HeatDecay applies exponential decay to every anchor's heat and advances
// the state machine, per spec §4.4. Scheduled, never run mid-query.
func (g *AnchorGraph) HeatDecay(now time.Time) {
	g.partitionsMu.RLock()
	partitions := make([]*realmPartition, 0, len(g.partitions))
	for _, p := range g.partitions {
		partitions = append(partitions, p)
	}
	g.partitionsMu.RUnlock()

	for _, p := range partitions {
		p.mu.Lock()
		for _, a := range p.anchors {
			dt := now.Sub(a.LastUpdatedAt).Seconds()
			if dt > 0 {
				a.Heat *= expDecay(g.lambda, dt)
			}
			g.transition(a, now)
			_ = g.store.Put(a.AnchorID, *a)
		}
		p.mu.Unlock()
	}
}

// transition advances an anchor's coordinate horizon through the state
// machine genesis → emergence → peak → decay → crystallization (spec
// §4.4). Transitions never fire mid-query; HeatDecay is the only caller.
func (g *AnchorGraph) transition(a *Anchor, now time.Time) {
	switch a.Coord.Horizon {
	case HorizonGenesis:
		if len(a.UtteranceIDs) > 1 {
			a.Coord.Horizon = HorizonEmergence
		}
	case HorizonEmergence:
		if a.Heat >= defaultHeatPeak {
			a.Coord.Horizon = HorizonPeak
		}
	case HorizonPeak:
		if now.Sub(a.LastUpdatedAt) > 0 && a.Heat < defaultHeatPeak {
			a.Coord.Horizon = HorizonDecay
		}
	case HorizonDecay:
		if a.Heat < defaultHeatFloor && now.Sub(a.CreatedAt) >= defaultCrystalAge {
			a.Coord.Horizon = HorizonCrystallized
		}
	}
	a.Coord.Luminosity = quantize(a.Heat)
}

// Len returns the total number of anchors across all realms.
func (g *AnchorGraph) Len() int {
	g.partitionsMu.RLock()
	defer g.partitionsMu.RUnlock()
	n := 0
	for _, p := range g.partitions {
		p.mu.RLock()
		n += len(p.anchors)
		p.mu.RUnlock()
	}
	return n
}

// AllSnapshot returns a consistent, read-only snapshot of every anchor —
// the "snapshot isolation" retrieval relies on (spec §5).
func (g *AnchorGraph) AllSnapshot() []Anchor {
	g.partitionsMu.RLock()
	partitions := make([]*realmPartition, 0, len(g.partitions))
	for _, p := range g.partitions {
		partitions = append(partitions, p)
	}
	g.partitionsMu.RUnlock()

	var out []Anchor
	for _, p := range partitions {
		p.mu.RLock()
		for _, id := range p.order {
			if a, ok := p.anchors[id]; ok {
				out = append(out, *a)
			}
		}
		p.mu.RUnlock()
	}
	return out
}
