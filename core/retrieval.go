// core/retrieval.go
package core

// Retrieval Engine (C5) — six-mode query planner, scoring, ranking, and
// query cache (spec §3, §4.5). The query cache uses
// github.com/hashicorp/golang-lru/v2, the same library the teacher already
// imports for core/virtual_machine.go's working-set cache.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"stat7/pkg/utils"
)

// QueryMode selects one of the six retrieval modes (spec §3).
type QueryMode string

const (
	ModeSemanticSimilarity  QueryMode = "SEMANTIC_SIMILARITY"
	ModeTemporalSequence    QueryMode = "TEMPORAL_SEQUENCE"
	ModeAnchorNeighborhood  QueryMode = "ANCHOR_NEIGHBORHOOD"
	ModeProvenanceChain     QueryMode = "PROVENANCE_CHAIN"
	ModeConflictAware       QueryMode = "CONFLICT_AWARE"
	ModeComposite           QueryMode = "COMPOSITE"
)

// TemporalRange bounds a query to [Since, Until).
type TemporalRange struct {
	Since time.Time
	Until time.Time
}

// CoordFilter is a partial STAT7 coordinate used to narrow a query (spec
// §3). A nil/zero-value field means "unconstrained".
type CoordFilter struct {
	Realm   *Realm
	Horizon *Horizon
}

// Query is a retrieval request (spec §3).
type Query struct {
	QueryID             string
	Mode                QueryMode
	SemanticQuery       string
	CoordFilter         *CoordFilter
	TemporalRange       *TemporalRange
	SeedAnchorIDs       []string
	MaxResults          int
	ConfidenceThreshold float64
	ExcludeConflicts    bool
	IncludeProvenance   bool
	ProvenanceDepth     int
}

// WithDefaults returns a copy of q with the spec §3 defaults applied.
func (q Query) WithDefaults() Query {
	if q.MaxResults == 0 {
		q.MaxResults = 10
	}
	if q.ConfidenceThreshold == 0 {
		q.ConfidenceThreshold = 0.6
	}
	return q
}

// ResultItem is one entry of a ContextAssembly (spec §3).
type ResultItem struct {
	AnchorID          string
	RelevanceScore    float64
	TemporalDistance  time.Duration
	AnchorConnections []string
	ProvenanceDepth   int
	ConflictFlags     []string
	Metadata          map[string]any
}

// ContextAssembly is the ranked retrieval result (spec §3).
type ContextAssembly struct {
	Items        []ResultItem
	TotalScanned int
	CacheHit     bool
	ElapsedMS    float64
	Degraded     bool
	Reason       string
}

// ConflictDetector returns the reasons, if any, anchor a contradicts the
// query context. Pluggable per spec §9 OQ2; DefaultConflictDetector is the
// concrete implementation this engine ships with.
type ConflictDetector func(a Anchor, all []Anchor) []string

var oppositePolarity = map[Polarity]Polarity{
	PolarityPositive: PolarityNegative,
	PolarityNegative: PolarityPositive,
}

// DefaultConflictDetector flags a structural contradiction: another anchor
// shares (realm, horizon) but carries the opposing polarity (spec §4.5,
// §9 OQ2).
func DefaultConflictDetector(a Anchor, all []Anchor) []string {
	var reasons []string
	opp, hasOpp := oppositePolarity[a.Coord.Polarity]
	if !hasOpp {
		return nil
	}
	for _, other := range all {
		if other.AnchorID == a.AnchorID {
			continue
		}
		if other.Coord.Realm == a.Coord.Realm &&
			other.Coord.Horizon == a.Coord.Horizon &&
			other.Coord.Polarity == opp {
			reasons = append(reasons, "polarity conflict with anchor "+other.AnchorID)
		}
	}
	return reasons
}

// cacheEntry is a cached ContextAssembly with its insertion time, for TTL
// checking on read (spec §4.5 "Cache").
type cacheEntry struct {
	assembly ContextAssembly
	at       time.Time
	anchors  map[string]bool // anchor ids touched, for targeted invalidation
}

// Metrics is a snapshot of retrieval engine counters (spec §4.5 "metrics").
type Metrics struct {
	Queries   uint64
	CacheHits uint64
	CacheMiss uint64
	Timeouts  uint64
}

// RetrievalEngine is the C5 capability: retrieve, invalidate_cache, metrics.
type RetrievalEngine struct {
	graph     *AnchorGraph
	bitchains *BitChainStore
	provider  *DegradingProvider
	detector  ConflictDetector
	ttl       time.Duration
	cache     *lru.Cache[string, cacheEntry]
	queries   uint64
	cacheHits uint64
	cacheMiss uint64
	timeouts  uint64
}

// NewRetrievalEngine wires the engine. bitchains is the C2 index
// PROVENANCE_CHAIN walks to read a bit-chain's real LineageParentID chain
// (spec §3 data flow "caller -> C5 -> C4 (+ C2 index) -> ranked
// ContextAssembly"); it may be nil if PROVENANCE_CHAIN is never queried.
// cacheSize bounds the number of cached query results; ttl is
// cache_ttl_seconds (spec §6).
func NewRetrievalEngine(graph *AnchorGraph, bitchains *BitChainStore, provider *DegradingProvider, detector ConflictDetector, ttl time.Duration, cacheSize int) (*RetrievalEngine, error) {
	if detector == nil {
		detector = DefaultConflictDetector
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	c, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &RetrievalEngine{graph: graph, bitchains: bitchains, provider: provider, detector: detector, ttl: ttl, cache: c}, nil
}

// cacheKey hashes the canonical form of q (spec §4.5 "Keyed by
// hash(canonical(query))").
func cacheKey(q Query) string {
	h := sha256.New()
	h.Write([]byte(q.Mode))
	h.Write([]byte(q.SemanticQuery))
	for _, id := range q.SeedAnchorIDs {
		h.Write([]byte(id))
	}
	if q.CoordFilter != nil {
		if q.CoordFilter.Realm != nil {
			h.Write([]byte(*q.CoordFilter.Realm))
		}
		if q.CoordFilter.Horizon != nil {
			h.Write([]byte(*q.CoordFilter.Horizon))
		}
	}
	if q.TemporalRange != nil {
		h.Write([]byte(q.TemporalRange.Since.Format(time.RFC3339Nano)))
		h.Write([]byte(q.TemporalRange.Until.Format(time.RFC3339Nano)))
	}
	var buf [8]byte
	putFloat(buf[:], q.ConfidenceThreshold)
	h.Write(buf[:])
	putFloat(buf[:], float64(q.MaxResults))
	h.Write(buf[:])
	putFloat(buf[:], float64(q.ProvenanceDepth))
	h.Write(buf[:])
	if q.ExcludeConflicts {
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func putFloat(buf []byte, f float64) {
	bits := math.Float64bits(f)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
}

// ErrRetrievalTimeout is returned when a retrieve call exceeds ctx's
// deadline (spec §4.5, §7).
var ErrRetrievalTimeout = errors.New("RetrievalTimeout")

// ErrRetrievalCancelled is returned when ctx is cancelled mid-retrieval
// (spec §5 "Cancellation and timeouts").
var ErrRetrievalCancelled = errors.New("RetrievalCancelled")

// Retrieve executes q against a consistent snapshot of the anchor graph
// (spec §5 "Retrieval observes a snapshot"). Failure semantics follow spec
// §4.5 exactly: no matches above threshold is not an error, a down
// embedding provider yields a degraded assembly, and context
// cancellation/timeout surface as typed errors.
func (e *RetrievalEngine) Retrieve(ctx context.Context, q Query) (ContextAssembly, error) {
	start := time.Now()
	q = q.WithDefaults()
	e.queries++

	key := cacheKey(q)
	if ent, ok := e.cache.Get(key); ok {
		if time.Since(ent.at) < e.ttl {
			e.cacheHits++
			result := ent.assembly
			result.CacheHit = true
			result.ElapsedMS = time.Since(start).Seconds() * 1000
			return result, nil
		}
		e.cache.Remove(key)
	}
	e.cacheMiss++

	select {
	case <-ctx.Done():
		e.timeouts++
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ContextAssembly{}, ErrRetrievalTimeout
		}
		return ContextAssembly{}, ErrRetrievalCancelled
	default:
	}

	snapshot := e.graph.AllSnapshot()
	filtered := applyCoordFilter(snapshot, q.CoordFilter)

	var assembly ContextAssembly
	var degraded bool
	var err error

	switch q.Mode {
	case ModeSemanticSimilarity:
		assembly, degraded, err = e.semanticSimilarity(ctx, q, filtered)
	case ModeTemporalSequence:
		assembly = e.temporalSequence(q, filtered)
	case ModeAnchorNeighborhood:
		assembly = e.anchorNeighborhood(q, filtered)
	case ModeProvenanceChain:
		assembly = e.provenanceChain(q)
	case ModeConflictAware:
		assembly, degraded, err = e.conflictAware(ctx, q, filtered)
	case ModeComposite:
		assembly, degraded, err = e.composite(ctx, q, filtered)
	default:
		return ContextAssembly{}, utils.New(utils.KindValidation, "unknown query mode")
	}
	if err != nil {
		return ContextAssembly{}, err
	}

	assembly.TotalScanned = len(filtered)
	assembly.Degraded = degraded
	if len(assembly.Items) == 0 && assembly.Reason == "" {
		assembly.Reason = "no_results_above_threshold"
	}
	assembly.ElapsedMS = time.Since(start).Seconds() * 1000

	touched := make(map[string]bool, len(assembly.Items))
	for _, it := range assembly.Items {
		touched[it.AnchorID] = true
	}
	e.cache.Add(key, cacheEntry{assembly: assembly, at: time.Now(), anchors: touched})
	return assembly, nil
}

func applyCoordFilter(anchors []Anchor, f *CoordFilter) []Anchor {
	if f == nil {
		return anchors
	}
	out := anchors[:0:0]
	for _, a := range anchors {
		if f.Realm != nil && a.Coord.Realm != *f.Realm {
			continue
		}
		if f.Horizon != nil && a.Coord.Horizon != *f.Horizon {
			continue
		}
		out = append(out, a)
	}
	return out
}

// score implements the §4.5 scoring formula for a set of candidate cosines
// against a query embedding, given the number of distinct realms the
// candidate set spans (focus_bonus). Scale-invariant in corpus size
// (property P-SCALE): only the relevant candidate set feeds this function,
// never the full corpus.
func score(cosines []float64, adjacencies []float64, distinctRealms int) float64 {
	if len(cosines) == 0 {
		return 0
	}
	if distinctRealms < 1 {
		distinctRealms = 1
	}
	var sum, sumAdj float64
	for i, c := range cosines {
		sum += c
		sumAdj += adjacencies[i]
	}
	resultQuality := sum / float64(len(cosines))
	stat7Entanglement := sumAdj / float64(len(adjacencies))

	var variance float64
	for _, c := range cosines {
		d := c - resultQuality
		variance += d * d
	}
	variance /= float64(len(cosines))
	semanticCoherence := 1 - math.Sqrt(variance)

	var focusBonus float64
	if resultQuality > 0.8 {
		focusBonus = 1 / (1 + float64(distinctRealms)*0.01)
	} else {
		focusBonus = 0.5 + 0.5*resultQuality
	}

	return 0.5*resultQuality + 0.3*semanticCoherence + 0.1*stat7Entanglement + 0.1*focusBonus
}

func (e *RetrievalEngine) semanticSimilarity(ctx context.Context, q Query, candidates []Anchor) (ContextAssembly, bool, error) {
	v, degraded, err := e.provider.Embed(ctx, q.SemanticQuery)
	if err != nil {
		return ContextAssembly{Degraded: true, Reason: "provider_unavailable"}, true, nil
	}

	type scored struct {
		a     Anchor
		score float64
	}
	var matches []scored
	for _, a := range candidates {
		c := Similarity(v, a.Embedding)
		if c >= q.ConfidenceThreshold {
			matches = append(matches, scored{a, c})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if q.MaxResults > 0 && len(matches) > q.MaxResults {
		matches = matches[:q.MaxResults]
	}

	cosines := make([]float64, len(matches))
	adjacencies := make([]float64, len(matches))
	realms := make(map[Realm]bool)
	for i, m := range matches {
		cosines[i] = m.score
		adjacencies[i] = m.a.Coord.Adjacency
		realms[m.a.Coord.Realm] = true
	}
	// result_quality, semantic_coherence and stat7_entanglement are
	// properties of the returned set as a whole (spec §4.5); every item in
	// a SEMANTIC_SIMILARITY assembly shares the set's aggregate relevance,
	// with ranking order carried by cosine rather than per-item score.
	setScore := score(cosines, adjacencies, len(realms))

	items := make([]ResultItem, 0, len(matches))
	for _, m := range matches {
		items = append(items, ResultItem{
			AnchorID:          m.a.AnchorID,
			RelevanceScore:    setScore,
			AnchorConnections: neighborIDs(e.graph.Neighbors(m.a.AnchorID)),
			ProvenanceDepth:   m.a.ProvenanceDepth,
		})
	}
	return ContextAssembly{Items: items}, degraded, nil
}

func (e *RetrievalEngine) temporalSequence(q Query, candidates []Anchor) ContextAssembly {
	var filtered []Anchor
	for _, a := range candidates {
		if q.TemporalRange != nil {
			if a.CreatedAt.Before(q.TemporalRange.Since) || !a.CreatedAt.Before(q.TemporalRange.Until) {
				continue
			}
		}
		filtered = append(filtered, a)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].AnchorID < filtered[j].AnchorID
	})
	if q.MaxResults > 0 && len(filtered) > q.MaxResults {
		filtered = filtered[:q.MaxResults]
	}
	now := time.Now()
	items := make([]ResultItem, 0, len(filtered))
	for _, a := range filtered {
		items = append(items, ResultItem{
			AnchorID:         a.AnchorID,
			RelevanceScore:   1.0,
			TemporalDistance: now.Sub(a.CreatedAt),
			ProvenanceDepth:  a.ProvenanceDepth,
		})
	}
	return ContextAssembly{Items: items}
}

func (e *RetrievalEngine) anchorNeighborhood(q Query, candidates []Anchor) ContextAssembly {
	allowed := make(map[string]bool, len(candidates))
	for _, a := range candidates {
		allowed[a.AnchorID] = true
	}

	type hop struct {
		id    string
		depth int
		score float64
	}
	visited := make(map[string]hop)
	queue := make([]hop, 0, len(q.SeedAnchorIDs))
	for _, id := range q.SeedAnchorIDs {
		queue = append(queue, hop{id: id, depth: 0, score: 1})
		visited[id] = hop{id: id, depth: 0, score: 1}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range e.graph.Neighbors(cur.id) {
			if _, seen := visited[n.AnchorID]; seen {
				continue
			}
			h := hop{id: n.AnchorID, depth: cur.depth + 1, score: n.Score}
			visited[n.AnchorID] = h
			queue = append(queue, h)
		}
	}

	var hops []hop
	for id, h := range visited {
		if allowed != nil && len(candidates) > 0 && !allowed[id] {
			continue
		}
		hops = append(hops, h)
	}
	sort.Slice(hops, func(i, j int) bool {
		if hops[i].depth != hops[j].depth {
			return hops[i].depth < hops[j].depth
		}
		return hops[i].score > hops[j].score
	})
	if q.MaxResults > 0 && len(hops) > q.MaxResults {
		hops = hops[:q.MaxResults]
	}
	items := make([]ResultItem, 0, len(hops))
	for _, h := range hops {
		items = append(items, ResultItem{
			AnchorID:          h.id,
			RelevanceScore:    h.score,
			AnchorConnections: neighborIDs(e.graph.Neighbors(h.id)),
			Metadata:          map[string]any{"hop_distance": h.depth},
		})
	}
	return ContextAssembly{Items: items}
}

// provenanceChain walks each seed bit-chain's LineageParentID up to
// q.ProvenanceDepth ancestors, reading the real chain from the C2 index
// rather than anything anchor-local (spec §3 "caller -> C5 -> C4 (+ C2
// index) -> ranked ContextAssembly").
func (e *RetrievalEngine) provenanceChain(q Query) ContextAssembly {
	if e.bitchains == nil {
		return ContextAssembly{Reason: "provenance_store_unavailable"}
	}
	depthLimit := q.ProvenanceDepth
	if depthLimit <= 0 {
		depthLimit = 32
	}
	var items []ResultItem
	for _, seed := range q.SeedAnchorIDs {
		id := seed
		for depth := 0; depth < depthLimit; depth++ {
			bc, ok, err := e.bitchains.Get(id)
			if err != nil || !ok {
				break
			}
			items = append(items, ResultItem{
				AnchorID:        bc.ID,
				RelevanceScore:  1.0 / float64(depth+1),
				ProvenanceDepth: depth,
			})
			if bc.LineageParentID == "" {
				break
			}
			id = bc.LineageParentID
		}
	}
	if q.MaxResults > 0 && len(items) > q.MaxResults {
		items = items[:q.MaxResults]
	}
	return ContextAssembly{Items: items}
}

func (e *RetrievalEngine) conflictAware(ctx context.Context, q Query, candidates []Anchor) (ContextAssembly, bool, error) {
	base, degraded, err := e.semanticSimilarity(ctx, q, candidates)
	if err != nil {
		return base, degraded, err
	}
	all := candidates
	byID := make(map[string]Anchor, len(all))
	for _, a := range all {
		byID[a.AnchorID] = a
	}
	items := base.Items[:0:0]
	for _, it := range base.Items {
		a, ok := byID[it.AnchorID]
		if !ok {
			continue
		}
		flags := e.detector(a, all)
		it.ConflictFlags = flags
		if q.ExcludeConflicts && len(flags) > 0 {
			continue
		}
		items = append(items, it)
	}
	base.Items = items
	return base, degraded, nil
}

func (e *RetrievalEngine) composite(ctx context.Context, q Query, candidates []Anchor) (ContextAssembly, bool, error) {
	sem, degraded, err := e.semanticSimilarity(ctx, q, candidates)
	if err != nil {
		return sem, degraded, err
	}
	neigh := e.anchorNeighborhood(q, candidates)
	temp := e.temporalSequence(q, candidates)

	best := make(map[string]ResultItem)
	for _, group := range [][]ResultItem{sem.Items, neigh.Items, temp.Items} {
		for _, it := range group {
			if cur, ok := best[it.AnchorID]; !ok || it.RelevanceScore > cur.RelevanceScore {
				best[it.AnchorID] = it
			}
		}
	}
	merged := make([]ResultItem, 0, len(best))
	for _, it := range best {
		merged = append(merged, it)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].RelevanceScore != merged[j].RelevanceScore {
			return merged[i].RelevanceScore > merged[j].RelevanceScore
		}
		return merged[i].AnchorID < merged[j].AnchorID
	})
	if q.MaxResults > 0 && len(merged) > q.MaxResults {
		merged = merged[:q.MaxResults]
	}
	return ContextAssembly{Items: merged}, degraded, nil
}

func neighborIDs(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.AnchorID
	}
	return out
}

// InvalidateCache drops every cached entry whose result set contains
// anchorID; an empty anchorID drops every entry. The engine itself does not
// log (spec §4.5 "Entries invalidated on any anchor insert/update that
// touches a cached result's anchor set").
func (e *RetrievalEngine) InvalidateCache(anchorID string) {
	for _, key := range e.cache.Keys() {
		ent, ok := e.cache.Peek(key)
		if !ok {
			continue
		}
		if anchorID == "" || ent.anchors[anchorID] {
			e.cache.Remove(key)
		}
	}
}

// Metrics returns a snapshot of the engine's counters.
func (e *RetrievalEngine) Metrics() Metrics {
	return Metrics{Queries: e.queries, CacheHits: e.cacheHits, CacheMiss: e.cacheMiss, Timeouts: e.timeouts}
}
