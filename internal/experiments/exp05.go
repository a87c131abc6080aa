package experiments

// EXP-05 verifies P-SCALE: for a fixed query and fixed relevant corpus, the
// §4.5 coherence score varies by ≤5% as the total corpus grows from 5 to
// 1000 irrelevant anchors (spec §8).

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stat7/core"
)

func RunExp05(seed int64, scale ScaleParameters) Verdict {
	growMax := scale.CorpusGrowMax
	if growMax <= 0 {
		growMax = 1000
	}

	dir, err := os.MkdirTemp("", "exp05-*")
	if err != nil {
		return fail("EXP-05", err.Error())
	}
	defer os.RemoveAll(dir)

	provider := core.NewLocalProvider(64, uint64(seed))
	degrading := core.NewDegradingProvider(provider, provider, 0, 0, nil)

	relevantText := "database performance tuning query optimizer"
	relevantUtterances := []string{
		"database performance tuning query optimizer",
		"tuning the query optimizer for database performance",
		"performance tuning of database query execution",
	}

	irrelevantPool := []string{
		"weather forecast for the weekend",
		"recipe for sourdough bread",
		"history of the roman empire",
		"guitar chord progressions in jazz",
		"migratory patterns of arctic terns",
	}

	scores := make(map[int]float64)
	for _, irrelevantCount := range []int{5, growMax} {
		graphDir := filepath.Join(dir, "anchors", time.Now().Format("150405")+"-"+string(rune('a'+irrelevantCount%26)))
		graph, err := core.NewAnchorGraph(graphDir, provider, 0.92, 0.75, 0)
		if err != nil {
			return fail("EXP-05", err.Error())
		}
		for i, u := range relevantUtterances {
			emb, _ := provider.Embed(context.Background(), u)
			if _, err := graph.CreateOrUpdateAnchor(emb, u, "rel-"+string(rune('0'+i)), core.AnchorContext{Realm: core.RealmData}); err != nil {
				return fail("EXP-05", err.Error())
			}
		}
		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < irrelevantCount; i++ {
			text := irrelevantPool[rng.Intn(len(irrelevantPool))] + " " + strconv.Itoa(i)
			emb, _ := provider.Embed(context.Background(), text)
			if _, err := graph.CreateOrUpdateAnchor(emb, text, "irr-"+strconv.Itoa(i), core.AnchorContext{Realm: core.RealmNarrative}); err != nil {
				return fail("EXP-05", err.Error())
			}
		}

		engine, err := core.NewRetrievalEngine(graph, nil, degrading, nil, time.Minute, 4096)
		if err != nil {
			return fail("EXP-05", err.Error())
		}
		q := core.Query{QueryID: "exp05", Mode: core.ModeSemanticSimilarity, SemanticQuery: relevantText, MaxResults: 10, ConfidenceThreshold: 0.3}
		assembly, err := engine.Retrieve(context.Background(), q)
		if err != nil {
			return fail("EXP-05", err.Error())
		}
		if len(assembly.Items) == 0 {
			return fail("EXP-05", "no relevant results returned")
		}
		scores[irrelevantCount] = assembly.Items[0].RelevanceScore
	}

	low, high := scores[5], scores[growMax]
	var pctChange float64
	if low != 0 {
		pctChange = math.Abs(high-low) / low * 100
	}
	metrics := map[string]float64{"score_at_5": low, "score_at_max": high, "pct_change": pctChange}
	if pctChange > 5 {
		return Verdict{Name: "EXP-05", Pass: false, Metrics: metrics, Evidence: "coherence score drifted more than 5% as irrelevant corpus grew"}
	}
	return passf("EXP-05", metrics, "score drift %.2f%% <= 5%% from 5 to %d irrelevant anchors", pctChange, growMax)
}
