package experiments

// EXP-06 verifies P-MERGE-IDEMPOTENT: create_or_update_anchor(t, u, c)
// twice with identical arguments produces one anchor carrying both
// utterance ids (spec §8, and scenario 3's near-identical-text dedup).

import (
	"context"
	"os"

	"stat7/core"
)

func RunExp06(seed int64, scale ScaleParameters) Verdict {
	dir, err := os.MkdirTemp("", "exp06-*")
	if err != nil {
		return fail("EXP-06", err.Error())
	}
	defer os.RemoveAll(dir)

	provider := core.NewLocalProvider(64, uint64(seed))
	graph, err := core.NewAnchorGraph(dir, provider, 0.92, 0.75, 0)
	if err != nil {
		return fail("EXP-06", err.Error())
	}

	text1 := "User wants to debug performance issues"
	text2 := "User wants to debug performance issues."
	ctx := core.AnchorContext{Realm: core.RealmData}

	emb1, _ := provider.Embed(context.Background(), text1)
	id1, err := graph.CreateOrUpdateAnchor(emb1, text1, "u1", ctx)
	if err != nil {
		return fail("EXP-06", err.Error())
	}

	emb2, _ := provider.Embed(context.Background(), text2)
	id2, err := graph.CreateOrUpdateAnchor(emb2, text2, "u2", ctx)
	if err != nil {
		return fail("EXP-06", err.Error())
	}

	// Repeat the second call verbatim: per P-MERGE-IDEMPOTENT this must not
	// add a third utterance id.
	id2Again, err := graph.CreateOrUpdateAnchor(emb2, text2, "u2", ctx)
	if err != nil {
		return fail("EXP-06", err.Error())
	}

	a, ok := graph.Get(id1)
	metrics := map[string]float64{"anchor_count": float64(graph.Len())}
	if !ok || id1 != id2 || id2 != id2Again {
		return Verdict{Name: "EXP-06", Pass: false, Metrics: metrics, Evidence: "near-identical utterances did not merge into one anchor"}
	}
	if len(a.UtteranceIDs) != 2 || a.UtteranceIDs[0] != "u1" || a.UtteranceIDs[1] != "u2" {
		return Verdict{Name: "EXP-06", Pass: false, Metrics: metrics, Evidence: "utterance_ids order/count mismatch"}
	}
	return passf("EXP-06", metrics, "one anchor, utterance_ids=[u1,u2], repeat call added nothing")
}
