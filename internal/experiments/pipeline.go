package experiments

// Shared admission-pipeline construction for the end-to-end experiments
// (EXP-07..EXP-10), mirroring how cmd/stat7/serve.go wires the same
// components for production use.

import (
	"crypto/ed25519"
	"os"
	"path/filepath"

	"stat7/core"
)

type pipeline struct {
	dir          string
	gate         *core.CollapseGate
	conservator  *core.Conservator
	recovery     *core.RecoveryGate
	bitchains    *core.BitChainStore
	journey      *core.JourneyLog
	policy       *core.PolicySet
	auth         *core.StaticAuthenticator
	orchestrator *core.Orchestrator
}

func newTestPipeline(allowedRequesters map[string]string) (*pipeline, error) {
	dir, err := os.MkdirTemp("", "stat7-exp-*")
	if err != nil {
		return nil, err
	}

	bitchains, err := core.NewBitChainStore(filepath.Join(dir, "bitchains"))
	if err != nil {
		return nil, err
	}
	journey, err := core.NewJourneyLog(filepath.Join(dir, "journeys"))
	if err != nil {
		return nil, err
	}
	policy, err := core.NewPolicySet(filepath.Join(dir, "policy"))
	if err != nil {
		return nil, err
	}
	auth := core.NewStaticAuthenticator(allowedRequesters)

	gate := core.NewCollapseGate(7)
	conservator := core.NewConservator(gate, nil)
	var pubKey ed25519.PublicKey // signature verification disabled for these experiments
	recovery := core.NewRecoveryGate(auth, policy, journey, pubKey)

	orch := core.NewOrchestrator(gate, conservator, recovery, bitchains, nil, nil, journey, nil, nil)

	return &pipeline{
		dir: dir, gate: gate, conservator: conservator, recovery: recovery,
		bitchains: bitchains, journey: journey, policy: policy, auth: auth,
		orchestrator: orch,
	}, nil
}

func (p *pipeline) cleanup() { os.RemoveAll(p.dir) }
