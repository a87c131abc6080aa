// core/recovery.go
package core

// Recovery Gate (C7) — applies to BOUND records: presence, authentication,
// policy and audit-before-return checks (spec §4.7). Policy storage follows
// the teacher's core/access_control.go AccessController: an in-memory cache
// guarding a persistent role table, safe for concurrent use.

import (
	"crypto/ed25519"
	"sync"

	"stat7/pkg/utils"
)

// RecoveryReason names which §4.7 check failed, for audit (spec §4.9
// status codes REJECTED_AUTH / REJECTED_POLICY / REJECTED_PRESENCE).
type RecoveryReason string

const (
	ReasonNone     RecoveryReason = ""
	ReasonPresence RecoveryReason = "presence"
	ReasonAuth     RecoveryReason = "auth"
	ReasonPolicy   RecoveryReason = "policy"
	ReasonAudit    RecoveryReason = "audit"
)

// Authenticator maps an auth token to a requester id. Capability set per
// spec §9 "dynamic dispatch across ... providers": selected at
// construction, passed as a parameter rather than global state.
type Authenticator interface {
	Authenticate(token string) (requesterID string, ok bool)
}

// StaticAuthenticator is a fixed token→requester table, the simplest
// Authenticator implementation — suitable for tests and single-operator
// deployments.
type StaticAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewStaticAuthenticator constructs an authenticator from a token table.
func NewStaticAuthenticator(tokens map[string]string) *StaticAuthenticator {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticAuthenticator{tokens: cp}
}

func (a *StaticAuthenticator) Authenticate(token string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.tokens[token]
	return id, ok
}

// PolicySet grants requesters permission for (realm, polarity) pairs,
// mirroring the teacher's AccessController role cache (core/access_control.go):
// an in-memory set guarding a persistent backing store.
type PolicySet struct {
	mu    sync.RWMutex
	store *Store
	cache map[string]map[string]struct{} // requesterID -> permission key set
}

// NewPolicySet opens a PolicySet persisted under dir.
func NewPolicySet(dir string) (*PolicySet, error) {
	s, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	ps := &PolicySet{store: s, cache: make(map[string]map[string]struct{})}
	for _, id := range s.Keys() {
		var perms []string
		if ok, err := s.Get(id, &perms); err == nil && ok {
			set := make(map[string]struct{}, len(perms))
			for _, p := range perms {
				set[p] = struct{}{}
			}
			ps.cache[id] = set
		}
	}
	return ps, nil
}

func permKey(realm Realm, polarity Polarity) string {
	return string(realm) + ":" + string(polarity)
}

// Grant allows requesterID to admit records for (realm, polarity).
func (ps *PolicySet) Grant(requesterID string, realm Realm, polarity Polarity) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	set, ok := ps.cache[requesterID]
	if !ok {
		set = make(map[string]struct{})
		ps.cache[requesterID] = set
	}
	set[permKey(realm, polarity)] = struct{}{}
	return ps.persist(requesterID)
}

// Allowed reports whether requesterID has permission for (realm, polarity)
// under the active policy set (spec §4.7 check 3).
func (ps *PolicySet) Allowed(requesterID string, realm Realm, polarity Polarity) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	set, ok := ps.cache[requesterID]
	if !ok {
		return false
	}
	_, ok = set[permKey(realm, polarity)]
	return ok
}

func (ps *PolicySet) persist(requesterID string) error {
	set := ps.cache[requesterID]
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	return ps.store.Put(requesterID, perms)
}

// AuditSink persists an audit record before admission returns success
// (spec §4.7 check 4 "Audit-before-return"). Implementations must make the
// write durable before Audit returns; JourneyLog (journey.go) is the
// implementation used in this module. The returned JourneyEntry lets the caller
// thread the GATED(pass) step into its own per-stage journey trail (spec
// §4.9) instead of re-deriving it.
type AuditSink interface {
	Audit(requesterID, action, target string) (JourneyEntry, error)
}

// RecoveryGate runs the four §4.7 checks in order, stopping at the first
// failure.
type RecoveryGate struct {
	auth    Authenticator
	policy  *PolicySet
	audit   AuditSink
	pubKey  ed25519.PublicKey // nil disables signature verification
}

// NewRecoveryGate wires the gate. pubKey may be nil if signatures are not
// required (spec §4.7 check 1 "if required").
func NewRecoveryGate(auth Authenticator, policy *PolicySet, audit AuditSink, pubKey ed25519.PublicKey) *RecoveryGate {
	return &RecoveryGate{auth: auth, policy: policy, audit: audit, pubKey: pubKey}
}

// Evaluate runs presence, authentication, policy and audit checks in that
// order (spec §4.7). On success the caller is free to register the
// bit-chain; on failure RecoveryReason identifies which check failed and no
// bit-chain is persisted. The returned *JourneyEntry is the GATED(pass)
// audit-before-return entry on success, nil otherwise.
func (g *RecoveryGate) Evaluate(bc BitChain, authToken, requesterID string) (RecoveryReason, string, *JourneyEntry, error) {
	// 1. Presence.
	if len(bc.Payload) == 0 {
		return ReasonPresence, "", nil, nil
	}
	if g.pubKey != nil {
		if len(bc.Signature) == 0 || !ed25519.Verify(g.pubKey, bc.Payload, bc.Signature) {
			return ReasonPresence, "", nil, nil
		}
	}

	// 2. Authentication.
	resolvedID, ok := g.auth.Authenticate(authToken)
	if !ok || (requesterID != "" && resolvedID != requesterID) {
		return ReasonAuth, "", nil, nil
	}

	// 3. Policy.
	if !g.policy.Allowed(resolvedID, bc.Coord.Realm, bc.Coord.Polarity) {
		return ReasonPolicy, resolvedID, nil, nil
	}

	// 4. Audit-before-return: a failure to log is an admission failure.
	var gated *JourneyEntry
	if g.audit != nil {
		entry, err := g.audit.Audit(resolvedID, "admit", bc.ID)
		if err != nil {
			return "", resolvedID, nil, utils.Wrapf(utils.KindInternalInvariant, err, "audit write failed")
		}
		gated = &entry
	}
	return ReasonNone, resolvedID, gated, nil
}
