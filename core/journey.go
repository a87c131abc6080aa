// core/journey.go
package core

// Journey log — an immutable, hash-chained audit trail of every admission
// decision (spec §4.9 "journey"). Entry hashing follows
// other_examples/a27905aa_Mindburn-Labs-helm__core-pkg-guardian-audit.go.go's
// AuditEntry{PreviousHash, Hash} + VerifyChain pattern, adapted to STAT7's
// canonical-JSON byte encoding (core/coordinate.go's Canonicalize).

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status codes a journey entry may record (spec §4.9).
type JourneyStatus string

const (
	StatusAdmitted        JourneyStatus = "ADMITTED"
	StatusRepaired        JourneyStatus = "REPAIRED_AND_ADMITTED"
	StatusRejectedEscape  JourneyStatus = "REJECTED_ESCAPED"
	StatusRejectedAuth    JourneyStatus = "REJECTED_AUTH"
	StatusRejectedPolicy  JourneyStatus = "REJECTED_POLICY"
	StatusRejectedPresent JourneyStatus = "REJECTED_PRESENCE"
	StatusUnrecoverable   JourneyStatus = "UNRECOVERABLE"

	// StatusEntered and StatusGatePassed are intermediate-stage statuses
	// (spec §4.9 journey "ENTRY -> COLLAPSED{...} -> (GATED|REPAIRED) ->
	// ROUTED{...}"), distinct from the terminal statuses above so the
	// audit-before-return entry C7 writes (stage GATED) is never mistaken
	// for the ROUTED entry that actually closes out the admission.
	StatusEntered    JourneyStatus = "ENTERED"
	StatusGatePassed JourneyStatus = "GATE_PASSED"
)

// Journey stage labels (spec §4.9).
const (
	StageEntry     = "ENTRY"
	StageCollapsed = "COLLAPSED"
	StageGated     = "GATED"
	StageRepaired  = "REPAIRED"
	StageRouted    = "ROUTED"
)

// CollapseSummary is the C6 report carried by a COLLAPSED or REPAIRED
// journey entry (spec §4.9 "including the C6 report").
type CollapseSummary struct {
	Result          CollapseVerdict `json:"result"`
	Iterations      int             `json:"iterations"`
	FirstEscapeIter int             `json:"first_escape_iter"`
	FinalMagnitude  float64         `json:"final_magnitude"`
	CReal           float64         `json:"c_real"`
	CImag           float64         `json:"c_imag"`
	Z0Real          float64         `json:"z0_real"`
	Z0Imag          float64         `json:"z0_imag"`
}

// collapseSummaryOf converts a CollapseReport into its journal-stable
// summary (complex128's real/imaginary parts split out since JSON has no
// native complex type).
func collapseSummaryOf(r CollapseReport) *CollapseSummary {
	return &CollapseSummary{
		Result:          r.Result,
		Iterations:      r.Iterations,
		FirstEscapeIter: r.FirstEscapeIter,
		FinalMagnitude:  r.FinalMagnitude,
		CReal:           real(r.C),
		CImag:           imag(r.C),
		Z0Real:          real(r.Z0),
		Z0Imag:          imag(r.Z0),
	}
}

// JourneyEntry is one immutable step of a bit-chain's admission history.
// Stage identifies which §4.9 pipeline step produced it; Collapse and
// RepairActions carry the C6 report and C8 repair names structurally
// rather than flattened into Detail.
type JourneyEntry struct {
	SeqNo         uint64           `json:"seq_no"`
	BitChainID    string           `json:"bitchain_id"`
	RequesterID   string           `json:"requester_id"`
	Action        string           `json:"action"`
	Stage         string           `json:"stage,omitempty"`
	Status        JourneyStatus    `json:"status"`
	Detail        string           `json:"detail"`
	Collapse      *CollapseSummary `json:"collapse,omitempty"`
	RepairActions []string         `json:"repair_actions,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	PreviousHash  string           `json:"previous_hash"`
	Hash          string           `json:"hash"`
}

func (e JourneyEntry) canonicalBytes() []byte {
	// Deliberately excludes Hash itself; mirrors Canonicalize's sorted-key,
	// fixed-format approach from core/coordinate.go but over entry fields.
	collapsePart := "null"
	if e.Collapse != nil {
		collapsePart = fmt.Sprintf(
			`{"c_imag":%v,"c_real":%v,"final_magnitude":%v,"first_escape_iter":%d,"iterations":%d,"result":%q,"z0_imag":%v,"z0_real":%v}`,
			e.Collapse.CImag, e.Collapse.CReal, e.Collapse.FinalMagnitude, e.Collapse.FirstEscapeIter,
			e.Collapse.Iterations, e.Collapse.Result, e.Collapse.Z0Imag, e.Collapse.Z0Real,
		)
	}
	return []byte(fmt.Sprintf(
		`{"action":%q,"bitchain_id":%q,"collapse":%s,"detail":%q,"previous_hash":%q,"repair_actions":%q,"requester_id":%q,"seq_no":%d,"stage":%q,"status":%q,"timestamp":%q}`,
		e.Action, e.BitChainID, collapsePart, e.Detail, e.PreviousHash, strings.Join(e.RepairActions, ","),
		e.RequesterID, e.SeqNo, e.Stage, e.Status, e.Timestamp.UTC().Format(time.RFC3339Nano),
	))
}

func computeEntryHash(e JourneyEntry) string {
	sum := sha256.Sum256(e.canonicalBytes())
	return hex.EncodeToString(sum[:])
}

// JourneyLog is an append-only, hash-chained log, persisted one file per
// entry under dir, keyed by zero-padded sequence number so Keys() returns
// entries in append order.
type JourneyLog struct {
	mu    sync.Mutex
	store *Store
	seq   uint64
	last  string
}

// NewJourneyLog opens or creates a journey log rooted at dir.
func NewJourneyLog(dir string) (*JourneyLog, error) {
	s, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	jl := &JourneyLog{store: s}
	keys := s.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		var e JourneyEntry
		if ok, err := s.Get(k, &e); err == nil && ok {
			if e.SeqNo+1 > jl.seq {
				jl.seq = e.SeqNo + 1
			}
			jl.last = e.Hash
		}
	}
	return jl, nil
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// Append adds a new entry to the chain, stamping PreviousHash from the
// prior tail and computing this entry's own Hash.
func (jl *JourneyLog) Append(bitChainID, requesterID, action string, status JourneyStatus, detail string, now time.Time) (JourneyEntry, error) {
	return jl.AppendStage(JourneyEntry{
		BitChainID:  bitChainID,
		RequesterID: requesterID,
		Action:      action,
		Status:      status,
		Detail:      detail,
		Timestamp:   now,
	})
}

// AppendStage adds e to the chain, assigning SeqNo/PreviousHash/Hash (and a
// Timestamp if unset). Used directly by callers that need to carry a Stage,
// CollapseSummary or RepairActions list alongside the entry (spec §4.9).
func (jl *JourneyLog) AppendStage(e JourneyEntry) (JourneyEntry, error) {
	jl.mu.Lock()
	defer jl.mu.Unlock()

	e.SeqNo = jl.seq
	e.PreviousHash = jl.last
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Hash = computeEntryHash(e)

	if err := jl.store.Put(seqKey(e.SeqNo), e); err != nil {
		return JourneyEntry{}, err
	}
	jl.seq++
	jl.last = e.Hash
	return e, nil
}

// Audit implements AuditSink, recording the GATED(pass) audit-before-return
// entry (spec §4.7 check 4). Deliberately distinct from any terminal ROUTED
// status: RecoveryGate's caller still owns recording the final outcome.
func (jl *JourneyLog) Audit(requesterID, action, target string) (JourneyEntry, error) {
	return jl.AppendStage(JourneyEntry{
		BitChainID:  target,
		RequesterID: requesterID,
		Action:      action,
		Stage:       StageGated,
		Status:      StatusGatePassed,
	})
}

// ForBitChain returns all entries recorded for bitChainID, in append order.
func (jl *JourneyLog) ForBitChain(bitChainID string) ([]JourneyEntry, error) {
	keys := jl.store.Keys()
	sort.Strings(keys)
	var out []JourneyEntry
	for _, k := range keys {
		var e JourneyEntry
		ok, err := jl.store.Get(k, &e)
		if err != nil {
			return nil, err
		}
		if ok && e.BitChainID == bitChainID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Since returns all entries with Timestamp >= since, in append order.
func (jl *JourneyLog) Since(since time.Time) ([]JourneyEntry, error) {
	keys := jl.store.Keys()
	sort.Strings(keys)
	var out []JourneyEntry
	for _, k := range keys {
		var e JourneyEntry
		ok, err := jl.store.Get(k, &e)
		if err != nil {
			return nil, err
		}
		if ok && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// VerifyChain recomputes each entry's hash and confirms PreviousHash
// linkage, detecting tampering (spec §4.9 "tamper-evident").
func (jl *JourneyLog) VerifyChain() (bool, int, error) {
	keys := jl.store.Keys()
	sort.Strings(keys)
	prev := ""
	for i, k := range keys {
		var e JourneyEntry
		ok, err := jl.store.Get(k, &e)
		if err != nil {
			return false, i, err
		}
		if !ok {
			continue
		}
		if e.PreviousHash != prev {
			return false, i, nil
		}
		if computeEntryHash(e) != e.Hash {
			return false, i, nil
		}
		prev = e.Hash
	}
	return true, -1, nil
}
