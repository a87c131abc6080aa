// core/bitchain.go
package core

// Bit-Chain Entity (C2) — the minimal immutable record addressed by a STAT7
// coordinate (spec §3, §4.2). Content ids are derived the same way the
// teacher's core/storage.go Pin() derives a CID: a multihash of the raw
// payload, wrapped as a CIDv1. Payload bytes are never modified after
// creation; only heat/status may change (the "shadow" fields).

import (
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"stat7/pkg/utils"
)

// Status mirrors a bit-chain's lifecycle stage (spec §3, mirrors Horizon).
type Status string

const (
	StatusGenesis      Status = Status(HorizonGenesis)
	StatusEmergence    Status = Status(HorizonEmergence)
	StatusPeak         Status = Status(HorizonPeak)
	StatusDecay        Status = Status(HorizonDecay)
	StatusCrystallized Status = Status(HorizonCrystallized)
	StatusArchived     Status = Status(HorizonArchived)
)

// BitChain is the immutable record described in spec §3. CreatedAt,
// LineageParentID, ProvenanceChain and Signature are set once at creation;
// Heat and Status are the only fields a later mutation may touch.
type BitChain struct {
	ID               string    `json:"id"`
	Coord            Coord     `json:"coord"`
	Payload          []byte    `json:"payload"`
	Text             string    `json:"text,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LineageParentID  string    `json:"lineage_parent_id,omitempty"`
	ProvenanceChain  []string  `json:"provenance_chain"`
	Heat             float64   `json:"heat"`
	Status           Status    `json:"status"`
	Signature        []byte    `json:"signature,omitempty"`
}

// contentID derives the content-address id of a payload, the same way the
// teacher's Storage.Pin does: SHA2-256 multihash wrapped as a raw CIDv1.
func contentID(payload []byte) (string, error) {
	sum, err := mh.Sum(payload, mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// BitChainStore owns all bit-chains (spec §3 "Ownership"). put is O(1)
// amortized and idempotent by content hash; payload is immutable after
// creation (spec §4.2).
type BitChainStore struct {
	store *Store
	// coordOf tracks, per content id, the coordinate it was first admitted
	// under — required to detect DuplicateContentDifferentCoord.
	coordOf map[string]string
}

// NewBitChainStore opens a BitChainStore rooted at dir (the "bitchains/"
// persistence directory, spec §6).
func NewBitChainStore(dir string) (*BitChainStore, error) {
	s, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	bs := &BitChainStore{store: s, coordOf: make(map[string]string)}
	for _, id := range s.Keys() {
		var bc BitChain
		if ok, err := s.Get(id, &bc); err == nil && ok {
			if key, err := contentID(bc.Payload); err == nil {
				bs.coordOf[key] = AddressHex(bc.Coord)
			}
		}
	}
	return bs, nil
}

// Put stores bc under an id derived from payload+coord, replacing any ID
// already set on bc. Idempotent by
// content hash: calling Put twice with the same payload and coord returns
// the same id without error. If the same payload previously arrived under a
// different coordinate, DuplicateContentDifferentCoord is returned and
// nothing is written — the caller must pick one coordinate (spec §4.2).
func (bs *BitChainStore) Put(bc BitChain) (string, error) {
	cid, err := contentID(append(append([]byte{}, bc.Payload...), Canonicalize(bc.Coord)...))
	if err != nil {
		return "", err
	}
	payloadKey, err := contentID(bc.Payload)
	if err != nil {
		return "", err
	}
	addr := AddressHex(bc.Coord)
	if existing, ok := bs.coordOf[payloadKey]; ok && existing != addr {
		return "", utils.New(utils.KindConflict, "DuplicateContentDifferentCoord: payload already admitted under a different coordinate")
	}
	bc.ID = cid
	if bc.CreatedAt.IsZero() {
		bc.CreatedAt = time.Now().UTC()
	}
	if bc.Status == "" {
		bc.Status = Status(bc.Coord.Horizon)
	}
	if err := bs.store.Put(cid, bc); err != nil {
		return "", err
	}
	bs.coordOf[payloadKey] = addr
	return cid, nil
}

// Get returns the bit-chain stored under id, if any.
func (bs *BitChainStore) Get(id string) (BitChain, bool, error) {
	var bc BitChain
	ok, err := bs.store.Get(id, &bc)
	return bc, ok, err
}

// Filter selects bit-chains for List. A nil field means "no constraint".
type Filter struct {
	Realm           *Realm
	Status          *Status
	ExcludeArchived bool
}

func (f Filter) matches(bc BitChain) bool {
	if f.Realm != nil && bc.Coord.Realm != *f.Realm {
		return false
	}
	if f.Status != nil && bc.Status != *f.Status {
		return false
	}
	if f.ExcludeArchived && bc.Status == StatusArchived {
		return false
	}
	return true
}

// List returns all bit-chains matching filter, in insertion order.
func (bs *BitChainStore) List(filter Filter) ([]BitChain, error) {
	var out []BitChain
	for _, id := range bs.store.Keys() {
		var bc BitChain
		ok, err := bs.store.Get(id, &bc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if filter.matches(bc) {
			out = append(out, bc)
		}
	}
	return out, nil
}

// SetStatus mutates only the status shadow field of an existing bit-chain;
// heat, payload and provenance are untouched (spec §4.2).
func (bs *BitChainStore) SetStatus(id string, status Status) error {
	var bc BitChain
	ok, err := bs.store.Get(id, &bc)
	if err != nil {
		return err
	}
	if !ok {
		return utils.New(utils.KindValidation, "bitchain not found: "+id)
	}
	bc.Status = status
	return bs.store.Put(id, bc)
}

// ComputeHeat derives heat from luminosity and recency, per spec §3.
// Heat decays as the bit-chain ages since creation, using the same
// exponential form as anchor heat decay (§4.4).
func ComputeHeat(luminosity float64, createdAt time.Time, now time.Time, lambda float64) float64 {
	dt := now.Sub(createdAt).Seconds()
	if dt < 0 {
		dt = 0
	}
	return luminosity * expDecay(lambda, dt)
}
