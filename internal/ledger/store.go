package ledger

import (
	"fmt"
	"sort"

	fpmath "BatchLedger/internal/math"
)

// Store is the in-memory ledger: a dense pool table plus vault and position
// maps. It is not safe for concurrent use; the orchestrator serializes all
// access.
type Store struct {
	pools     []*Pool
	vaults    map[VaultKey]*Vault
	positions map[PositionID]*Position
	nextPosID PositionID

	touchedPools  map[PoolID]struct{}
	touchedVaults map[VaultKey]struct{}
}

func NewStore() *Store {
	return &Store{
		vaults:        make(map[VaultKey]*Vault),
		positions:     make(map[PositionID]*Position),
		nextPosID:     1,
		touchedPools:  make(map[PoolID]struct{}),
		touchedVaults: make(map[VaultKey]struct{}),
	}
}

// AddPool registers a pool under the next dense ID.
func (s *Store) AddPool(asset0, asset1 string) *Pool {
	p := &Pool{
		ID:        PoolID(len(s.pools)),
		Asset0:    asset0,
		Asset1:    asset1,
		DebtIndex: fpmath.IndexConfig.Scale,
	}
	s.pools = append(s.pools, p)
	return p
}

// Pool returns the pool for an ID.
func (s *Store) Pool(id PoolID) (*Pool, error) {
	if int(id) >= len(s.pools) {
		return nil, fmt.Errorf("unknown pool %d", id)
	}
	return s.pools[id], nil
}

// Pools returns the dense pool slice. Callers must not reorder it.
func (s *Store) Pools() []*Pool {
	return s.pools
}

// Vault returns the vault for a key if it exists.
func (s *Store) Vault(key VaultKey) (*Vault, bool) {
	v, ok := s.vaults[key]
	return v, ok
}

// VaultOrCreate returns the vault for a key, creating an empty one if
// needed. The pool's current fee growth becomes the new vault's checkpoint.
func (s *Store) VaultOrCreate(key VaultKey) *Vault {
	if v, ok := s.vaults[key]; ok {
		return v
	}
	var checkpoint int64
	if int(key.Pool) < len(s.pools) {
		checkpoint = s.pools[key.Pool].FeeGrowthGlobal
	}
	v := &Vault{Key: key, FeeCheckpoint: checkpoint}
	s.vaults[key] = v
	return v
}

// RemoveVault drops an empty vault. Removing a non-empty vault is a bug.
func (s *Store) RemoveVault(key VaultKey) error {
	v, ok := s.vaults[key]
	if !ok {
		return nil
	}
	if !v.Empty() {
		return fmt.Errorf("vault %s not empty (shares=%d debt=%d positions=%d)",
			key, v.Shares, v.DebtShares, v.OpenPositions)
	}
	delete(s.vaults, key)
	return nil
}

// OpenPosition records a new position and bumps the owner's open count.
func (s *Store) OpenPosition(p *Position) PositionID {
	p.ID = s.nextPosID
	s.nextPosID++
	s.positions[p.ID] = p
	if v, ok := s.vaults[p.Vault]; ok {
		v.OpenPositions++
	}
	return p.ID
}

// Position returns a position by ID.
func (s *Store) Position(id PositionID) (*Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("unknown position %d", id)
	}
	return p, nil
}

// ClosePosition removes a position and decrements the owner's open count.
func (s *Store) ClosePosition(id PositionID) error {
	p, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("unknown position %d", id)
	}
	delete(s.positions, id)
	if v, ok := s.vaults[p.Vault]; ok && v.OpenPositions > 0 {
		v.OpenPositions--
	}
	return nil
}

// PositionsForVault returns the vault's open positions ordered by ID.
func (s *Store) PositionsForVault(key VaultKey) []*Position {
	var out []*Position
	for _, p := range s.positions {
		if p.Vault == key {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LockedShares sums the shares earmarked by a vault's open positions.
func (s *Store) LockedShares(key VaultKey) int64 {
	var locked int64
	for _, p := range s.positions {
		if p.Vault == key {
			locked += p.Shares
		}
	}
	return locked
}

// === Touched tracking ===
//
// Handlers mark what they mutate so the verifier only re-checks affected
// pools and vaults after each step.

func (s *Store) TouchPool(id PoolID) {
	s.touchedPools[id] = struct{}{}
}

func (s *Store) TouchVault(key VaultKey) {
	s.touchedVaults[key] = struct{}{}
	s.touchedPools[key.Pool] = struct{}{}
}

// TouchedPools returns the touched pool IDs in ascending order.
func (s *Store) TouchedPools() []PoolID {
	out := make([]PoolID, 0, len(s.touchedPools))
	for id := range s.touchedPools {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TouchedVaults returns the touched vault keys in deterministic order.
func (s *Store) TouchedVaults() []VaultKey {
	out := make([]VaultKey, 0, len(s.touchedVaults))
	for k := range s.touchedVaults {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pool != out[j].Pool {
			return out[i].Pool < out[j].Pool
		}
		return out[i].Owner.String() < out[j].Owner.String()
	})
	return out
}

func (s *Store) ResetTouched() {
	s.touchedPools = make(map[PoolID]struct{})
	s.touchedVaults = make(map[VaultKey]struct{})
}

// === Snapshot / restore ===

// Snapshot is a deep copy of the full ledger state.
type Snapshot struct {
	Pools     []*Pool
	Vaults    map[VaultKey]*Vault
	Positions map[PositionID]*Position
	NextPosID PositionID
}

// Snapshot captures the current state. Touched sets are not part of a
// snapshot; they are per-batch scratch.
func (s *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		Pools:     make([]*Pool, len(s.pools)),
		Vaults:    make(map[VaultKey]*Vault, len(s.vaults)),
		Positions: make(map[PositionID]*Position, len(s.positions)),
		NextPosID: s.nextPosID,
	}
	for i, p := range s.pools {
		snap.Pools[i] = p.Clone()
	}
	for k, v := range s.vaults {
		snap.Vaults[k] = v.Clone()
	}
	for id, p := range s.positions {
		snap.Positions[id] = p.Clone()
	}
	return snap
}

// Restore replaces the current state with a snapshot's contents. The
// snapshot itself stays valid; restoring copies again.
func (s *Store) Restore(snap *Snapshot) {
	s.pools = make([]*Pool, len(snap.Pools))
	for i, p := range snap.Pools {
		s.pools[i] = p.Clone()
	}
	s.vaults = make(map[VaultKey]*Vault, len(snap.Vaults))
	for k, v := range snap.Vaults {
		s.vaults[k] = v.Clone()
	}
	s.positions = make(map[PositionID]*Position, len(snap.Positions))
	for id, p := range snap.Positions {
		s.positions[id] = p.Clone()
	}
	s.nextPosID = snap.NextPosID
	s.ResetTouched()
}

// Clone returns an independent copy of the store, used by simulate mode.
func (s *Store) Clone() *Store {
	out := NewStore()
	out.Restore(s.Snapshot())
	return out
}
