package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"BatchLedger/internal/ledger"
)

// SnapshotManager persists periodic copies of the full ledger so a warm
// restart can load the latest snapshot and replay the event log from its
// sequence forward instead of replaying everything.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of the ledger at a point in the
// event stream.
type SnapshotData struct {
	Sequence       int64              `json:"sequence"`
	Pools          []*ledger.Pool     `json:"pools"`
	Vaults         []*ledger.Vault    `json:"vaults"`
	Positions      []*ledger.Position `json:"positions"`
	NextPositionID ledger.PositionID  `json:"next_position_id"`
	CreatedAtUs    int64              `json:"created_at_us"`
}

// CaptureSnapshot converts the store's deep copy into serializable form.
func CaptureSnapshot(store *ledger.Store, sequence, nowUs int64) *SnapshotData {
	snap := store.Snapshot()
	sd := &SnapshotData{
		Sequence:       sequence,
		Pools:          snap.Pools,
		Vaults:         make([]*ledger.Vault, 0, len(snap.Vaults)),
		Positions:      make([]*ledger.Position, 0, len(snap.Positions)),
		NextPositionID: snap.NextPosID,
		CreatedAtUs:    nowUs,
	}
	for _, v := range snap.Vaults {
		sd.Vaults = append(sd.Vaults, v)
	}
	for _, p := range snap.Positions {
		sd.Positions = append(sd.Positions, p)
	}
	return sd
}

// Apply loads the snapshot's state into the store, replacing its contents.
func (sd *SnapshotData) Apply(store *ledger.Store) {
	snap := &ledger.Snapshot{
		Pools:     sd.Pools,
		Vaults:    make(map[ledger.VaultKey]*ledger.Vault, len(sd.Vaults)),
		Positions: make(map[ledger.PositionID]*ledger.Position, len(sd.Positions)),
		NextPosID: sd.NextPositionID,
	}
	for _, v := range sd.Vaults {
		snap.Vaults[v.Key] = v
	}
	for _, p := range sd.Positions {
		snap.Positions[p.ID] = p
	}
	store.Restore(snap)
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot, replacing any earlier one at the same
// sequence.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO batch_log.snapshots
			(snapshot_id, sequence, data, size_bytes, created_at_us)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $4
	`, uuid.New(), snap.Sequence, data, len(data), snap.CreatedAtUs)
	return len(data), err
}

// LoadLatestSnapshot returns the most recent snapshot, or nil on cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM batch_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LoadEventsFrom pages events from a given sequence for warm-restart replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, batch_id, event_type, pool_id, timestamp_us, payload
		FROM batch_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.Sequence, &e.BatchID, &e.EventType, &e.PoolID, &e.TimestampUs, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, or 0 when
// the log is empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM batch_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
