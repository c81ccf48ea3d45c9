package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// EventLogWriter writes the batch event log to Postgres using multi-row
// INSERTs. All writes are idempotent under replay: conflicts on the primary
// key are dropped, so re-persisting after a crash is safe.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow is one row of batch_log.events.
type EventRow struct {
	Sequence    int64
	BatchID     string
	EventType   string
	PoolID      *uint32
	TimestampUs int64
	Payload     []byte // JSON-encoded event payload
}

// BatchRow is one row of batch_log.batches: the terminal receipt of a batch.
type BatchRow struct {
	BatchID      string
	Caller       string
	State        string
	Committed    bool
	NumActions   int
	FailureIndex int
	FailureKind  string
	FailureClass string
	Reason       string
	TimestampUs  int64
}

// ActionRow is one row of batch_log.actions: a committed action's effect.
type ActionRow struct {
	BatchID      string
	Index        int
	Kind         string
	Actor        string
	PoolID       uint32
	SharesMinted int64
	SharesBurned int64
	DebtDelta    int64
	Amount0In    int64
	Amount1In    int64
	Amount0Out   int64
	Amount1Out   int64
	Recipient    string
	PositionID   uint64
	BadDebt      int64
	FeeValue     int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch inserts events into batch_log.events inside tx.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO batch_log.events
		(sequence, batch_id, event_type, pool_id, timestamp_us, payload)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*6)
	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, e.Sequence, e.BatchID, e.EventType, e.PoolID, e.TimestampUs, e.Payload)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteBatchRows inserts batch receipts into batch_log.batches inside tx.
func (w *EventLogWriter) WriteBatchRows(ctx context.Context, tx *sql.Tx, batches []BatchRow) error {
	if len(batches) == 0 {
		return nil
	}

	query := `INSERT INTO batch_log.batches
		(batch_id, caller, state, committed, num_actions, failure_index, failure_kind, failure_class, reason, timestamp_us)
		VALUES `

	values := make([]string, 0, len(batches))
	args := make([]any, 0, len(batches)*10)
	for i, b := range batches {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			b.BatchID, b.Caller, b.State, b.Committed, b.NumActions,
			b.FailureIndex, b.FailureKind, b.FailureClass, b.Reason, b.TimestampUs,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (batch_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteActionRows inserts action effects into batch_log.actions inside tx.
func (w *EventLogWriter) WriteActionRows(ctx context.Context, tx *sql.Tx, actions []ActionRow) error {
	if len(actions) == 0 {
		return nil
	}

	query := `INSERT INTO batch_log.actions
		(batch_id, idx, kind, actor, pool_id, shares_minted, shares_burned, debt_delta,
		 amount0_in, amount1_in, amount0_out, amount1_out, recipient, position_id, bad_debt, fee_value)
		VALUES `

	values := make([]string, 0, len(actions))
	args := make([]any, 0, len(actions)*16)
	for i, a := range actions {
		base := i * 16
		ph := make([]string, 16)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			a.BatchID, a.Index, a.Kind, a.Actor, a.PoolID,
			a.SharesMinted, a.SharesBurned, a.DebtDelta,
			a.Amount0In, a.Amount1In, a.Amount0Out, a.Amount1Out,
			a.Recipient, a.PositionID, a.BadDebt, a.FeeValue,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (batch_id, idx) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
