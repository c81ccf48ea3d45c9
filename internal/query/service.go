package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a batch is absent from the log.
var ErrNotFound = errors.New("not found")

// QueryService reads the batch_log tables written by the persistence
// worker. Read-only: all queries go against the append-only log, never the
// in-memory ledger.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBatch returns the receipt row for one batch.
func (qs *QueryService) GetBatch(ctx context.Context, batchID string) (*BatchRecord, error) {
	var b BatchRecord
	err := qs.db.QueryRowContext(ctx, `
		SELECT batch_id, caller, state, committed, num_actions,
		       failure_index, failure_kind, failure_class, reason, timestamp_us
		FROM batch_log.batches
		WHERE batch_id = $1
	`, batchID).Scan(
		&b.BatchID, &b.Caller, &b.State, &b.Committed, &b.NumActions,
		&b.FailureIndex, &b.FailureKind, &b.FailureClass, &b.Reason, &b.TimestampUs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// ListActions returns the committed effects of one batch in execution order.
func (qs *QueryService) ListActions(ctx context.Context, batchID string) ([]ActionRecord, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT idx, kind, actor, pool_id, shares_minted, shares_burned, debt_delta,
		       amount0_in, amount1_in, amount0_out, amount1_out,
		       recipient, position_id, bad_debt, fee_value
		FROM batch_log.actions
		WHERE batch_id = $1
		ORDER BY idx ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []ActionRecord
	for rows.Next() {
		var a ActionRecord
		if err := rows.Scan(
			&a.Index, &a.Kind, &a.Actor, &a.PoolID,
			&a.SharesMinted, &a.SharesBurned, &a.DebtDelta,
			&a.Amount0In, &a.Amount1In, &a.Amount0Out, &a.Amount1Out,
			&a.Recipient, &a.PositionID, &a.BadDebt, &a.FeeValue,
		); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ListBatchesByCaller returns a caller's most recent batches, newest first.
func (qs *QueryService) ListBatchesByCaller(ctx context.Context, caller string, limit int) ([]BatchRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT batch_id, caller, state, committed, num_actions,
		       failure_index, failure_kind, failure_class, reason, timestamp_us
		FROM batch_log.batches
		WHERE caller = $1
		ORDER BY timestamp_us DESC
		LIMIT $2
	`, caller, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []BatchRecord
	for rows.Next() {
		var b BatchRecord
		if err := rows.Scan(
			&b.BatchID, &b.Caller, &b.State, &b.Committed, &b.NumActions,
			&b.FailureIndex, &b.FailureKind, &b.FailureClass, &b.Reason, &b.TimestampUs,
		); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListEvents pages the event log from a sequence, ascending.
func (qs *QueryService) ListEvents(ctx context.Context, fromSequence int64, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, batch_id, event_type, pool_id, timestamp_us, payload
		FROM batch_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.Sequence, &e.BatchID, &e.EventType, &e.PoolID, &e.TimestampUs, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
