package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"BatchLedger/internal/engine"
	"BatchLedger/internal/observability"
)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The orchestrator uses BLOCKING sends on this channel, so if the worker
// falls behind, submissions stall rather than lose log entries.
type PersistenceWorker struct {
	writer       *EventLogWriter
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log.With().Str("component", "persistence").Logger(),
		metrics:      metrics,
	}
}

// pending accumulates rows between flushes.
type pending struct {
	events  []EventRow
	batches []BatchRow
	actions []ActionRow
}

func (p *pending) empty() bool {
	return len(p.events) == 0 && len(p.batches) == 0
}

func (p *pending) reset() {
	p.events = p.events[:0]
	p.batches = p.batches[:0]
	p.actions = p.actions[:0]
}

func (p *pending) add(out engine.Output) {
	env := out.Envelope
	p.events = append(p.events, EventRow{
		Sequence:    env.Sequence,
		BatchID:     env.BatchID.String(),
		EventType:   env.EventType.String(),
		PoolID:      env.PoolID,
		TimestampUs: env.TimestampUs,
		Payload:     env.Payload,
	})

	// The receipt rides with the last envelope of its batch.
	if r := out.Receipt; r != nil {
		p.batches = append(p.batches, BatchRow{
			BatchID:      r.BatchID.String(),
			Caller:       r.Caller.String(),
			State:        r.State.String(),
			Committed:    r.Committed,
			NumActions:   len(r.Effects),
			FailureIndex: r.FailureIndex,
			FailureKind:  r.FailureKind,
			FailureClass: r.FailureClass,
			Reason:       r.Reason,
			TimestampUs:  env.TimestampUs,
		})
		for _, eff := range r.Effects {
			p.actions = append(p.actions, ActionRow{
				BatchID:      r.BatchID.String(),
				Index:        eff.Index,
				Kind:         eff.Kind.String(),
				Actor:        eff.Actor.String(),
				PoolID:       uint32(eff.Pool),
				SharesMinted: eff.SharesMinted,
				SharesBurned: eff.SharesBurned,
				DebtDelta:    eff.DebtDelta,
				Amount0In:    eff.Amount0In,
				Amount1In:    eff.Amount1In,
				Amount0Out:   eff.Amount0Out,
				Amount1Out:   eff.Amount1Out,
				Recipient:    eff.Recipient.String(),
				PositionID:   uint64(eff.Position),
				BadDebt:      eff.BadDebt,
				FeeValue:     eff.FeeValue,
			})
		}
	}
}

// Run batches incoming outputs and flushes when the batch is full or the
// flush timeout expires. Blocks until ctx is cancelled or the channel
// closes; both paths flush what remains.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	var buf pending
	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		if pw.metrics != nil {
			pw.metrics.SetChannelMetrics("persist", len(pw.inputChan), cap(pw.inputChan))
		}
		select {
		case <-ctx.Done():
			pw.drainRemaining(&buf)
			if !buf.empty() {
				if err := pw.flush(context.Background(), &buf); err != nil {
					pw.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				if !buf.empty() {
					if err := pw.flush(context.Background(), &buf); err != nil {
						pw.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			buf.add(out)
			if len(buf.events) >= pw.batchSize {
				pw.flushWithRetry(ctx, &buf)
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if !buf.empty() {
				pw.flushWithRetry(ctx, &buf)
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// drainRemaining empties whatever is still queued in the channel so the
// final flush covers it. The log is the source of truth; rows are never
// dropped on shutdown.
func (pw *PersistenceWorker) drainRemaining(buf *pending) {
	for {
		select {
		case out, ok := <-pw.inputChan:
			if !ok {
				return
			}
			buf.add(out)
		default:
			return
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or the context ends. The log is the source of truth; rows are never
// dropped.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, buf *pending) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(buf.events)).
				Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				// One last try on a background context so shutdown does not
				// lose the buffered rows.
				if err := pw.flush(context.Background(), buf); err != nil {
					pw.log.Error().Err(err).Msg("flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := pw.flush(ctx, buf); err == nil {
			if attempt > 0 {
				pw.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

// flush writes events, batch receipts, and action effects in one
// transaction, then clears the buffer.
func (pw *PersistenceWorker) flush(ctx context.Context, buf *pending) error {
	start := time.Now()

	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		pw.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, buf.events); err != nil {
		pw.countError("write_events")
		return err
	}
	if err := pw.writer.WriteBatchRows(ctx, tx, buf.batches); err != nil {
		pw.countError("write_batches")
		return err
	}
	if err := pw.writer.WriteActionRows(ctx, tx, buf.actions); err != nil {
		pw.countError("write_actions")
		return err
	}
	if err := tx.Commit(); err != nil {
		pw.countError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchesWritten.Add(float64(len(buf.batches)))
		pw.metrics.PersistActionsWritten.Add(float64(len(buf.actions)))
	}
	buf.reset()
	return nil
}

func (pw *PersistenceWorker) countError(kind string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
