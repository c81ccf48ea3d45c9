package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"BatchLedger/internal/action"
	"BatchLedger/internal/event"
	"BatchLedger/internal/ledger"
	"BatchLedger/internal/observability"
)

// Batch is one submission: the caller, the ordered action list, and the
// versioned timestamps. Ephemeral; exists only for one orchestration call.
type Batch struct {
	ID            uuid.UUID
	Caller        uuid.UUID
	Actions       []action.Action
	SubmittedAtUs int64
	DeadlineUs    int64 // 0 = no deadline
}

// Output pairs an event envelope with the receipt it belongs to, for the
// persistence and publish channels.
type Output struct {
	Envelope *event.Envelope
	Receipt  *Receipt
}

// Orchestrator drives the batch lifecycle over the shared ledger. All
// mutation is serialized through it; a reentrancy guard rejects overlapping
// submissions.
type Orchestrator struct {
	store    *ledger.Store
	venue    Venue
	prices   PriceSource
	rates    RateSource
	policies PolicySource
	verifier *Verifier

	log     zerolog.Logger
	metrics *observability.Metrics

	sequence int64
	inFlight atomic.Bool

	// Persistence uses a blocking send (backpressure); publishing uses a
	// non-blocking send with drop, consumers rebuild from the log.
	persistChan chan<- Output
	publishChan chan<- Output
}

func NewOrchestrator(
	store *ledger.Store,
	venue Venue,
	prices PriceSource,
	rates RateSource,
	policies PolicySource,
	persistChan, publishChan chan<- Output,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store:       store,
		venue:       venue,
		prices:      prices,
		rates:       rates,
		policies:    policies,
		verifier:    NewVerifier(prices, policies),
		log:         log.With().Str("component", "orchestrator").Logger(),
		metrics:     metrics,
		persistChan: persistChan,
		publishChan: publishChan,
	}
}

// Execute runs a batch against the live ledger. All-or-nothing: on any
// failure the ledger is restored to its pre-call state and the receipt
// carries the first failure only.
func (o *Orchestrator) Execute(b *Batch) *Receipt {
	start := time.Now()

	if !o.inFlight.CompareAndSwap(false, true) {
		return abortedReceipt(b.ID, b.Caller, false, validationError(ErrBatchInFlight))
	}
	defer o.inFlight.Store(false)

	snap := o.store.Snapshot()
	o.store.ResetTouched()

	receipt, events := o.run(o.store, b, false)

	if receipt.State == StateCommitted {
		o.store.ResetTouched()
	} else {
		o.store.Restore(snap)
	}

	o.emit(b, receipt, events)
	o.observe(b, receipt, start, "live")
	return receipt
}

// Simulate runs the identical lifecycle against a throwaway copy of the
// ledger and returns the would-be receipt without committing or emitting.
func (o *Orchestrator) Simulate(b *Batch) *Receipt {
	start := time.Now()

	if !o.inFlight.CompareAndSwap(false, true) {
		return abortedReceipt(b.ID, b.Caller, true, validationError(ErrBatchInFlight))
	}
	defer o.inFlight.Store(false)

	receipt, _ := o.run(o.store.Clone(), b, true)
	o.observe(b, receipt, start, "simulated")
	return receipt
}

// run executes the lifecycle state machine on the given store. The caller
// owns rollback; run itself never restores.
func (o *Orchestrator) run(store *ledger.Store, b *Batch, simulated bool) (*Receipt, []event.Event) {
	state := StateValidated
	events := make([]event.Event, 0, len(b.Actions)+2)

	abort := func(berr *BatchError) (*Receipt, []event.Event) {
		if !state.CanTransitionTo(StateAborted) {
			panic(fmt.Sprintf("illegal transition %s -> Aborted", state))
		}
		events = append(events, &event.BatchAborted{
			BatchID:      b.ID,
			Caller:       b.Caller,
			NumActions:   len(b.Actions),
			FailureIndex: berr.ActionIndex,
			FailureKind:  berr.ActionKind.String(),
			Reason:       berr.Error(),
			Simulated:    simulated,
		})
		return abortedReceipt(b.ID, b.Caller, simulated, berr), events
	}

	// Selector guard and shape checks. DecodeBatch already enforces these
	// for wire submissions; programmatic callers get the same gate.
	if err := validateBatch(b); err != nil {
		return abort(validationError(err))
	}

	// Once-per-batch accrual over every referenced pool.
	accruals, err := accrue(store, o.rates, referencedPools(b.Actions), b.SubmittedAtUs)
	if err != nil {
		return abort(&BatchError{Class: classify(err), ActionIndex: -1, Err: err})
	}
	state = StateAccrualApplied
	for _, a := range accruals {
		events = append(events, &event.AccrualApplied{
			BatchID:        b.ID,
			PoolID:         uint32(a.Pool),
			OldIndex:       a.OldIndex,
			NewIndex:       a.NewIndex,
			ElapsedSeconds: a.ElapsedSeconds,
		})
	}

	scheduled := Schedule(b.Actions)
	boundary := PhaseBoundary(scheduled)
	handlers := NewHandlers(store, o.venue, o.policies, o.prices)
	effects := make([]Effect, 0, len(scheduled))

	state = StatePhaseARunning
	for i, s := range scheduled {
		if i == boundary {
			state = StatePhaseBRunning
		}

		stepStart := time.Now()
		eff, err := handlers.Apply(b.Caller, s, b.SubmittedAtUs)
		if err == nil {
			err = o.verifier.Check(store, b.SubmittedAtUs)
		}
		stepDur := time.Since(stepStart).Microseconds()
		if o.metrics != nil && !simulated {
			o.metrics.ActionDuration.WithLabelValues(s.Action.Kind().String()).
				Observe(time.Since(stepStart).Seconds())
		}

		events = append(events, &event.ActionExecuted{
			BatchID:    b.ID,
			Index:      s.Index,
			Kind:       s.Action.Kind().String(),
			Actor:      b.Caller,
			PoolID:     uint32(poolOf(s.Action)),
			Success:    err == nil,
			Reason:     reasonOf(err),
			DurationUs: stepDur,
		})

		if err != nil {
			return abort(newBatchError(classify(err), s.Index, s.Action.Kind(), err))
		}

		effects = append(effects, eff)
		events = append(events, effectEvents(b.ID, b.Caller, s.Action, eff)...)
	}
	if state == StatePhaseARunning {
		// Empty phase B still passes through its state.
		state = StatePhaseBRunning
	}

	state = StateFinalVerify
	if err := o.verifier.Check(store, b.SubmittedAtUs); err != nil {
		return abort(&BatchError{Class: classify(err), ActionIndex: -1, Err: err})
	}

	state = StateCommitted
	events = append(events, &event.BatchExecuted{
		BatchID:    b.ID,
		Caller:     b.Caller,
		NumActions: len(b.Actions),
		Simulated:  simulated,
	})
	return committedReceipt(b.ID, b.Caller, simulated, effects), events
}

func validateBatch(b *Batch) error {
	if len(b.Actions) == 0 {
		return action.ErrEmptyBatch
	}
	if len(b.Actions) > action.MaxBatchActions {
		return fmt.Errorf("%w: %d > %d", action.ErrBatchTooLarge, len(b.Actions), action.MaxBatchActions)
	}
	if b.DeadlineUs > 0 && b.SubmittedAtUs > b.DeadlineUs {
		return fmt.Errorf("%w: submitted %d, deadline %d", ErrExpiredDeadline, b.SubmittedAtUs, b.DeadlineUs)
	}
	for i, a := range b.Actions {
		k := a.Kind()
		if k.Blacklisted() {
			return fmt.Errorf("action %d: %w: %s", i, action.ErrBlacklistedKind, k)
		}
		if k.Reserved() {
			return fmt.Errorf("action %d: %w: %d", i, action.ErrReservedKind, uint8(k))
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w: %v", i, action.ErrMalformedParams, err)
		}
	}
	return nil
}

// effectEvents derives the typed per-action events from a committed effect.
func effectEvents(batchID, caller uuid.UUID, a action.Action, eff Effect) []event.Event {
	var out []event.Event
	switch act := a.(type) {
	case *action.OpenPosition:
		out = append(out, &event.PositionOpened{
			BatchID: batchID, PoolID: uint32(eff.Pool), Owner: caller,
			PositionID: uint64(eff.Position), Kind: ledger.PositionRange.String(),
			TickLower: act.TickLower, TickUpper: act.TickUpper, Shares: act.Shares,
		})
	case *action.PlaceLimitOrder:
		out = append(out, &event.PositionOpened{
			BatchID: batchID, PoolID: uint32(eff.Pool), Owner: caller,
			PositionID: uint64(eff.Position), Kind: ledger.PositionLimitOrder.String(),
			TickLower: act.Tick, TickUpper: act.Tick + 1, Shares: act.Shares,
		})
	case *action.ClosePosition:
		out = append(out, &event.PositionClosed{
			BatchID: batchID, PoolID: uint32(eff.Pool), Owner: caller,
			PositionID: uint64(eff.Position), PaidOut: act.Withdraw,
		})
	case *action.CancelLimitOrder:
		out = append(out, &event.PositionClosed{
			BatchID: batchID, PoolID: uint32(eff.Pool), Owner: eff.Recipient,
			PositionID: uint64(eff.Position), Settled: eff.Recipient != caller,
		})
	case *action.LiquidatePartial:
		out = append(out, &event.VaultLiquidated{
			BatchID: batchID, PoolID: uint32(eff.Pool), Victim: act.Victim,
			Liquidator: caller, RepaidValue: -eff.DebtDelta,
			SeizedValue: eff.SharesMinted, Full: false,
		})
	case *action.LiquidateFull:
		out = append(out, &event.VaultLiquidated{
			BatchID: batchID, PoolID: uint32(eff.Pool), Victim: act.Victim,
			Liquidator: caller, RepaidValue: -eff.DebtDelta,
			SeizedValue: eff.SharesBurned, Full: true,
		})
		if eff.BadDebt > 0 {
			out = append(out, &event.BadDebtRecorded{
				BatchID: batchID, PoolID: uint32(eff.Pool),
				Victim: act.Victim, Amount: eff.BadDebt,
			})
		}
	}
	return out
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// emit wraps the collected events in envelopes and fans them out. The batch
// record itself rides with the last envelope's output.
func (o *Orchestrator) emit(b *Batch, receipt *Receipt, events []event.Event) {
	for i, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			o.log.Error().Err(err).Str("event_type", e.Type().String()).Msg("marshal event payload")
			continue
		}
		env := &event.Envelope{
			Sequence:    o.sequence,
			BatchID:     b.ID,
			EventType:   e.Type(),
			PoolID:      e.Pool(),
			TimestampUs: b.SubmittedAtUs,
			Payload:     payload,
		}
		o.sequence++

		if acc, ok := e.(*event.AccrualApplied); ok && o.metrics != nil {
			o.metrics.AccrualsApplied.WithLabelValues(strconv.Itoa(int(acc.PoolID))).Inc()
		}

		out := Output{Envelope: env}
		if i == len(events)-1 {
			out.Receipt = receipt
		}

		if o.persistChan != nil {
			if o.metrics != nil && len(o.persistChan) == cap(o.persistChan) {
				o.metrics.PersistBackpressure.Inc()
			}
			o.persistChan <- out
		}
		if o.publishChan != nil {
			select {
			case o.publishChan <- out:
			default:
				if o.metrics != nil {
					o.metrics.PublishDrops.Inc()
				}
			}
		}
	}
	if o.metrics != nil {
		o.metrics.BatchSequence.Set(float64(o.sequence))
	}
}

func (o *Orchestrator) observe(b *Batch, receipt *Receipt, start time.Time, mode string) {
	outcome := "committed"
	if receipt.State != StateCommitted {
		outcome = "aborted"
	}
	if receipt.Simulated {
		outcome = "simulated_" + outcome
	}

	if o.metrics != nil {
		o.metrics.BatchesExecuted.WithLabelValues(outcome).Inc()
		o.metrics.BatchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		o.metrics.BatchSize.Observe(float64(len(b.Actions)))
		if receipt.State == StateAborted {
			o.metrics.VerifierFailures.WithLabelValues(receipt.FailureClass).Inc()
		}
		for _, eff := range receipt.Effects {
			o.metrics.ActionsExecuted.WithLabelValues(eff.Kind.String(), "ok").Inc()
			if eff.BadDebt > 0 {
				o.metrics.BadDebtRecorded.WithLabelValues(strconv.Itoa(int(eff.Pool))).Add(float64(eff.BadDebt))
			}
		}
		if receipt.State == StateAborted && receipt.FailureIndex >= 0 {
			o.metrics.ActionsExecuted.WithLabelValues(receipt.FailureKind, "failed").Inc()
		}
	}

	evt := o.log.Info()
	if receipt.State == StateAborted {
		evt = o.log.Warn()
	}
	evt.
		Str("batch_id", b.ID.String()).
		Str("caller", b.Caller.String()).
		Str("mode", mode).
		Str("state", receipt.State.String()).
		Int("actions", len(b.Actions)).
		Str("reason", receipt.Reason).
		Dur("duration", time.Since(start)).
		Msg("batch processed")
}

// Sequence returns the next event sequence number, for recovery.
func (o *Orchestrator) Sequence() int64 {
	return o.sequence
}

// SetSequence restores the event sequence on warm restart.
func (o *Orchestrator) SetSequence(seq int64) {
	o.sequence = seq
}

// Store exposes the live ledger for read-only query surfaces and snapshots.
func (o *Orchestrator) Store() *ledger.Store {
	return o.store
}

// Quiesce runs fn while no batch is executing, taking the same guard as
// Execute. Returns ErrBatchInFlight without running fn if a batch holds it.
func (o *Orchestrator) Quiesce(fn func()) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrBatchInFlight
	}
	defer o.inFlight.Store(false)
	fn()
	return nil
}
