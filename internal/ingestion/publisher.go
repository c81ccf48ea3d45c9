package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"BatchLedger/internal/engine"
	"BatchLedger/internal/observability"
)

// OutboundPublisher drains the orchestrator's publish channel into JetStream
// for downstream consumers. Subjects follow the pattern:
// batch.ledger.events.{event_type}[.{pool_id}]
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan engine.Output
	log       zerolog.Logger
	metrics   *observability.Metrics
}

// envelopeJSON is the outbound wire form of an event envelope.
type envelopeJSON struct {
	Sequence    int64           `json:"sequence"`
	BatchID     string          `json:"batch_id"`
	EventType   string          `json:"event_type"`
	PoolID      *uint32         `json:"pool_id,omitempty"`
	TimestampUs int64           `json:"timestamp_us"`
	Payload     json.RawMessage `json:"payload"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan engine.Output, log zerolog.Logger, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log.With().Str("component", "publisher").Logger(),
		metrics:   metrics,
	}
}

// Run drains the publish channel until it closes or the context ends.
// Publish failures are non-fatal; the event log in Postgres is the source of
// truth and consumers can rebuild from it.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		if op.metrics != nil {
			op.metrics.SetChannelMetrics("publish", len(op.inputChan), cap(op.inputChan))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, out); err != nil {
				op.log.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out engine.Output) error {
	env := out.Envelope
	data, err := json.Marshal(envelopeJSON{
		Sequence:    env.Sequence,
		BatchID:     env.BatchID.String(),
		EventType:   env.EventType.String(),
		PoolID:      env.PoolID,
		TimestampUs: env.TimestampUs,
		Payload:     json.RawMessage(env.Payload),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("batch.ledger.events.%s", env.EventType)
	if env.PoolID != nil {
		subject = fmt.Sprintf("%s.%d", subject, *env.PoolID)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "BATCH_LEDGER_EVENTS",
		Subjects:  []string{"batch.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Info().Str("stream", "BATCH_LEDGER_EVENTS").Msg("ensured outbound stream")
	return nil
}
