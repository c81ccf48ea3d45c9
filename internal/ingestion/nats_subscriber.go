package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"BatchLedger/internal/engine"
)

// Request-reply subjects. Submissions and simulations share one queue group
// so a horizontally scaled deployment still processes each request once.
const (
	SubjectSubmit   = "batch.submit"
	SubjectSimulate = "batch.simulate"
	queueGroup      = "batch-engine"
)

// Submitter runs a parsed batch and returns its receipt. Implemented by
// engine.Orchestrator.
type Submitter interface {
	Execute(b *engine.Batch) *engine.Receipt
	Simulate(b *engine.Batch) *engine.Receipt
}

// NATSSubscriber serves batch submissions over NATS request-reply. Each
// request carries one JSON batch; the reply is the full receipt.
type NATSSubscriber struct {
	nc        *nats.Conn
	submitter Submitter
	log       zerolog.Logger
	subs      []*nats.Subscription
}

func NewNATSSubscriber(nc *nats.Conn, submitter Submitter, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		nc:        nc,
		submitter: submitter,
		log:       log.With().Str("component", "nats_subscriber").Logger(),
	}
}

// Subscribe registers the submit and simulate handlers.
func (ns *NATSSubscriber) Subscribe() error {
	submit, err := ns.nc.QueueSubscribe(SubjectSubmit, queueGroup, func(msg *nats.Msg) {
		ns.handle(msg, false)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectSubmit, err)
	}
	ns.subs = append(ns.subs, submit)

	simulate, err := ns.nc.QueueSubscribe(SubjectSimulate, queueGroup, func(msg *nats.Msg) {
		ns.handle(msg, true)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectSimulate, err)
	}
	ns.subs = append(ns.subs, simulate)

	ns.log.Info().Str("submit", SubjectSubmit).Str("simulate", SubjectSimulate).Msg("subscribed")
	return nil
}

// errorReply is the reply body for requests rejected before execution.
type errorReply struct {
	Error string `json:"error"`
}

func (ns *NATSSubscriber) handle(msg *nats.Msg, simulate bool) {
	batch, err := ParseBatch(msg.Data)
	if err != nil {
		ns.log.Warn().Err(err).Str("subject", msg.Subject).Msg("rejected batch")
		ns.reply(msg, errorReply{Error: err.Error()})
		return
	}

	var receipt *engine.Receipt
	if simulate {
		receipt = ns.submitter.Simulate(batch)
	} else {
		receipt = ns.submitter.Execute(batch)
	}
	ns.reply(msg, receipt)
}

func (ns *NATSSubscriber) reply(msg *nats.Msg, body any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		ns.log.Error().Err(err).Msg("marshal reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		ns.log.Warn().Err(err).Msg("respond failed")
	}
}

// Stop drains the subscriptions.
func (ns *NATSSubscriber) Stop() {
	for _, sub := range ns.subs {
		if err := sub.Drain(); err != nil {
			ns.log.Warn().Err(err).Msg("drain subscription")
		}
	}
	ns.log.Info().Msg("subscribers stopped")
}

// ConnectNATS establishes a NATS connection with unbounded reconnects.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}
