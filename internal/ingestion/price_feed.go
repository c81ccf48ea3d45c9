package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"BatchLedger/internal/ledger"
	"BatchLedger/internal/oracle"
)

// SubjectPrices carries oracle quote updates. Plain pub-sub: every instance
// applies every quote, so no queue group.
const SubjectPrices = "batch.prices"

// priceUpdate is the wire form of one quote push. Rate is optional; a
// missing rate leaves the pool's borrow rate unchanged.
type priceUpdate struct {
	PoolID        uint32 `json:"pool_id"`
	Price         int64  `json:"price"`
	TimestampUs   int64  `json:"timestamp_us"`
	RatePerSecond *int64 `json:"rate_per_second,omitempty"`
}

// PriceFeedSubscriber pushes incoming quotes into the oracle. Stale or
// malformed updates are dropped with a warning; the verifier's price-age
// check is the enforcement point.
type PriceFeedSubscriber struct {
	nc     *nats.Conn
	oracle *oracle.Static
	log    zerolog.Logger
	sub    *nats.Subscription
}

func NewPriceFeedSubscriber(nc *nats.Conn, o *oracle.Static, log zerolog.Logger) *PriceFeedSubscriber {
	return &PriceFeedSubscriber{
		nc:     nc,
		oracle: o,
		log:    log.With().Str("component", "price_feed").Logger(),
	}
}

func (pf *PriceFeedSubscriber) Subscribe() error {
	sub, err := pf.nc.Subscribe(SubjectPrices, pf.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectPrices, err)
	}
	pf.sub = sub
	pf.log.Info().Str("subject", SubjectPrices).Msg("subscribed")
	return nil
}

func (pf *PriceFeedSubscriber) handle(msg *nats.Msg) {
	var upd priceUpdate
	if err := json.Unmarshal(msg.Data, &upd); err != nil {
		pf.log.Warn().Err(err).Msg("malformed price update")
		return
	}
	if upd.Price <= 0 || upd.TimestampUs <= 0 {
		pf.log.Warn().Uint32("pool", upd.PoolID).Int64("price", upd.Price).Msg("rejected price update")
		return
	}

	pool := ledger.PoolID(upd.PoolID)
	pf.oracle.SetPrice(pool, upd.Price, upd.TimestampUs)
	if upd.RatePerSecond != nil {
		pf.oracle.SetRate(pool, *upd.RatePerSecond)
	}
}

func (pf *PriceFeedSubscriber) Stop() {
	if pf.sub != nil {
		if err := pf.sub.Drain(); err != nil {
			pf.log.Warn().Err(err).Msg("drain price feed")
		}
	}
}
