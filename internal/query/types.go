package query

import "encoding/json"

// BatchRecord is the stored receipt of one executed batch.
type BatchRecord struct {
	BatchID      string `json:"batch_id"`
	Caller       string `json:"caller"`
	State        string `json:"state"`
	Committed    bool   `json:"committed"`
	NumActions   int    `json:"num_actions"`
	FailureIndex int    `json:"failure_index"`
	FailureKind  string `json:"failure_kind,omitempty"`
	FailureClass string `json:"failure_class,omitempty"`
	Reason       string `json:"reason,omitempty"`
	TimestampUs  int64  `json:"timestamp_us"`
}

// ActionRecord is the stored effect of one committed action.
type ActionRecord struct {
	Index        int    `json:"index"`
	Kind         string `json:"kind"`
	Actor        string `json:"actor"`
	PoolID       uint32 `json:"pool_id"`
	SharesMinted int64  `json:"shares_minted"`
	SharesBurned int64  `json:"shares_burned"`
	DebtDelta    int64  `json:"debt_delta"`
	Amount0In    int64  `json:"amount0_in"`
	Amount1In    int64  `json:"amount1_in"`
	Amount0Out   int64  `json:"amount0_out"`
	Amount1Out   int64  `json:"amount1_out"`
	Recipient    string `json:"recipient"`
	PositionID   uint64 `json:"position_id"`
	BadDebt      int64  `json:"bad_debt"`
	FeeValue     int64  `json:"fee_value"`
}

// EventRecord is one event log row with its JSON payload.
type EventRecord struct {
	Sequence    int64           `json:"sequence"`
	BatchID     string          `json:"batch_id"`
	EventType   string          `json:"event_type"`
	PoolID      *uint32         `json:"pool_id,omitempty"`
	TimestampUs int64           `json:"timestamp_us"`
	Payload     json.RawMessage `json:"payload"`
}
