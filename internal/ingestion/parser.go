package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"BatchLedger/internal/action"
	"BatchLedger/internal/engine"
)

// batchJSON is the wire format of one batch submission. Field names use
// snake_case to match upstream producers.
type batchJSON struct {
	BatchID       string             `json:"batch_id,omitempty"`
	Caller        string             `json:"caller"`
	SubmittedAtUs int64              `json:"submitted_at_us"`
	DeadlineUs    int64              `json:"deadline_us,omitempty"`
	Actions       []action.RawAction `json:"actions"`
}

// ParseBatch converts raw JSON bytes into an executable batch. All-or-
// nothing: any malformed, unknown, reserved, or blacklisted action rejects
// the whole submission before the engine sees it.
func ParseBatch(data []byte) (*engine.Batch, error) {
	var j batchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}

	batchID := uuid.New()
	if j.BatchID != "" {
		id, err := uuid.Parse(j.BatchID)
		if err != nil {
			return nil, fmt.Errorf("parse batch_id: %w", err)
		}
		batchID = id
	}

	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	if j.SubmittedAtUs <= 0 {
		return nil, fmt.Errorf("submitted_at_us must be positive, got %d", j.SubmittedAtUs)
	}

	actions, err := action.DecodeBatch(j.Actions)
	if err != nil {
		return nil, err
	}

	return &engine.Batch{
		ID:            batchID,
		Caller:        caller,
		Actions:       actions,
		SubmittedAtUs: j.SubmittedAtUs,
		DeadlineUs:    j.DeadlineUs,
	}, nil
}
