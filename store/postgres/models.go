package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
)

// ==================== Journal models ====================

// entryModel keeps the queryable fields in columns and the full entry in a
// jsonb payload so that replay decodes exactly what was appended.
type entryModel struct {
	grove.BaseModel `grove:"table:feeledger_journal"`

	Sequence  int64           `grove:"sequence,pk"`
	ID        string          `grove:"id"`
	Kind      string          `grove:"kind"`
	Caller    string          `grove:"caller"`
	LotID     string          `grove:"lot_id"`
	Payload   json.RawMessage `grove:"payload,type:jsonb"`
	CreatedAt time.Time       `grove:"created_at"`
}

func toEntryModel(e *journal.Entry) (*entryModel, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry %d: %w", e.Sequence, err)
	}
	return &entryModel{
		Sequence:  int64(e.Sequence), //nolint:gosec // sequences stay far below 2^63
		ID:        e.ID.String(),
		Kind:      string(e.Kind),
		Caller:    e.Caller.Hex(),
		LotID:     e.LotID.String(),
		Payload:   payload,
		CreatedAt: e.CreatedAt,
	}, nil
}

func fromEntryModel(m *entryModel) (*journal.Entry, error) {
	var e journal.Entry
	if err := json.Unmarshal(m.Payload, &e); err != nil {
		return nil, fmt.Errorf("decode entry %d: %w", m.Sequence, err)
	}
	if e.Sequence != uint64(m.Sequence) { //nolint:gosec // column is never negative
		return nil, fmt.Errorf("entry %d: payload carries sequence %d", m.Sequence, e.Sequence)
	}
	return &e, nil
}

// ==================== Lot models ====================

type lotModel struct {
	grove.BaseModel `grove:"table:feeledger_lots"`

	ID        string          `grove:"id,pk"`
	Kind      string          `grove:"kind"`
	State     string          `grove:"state"`
	Amount    string          `grove:"amount"`
	Payload   json.RawMessage `grove:"payload,type:jsonb"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toLotModel(l *lot.Lot) (*lotModel, error) {
	payload, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode lot %s: %w", l.ID, err)
	}
	return &lotModel{
		ID:        l.ID.String(),
		Kind:      string(l.Kind),
		State:     string(l.State),
		Amount:    l.Amount.String(),
		Payload:   payload,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}, nil
}

func fromLotModel(m *lotModel) (*lot.Lot, error) {
	lotID, err := id.ParseLotID(m.ID)
	if err != nil {
		return nil, err
	}
	var l lot.Lot
	if err := json.Unmarshal(m.Payload, &l); err != nil {
		return nil, fmt.Errorf("decode lot %s: %w", m.ID, err)
	}
	l.ID = lotID
	l.CreatedAt = m.CreatedAt
	l.UpdatedAt = m.UpdatedAt
	return &l, nil
}
