package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EarningKindView — начисление за просмотр.
const EarningKindView = "view"

// EarningEvent — запись журнала начислений (таблица earnings, append-only).
type EarningEvent struct {
	ID         uuid.UUID
	UserID     int64
	FileID     string
	Amount     decimal.Decimal
	Kind       string
	OccurredAt time.Time
}

// ViewCredit — вторичная часть учёта одного просмотра:
// начисление владельцу и запись в журнал.
// EventID делает повторное применение идемпотентным.
type ViewCredit struct {
	EventID    uuid.UUID       `json:"event_id"`
	UserID     int64           `json:"user_id"`
	FileID     string          `json:"file_id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
	// Attempts — количество неудачных попыток применения
	Attempts int `json:"attempts"`
}

// Event возвращает запись журнала, соответствующую начислению.
func (c ViewCredit) Event() EarningEvent {
	return EarningEvent{
		ID:         c.EventID,
		UserID:     c.UserID,
		FileID:     c.FileID,
		Amount:     c.Amount,
		Kind:       EarningKindView,
		OccurredAt: c.OccurredAt,
	}
}
