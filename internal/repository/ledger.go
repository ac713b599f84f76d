package repository

import (
	"context"
	"fmt"

	crdbpgxv5 "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// Ledger применяет вторичную часть учёта просмотра (начисление владельцу
// и запись в журнал) в одной транзакции.
type Ledger struct {
	conn crdbpgxv5.Conn
}

// NewLedger создаёт Ledger поверх пула (*pgxpool.Pool).
func NewLedger(conn crdbpgxv5.Conn) *Ledger {
	return &Ledger{conn: conn}
}

// ApplyViewCredit записывает событие и начисляет доход владельцу.
// Идемпотентно по credit.EventID: если событие уже записано, владелец
// повторно не пополняется и applied = false.
// Конфликты сериализации повторяются внутри ExecuteTx.
func (l *Ledger) ApplyViewCredit(ctx context.Context, credit model.ViewCredit) (applied bool, err error) {
	err = crdbpgxv5.ExecuteTx(ctx, l.conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		inserted, err := NewEarningRepository(tx).Insert(ctx, credit.Event())
		if err != nil {
			return err
		}
		applied = inserted
		if !inserted {
			return nil
		}
		return NewUserRepository(tx).CreditView(ctx, credit.UserID, credit.Amount)
	})
	if err != nil {
		return false, fmt.Errorf("транзакция начисления %s: %w", credit.EventID, err)
	}
	return applied, nil
}
