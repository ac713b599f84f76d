package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// EarningRepository — журнал начислений.
type EarningRepository interface {
	// Insert добавляет событие. Повторная вставка того же ID игнорируется,
	// inserted = false.
	Insert(ctx context.Context, ev model.EarningEvent) (inserted bool, err error)
	// SumSince возвращает количество и сумму событий владельца начиная с since.
	SumSince(ctx context.Context, userID int64, since time.Time) (int64, decimal.Decimal, error)
	// ListSince возвращает события владельца начиная с since, новые первыми.
	ListSince(ctx context.Context, userID int64, since time.Time, limit int) ([]model.EarningEvent, error)
}

type earningRepo struct {
	db DBTX
}

// NewEarningRepository создаёт репозиторий журнала начислений.
func NewEarningRepository(db DBTX) EarningRepository {
	return &earningRepo{db: db}
}

func (r *earningRepo) Insert(ctx context.Context, ev model.EarningEvent) (bool, error) {
	query := `
		INSERT INTO earnings (id, user_id, file_id, amount, kind, occurred_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		ev.ID, ev.UserID, ev.FileID, ev.Amount.String(), ev.Kind, ev.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("ошибка записи начисления: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *earningRepo) SumSince(ctx context.Context, userID int64, since time.Time) (int64, decimal.Decimal, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM earnings
		WHERE user_id = $1 AND occurred_at >= $2`

	var count int64
	var sum string
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count, &sum); err != nil {
		return 0, decimal.Zero, fmt.Errorf("ошибка агрегации начислений: %w", err)
	}

	total, err := parseAmount(sum)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return count, total, nil
}

func (r *earningRepo) ListSince(ctx context.Context, userID int64, since time.Time, limit int) ([]model.EarningEvent, error) {
	query := `
		SELECT id, user_id, file_id, amount::text, kind, occurred_at
		FROM earnings
		WHERE user_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений: %w", err)
	}
	defer rows.Close()

	var result []model.EarningEvent
	for rows.Next() {
		var ev model.EarningEvent
		var amount string
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.FileID, &amount, &ev.Kind, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования начисления: %w", err)
		}
		if ev.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}
