package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// UserRepository — доступ к владельцам файлов.
type UserRepository interface {
	// GetByID возвращает владельца или ErrNotFound.
	GetByID(ctx context.Context, userID int64) (*model.UserRecord, error)
	// CreditView начисляет доход за один просмотр: total_views+1,
	// total_earnings и balance увеличиваются на amount.
	// Отсутствующая запись создаётся со значениями по умолчанию.
	CreditView(ctx context.Context, userID int64, amount decimal.Decimal) error
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий владельцев.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, userID int64) (*model.UserRecord, error) {
	query := `
		SELECT user_id, name, username, joined_at, total_files, total_views,
			total_earnings::text, balance::text
		FROM users WHERE user_id = $1`

	u := &model.UserRecord{}
	var totalEarnings, balance string
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.Name, &u.Username, &u.JoinedAt, &u.TotalFiles, &u.TotalViews,
		&totalEarnings, &balance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	if u.TotalEarnings, err = parseAmount(totalEarnings); err != nil {
		return nil, err
	}
	if u.Balance, err = parseAmount(balance); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) CreditView(ctx context.Context, userID int64, amount decimal.Decimal) error {
	query := `
		INSERT INTO users (user_id, total_views, total_earnings, balance)
		VALUES ($1, 1, $2::numeric, $2::numeric)
		ON CONFLICT (user_id) DO UPDATE
		SET total_views    = users.total_views + 1,
		    total_earnings = users.total_earnings + EXCLUDED.total_earnings,
		    balance        = users.balance + EXCLUDED.balance`

	if _, err := r.db.Exec(ctx, query, userID, amount.String()); err != nil {
		return fmt.Errorf("ошибка начисления пользователю %d: %w", userID, err)
	}
	return nil
}
