package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserRecord — владелец файлов (таблица users).
// Инвариант: Balance <= TotalEarnings.
type UserRecord struct {
	UserID        int64
	Name          string
	Username      string
	JoinedAt      time.Time
	TotalFiles    int64
	TotalViews    int64
	TotalEarnings decimal.Decimal
	Balance       decimal.Decimal
}

// UserStats — сводная статистика владельца: итоги и показатели за сегодня.
type UserStats struct {
	UserID        int64
	TotalFiles    int64
	TotalViews    int64
	TotalEarnings decimal.Decimal
	Balance       decimal.Decimal
	TodayViews    int64
	TodayEarnings decimal.Decimal
}
