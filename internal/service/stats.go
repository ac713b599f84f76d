// stats.go — статистика владельцев и журнал начислений.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/repository"
)

// Ограничения запроса журнала.
const (
	DefaultEarningsDays = 30
	MaxEarningsDays     = 365
	earningsListLimit   = 1000

	DefaultFilesLimit = 10
	MaxFilesLimit     = 100
)

// StatsService — чтение статистики (только чтение, без блокировок).
type StatsService struct {
	users    repository.UserRepository
	earnings repository.EarningRepository
	streams  *StreamService
	now      func() time.Time
	logger   *slog.Logger
}

// NewStatsService создаёт сервис статистики.
// streams используется для чтения метаданных файла через кэш.
func NewStatsService(
	users repository.UserRepository,
	earnings repository.EarningRepository,
	streams *StreamService,
	logger *slog.Logger,
) *StatsService {
	return &StatsService{
		users:    users,
		earnings: earnings,
		streams:  streams,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "stats_service")),
	}
}

// UserStats возвращает итоги владельца и показатели за текущие сутки (UTC).
// Суммы округляются до 2 знаков.
func (s *StatsService) UserStats(ctx context.Context, userID int64) (*model.UserStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	todayViews, todayEarnings, err := s.earnings.SumSince(ctx, userID, midnight)
	if err != nil {
		return nil, fmt.Errorf("статистика за сутки: %w", err)
	}

	return &model.UserStats{
		UserID:        user.UserID,
		TotalFiles:    user.TotalFiles,
		TotalViews:    user.TotalViews,
		TotalEarnings: user.TotalEarnings.Round(2),
		Balance:       user.Balance.Round(2),
		TodayViews:    todayViews,
		TodayEarnings: todayEarnings.Round(2),
	}, nil
}

// Earnings возвращает записи журнала за последние days суток, новые первыми.
// days = 0 — значение по умолчанию; вне 1..365 — ErrValidation.
func (s *StatsService) Earnings(ctx context.Context, userID int64, days int) ([]model.EarningEvent, error) {
	if days == 0 {
		days = DefaultEarningsDays
	}
	if days < 1 || days > MaxEarningsDays {
		return nil, fmt.Errorf("%w: days должен быть в диапазоне 1..%d", ErrValidation, MaxEarningsDays)
	}

	since := s.now().UTC().AddDate(0, 0, -days)
	events, err := s.earnings.ListSince(ctx, userID, since, earningsListLimit)
	if err != nil {
		return nil, fmt.Errorf("получение журнала начислений: %w", err)
	}
	if events == nil {
		events = []model.EarningEvent{}
	}
	return events, nil
}

// FileInfo возвращает метаданные файла (через кэш).
func (s *StatsService) FileInfo(ctx context.Context, fileID string) (*model.FileRecord, error) {
	return s.streams.Lookup(ctx, fileID)
}

// UserFiles возвращает последние загруженные файлы владельца, новые первыми.
// limit = 0 — значение по умолчанию; вне 1..100 — ErrValidation.
func (s *StatsService) UserFiles(ctx context.Context, userID int64, limit int) ([]*model.FileRecord, error) {
	if limit == 0 {
		limit = DefaultFilesLimit
	}
	if limit < 1 || limit > MaxFilesLimit {
		return nil, fmt.Errorf("%w: limit должен быть в диапазоне 1..%d", ErrValidation, MaxFilesLimit)
	}

	files, err := s.streams.files.ListByOwner(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("получение файлов владельца: %w", err)
	}
	if files == nil {
		files = []*model.FileRecord{}
	}
	return files, nil
}
