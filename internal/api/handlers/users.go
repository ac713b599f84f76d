// users.go — статистика владельцев:
// GET /api/v1/users/{user_id}/stats, GET /api/v1/users/{user_id}/earnings?days=N,
// GET /api/v1/users/{user_id}/files?limit=N.
// Проверка sub == user_id выполняется middleware.RequireSelfOrAdmin.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apierrors "github.com/Sihagjaat/VJ-Video-Player/internal/api/errors"
	"github.com/Sihagjaat/VJ-Video-Player/internal/service"
)

// userStatsResponse — сводная статистика владельца.
type userStatsResponse struct {
	UserID        int64  `json:"user_id"`
	TotalFiles    int64  `json:"total_files"`
	TotalViews    int64  `json:"total_views"`
	TotalEarnings string `json:"total_earnings"`
	Balance       string `json:"balance"`
	TodayViews    int64  `json:"today_views"`
	TodayEarnings string `json:"today_earnings"`
}

// earningItem — запись журнала начислений.
type earningItem struct {
	ID         string    `json:"id"`
	FileID     string    `json:"file_id"`
	Amount     string    `json:"amount"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// earningsResponse — журнал начислений за период.
type earningsResponse struct {
	UserID int64         `json:"user_id"`
	Days   int           `json:"days"`
	Total  string        `json:"total"`
	Items  []earningItem `json:"items"`
}

// userFilesResponse — последние файлы владельца.
type userFilesResponse struct {
	UserID int64          `json:"user_id"`
	Items  []fileResponse `json:"items"`
}

// UserStats — итоги и показатели за сутки.
func (h *APIHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	stats, err := h.stats.UserStats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка получения статистики",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении статистики")
		return
	}

	writeJSON(w, http.StatusOK, userStatsResponse{
		UserID:        stats.UserID,
		TotalFiles:    stats.TotalFiles,
		TotalViews:    stats.TotalViews,
		TotalEarnings: stats.TotalEarnings.StringFixed(2),
		Balance:       stats.Balance.StringFixed(2),
		TodayViews:    stats.TodayViews,
		TodayEarnings: stats.TodayEarnings.StringFixed(2),
	})
}

// UserEarnings — журнал начислений за последние days суток.
func (h *APIHandler) UserEarnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	days := service.DefaultEarningsDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр days должен быть целым числом")
			return
		}
		days = n
	}

	events, err := h.stats.Earnings(r.Context(), userID, days)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения журнала начислений",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении журнала начислений")
		return
	}

	resp := earningsResponse{UserID: userID, Days: days, Items: make([]earningItem, 0, len(events))}
	total := decimal.Zero
	for _, ev := range events {
		total = total.Add(ev.Amount)
		resp.Items = append(resp.Items, earningItem{
			ID:         ev.ID.String(),
			FileID:     ev.FileID,
			Amount:     ev.Amount.String(),
			Kind:       ev.Kind,
			OccurredAt: ev.OccurredAt,
		})
	}
	resp.Total = total.StringFixed(2)

	writeJSON(w, http.StatusOK, resp)
}

// UserFiles — последние загруженные файлы владельца (?limit=N, по умолчанию 10).
func (h *APIHandler) UserFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр limit должен быть целым числом")
			return
		}
		limit = n
	}

	files, err := h.stats.UserFiles(r.Context(), userID, limit)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения файлов владельца",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении файлов")
		return
	}

	resp := userFilesResponse{UserID: userID, Items: make([]fileResponse, 0, len(files))}
	for _, f := range files {
		resp.Items = append(resp.Items, h.toFileResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseUserID разбирает {user_id}; при ошибке пишет 400.
func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный user_id")
		return 0, false
	}
	return userID, true
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
