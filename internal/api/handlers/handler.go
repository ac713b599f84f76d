// handler.go — основной обработчик HTTP API.
// Объединяет health, публичные страницы, поток и API статистики.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Sihagjaat/VJ-Video-Player/internal/config"
	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/service"
)

// serviceName — имя сервиса в ответах status/health.
const serviceName = "vjplayer"

// Streamer — потоковая отдача (service.StreamService).
type Streamer interface {
	Serve(ctx context.Context, w http.ResponseWriter, req service.StreamRequest) error
	Lookup(ctx context.Context, fileID string) (*model.FileRecord, error)
}

// StatsReader — чтение статистики (service.StatsService).
type StatsReader interface {
	UserStats(ctx context.Context, userID int64) (*model.UserStats, error)
	Earnings(ctx context.Context, userID int64, days int) ([]model.EarningEvent, error)
	FileInfo(ctx context.Context, fileID string) (*model.FileRecord, error)
	UserFiles(ctx context.Context, userID int64, limit int) ([]*model.FileRecord, error)
}

// APIHandler — основной обработчик, делегирующий запросы в сервисный слой.
type APIHandler struct {
	health      *HealthHandler
	streams     Streamer
	stats       StatsReader
	pages       *pageRenderer
	downloadURL func(fileID string) string
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик.
// stats может быть nil, если API статистики не смонтирован.
func NewAPIHandler(
	cfg *config.Config,
	health *HealthHandler,
	streams Streamer,
	stats StatsReader,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		streams:     streams,
		stats:       stats,
		pages:       newPageRenderer(),
		downloadURL: cfg.DownloadURL,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// statusResponse — ответ корневого маршрута.
type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Root — GET|HEAD /: статус сервиса.
func (h *APIHandler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "running",
		Service: serviceName,
		Version: config.Version,
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
