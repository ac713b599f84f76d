// files.go — обработчик GET /api/v1/files/{file_id}.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Sihagjaat/VJ-Video-Player/internal/api/errors"
	"github.com/Sihagjaat/VJ-Video-Player/internal/api/middleware"
	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/service"
)

// fileResponse — метаданные файла в API.
type fileResponse struct {
	FileID          string    `json:"file_id"`
	OwnerUserID     int64     `json:"owner_user_id"`
	FileName        string    `json:"file_name"`
	FileSize        int64     `json:"file_size"`
	ReadableSize    string    `json:"readable_size"`
	MimeType        string    `json:"mime_type"`
	DurationSeconds int       `json:"duration_seconds"`
	UploadedAt      time.Time `json:"uploaded_at"`
	Views           int64     `json:"views"`
	Earnings        string    `json:"earnings"`
	DownloadURL     string    `json:"download_url"`
}

// GetFile — метаданные файла. Доступно владельцу и администратору.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")

	record, err := h.stats.FileInfo(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		h.logger.Error("Ошибка получения метаданных файла",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении метаданных файла")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || (!claims.IsAdmin() && claims.Subject != formatUserID(record.OwnerUserID)) {
		// Чужой файл неотличим от отсутствующего.
		apierrors.NotFound(w, "Файл не найден")
		return
	}

	writeJSON(w, http.StatusOK, h.toFileResponse(record))
}

func (h *APIHandler) toFileResponse(record *model.FileRecord) fileResponse {
	size := record.FileSize
	return fileResponse{
		FileID:          record.FileID,
		OwnerUserID:     record.OwnerUserID,
		FileName:        record.FileName,
		FileSize:        record.FileSize,
		ReadableSize:    model.ReadableSize(&size),
		MimeType:        record.MimeType,
		DurationSeconds: record.DurationSeconds,
		UploadedAt:      record.UploadedAt,
		Views:           record.Views,
		Earnings:        record.AccruedEarnings.StringFixed(2),
		DownloadURL:     h.downloadURL(record.FileID),
	}
}
