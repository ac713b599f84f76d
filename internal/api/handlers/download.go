// download.go — обработчик GET|HEAD /download/{file_id}.
// Потоковая отдача через StreamService; ответы об ошибках — до отправки заголовков.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Sihagjaat/VJ-Video-Player/internal/api/errors"
	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/byterange"
	"github.com/Sihagjaat/VJ-Video-Player/internal/service"
)

// Download — отдача файла или диапазона (200 | 206 | 404 | 416 | 500).
func (h *APIHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")

	err := h.streams.Serve(r.Context(), w, service.StreamRequest{
		FileID:   fileID,
		Range:    r.Header.Get("Range"),
		HeadOnly: r.Method == http.MethodHead,
	})
	if err == nil {
		return
	}

	var rangeErr *service.RangeNotSatisfiableError
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrRemoteNotFound):
		apierrors.NotFound(w, "Файл не найден")
	case errors.As(err, &rangeErr):
		apierrors.RangeNotSatisfiable(w, byterange.UnsatisfiedContentRange(rangeErr.Size))
	case errors.Is(err, context.Canceled):
		// Клиент ушёл до начала ответа.
	default:
		h.logger.Error("Ошибка отдачи файла",
			slog.String("file_id", fileID),
			slog.String("range", r.Header.Get("Range")),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Не удалось получить файл из хранилища")
	}
}
