// pages.go — HTML-страницы: плеер /stream/{file_id} и выбор качества /quality.
// Шаблоны встроены в бинарник.
package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageRenderer — набор HTML-шаблонов.
type pageRenderer struct {
	tmpl *template.Template
}

func newPageRenderer() *pageRenderer {
	return &pageRenderer{
		tmpl: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

// render выполняет шаблон в буфер: ошибка шаблона не оставляет
// клиенту половину страницы.
func (p *pageRenderer) render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}

// landingPage — данные страницы плеера.
type landingPage struct {
	Title       string
	FileName    string
	MimeType    string
	Size        string
	Views       int64
	DownloadURL string
	QualityURL  string
}

// qualityPage — данные страницы выбора качества.
type qualityPage struct {
	Title       string
	FileName    string
	Size        string
	StreamURL   string
	DownloadURL string
}

// messagePage — страница с сообщением (404, 400, 500).
type messagePage struct {
	Title   string
	Message string
}

// StreamPage — GET /stream/{file_id}: страница плеера.
// Просмотр не засчитывается: его учитывает запрос содержимого.
func (h *APIHandler) StreamPage(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")

	record, ok := h.lookupPage(w, r, fileID)
	if !ok {
		return
	}

	size := record.FileSize
	h.renderPage(w, http.StatusOK, "landing", landingPage{
		Title:       record.FileName,
		FileName:    displayName(record),
		MimeType:    record.MimeType,
		Size:        model.ReadableSize(&size),
		Views:       record.Views,
		DownloadURL: h.downloadURL(fileID),
		QualityURL:  "/quality?id=" + url.QueryEscape(fileID),
	})
}

// QualityPage — GET /quality?id={file_id}: выбор качества.
func (h *APIHandler) QualityPage(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("id")
	if fileID == "" {
		h.renderPage(w, http.StatusBadRequest, "message", messagePage{
			Title:   "Error",
			Message: "File ID is required.",
		})
		return
	}

	record, ok := h.lookupPage(w, r, fileID)
	if !ok {
		return
	}

	size := record.FileSize
	h.renderPage(w, http.StatusOK, "quality", qualityPage{
		Title:       record.FileName,
		FileName:    displayName(record),
		Size:        model.ReadableSize(&size),
		StreamURL:   "/stream/" + url.PathEscape(fileID),
		DownloadURL: h.downloadURL(fileID),
	})
}

// lookupPage получает запись файла; при ошибке пишет HTML-ответ и возвращает false.
func (h *APIHandler) lookupPage(w http.ResponseWriter, r *http.Request, fileID string) (*model.FileRecord, bool) {
	record, err := h.streams.Lookup(r.Context(), fileID)
	if err == nil {
		return record, true
	}

	if errors.Is(err, service.ErrNotFound) {
		h.renderPage(w, http.StatusNotFound, "message", messagePage{
			Title:   "File Not Found",
			Message: "This file doesn't exist or has been deleted.",
		})
		return nil, false
	}

	h.logger.Error("Ошибка получения файла для страницы",
		slog.String("file_id", fileID),
		slog.String("error", err.Error()),
	)
	h.renderPage(w, http.StatusInternalServerError, "message", messagePage{
		Title:   "Error",
		Message: "An error occurred, please try again later.",
	})
	return nil, false
}

func (h *APIHandler) renderPage(w http.ResponseWriter, status int, name string, data any) {
	if err := h.pages.render(w, status, name, data); err != nil {
		h.logger.Error("Ошибка рендеринга шаблона",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Template Error", http.StatusInternalServerError)
	}
}

func displayName(record *model.FileRecord) string {
	if record.FileName != "" {
		return record.FileName
	}
	return "Unknown"
}
