package service

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sihagjaat/VJ-Video-Player/internal/config"
	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/remote"
)

const scenarioSize = 10_000_000

// newScenario создаёт сервис с одним файлом abc123 размером 10 000 000 байт.
func newScenario(t *testing.T, cfg StreamConfig) (*StreamService, *fakeFetcher, *mockViewRecorder, []byte) {
	t.Helper()

	data := patternData(scenarioSize)
	record := &model.FileRecord{
		FileID:      "abc123",
		OwnerUserID: 42,
		Remote:      model.RemoteRef{ChannelID: -100123, MessageID: 7},
		FileName:    "movie.mp4",
		FileSize:    scenarioSize,
		MimeType:    "video/mp4",
	}
	repo := newMemFileRepo(record)
	fetcher := newFakeFetcher(data, "video/mp4", "movie.mp4")
	views := &mockViewRecorder{}

	svc := NewStreamService(repo, NewCacheService(100, time.Minute), fetcher, views, cfg, discardLogger())
	return svc, fetcher, views, data
}

func defaultStreamConfig() StreamConfig {
	return StreamConfig{ViewPolicy: config.ViewPolicyEveryStream, CountViews: true}
}

// TestStreamService_PartialRange проверяет сценарий bytes=1000000-1999999.
func TestStreamService_PartialRange(t *testing.T) {
	svc, _, views, data := newScenario(t, defaultStreamConfig())

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "abc123", Range: "bytes=1000000-1999999"})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, ожидался %d", rec.Code, http.StatusPartialContent)
	}
	checks := map[string]string{
		"Content-Range":  "bytes 1000000-1999999/10000000",
		"Content-Length": "1000000",
		"Content-Type":   "video/mp4",
		"Accept-Ranges":  "bytes",
	}
	for h, want := range checks {
		if got := rec.Header().Get(h); got != want {
			t.Errorf("%s = %q, ожидался %q", h, got, want)
		}
	}
	if !bytes.Equal(rec.Body.Bytes(), data[1000000:2000000]) {
		t.Errorf("тело ответа не совпадает с диапазоном (длина %d)", rec.Body.Len())
	}
	if views.calls() != 1 {
		t.Errorf("просмотров = %d, ожидался 1", views.calls())
	}
}

// TestStreamService_FullFile проверяет ответ 200 без заголовка Range.
func TestStreamService_FullFile(t *testing.T) {
	svc, _, views, data := newScenario(t, defaultStreamConfig())

	rec := httptest.NewRecorder()
	if err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "abc123"}); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, ожидался 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "10000000" {
		t.Errorf("Content-Length = %q, ожидался %q", got, "10000000")
	}
	if got := rec.Header().Get("Content-Range"); got != "" {
		t.Errorf("Content-Range = %q, ожидалось отсутствие", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `inline; filename="movie.mp4"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("тело ответа не совпадает с файлом")
	}
	if views.calls() != 1 {
		t.Errorf("просмотров = %d, ожидался 1", views.calls())
	}
}

// TestStreamService_UnknownFile проверяет 404 без обращения к Telegram и без учёта.
func TestStreamService_UnknownFile(t *testing.T) {
	svc, fetcher, views, _ := newScenario(t, defaultStreamConfig())

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "zzz"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получена: %v", err)
	}
	if fetcher.resolveCalls.Load() != 0 {
		t.Error("Telegram не должен вызываться для неизвестного файла")
	}
	if views.calls() != 0 {
		t.Error("просмотр не должен учитываться")
	}
	if rec.Body.Len() != 0 {
		t.Error("Serve не должен писать ответ при ошибке")
	}
}

// TestStreamService_RangeNotSatisfiable проверяет 416 с размером ресурса.
func TestStreamService_RangeNotSatisfiable(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"начало за концом", "bytes=10000000-"},
		{"start больше end", "bytes=500-100"},
		{"несколько диапазонов", "bytes=0-1,5-6"},
		{"суффикс", "bytes=-500"},
		{"мусор", "items=0-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, fetcher, views, _ := newScenario(t, defaultStreamConfig())

			err := svc.Serve(context.Background(), httptest.NewRecorder(),
				StreamRequest{FileID: "abc123", Range: tt.value})

			var rangeErr *RangeNotSatisfiableError
			if !errors.As(err, &rangeErr) {
				t.Fatalf("ожидалась RangeNotSatisfiableError, получена: %v", err)
			}
			if rangeErr.Size != scenarioSize {
				t.Errorf("Size = %d, ожидался %d", rangeErr.Size, scenarioSize)
			}
			if !errors.Is(err, ErrRangeNotSatisfiable) {
				t.Error("ошибка должна разворачиваться в ErrRangeNotSatisfiable")
			}
			if fetcher.resolveCalls.Load() != 0 {
				t.Error("Telegram не должен вызываться для невыполнимого диапазона")
			}
			if views.calls() != 0 {
				t.Error("просмотр не должен учитываться")
			}
		})
	}
}

// TestStreamService_ClampedEnd проверяет усечение end до размера файла.
func TestStreamService_ClampedEnd(t *testing.T) {
	svc, _, _, data := newScenario(t, defaultStreamConfig())

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "abc123", Range: "bytes=9999990-20000000"})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 9999990-9999999/10000000" {
		t.Errorf("Content-Range = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[9999990:]) {
		t.Error("тело ответа не совпадает с хвостом файла")
	}
}

// TestStreamService_RemoteErrors проверяет отображение ошибок Telegram.
func TestStreamService_RemoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"сообщение отсутствует", remote.ErrNotFound, ErrRemoteNotFound},
		{"хранилище недоступно", remote.ErrUnavailable, ErrUpstream},
		{"прочая ошибка", errors.New("connection reset"), ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, fetcher, views, _ := newScenario(t, defaultStreamConfig())
			fetcher.resolveErr = tt.err

			rec := httptest.NewRecorder()
			err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "abc123"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			if rec.Header().Get("Content-Length") != "" {
				t.Error("заголовки не должны отправляться")
			}
			if views.calls() != 0 {
				t.Error("просмотр не должен учитываться")
			}
		})
	}
}

// TestStreamService_FirstChunkFailure проверяет, что сбой первой части
// возвращается ошибкой до отправки заголовков.
func TestStreamService_FirstChunkFailure(t *testing.T) {
	svc, fetcher, views, _ := newScenario(t, defaultStreamConfig())
	fetcher.failFrom = 0

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "abc123", Range: "bytes=0-99"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("ожидалась ErrUpstream, получена: %v", err)
	}
	if rec.Header().Get("Content-Length") != "" || rec.Body.Len() != 0 {
		t.Error("ответ не должен начинаться при сбое первой части")
	}
	if views.calls() != 0 {
		t.Error("просмотр не должен учитываться")
	}
}

// TestStreamService_MidStreamFailure проверяет обрыв тела после отправки заголовков.
func TestStreamService_MidStreamFailure(t *testing.T) {
	svc, fetcher, views, data := newScenario(t, defaultStreamConfig())
	fetcher.failFrom = 2 << 20

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "abc123"})
	if err != nil {
		t.Fatalf("после отправки заголовков ошибка не возвращается, получена: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, ожидался 200", rec.Code)
	}
	if rec.Body.Len() != 2<<20 {
		t.Errorf("передано %d байт, ожидалось %d", rec.Body.Len(), 2<<20)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[:2<<20]) {
		t.Error("переданная часть не совпадает с файлом")
	}
	if views.calls() != 1 {
		t.Errorf("просмотров = %d, ожидался 1", views.calls())
	}
}

// TestStreamService_Head проверяет HEAD: заголовки без тела и без учёта.
func TestStreamService_Head(t *testing.T) {
	svc, fetcher, views, _ := newScenario(t, defaultStreamConfig())

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "abc123", Range: "bytes=0-1023", HeadOnly: true})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, ожидался 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "1024" {
		t.Errorf("Content-Length = %q, ожидался %q", got, "1024")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("тело = %d байт, ожидалось пустое", rec.Body.Len())
	}
	if fetcher.parts.Load() != 0 {
		t.Error("HEAD не должен читать содержимое")
	}
	if views.calls() != 0 {
		t.Error("HEAD не должен учитываться как просмотр")
	}
}

// TestStreamService_ViewPolicy проверяет правила учёта просмотров.
func TestStreamService_ViewPolicy(t *testing.T) {
	tests := []struct {
		name      string
		cfg       StreamConfig
		rangeVal  string
		wantViews int
	}{
		{"every_stream, продолжение", StreamConfig{ViewPolicy: config.ViewPolicyEveryStream, CountViews: true}, "bytes=5000-", 1},
		{"initial_range, продолжение", StreamConfig{ViewPolicy: config.ViewPolicyInitialRange, CountViews: true}, "bytes=5000-", 0},
		{"initial_range, начало", StreamConfig{ViewPolicy: config.ViewPolicyInitialRange, CountViews: true}, "bytes=0-", 1},
		{"initial_range, без Range", StreamConfig{ViewPolicy: config.ViewPolicyInitialRange, CountViews: true}, "", 1},
		{"учёт выключен", StreamConfig{ViewPolicy: config.ViewPolicyEveryStream, CountViews: false}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, views, _ := newScenario(t, tt.cfg)

			err := svc.Serve(context.Background(), httptest.NewRecorder(),
				StreamRequest{FileID: "abc123", Range: tt.rangeVal})
			if err != nil {
				t.Fatalf("Serve: %v", err)
			}
			if views.calls() != tt.wantViews {
				t.Errorf("просмотров = %d, ожидалось %d", views.calls(), tt.wantViews)
			}
		})
	}
}

// TestStreamService_LiveSizeMismatch проверяет пересчёт диапазона по размеру из Telegram.
func TestStreamService_LiveSizeMismatch(t *testing.T) {
	data := patternData(500)
	repo := newMemFileRepo(&model.FileRecord{FileID: "f1", FileSize: 1000, FileName: "a.bin"})
	fetcher := newFakeFetcher(data, "", "")
	svc := NewStreamService(repo, nil, fetcher, nil, defaultStreamConfig(), discardLogger())

	// Диапазон выполним по записи, но не по актуальному размеру.
	err := svc.Serve(context.Background(), httptest.NewRecorder(), StreamRequest{FileID: "f1", Range: "bytes=600-"})
	var rangeErr *RangeNotSatisfiableError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("ожидалась RangeNotSatisfiableError, получена: %v", err)
	}
	if rangeErr.Size != 500 {
		t.Errorf("Size = %d, ожидался 500", rangeErr.Size)
	}

	rec := httptest.NewRecorder()
	if err := svc.Serve(context.Background(), rec, StreamRequest{FileID: "f1", Range: "bytes=100-"}); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 100-499/500" {
		t.Errorf("Content-Range = %q, ожидался %q", got, "bytes 100-499/500")
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, ожидался application/octet-stream", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `inline; filename="a.bin"` {
		t.Errorf("Content-Disposition = %q", got)
	}
}

// TestStreamService_CacheHit проверяет, что повторный запрос не читает БД.
func TestStreamService_CacheHit(t *testing.T) {
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			return &model.FileRecord{FileID: fileID, FileSize: 10}, nil
		},
	}
	fetcher := newFakeFetcher(patternData(10), "text/plain", "x.txt")
	svc := NewStreamService(repo, NewCacheService(10, time.Minute), fetcher, nil, defaultStreamConfig(), discardLogger())

	for range 3 {
		if err := svc.Serve(context.Background(), httptest.NewRecorder(), StreamRequest{FileID: "f"}); err != nil {
			t.Fatalf("Serve: %v", err)
		}
	}
	if got := repo.getByIDCalls.Load(); got != 1 {
		t.Errorf("обращений к БД = %d, ожидалось 1", got)
	}
}

// TestStreamService_ClientCanceled проверяет, что отменённый запрос не считается ошибкой сервера.
func TestStreamService_ClientCanceled(t *testing.T) {
	svc, _, views, _ := newScenario(t, defaultStreamConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Serve(ctx, httptest.NewRecorder(), StreamRequest{FileID: "abc123"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получена: %v", err)
	}
	if views.calls() != 0 {
		t.Error("просмотр не должен учитываться")
	}
}

// TestContentDisposition проверяет экранирование имени файла.
func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		objName  string
		recName  string
		expected string
	}{
		{"имя из Telegram", "movie.mp4", "old.mp4", `inline; filename="movie.mp4"`},
		{"имя из записи", "", "old.mp4", `inline; filename="old.mp4"`},
		{"пробелы и кавычки", `my "best" clip.mp4`, "", `inline; filename="my \"best\" clip.mp4"`},
		{"обратная косая черта", `a\b.mp4`, "", `inline; filename="a\\b.mp4"`},
		{"не ASCII", "видео.mp4", "", "inline; filename*=utf-8''%D0%B2%D0%B8%D0%B4%D0%B5%D0%BE.mp4"},
		{"управляющий символ", "a\nb.mp4", "", "inline; filename*=utf-8''a%0Ab.mp4"},
		{"без имени", "", "", `inline; filename="f1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentDisposition(&remote.Object{FileName: tt.objName}, &model.FileRecord{FileID: "f1", FileName: tt.recName})
			if got != tt.expected {
				t.Errorf("contentDisposition = %q, ожидался %q", got, tt.expected)
			}
		})
	}
}
