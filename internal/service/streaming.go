// streaming.go — потоковая отдача файла из Telegram клиенту.
// Pipeline: FileRecord (cache/DB) → диапазон → метаданные Telegram → запись частей → учёт просмотра.
// Поддержка HTTP Range (один диапазон), HEAD без тела.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Sihagjaat/VJ-Video-Player/internal/config"
	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/byterange"
	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/remote"
	"github.com/Sihagjaat/VJ-Video-Player/internal/repository"
)

var tracer = otel.Tracer("github.com/Sihagjaat/VJ-Video-Player/internal/service")

// Prometheus-метрики streaming.
var (
	streamOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp_stream_outcomes_total",
		Help: "Завершённые запросы на поток (по конечному состоянию).",
	}, []string{"state"})

	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vp_stream_duration_seconds",
		Help:    "Длительность отдачи потока (от запроса до последней части).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
	})

	streamBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp_stream_bytes_total",
		Help: "Общее количество переданных клиентам байт.",
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vp_streams_active",
		Help: "Количество активных потоков.",
	})
)

// StreamState — состояние обработки запроса на поток.
type StreamState string

// Состояния обработки. Последние пять — конечные.
const (
	StateResolvingMetadata StreamState = "resolving_metadata"
	StateComputingRange    StreamState = "computing_range"
	StateFetching          StreamState = "fetching"
	StateWriting           StreamState = "writing"

	StateCompleted     StreamState = "completed"
	StateNotFound      StreamState = "not_found"
	StateBadRange      StreamState = "bad_range"
	StateUpstreamError StreamState = "upstream_error"
	StateAborted       StreamState = "aborted"
)

// ViewRecorder запускает учёт просмотра (AccountingService).
type ViewRecorder interface {
	RecordViewAsync(ctx context.Context, fileID string)
}

// StreamConfig — параметры потоковой отдачи.
type StreamConfig struct {
	// WriteIdleTimeout — дедлайн записи одной части клиенту (0 — без дедлайна)
	WriteIdleTimeout time.Duration
	// ViewPolicy — config.ViewPolicyEveryStream или config.ViewPolicyInitialRange
	ViewPolicy string
	// CountViews — учитывать ли просмотры
	CountViews bool
}

// StreamRequest — входные данные одного запроса.
type StreamRequest struct {
	FileID string
	// Range — значение заголовка Range (может быть пустым)
	Range string
	// HeadOnly — только заголовки, без тела и учёта
	HeadOnly bool
}

// StreamService — потоковая отдача файлов.
type StreamService struct {
	files   repository.FileRepository
	cache   *CacheService
	fetcher remote.Fetcher
	views   ViewRecorder
	cfg     StreamConfig
	logger  *slog.Logger
}

// NewStreamService создаёт сервис потоковой отдачи. views может быть nil.
func NewStreamService(
	files repository.FileRepository,
	cache *CacheService,
	fetcher remote.Fetcher,
	views ViewRecorder,
	cfg StreamConfig,
	logger *slog.Logger,
) *StreamService {
	return &StreamService{
		files:   files,
		cache:   cache,
		fetcher: fetcher,
		views:   views,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "stream_service")),
	}
}

// Lookup возвращает FileRecord из кэша или БД.
func (s *StreamService) Lookup(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if s.cache != nil {
		if record, ok := s.cache.Get(fileID); ok {
			return record, nil
		}
	}

	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи файла: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(fileID, record)
	}
	return record, nil
}

// Serve отдаёт файл (или его диапазон) в w.
//
// Ошибка возвращается только до отправки заголовков, и тогда ответ пишет
// вызывающий: ErrNotFound, ErrRemoteNotFound → 404; *RangeNotSatisfiableError → 416;
// остальное → 500. После отправки заголовков ошибки только обрывают тело
// и логируются, Serve возвращает nil.
func (s *StreamService) Serve(ctx context.Context, w http.ResponseWriter, req StreamRequest) error {
	start := time.Now()
	activeStreams.Inc()
	defer activeStreams.Dec()

	ctx, span := tracer.Start(ctx, "stream.serve")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.id", req.FileID),
		attribute.Bool("http.head", req.HeadOnly),
	)

	fail := func(state StreamState, err error) error {
		s.finish(state, start)
		if state == StateUpstreamError {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(state))
		}
		return err
	}

	// 1. ResolvingMetadata
	record, err := s.Lookup(ctx, req.FileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(StateNotFound, err)
		}
		return fail(StateUpstreamError, err)
	}

	// 2. ComputingRange по размеру из БД
	rng, err := byterange.Resolve(req.Range, record.FileSize)
	if err != nil {
		return fail(StateBadRange, &RangeNotSatisfiableError{Size: record.FileSize})
	}

	// 3. Fetching: актуальные метаданные из Telegram
	obj, err := s.fetcher.Resolve(ctx, record.Remote)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			s.logger.Warn("Файл есть в БД, но отсутствует в Telegram",
				slog.String("file_id", req.FileID),
				slog.Int64("channel_id", record.Remote.ChannelID),
				slog.Int("message_id", int(record.Remote.MessageID)),
			)
			return fail(StateNotFound, ErrRemoteNotFound)
		}
		return fail(StateUpstreamError, fmt.Errorf("%w: %v", ErrUpstream, err))
	}

	total := record.FileSize
	if obj.Size != record.FileSize {
		s.logger.Warn("Размер в Telegram отличается от размера в БД",
			slog.String("file_id", req.FileID),
			slog.Int64("record_size", record.FileSize),
			slog.Int64("remote_size", obj.Size),
		)
		total = obj.Size
		rng, err = byterange.Resolve(req.Range, total)
		if err != nil {
			return fail(StateBadRange, &RangeNotSatisfiableError{Size: total})
		}
	}
	span.SetAttributes(
		attribute.Int64("stream.offset", rng.Start),
		attribute.Int64("stream.length", rng.Length),
	)

	status := http.StatusOK
	if rng.Partial {
		status = http.StatusPartialContent
	}

	if req.HeadOnly {
		s.writeHeaders(w, record, obj, rng, total)
		w.WriteHeader(status)
		s.finish(StateCompleted, start)
		return nil
	}

	// Первая часть запрашивается до отправки заголовков: сбой Telegram
	// на старте превращается в 500, а не в пустой 200.
	var (
		next  func() ([]byte, error, bool)
		stop  func()
		first []byte
	)
	if rng.Length > 0 {
		next, stop = iter.Pull2(s.fetcher.OpenStream(ctx, obj, rng.Start, rng.Length))
		defer stop()

		chunk, err, ok := next()
		if err != nil || !ok {
			if ctx.Err() != nil {
				return fail(StateAborted, ctx.Err())
			}
			if err == nil {
				err = remote.ErrUnavailable
			}
			return fail(StateUpstreamError, fmt.Errorf("%w: %v", ErrUpstream, err))
		}
		first = chunk
	}

	// 4. Writing: заголовки зафиксированы, с этого момента просмотр засчитывается
	s.writeHeaders(w, record, obj, rng, total)
	w.WriteHeader(status)
	if s.shouldCount(rng) {
		s.views.RecordViewAsync(ctx, req.FileID)
	}

	var written int64
	state := StateCompleted
	if rng.Length > 0 {
		written, state = s.writeBody(ctx, w, req.FileID, first, next)
	}
	streamBytesTotal.Add(float64(written))
	s.finish(state, start)

	s.logger.Debug("Поток завершён",
		slog.String("file_id", req.FileID),
		slog.String("state", string(state)),
		slog.Int("status", status),
		slog.Int64("bytes", written),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// writeBody пишет части по порядку, пока не закончатся данные,
// клиент не отключится или Telegram не вернёт ошибку.
func (s *StreamService) writeBody(
	ctx context.Context,
	w http.ResponseWriter,
	fileID string,
	chunk []byte,
	next func() ([]byte, error, bool),
) (int64, StreamState) {
	rc := http.NewResponseController(w)
	var written int64

	for {
		if err := s.writeChunk(rc, w, chunk); err != nil {
			s.logger.Debug("Клиент отключился",
				slog.String("file_id", fileID),
				slog.Int64("bytes_written", written),
				slog.String("error", err.Error()),
			)
			return written, StateAborted
		}
		written += int64(len(chunk))

		var (
			err error
			ok  bool
		)
		chunk, err, ok = next()
		if !ok {
			return written, StateCompleted
		}
		if err != nil {
			if ctx.Err() != nil {
				return written, StateAborted
			}
			s.logger.Error("Ошибка чтения из Telegram после отправки заголовков",
				slog.String("file_id", fileID),
				slog.Int64("bytes_written", written),
				slog.String("error", err.Error()),
			)
			return written, StateUpstreamError
		}
	}
}

// writeChunk пишет одну часть с дедлайном простоя и сразу отправляет её клиенту.
func (s *StreamService) writeChunk(rc *http.ResponseController, w http.ResponseWriter, chunk []byte) error {
	if s.cfg.WriteIdleTimeout > 0 {
		// Не все ResponseWriter поддерживают дедлайны (httptest).
		_ = rc.SetWriteDeadline(time.Now().Add(s.cfg.WriteIdleTimeout))
	}
	if _, err := w.Write(chunk); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// writeHeaders выставляет заголовки ответа по актуальным метаданным.
func (s *StreamService) writeHeaders(
	w http.ResponseWriter,
	record *model.FileRecord,
	obj *remote.Object,
	rng byterange.Result,
	total int64,
) {
	h := w.Header()
	h.Set("Content-Type", contentType(obj, record))
	h.Set("Content-Length", strconv.FormatInt(rng.Length, 10))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Disposition", contentDisposition(obj, record))
	if rng.Partial {
		h.Set("Content-Range", rng.ContentRange(total))
	}
}

// shouldCount определяет, засчитывается ли запрос как просмотр.
func (s *StreamService) shouldCount(rng byterange.Result) bool {
	if !s.cfg.CountViews || s.views == nil {
		return false
	}
	if s.cfg.ViewPolicy == config.ViewPolicyInitialRange && rng.Partial && rng.Start > 0 {
		return false
	}
	return true
}

// finish фиксирует конечное состояние в метриках.
func (s *StreamService) finish(state StreamState, start time.Time) {
	streamOutcomesTotal.WithLabelValues(string(state)).Inc()
	streamDuration.Observe(time.Since(start).Seconds())
}

func contentType(obj *remote.Object, record *model.FileRecord) string {
	switch {
	case obj.MimeType != "":
		return obj.MimeType
	case record.MimeType != "":
		return record.MimeType
	default:
		return "application/octet-stream"
	}
}

// contentDisposition формирует inline-заголовок. ASCII-имя всегда
// передаётся как quoted-string, остальные кодируются как filename* (RFC 2231).
func contentDisposition(obj *remote.Object, record *model.FileRecord) string {
	name := obj.FileName
	if name == "" {
		name = record.FileName
	}
	if name == "" {
		name = record.FileID
	}
	if isPrintableASCII(name) {
		return `inline; filename="` + quoteEscaper.Replace(name) + `"`
	}
	if v := mime.FormatMediaType("inline", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "inline"
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; (c < ' ' && c != '\t') || c >= 0x7f {
			return false
		}
	}
	return true
}
