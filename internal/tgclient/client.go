// Пакет tgclient — получение содержимого файлов из канала-хранилища Telegram
// через MTProto (gogram). Реализует remote.Fetcher.
package tgclient

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/amarnathcjd/gogram/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/remote"
)

// Prometheus-метрики обращений к Telegram.
var (
	fetchPartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp_telegram_parts_total",
		Help: "Количество запрошенных частей файлов из Telegram (по результату).",
	}, []string{"result"})

	fetchPartDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vp_telegram_part_duration_seconds",
		Help:    "Длительность получения одной части файла из Telegram.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

var tracer = otel.Tracer("github.com/Sihagjaat/VJ-Video-Player/internal/tgclient")

// Config — параметры подключения к Telegram.
type Config struct {
	AppID       int
	AppHash     string
	BotToken    string
	SessionFile string
	// PartSize — размер части upload.getFile (делитель 1 MiB, кратен 4 KiB)
	PartSize int
	// PartTimeout — таймаут получения одной части
	PartTimeout time.Duration
	// Debug — подробные логи MTProto
	Debug bool
	// DefaultChannel — канал-хранилище для записей без channel_id
	DefaultChannel int64
}

// telegramAPI — используемое подмножество методов клиента gogram.
type telegramAPI interface {
	GetMessageByID(peer any, msgID int32) (*telegram.NewMessage, error)
	DownloadChunk(media any, start int, end int, chunkSize int) ([]byte, string, error)
}

// Client — RemoteContentFetcher поверх бот-аккаунта Telegram.
// Безопасен для конкурентного использования.
type Client struct {
	tg          *telegram.Client
	api         telegramAPI
	partSize    int
	partTimeout time.Duration
	channel     int64
	logger      *slog.Logger
}

// New создаёт MTProto-клиент и авторизует бота.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	logLevel := telegram.LogInfo
	if cfg.Debug {
		logLevel = telegram.LogDebug
	}

	tg, err := telegram.NewClient(telegram.ClientConfig{
		AppID:    int32(cfg.AppID),
		AppHash:  cfg.AppHash,
		Session:  cfg.SessionFile,
		LogLevel: logLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента Telegram: %w", err)
	}

	if err := tg.LoginBot(cfg.BotToken); err != nil {
		tg.Disconnect()
		return nil, fmt.Errorf("авторизация бота Telegram: %w", err)
	}

	logger.Info("Клиент Telegram авторизован",
		slog.Int("app_id", cfg.AppID),
		slog.String("session", cfg.SessionFile),
	)

	c := newClient(tg, cfg, logger)
	c.tg = tg
	return c, nil
}

// newClient собирает Client поверх произвольной реализации telegramAPI.
func newClient(api telegramAPI, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		api:         api,
		partSize:    cfg.PartSize,
		partTimeout: cfg.PartTimeout,
		channel:     cfg.DefaultChannel,
		logger:      logger.With(slog.String("component", "tgclient")),
	}
}

// Close разрывает MTProto-соединение.
func (c *Client) Close() {
	if c.tg != nil {
		c.tg.Disconnect()
	}
}

// Resolve получает сообщение из канала и извлекает метаданные документа
// (document, video и audio в Telegram — разновидности документа).
func (c *Client) Resolve(ctx context.Context, ref model.RemoteRef) (*remote.Object, error) {
	ctx, span := tracer.Start(ctx, "telegram.resolve")
	defer span.End()
	if ref.ChannelID == 0 {
		ref.ChannelID = c.channel
	}
	span.SetAttributes(
		attribute.Int64("telegram.channel_id", ref.ChannelID),
		attribute.Int("telegram.message_id", int(ref.MessageID)),
	)

	msg, err := callWithContext(ctx, c.partTimeout, func() (*telegram.NewMessage, error) {
		return c.api.GetMessageByID(ref.ChannelID, ref.MessageID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		if isMessageMissing(err) {
			return nil, fmt.Errorf("%w: сообщение %d в канале %d", remote.ErrNotFound, ref.MessageID, ref.ChannelID)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: получение сообщения %d: %v", remote.ErrUnavailable, ref.MessageID, err)
	}

	if msg == nil || msg.Message == nil {
		return nil, fmt.Errorf("%w: сообщение %d в канале %d", remote.ErrNotFound, ref.MessageID, ref.ChannelID)
	}
	doc := msg.Document()
	if doc == nil {
		return nil, fmt.Errorf("%w: сообщение %d не содержит документа", remote.ErrNotFound, ref.MessageID)
	}

	obj := &remote.Object{
		MimeType: doc.MimeType,
		FileName: documentFileName(doc),
		Size:     doc.Size,
		Handle:   msg.Media(),
	}
	span.SetAttributes(attribute.Int64("file.size", obj.Size))
	return obj, nil
}

// OpenStream возвращает последовательность частей интервала [offset, offset+limit).
func (c *Client) OpenStream(ctx context.Context, obj *remote.Object, offset, limit int64) iter.Seq2[[]byte, error] {
	n, err := remote.Span(obj.Size, offset, limit)
	if err != nil {
		return func(yield func([]byte, error) bool) { yield(nil, err) }
	}

	read := func(ctx context.Context, partOffset int64, size int) ([]byte, error) {
		return c.readPart(ctx, obj, partOffset, size)
	}
	return remote.Chunks(ctx, read, c.partSize, offset, n)
}

// readPart запрашивает одну выровненную часть с таймаутом.
// DownloadChunk не принимает контекст, поэтому ожидание прерывается по ctx,
// а сам запрос завершается в фоне.
func (c *Client) readPart(ctx context.Context, obj *remote.Object, offset int64, size int) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "telegram.fetch_part")
	defer span.End()
	span.SetAttributes(attribute.Int64("part.offset", offset), attribute.Int("part.size", size))

	start := time.Now()
	end := offset + int64(size)
	if end > obj.Size {
		end = obj.Size
	}

	data, err := callWithContext(ctx, c.partTimeout, func() ([]byte, error) {
		buf, _, err := c.api.DownloadChunk(obj.Handle, int(offset), int(end), size)
		return buf, err
	})
	fetchPartDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch_part")
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			fetchPartsTotal.WithLabelValues("canceled").Inc()
			return nil, ctxErr
		}
		fetchPartsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Ошибка получения части файла",
			slog.Int64("offset", offset),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: часть %d: %v", remote.ErrUnavailable, offset, err)
	}

	// gogram логирует ошибки отдельных запросов и возвращает неполный буфер.
	if want := int(end - offset); len(data) < want {
		fetchPartsTotal.WithLabelValues("short").Inc()
		return nil, fmt.Errorf("%w: часть %d: получено %d из %d байт", remote.ErrUnavailable, offset, len(data), want)
	}

	fetchPartsTotal.WithLabelValues("ok").Inc()
	return data, nil
}

// errPartTimeout — истёк таймаут одного запроса к Telegram.
var errPartTimeout = errors.New("таймаут запроса к Telegram")

// callWithContext выполняет блокирующий вызов, прерывая ожидание по ctx или таймауту.
func callWithContext[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer:
		return zero, errPartTimeout
	}
}

// documentFileName возвращает имя файла из атрибутов документа.
func documentFileName(doc *telegram.DocumentObj) string {
	for _, attr := range doc.Attributes {
		if a, ok := attr.(*telegram.DocumentAttributeFilename); ok && a.FileName != "" {
			return a.FileName
		}
	}
	return ""
}

// isMessageMissing распознаёт ответ gogram на отсутствующее сообщение.
func isMessageMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no messages found") ||
		strings.Contains(msg, "message_id_invalid") ||
		strings.Contains(msg, "msg_id_invalid")
}
