// accounting.go — учёт просмотра и начисление дохода владельцу файла.
//
// Транзакция просмотра:
//  1. Перечитать FileRecord из БД (владелец); нет записи — ErrRecordVanished
//  2. earningPerView = cpm / 1000
//  3. Атомарно files.views += 1, files.earnings += earningPerView — определяет успех
//  4. users.total_views/total_earnings/balance += ... и запись в журнал earnings —
//     одна транзакция; при ошибке начисление уходит в очередь повторной обработки
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/queue"
	"github.com/Sihagjaat/VJ-Video-Player/internal/repository"
)

// Prometheus-метрики учёта просмотров.
var (
	viewsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp_views_recorded_total",
		Help: "Количество учтённых просмотров.",
	})

	accountingFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp_accounting_failures_total",
		Help: "Ошибки учёта просмотров (по шагу транзакции).",
	}, []string{"step"})
)

var thousand = decimal.NewFromInt(1000)

// enqueueTimeout — таймаут записи в очередь отложенных начислений.
const enqueueTimeout = 5 * time.Second

// EarningPerView возвращает доход за один просмотр при заданном CPM.
func EarningPerView(cpm decimal.Decimal) decimal.Decimal {
	return cpm.Div(thousand)
}

// CreditApplier применяет вторичную часть учёта (repository.Ledger).
type CreditApplier interface {
	ApplyViewCredit(ctx context.Context, credit model.ViewCredit) (applied bool, err error)
}

// AccountingService — учёт просмотров и начислений.
type AccountingService struct {
	files   repository.FileRepository
	ledger  CreditApplier
	retry   queue.RetryQueue
	cache   *CacheService
	cpm     decimal.Decimal
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewAccountingService создаёт сервис учёта просмотров.
// cpm — ставка по умолчанию для RecordViewAsync, timeout — ограничение фоновой транзакции.
// cache может быть nil.
func NewAccountingService(
	files repository.FileRepository,
	ledger CreditApplier,
	retry queue.RetryQueue,
	cache *CacheService,
	cpm decimal.Decimal,
	timeout time.Duration,
	logger *slog.Logger,
) *AccountingService {
	return &AccountingService{
		files:   files,
		ledger:  ledger,
		retry:   retry,
		cache:   cache,
		cpm:     cpm,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "accounting")),
	}
}

// RecordView учитывает один просмотр файла по ставке cpm.
// Возвращает nil, если счётчик файла увеличен, даже когда начисление
// владельцу отложено в очередь.
func (a *AccountingService) RecordView(ctx context.Context, fileID string, cpm decimal.Decimal) error {
	ctx, span := tracer.Start(ctx, "accounting.record_view")
	defer span.End()
	span.SetAttributes(attribute.String("file.id", fileID))

	// 1. Свежая запись из БД (не из кэша): нужен актуальный владелец
	record, err := a.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			accountingFailuresTotal.WithLabelValues("vanished").Inc()
			return ErrRecordVanished
		}
		accountingFailuresTotal.WithLabelValues("lookup").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup")
		return fmt.Errorf("%w: чтение файла %s: %v", ErrAccountingFailed, fileID, err)
	}

	// 2. Доход за просмотр
	perView := EarningPerView(cpm)

	// 3. Атомарный инкремент счётчиков файла
	views, err := a.files.IncrementViews(ctx, fileID, perView)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			accountingFailuresTotal.WithLabelValues("vanished").Inc()
			return ErrRecordVanished
		}
		accountingFailuresTotal.WithLabelValues("increment").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "increment")
		return fmt.Errorf("%w: %v", ErrAccountingFailed, err)
	}
	viewsRecordedTotal.Inc()
	if a.cache != nil {
		a.cache.Delete(fileID)
	}

	// 4. Начисление владельцу и журнал — best effort
	credit := model.ViewCredit{
		EventID:    uuid.New(),
		UserID:     record.OwnerUserID,
		FileID:     fileID,
		Amount:     perView,
		OccurredAt: a.now().UTC(),
	}
	if _, err := a.ledger.ApplyViewCredit(ctx, credit); err != nil {
		accountingFailuresTotal.WithLabelValues("credit").Inc()
		a.logger.Warn("Начисление владельцу не выполнено, отложено",
			slog.String("file_id", fileID),
			slog.Int64("user_id", record.OwnerUserID),
			slog.String("event_id", credit.EventID.String()),
			slog.String("error", err.Error()),
		)
		credit.Attempts = 1
		a.enqueueCredit(ctx, credit)
	}

	a.logger.Debug("Просмотр учтён",
		slog.String("file_id", fileID),
		slog.Int64("views", views),
		slog.String("earning", perView.String()),
	)
	return nil
}

// RecordViewAsync запускает учёт просмотра в фоне по ставке по умолчанию.
// Контекст отвязан от запроса: отключение клиента не отменяет учёт.
func (a *AccountingService) RecordViewAsync(ctx context.Context, fileID string) {
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		if err := a.RecordView(ctx, fileID, a.cpm); err != nil {
			level := slog.LevelError
			if errors.Is(err, ErrRecordVanished) {
				level = slog.LevelWarn
			}
			a.logger.Log(ctx, level, "Просмотр не учтён",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait ожидает завершения фоновых транзакций учёта или отмены ctx.
func (a *AccountingService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueueCredit помещает начисление в очередь повторной обработки.
// Исходный ctx мог истечь вместе с неудачной транзакцией.
func (a *AccountingService) enqueueCredit(ctx context.Context, credit model.ViewCredit) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := a.retry.Push(ctx, credit); err != nil {
		accountingFailuresTotal.WithLabelValues("enqueue").Inc()
		a.logger.Error("Начисление потеряно: очередь недоступна",
			slog.String("file_id", credit.FileID),
			slog.Int64("user_id", credit.UserID),
			slog.String("event_id", credit.EventID.String()),
			slog.String("amount", credit.Amount.String()),
			slog.String("error", err.Error()),
		)
	}
}
