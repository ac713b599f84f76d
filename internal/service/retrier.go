// retrier.go — фоновая повторная обработка отложенных начислений.
//
// AccountingRetrier периодически (VP_ACCOUNTING_RETRY_INTERVAL) извлекает
// начисления из очереди и повторяет транзакцию Ledger.ApplyViewCredit.
// Повтор безопасен: транзакция идемпотентна по event_id.
// После VP_ACCOUNTING_RETRY_MAX_ATTEMPTS неудач начисление отбрасывается с ERROR-логом.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/queue"
)

var (
	accountingRetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp_accounting_retry_total",
		Help: "Результаты повторной обработки отложенных начислений.",
	}, []string{"result"})

	accountingRetryQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vp_accounting_retry_queue_length",
		Help: "Длина очереди отложенных начислений.",
	})
)

// retryBatchSize — максимум начислений за один проход.
const retryBatchSize = 500

// RetryResult — итог одного прохода по очереди.
type RetryResult struct {
	Applied   int
	Duplicate int
	Requeued  int
	Dropped   int
}

// AccountingRetrier — фоновый сервис повторной обработки начислений.
type AccountingRetrier struct {
	queue       queue.RetryQueue
	ledger      CreditApplier
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAccountingRetrier создаёт сервис повторной обработки.
func NewAccountingRetrier(
	q queue.RetryQueue,
	ledger CreditApplier,
	interval time.Duration,
	maxAttempts int,
	logger *slog.Logger,
) *AccountingRetrier {
	return &AccountingRetrier{
		queue:       q,
		ledger:      ledger,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "accounting_retrier")),
	}
}

// Start запускает фоновую горутину.
func (r *AccountingRetrier) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		r.logger.Info("Повторная обработка начислений запущена",
			slog.String("interval", r.interval.String()),
			slog.Int("max_attempts", r.maxAttempts),
		)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Повторная обработка начислений остановлена")
				return
			case <-ticker.C:
				res := r.RunOnce(ctx)
				if res != (RetryResult{}) {
					r.logger.Info("Проход по очереди начислений завершён",
						slog.Int("applied", res.Applied),
						slog.Int("duplicate", res.Duplicate),
						slog.Int("requeued", res.Requeued),
						slog.Int("dropped", res.Dropped),
					)
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (r *AccountingRetrier) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// Drain останавливает фоновый цикл и выполняет последний проход по очереди,
// чтобы подобрать начисления, отложенные во время остановки сервера.
// Возвращает итог прохода и число оставшихся в очереди начислений.
func (r *AccountingRetrier) Drain(ctx context.Context) (RetryResult, int64, error) {
	r.Stop()
	res := r.RunOnce(ctx)
	left, err := r.queue.Len(ctx)
	return res, left, err
}

// RunOnce обрабатывает начисления, находившиеся в очереди на момент вызова.
// Неудачные возвращаются в конец очереди, поэтому проход ограничен
// исходной длиной очереди.
func (r *AccountingRetrier) RunOnce(ctx context.Context) RetryResult {
	var res RetryResult

	pending, err := r.queue.Len(ctx)
	if err != nil {
		r.logger.Error("Ошибка чтения длины очереди", slog.String("error", err.Error()))
		return res
	}
	if pending > retryBatchSize {
		pending = retryBatchSize
	}

	for i := int64(0); i < pending; i++ {
		if ctx.Err() != nil {
			break
		}

		credit, ok, err := r.queue.Pop(ctx)
		if err != nil {
			r.logger.Error("Ошибка чтения из очереди начислений", slog.String("error", err.Error()))
			break
		}
		if !ok {
			break
		}

		r.process(ctx, credit, &res)
	}

	if n, err := r.queue.Len(ctx); err == nil {
		accountingRetryQueueLength.Set(float64(n))
	}
	return res
}

// process повторяет одно начисление.
func (r *AccountingRetrier) process(ctx context.Context, credit model.ViewCredit, res *RetryResult) {
	applied, err := r.ledger.ApplyViewCredit(ctx, credit)
	if err == nil {
		if applied {
			res.Applied++
			accountingRetryTotal.WithLabelValues("applied").Inc()
		} else {
			res.Duplicate++
			accountingRetryTotal.WithLabelValues("duplicate").Inc()
		}
		return
	}

	// Прерванная остановкой транзакция не считается попыткой.
	interrupted := ctx.Err() != nil
	if !interrupted {
		credit.Attempts++
	}
	if !interrupted && credit.Attempts >= r.maxAttempts {
		res.Dropped++
		accountingRetryTotal.WithLabelValues("dropped").Inc()
		r.logger.Error("Начисление отброшено после исчерпания попыток",
			slog.String("event_id", credit.EventID.String()),
			slog.String("file_id", credit.FileID),
			slog.Int64("user_id", credit.UserID),
			slog.String("amount", credit.Amount.String()),
			slog.Int("attempts", credit.Attempts),
			slog.String("error", err.Error()),
		)
		return
	}

	// Начисление уже извлечено из очереди: возврат не должен зависеть
	// от отменённого контекста прохода.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if pushErr := r.queue.Push(pushCtx, credit); pushErr != nil {
		res.Dropped++
		accountingRetryTotal.WithLabelValues("dropped").Inc()
		r.logger.Error("Начисление потеряно: не удалось вернуть в очередь",
			slog.String("event_id", credit.EventID.String()),
			slog.String("error", pushErr.Error()),
		)
		return
	}
	res.Requeued++
	accountingRetryTotal.WithLabelValues("requeued").Inc()
	r.logger.Warn("Повтор начисления не удался",
		slog.String("event_id", credit.EventID.String()),
		slog.Int("attempts", credit.Attempts),
		slog.String("error", err.Error()),
	)
}
