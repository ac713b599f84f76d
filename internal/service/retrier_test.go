package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
	"github.com/Sihagjaat/VJ-Video-Player/internal/queue"
)

func queuedCredit(attempts int) model.ViewCredit {
	return model.ViewCredit{
		EventID:    uuid.New(),
		UserID:     42,
		FileID:     "abc123",
		Amount:     decimal.RequireFromString("0.0035"),
		OccurredAt: time.Now().UTC(),
		Attempts:   attempts,
	}
}

// TestAccountingRetrier_RunOnce проверяет обработку очереди за один проход.
func TestAccountingRetrier_RunOnce(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(10)

	ok := queuedCredit(1)
	dup := queuedCredit(1)
	fail := queuedCredit(1)
	exhausted := queuedCredit(2)
	for _, c := range []model.ViewCredit{ok, dup, fail, exhausted} {
		if err := q.Push(ctx, c); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	ledger := &mockLedger{
		applyFn: func(_ context.Context, c model.ViewCredit) (bool, error) {
			switch c.EventID {
			case ok.EventID:
				return true, nil
			case dup.EventID:
				return false, nil
			default:
				return false, errors.New("database unavailable")
			}
		},
	}

	r := NewAccountingRetrier(q, ledger, time.Minute, 3, discardLogger())
	res := r.RunOnce(ctx)

	want := RetryResult{Applied: 1, Duplicate: 1, Requeued: 1, Dropped: 1}
	if res != want {
		t.Errorf("RunOnce = %+v, ожидалось %+v", res, want)
	}

	n, _ := q.Len(ctx)
	if n != 1 {
		t.Fatalf("длина очереди = %d, ожидалась 1", n)
	}
	requeued, _, _ := q.Pop(ctx)
	if requeued.EventID != fail.EventID || requeued.Attempts != 2 {
		t.Errorf("в очереди %+v, ожидалось начисление %s с Attempts=2", requeued, fail.EventID)
	}
}

// TestAccountingRetrier_EmptyQueue проверяет проход по пустой очереди.
func TestAccountingRetrier_EmptyQueue(t *testing.T) {
	r := NewAccountingRetrier(queue.NewMemoryQueue(10), &mockLedger{}, time.Minute, 3, discardLogger())
	if res := r.RunOnce(context.Background()); res != (RetryResult{}) {
		t.Errorf("RunOnce = %+v, ожидался пустой результат", res)
	}
}

// TestAccountingRetrier_StartStop проверяет фоновую обработку и остановку.
func TestAccountingRetrier_StartStop(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(10)
	if err := q.Push(ctx, queuedCredit(1)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ledger := &mockLedger{}
	r := NewAccountingRetrier(q, ledger, 10*time.Millisecond, 3, discardLogger())
	r.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(ledger.applied()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	r.Stop()

	if len(ledger.applied()) != 1 {
		t.Errorf("применено %d начислений, ожидалось 1", len(ledger.applied()))
	}
}

// ctxQueue отклоняет операции на завершённом контексте, как go-redis.
type ctxQueue struct {
	*queue.MemoryQueue
}

func (q ctxQueue) Push(ctx context.Context, credit model.ViewCredit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.MemoryQueue.Push(ctx, credit)
}

// TestAccountingRetrier_CanceledMidTransaction проверяет, что начисление,
// прерванное остановкой, возвращается в очередь без расхода попытки.
func TestAccountingRetrier_CanceledMidTransaction(t *testing.T) {
	q := ctxQueue{queue.NewMemoryQueue(10)}
	credit := queuedCredit(1)
	if err := q.Push(context.Background(), credit); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ledger := &mockLedger{
		applyFn: func(ctx context.Context, _ model.ViewCredit) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		},
	}
	r := NewAccountingRetrier(q, ledger, time.Minute, 2, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	res := r.RunOnce(ctx)

	if res != (RetryResult{Requeued: 1}) {
		t.Errorf("RunOnce = %+v, ожидалось {Requeued:1}", res)
	}
	got, ok, _ := q.Pop(context.Background())
	if !ok {
		t.Fatal("начисление потеряно при остановке")
	}
	if got.EventID != credit.EventID || got.Attempts != 1 {
		t.Errorf("в очереди %+v, ожидалось начисление %s с Attempts=1", got, credit.EventID)
	}
}

// TestAccountingRetrier_Drain проверяет последний проход при остановке.
func TestAccountingRetrier_Drain(t *testing.T) {
	tests := []struct {
		name     string
		applyErr error
		wantRes  RetryResult
		wantLeft int64
	}{
		{"применено", nil, RetryResult{Applied: 1}, 0},
		{"БД недоступна", errors.New("database unavailable"), RetryResult{Requeued: 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			q := queue.NewMemoryQueue(10)
			ledger := &mockLedger{
				applyFn: func(context.Context, model.ViewCredit) (bool, error) {
					return tt.applyErr == nil, tt.applyErr
				},
			}
			r := NewAccountingRetrier(q, ledger, time.Hour, 3, discardLogger())
			r.Start(ctx)

			// Начисление отложено уже после последнего тика цикла.
			if err := q.Push(ctx, queuedCredit(1)); err != nil {
				t.Fatalf("Push: %v", err)
			}

			res, left, err := r.Drain(ctx)
			if err != nil {
				t.Fatalf("Drain: %v", err)
			}
			if res != tt.wantRes {
				t.Errorf("Drain = %+v, ожидалось %+v", res, tt.wantRes)
			}
			if left != tt.wantLeft {
				t.Errorf("осталось %d, ожидалось %d", left, tt.wantLeft)
			}
		})
	}
}
