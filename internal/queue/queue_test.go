package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

func testCredit(fileID string) model.ViewCredit {
	return model.ViewCredit{
		EventID:    uuid.New(),
		UserID:     7,
		FileID:     fileID,
		Amount:     decimal.RequireFromString("0.0035"),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Attempts:   1,
	}
}

// decimalComparer сравнивает decimal.Decimal по значению.
var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

// exerciseQueue проверяет FIFO-порядок и поведение пустой очереди.
func exerciseQueue(t *testing.T, q RetryQueue) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := q.Pop(ctx); err != nil || ok {
		t.Fatalf("Pop пустой очереди = %v, %v; ожидалось false, nil", ok, err)
	}

	first, second := testCredit("a"), testCredit("b")
	if err := q.Push(ctx, first); err != nil {
		t.Fatalf("Push ошибка: %v", err)
	}
	if err := q.Push(ctx, second); err != nil {
		t.Fatalf("Push ошибка: %v", err)
	}

	if n, err := q.Len(ctx); err != nil || n != 2 {
		t.Errorf("Len = %d, %v; ожидалось 2", n, err)
	}

	for _, want := range []model.ViewCredit{first, second} {
		got, ok, err := q.Pop(ctx)
		if err != nil || !ok {
			t.Fatalf("Pop = %v, %v", ok, err)
		}
		if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
			t.Errorf("Pop (-want +got):\n%s", diff)
		}
	}
}

// TestMemoryQueue проверяет in-memory очередь.
func TestMemoryQueue(t *testing.T) {
	exerciseQueue(t, NewMemoryQueue(10))
}

// TestMemoryQueue_Full проверяет ограничение вместимости.
func TestMemoryQueue_Full(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if err := q.Push(ctx, testCredit("a")); err != nil {
		t.Fatalf("Push ошибка: %v", err)
	}
	if err := q.Push(ctx, testCredit("b")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Push в полную очередь ошибка = %v, ожидалась ErrQueueFull", err)
	}
}

// TestRedisQueue проверяет очередь в Redis (интеграционный тест).
func TestRedisQueue(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Не удалось получить адрес контейнера: %v", err)
	}

	q, err := NewRedisQueue(ctx, RedisConfig{Addr: addr, Key: "test:retry"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRedisQueue ошибка: %v", err)
	}
	defer q.Close()

	exerciseQueue(t, q)

	if status, msg := q.CheckReady(); status != "ok" {
		t.Errorf("CheckReady = %q (%s), ожидался ok", status, msg)
	}
}
