// Пакет queue — очередь отложенных начислений за просмотры.
// Начисление попадает в очередь, если транзакция начисления владельцу
// не удалась сразу после увеличения счётчика просмотров файла.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// ErrQueueFull — in-memory очередь заполнена.
var ErrQueueFull = errors.New("очередь отложенных начислений заполнена")

// RetryQueue — FIFO-очередь начислений для повторной обработки.
type RetryQueue interface {
	// Push добавляет начисление в конец очереди.
	Push(ctx context.Context, credit model.ViewCredit) error
	// Pop извлекает начисление из начала очереди; ok = false, если очередь пуста.
	Pop(ctx context.Context) (credit model.ViewCredit, ok bool, err error)
	// Len возвращает текущую длину очереди.
	Len(ctx context.Context) (int64, error)
}

// MemoryQueue — ограниченная очередь в памяти процесса.
// Содержимое теряется при перезапуске.
type MemoryQueue struct {
	mu    sync.Mutex
	items []model.ViewCredit
	limit int
}

// NewMemoryQueue создаёт очередь вместимостью limit.
func NewMemoryQueue(limit int) *MemoryQueue {
	return &MemoryQueue{limit: limit}
}

// Push добавляет начисление или возвращает ErrQueueFull.
func (q *MemoryQueue) Push(_ context.Context, credit model.ViewCredit) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.limit {
		return ErrQueueFull
	}
	q.items = append(q.items, credit)
	return nil
}

// Pop извлекает первое начисление.
func (q *MemoryQueue) Pop(_ context.Context) (model.ViewCredit, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return model.ViewCredit{}, false, nil
	}
	credit := q.items[0]
	q.items[0] = model.ViewCredit{}
	q.items = q.items[1:]
	return credit, true, nil
}

// Len возвращает длину очереди.
func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
