package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// RedisQueue — очередь в списке Redis (LPUSH + RPOP).
// Переживает перезапуск и разделяется между экземплярами сервиса.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// RedisConfig — параметры подключения к Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisQueue подключается к Redis и проверяет доступность.
func NewRedisQueue(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis %s: %w", cfg.Addr, err)
	}

	logger.Info("Подключение к Redis установлено",
		slog.String("addr", cfg.Addr),
		slog.String("key", cfg.Key),
	)

	return &RedisQueue{client: client, key: cfg.Key}, nil
}

// Push сериализует начисление в JSON и добавляет в список.
func (q *RedisQueue) Push(ctx context.Context, credit model.ViewCredit) error {
	data, err := json.Marshal(credit)
	if err != nil {
		return fmt.Errorf("ошибка сериализации начисления: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("ошибка записи в Redis: %w", err)
	}
	return nil
}

// Pop извлекает самое старое начисление.
func (q *RedisQueue) Pop(ctx context.Context) (model.ViewCredit, bool, error) {
	data, err := q.client.RPop(ctx, q.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.ViewCredit{}, false, nil
		}
		return model.ViewCredit{}, false, fmt.Errorf("ошибка чтения из Redis: %w", err)
	}

	var credit model.ViewCredit
	if err := json.Unmarshal(data, &credit); err != nil {
		return model.ViewCredit{}, false, fmt.Errorf("ошибка разбора начисления %q: %w", data, err)
	}
	return credit, true, nil
}

// Len возвращает длину списка.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения длины очереди: %w", err)
	}
	return n, nil
}

// CheckReady проверяет доступность Redis для health endpoint.
func (q *RedisQueue) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := q.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return "degraded", fmt.Sprintf("ошибка чтения очереди: %v", err)
	}
	return "ok", fmt.Sprintf("в очереди %d начислений", n)
}

// Close закрывает соединения с Redis.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
