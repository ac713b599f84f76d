// Пакет service — бизнес-логика VJ Video Player.
// CacheService — LRU-кэш метаданных файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp_cache_hits_total",
		Help: "Количество попаданий в кэш метаданных файлов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp_cache_misses_total",
		Help: "Количество промахов кэша метаданных файлов.",
	})
	cacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp_cache_invalidations_total",
		Help: "Количество записей, сброшенных из кэша после учёта просмотра.",
	})
)

// CacheService — кэш FileRecord по file_id.
// Плеер запрашивает один файл десятками Range-запросов, кэш снимает
// с PostgreSQL повторные чтения. Счётчики просмотров в кэше могут отставать
// на TTL; учёт просмотров всегда читает запись из БД.
type CacheService struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewCacheService создаёт кэш с максимальным размером maxSize и временем жизни ttl.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{cache: expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl)}
}

// Get возвращает запись при попадании.
func (c *CacheService) Get(fileID string) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(fileID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись и сообщает, попала ли она в кэш.
// Запись без размера не кэшируется: загрузка ещё не завершена,
// и следующий запрос должен перечитать её из БД.
func (c *CacheService) Set(fileID string, record *model.FileRecord) bool {
	if record == nil || record.FileSize <= 0 {
		return false
	}
	c.cache.Add(fileID, record)
	return true
}

// Delete инвалидирует запись (после учёта просмотра).
// Счётчик инвалидаций растёт, только если запись была в кэше.
func (c *CacheService) Delete(fileID string) {
	if c.cache.Remove(fileID) {
		cacheInvalidationsTotal.Inc()
	}
}

// Len возвращает количество записей.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
