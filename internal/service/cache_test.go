package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// TestCacheService_GetSet проверяет базовые операции Get/Set.
func TestCacheService_GetSet(t *testing.T) {
	cache := NewCacheService(100, 5*time.Minute)

	record := &model.FileRecord{FileID: "abc123", FileName: "movie.mp4", FileSize: 1024}

	if _, ok := cache.Get("abc123"); ok {
		t.Fatal("ожидался cache miss для нового ключа")
	}

	cache.Set("abc123", record)
	got, ok := cache.Get("abc123")
	if !ok {
		t.Fatal("ожидался cache hit после Set")
	}
	if got.FileName != "movie.mp4" {
		t.Errorf("FileName = %q, ожидался %q", got.FileName, "movie.mp4")
	}
}

// TestCacheService_Delete проверяет инвалидацию.
func TestCacheService_Delete(t *testing.T) {
	cache := NewCacheService(100, 5*time.Minute)
	cache.Set("abc123", &model.FileRecord{FileID: "abc123", FileSize: 1024})

	before := testutil.ToFloat64(cacheInvalidationsTotal)
	cache.Delete("abc123")
	cache.Delete("abc123")

	if _, ok := cache.Get("abc123"); ok {
		t.Fatal("ожидался cache miss после Delete")
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d, ожидался 0", cache.Len())
	}
	if got := testutil.ToFloat64(cacheInvalidationsTotal) - before; got != 1 {
		t.Errorf("инвалидаций = %v, ожидалась 1 (повторный Delete не считается)", got)
	}
}

// TestCacheService_SkipUnknownSize проверяет, что записи без размера не кэшируются.
func TestCacheService_SkipUnknownSize(t *testing.T) {
	cache := NewCacheService(100, time.Minute)

	tests := []struct {
		name   string
		record *model.FileRecord
		want   bool
	}{
		{"известный размер", &model.FileRecord{FileID: "a", FileSize: 1}, true},
		{"нулевой размер", &model.FileRecord{FileID: "b"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cache.Set(tt.name, tt.record); got != tt.want {
				t.Errorf("Set = %v, ожидалось %v", got, tt.want)
			}
			if _, ok := cache.Get(tt.name); ok != tt.want {
				t.Errorf("Get ok = %v, ожидалось %v", ok, tt.want)
			}
		})
	}
}

// TestCacheService_TTLExpiration проверяет истечение TTL.
func TestCacheService_TTLExpiration(t *testing.T) {
	cache := NewCacheService(100, 50*time.Millisecond)
	cache.Set("ttl", &model.FileRecord{FileID: "ttl", FileSize: 1})

	time.Sleep(150 * time.Millisecond)

	if _, ok := cache.Get("ttl"); ok {
		t.Fatal("ожидался cache miss после истечения TTL")
	}
}

// TestCacheService_Eviction проверяет вытеснение при превышении размера.
func TestCacheService_Eviction(t *testing.T) {
	cache := NewCacheService(2, time.Minute)
	cache.Set("a", &model.FileRecord{FileID: "a", FileSize: 1})
	cache.Set("b", &model.FileRecord{FileID: "b", FileSize: 1})
	cache.Set("c", &model.FileRecord{FileID: "c", FileSize: 1})

	if _, ok := cache.Get("a"); ok {
		t.Error("ожидалось вытеснение самой старой записи")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Error("ожидался cache hit для последней записи")
	}
}
