// Пакет remote — контракт получения содержимого файлов из удалённого
// хранилища сообщений и общая логика чтения выровненными частями.
package remote

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// Ошибки удалённого хранилища.
var (
	// ErrNotFound — сообщение отсутствует или не содержит документа.
	ErrNotFound = errors.New("содержимое не найдено в удалённом хранилище")
	// ErrUnavailable — сбой соединения, таймаут или обрыв данных.
	ErrUnavailable = errors.New("удалённое хранилище недоступно")
	// ErrStreamConsumed — повторная итерация по одноразовому потоку.
	ErrStreamConsumed = errors.New("поток уже прочитан")
	// ErrInvalidSpan — смещение или длина вне размера объекта.
	ErrInvalidSpan = errors.New("некорректный интервал чтения")
)

// Object — актуальные метаданные удалённого объекта.
type Object struct {
	MimeType string
	FileName string
	Size     int64
	// Handle — ссылка на медиа, специфичная для реализации Fetcher.
	Handle any
}

// Fetcher — получение содержимого по ссылке на сообщение.
type Fetcher interface {
	// Resolve возвращает актуальные метаданные объекта.
	Resolve(ctx context.Context, ref model.RemoteRef) (*Object, error)
	// OpenStream возвращает одноразовую ленивую последовательность частей,
	// в сумме ровно limit байт начиная с offset (limit < 0 — до конца объекта).
	// Остановка итерации или отмена ctx прекращает чтение.
	OpenStream(ctx context.Context, obj *Object, offset, limit int64) iter.Seq2[[]byte, error]
}

// PartReader читает одну выровненную часть: offset кратен size.
// Последняя часть объекта может быть короче size.
type PartReader func(ctx context.Context, offset int64, size int) ([]byte, error)

// Span приводит offset/limit к границам объекта размера size.
func Span(size, offset, limit int64) (int64, error) {
	if offset < 0 || offset > size {
		return 0, fmt.Errorf("%w: offset %d, размер %d", ErrInvalidSpan, offset, size)
	}
	if limit < 0 {
		return size - offset, nil
	}
	if offset+limit > size {
		return 0, fmt.Errorf("%w: offset %d + limit %d > %d", ErrInvalidSpan, offset, limit, size)
	}
	return limit, nil
}

// Chunks читает limit байт начиная с offset частями размера partSize.
// Первая часть выравнивается вниз и обрезается слева, последняя — справа,
// поэтому конкатенация частей в точности равна запрошенному интервалу.
// В памяти одновременно находится не больше одной части.
func Chunks(ctx context.Context, read PartReader, partSize int, offset, limit int64) iter.Seq2[[]byte, error] {
	var consumed atomic.Bool

	return func(yield func([]byte, error) bool) {
		if consumed.Swap(true) {
			yield(nil, ErrStreamConsumed)
			return
		}

		size := int64(partSize)
		part := offset - offset%size
		skip := offset - part
		remaining := limit

		for remaining > 0 {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			raw, err := read(ctx, part, partSize)
			if err != nil {
				yield(nil, err)
				return
			}
			if int64(len(raw)) <= skip {
				yield(nil, fmt.Errorf("%w: часть %d пуста (%d байт)", ErrUnavailable, part, len(raw)))
				return
			}

			data := raw[skip:]
			if int64(len(data)) > remaining {
				data = data[:remaining]
			}
			remaining -= int64(len(data))

			if !yield(data, nil) {
				return
			}

			// Короткая часть в середине интервала означает обрыв данных.
			if len(raw) < partSize && remaining > 0 {
				yield(nil, fmt.Errorf("%w: часть %d короче ожидаемой (%d из %d байт)",
					ErrUnavailable, part, len(raw), partSize))
				return
			}

			skip = 0
			part += size
		}
	}
}
