// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — файл не найден в хранилище метаданных.
	ErrNotFound = errors.New("файл не найден")
	// ErrUserNotFound — пользователь не найден.
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrRangeNotSatisfiable — запрошенный диапазон невыполним.
	ErrRangeNotSatisfiable = errors.New("диапазон невыполним")
	// ErrRemoteNotFound — метаданные есть, но содержимое в Telegram отсутствует.
	ErrRemoteNotFound = errors.New("содержимое файла отсутствует в хранилище")
	// ErrUpstream — хранилище содержимого недоступно.
	ErrUpstream = errors.New("хранилище содержимого недоступно")
	// ErrRecordVanished — запись файла исчезла между stream и учётом просмотра.
	ErrRecordVanished = errors.New("запись файла исчезла")
	// ErrAccountingFailed — не удалось увеличить счётчик просмотров.
	ErrAccountingFailed = errors.New("ошибка учёта просмотра")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// RangeNotSatisfiableError — невыполнимый диапазон с размером ресурса
// для заголовка Content-Range: bytes */size.
type RangeNotSatisfiableError struct {
	Size int64
}

func (e *RangeNotSatisfiableError) Error() string {
	return fmt.Sprintf("%s (размер %d)", ErrRangeNotSatisfiable, e.Size)
}

func (e *RangeNotSatisfiableError) Unwrap() error {
	return ErrRangeNotSatisfiable
}
