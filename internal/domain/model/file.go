// Пакет model — доменные модели VJ Video Player.
// FileRecord — маппинг таблицы files.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RemoteRef — адрес содержимого файла в Telegram: сообщение в канале-хранилище.
type RemoteRef struct {
	// ChannelID — ID канала-хранилища
	ChannelID int64
	// MessageID — ID сообщения с документом
	MessageID int32
}

// FileRecord — метаданные загруженного медиафайла.
// Запись создаётся при загрузке (вне этого сервиса) и не удаляется;
// Views и AccruedEarnings только растут и изменяются атомарными инкрементами.
type FileRecord struct {
	// FileID — публичный непрозрачный идентификатор файла
	FileID string
	// OwnerUserID — Telegram ID владельца
	OwnerUserID int64
	// Remote — сообщение в канале-хранилище
	Remote RemoteRef
	// FileName — имя файла для Content-Disposition
	FileName string
	// FileSize — размер в байтах по данным загрузки
	FileSize int64
	// MimeType — MIME-тип
	MimeType string
	// DurationSeconds — длительность видео/аудио (0, если неизвестна)
	DurationSeconds int
	// UploadedAt — время загрузки
	UploadedAt time.Time
	// Views — количество просмотров
	Views int64
	// AccruedEarnings — доход, начисленный за просмотры файла
	AccruedEarnings decimal.Decimal
}
