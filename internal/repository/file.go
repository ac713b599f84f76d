package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Sihagjaat/VJ-Video-Player/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
const fileColumns = `file_id, owner_user_id, channel_id, message_id, file_name,
	file_size, mime_type, COALESCE(duration_seconds, 0), uploaded_at, views, earnings::text`

// FileRepository — доступ к метаданным файлов.
type FileRepository interface {
	// GetByID возвращает файл по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, fileID string) (*model.FileRecord, error)
	// ListByOwner возвращает последние загруженные файлы владельца.
	ListByOwner(ctx context.Context, userID int64, limit int) ([]*model.FileRecord, error)
	// IncrementViews атомарно увеличивает views на 1 и earnings на amount.
	// Возвращает новое значение views или ErrNotFound.
	IncrementViews(ctx context.Context, fileID string, amount decimal.Decimal) (int64, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// GetByID возвращает файл по идентификатору или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE file_id = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// ListByOwner возвращает не более limit файлов владельца, новые первыми.
func (r *fileRepo) ListByOwner(ctx context.Context, userID int64, limit int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM files WHERE owner_user_id = $1 ORDER BY uploaded_at DESC LIMIT $2`,
		fileColumns,
	)

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов владельца: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// IncrementViews — единственная операция, определяющая успех учёта просмотра.
// Инкремент выполняется на стороне БД, конкурентные вызовы не теряются.
func (r *fileRepo) IncrementViews(ctx context.Context, fileID string, amount decimal.Decimal) (int64, error) {
	query := `
		UPDATE files
		SET views = views + 1, earnings = earnings + $2::numeric
		WHERE file_id = $1
		RETURNING views`

	var views int64
	err := r.db.QueryRow(ctx, query, fileID, amount.String()).Scan(&views)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка увеличения счётчика просмотров: %w", err)
	}
	return views, nil
}

// scanFile читает строку fileColumns в FileRecord.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var earnings string
	if err := row.Scan(
		&f.FileID, &f.OwnerUserID, &f.Remote.ChannelID, &f.Remote.MessageID, &f.FileName,
		&f.FileSize, &f.MimeType, &f.DurationSeconds, &f.UploadedAt, &f.Views, &earnings,
	); err != nil {
		return nil, err
	}

	var err error
	if f.AccruedEarnings, err = parseAmount(earnings); err != nil {
		return nil, err
	}
	return f, nil
}
