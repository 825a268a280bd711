package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
)

const fileColumns = `id, user_id, original_filename, storage_key, content_type, size_bytes,
	upload_status, etag, upload_started_at, upload_completed_at`

type FileRepo struct {
	db    *sqlx.DB
	clock func() time.Time
}

func NewFileRepo(db *sqlx.DB) *FileRepo {
	return &FileRepo{db: db, clock: time.Now}
}

func (r *FileRepo) Create(ctx context.Context, f *models.File) error {
	const q = `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, q,
		f.ID, f.UserID, f.OriginalFilename, f.StorageKey, f.ContentType, f.SizeBytes,
		f.UploadStatus, f.ETag, f.UploadStartedAt, f.UploadCompletedAt,
	)
	if err != nil {
		return fmt.Errorf("file create: %w", err)
	}
	return nil
}

func (r *FileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	var f models.File
	if err := r.db.GetContext(ctx, &f, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("file get by id: %w", err)
	}
	return &f, nil
}

func (r *FileRepo) GetByStorageKey(ctx context.Context, key string) (*models.File, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE storage_key = $1`

	var f models.File
	if err := r.db.GetContext(ctx, &f, q, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("file get by storage key: %w", err)
	}
	return &f, nil
}

func (r *FileRepo) MarkUploadCompleted(ctx context.Context, id uuid.UUID, sizeBytes int64, etag string) (*models.File, error) {
	const q = `
		UPDATE files
		SET upload_status = $2, size_bytes = $3, etag = $4, upload_completed_at = $5
		WHERE id = $1
		RETURNING ` + fileColumns

	var f models.File
	err := r.db.GetContext(ctx, &f, q, id, models.StatusCompleted, sizeBytes, etag, r.clock())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("file mark upload completed: %w", err)
	}
	return &f, nil
}

// Delete removes the file and cascades explicitly through its processes
// and their segments inside one transaction.
func (r *FileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM segments WHERE process_id IN (SELECT id FROM processes WHERE file_id = $1)`, id); err != nil {
		return fmt.Errorf("delete segments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM processes WHERE file_id = $1`, id); err != nil {
		return fmt.Errorf("delete processes: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
