package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/domain"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
)

const segmentColumns = `id, process_id, file_id, user_id, segment_index, storage_key, status,
	transcript_storage_key, summary, started_at, completed_at, duration_ms, error_message`

type SegmentRepo struct {
	db    *sqlx.DB
	clock func() time.Time
}

func NewSegmentRepo(db *sqlx.DB) *SegmentRepo {
	return &SegmentRepo{db: db, clock: time.Now}
}

func (r *SegmentRepo) Create(ctx context.Context, s *models.Segment) error {
	const q = `
		INSERT INTO segments (` + segmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.ProcessID, s.FileID, s.UserID, s.Index, s.StorageKey, s.Status,
		s.TranscriptStorageKey, s.Summary, s.StartedAt, s.CompletedAt, s.DurationMS, s.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("segment create: %w", err)
	}
	return nil
}

func (r *SegmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error) {
	const q = `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1`

	var s models.Segment
	if err := r.db.GetContext(ctx, &s, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("segment get by id: %w", err)
	}
	return &s, nil
}

func (r *SegmentRepo) ListByProcess(ctx context.Context, processID uuid.UUID) ([]models.Segment, error) {
	const q = `
		SELECT ` + segmentColumns + `
		FROM segments
		WHERE process_id = $1
		ORDER BY segment_index ASC
	`

	var out []models.Segment
	if err := r.db.SelectContext(ctx, &out, q, processID); err != nil {
		return nil, fmt.Errorf("segment list by process: %w", err)
	}
	return out, nil
}

func (r *SegmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, errMessage string) (*models.Segment, error) {
	return r.update(ctx, id, status, errMessage, "", "")
}

func (r *SegmentRepo) UpdateTranscription(ctx context.Context, id uuid.UUID, status models.Status, transcriptKey, summary string) (*models.Segment, error) {
	return r.update(ctx, id, status, "", transcriptKey, summary)
}

// update applies a status transition and, optionally, the transcription
// result fields in one transaction. Entering PROCESSING stamps started_at
// if unset; a terminal status stamps completed_at and the duration.
func (r *SegmentRepo) update(ctx context.Context, id uuid.UUID, status models.Status, errMessage, transcriptKey, summary string) (*models.Segment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const sel = `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1 FOR UPDATE`
	var s models.Segment
	if err := tx.GetContext(ctx, &s, sel, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("segment select for update: %w", err)
	}

	if transcriptKey != "" {
		s.TranscriptStorageKey = transcriptKey
	}
	if summary != "" {
		s.Summary = summary
	}

	if err := domain.ValidateTransition(s.Status, status); err != nil {
		return nil, err
	}
	if !s.Status.Terminal() {
		s.Status = status
		if errMessage != "" {
			s.ErrorMessage = errMessage
		}
		switch {
		case status == models.StatusProcessing && s.StartedAt == nil:
			now := r.clock()
			s.StartedAt = &now
		case status.Terminal():
			now := r.clock()
			s.CompletedAt = &now
			if s.StartedAt != nil {
				d := now.Sub(*s.StartedAt).Milliseconds()
				s.DurationMS = &d
			}
		}
	}

	const upd = `
		UPDATE segments
		SET status = $2, transcript_storage_key = $3, summary = $4, started_at = $5,
			completed_at = $6, duration_ms = $7, error_message = $8
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, upd,
		s.ID, s.Status, s.TranscriptStorageKey, s.Summary, s.StartedAt,
		s.CompletedAt, s.DurationMS, s.ErrorMessage,
	); err != nil {
		return nil, fmt.Errorf("segment update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &s, nil
}
