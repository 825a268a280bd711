package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/domain"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
)

const processColumns = `id, file_id, user_id, kind, status, initiated_at, completed_at,
	duration_ms, error_message, result`

type ProcessRepo struct {
	db    *sqlx.DB
	clock func() time.Time
	idGen func() uuid.UUID
}

func NewProcessRepo(db *sqlx.DB) *ProcessRepo {
	return &ProcessRepo{db: db, clock: time.Now, idGen: uuid.New}
}

func (r *ProcessRepo) Create(ctx context.Context, p *models.Process) error {
	const q = `
		INSERT INTO processes (` + processColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.FileID, p.UserID, p.Kind, p.Status, p.InitiatedAt, p.CompletedAt,
		p.DurationMS, p.ErrorMessage, p.Result,
	)
	if err != nil {
		return fmt.Errorf("process create: %w", err)
	}
	return nil
}

func (r *ProcessRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Process, error) {
	const q = `SELECT ` + processColumns + ` FROM processes WHERE id = $1`

	var p models.Process
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("process get by id: %w", err)
	}
	return &p, nil
}

func (r *ProcessRepo) LatestByFile(ctx context.Context, fileID uuid.UUID, kind models.ProcessKind) (*models.Process, error) {
	const q = `
		SELECT ` + processColumns + `
		FROM processes
		WHERE file_id = $1 AND kind = $2
		ORDER BY initiated_at DESC
		LIMIT 1
	`

	var p models.Process
	if err := r.db.GetContext(ctx, &p, q, fileID, kind); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("process latest by file: %w", err)
	}
	return &p, nil
}

func (r *ProcessRepo) CreateOrGet(ctx context.Context, fileID, userID uuid.UUID, kind models.ProcessKind) (*models.Process, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const sel = `
		SELECT ` + processColumns + `
		FROM processes
		WHERE file_id = $1 AND kind = $2
		ORDER BY initiated_at DESC
		LIMIT 1
		FOR UPDATE
	`
	var p models.Process
	err = tx.GetContext(ctx, &p, sel, fileID, kind)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return &p, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("process select for update: %w", err)
	}

	p = models.Process{
		ID:          r.idGen(),
		FileID:      fileID,
		UserID:      userID,
		Kind:        kind,
		Status:      models.StatusProcessing,
		InitiatedAt: r.clock(),
	}
	const ins = `
		INSERT INTO processes (id, file_id, user_id, kind, status, initiated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, ins, p.ID, p.FileID, p.UserID, p.Kind, p.Status, p.InitiatedAt); err != nil {
		return nil, fmt.Errorf("process insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &p, nil
}

func (r *ProcessRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Process, error) {
	const q = `
		SELECT ` + processColumns + `
		FROM processes
		WHERE user_id = $1
		ORDER BY initiated_at DESC
	`

	var out []models.Process
	if err := r.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, fmt.Errorf("process list by user: %w", err)
	}
	return out, nil
}

// UpdateStatus loads the row for update, validates the transition and
// stamps completion time and duration on a transition into a terminal
// status. Duration is computed from the stored initiation time with the
// repo clock, so it stays deterministic under test.
func (r *ProcessRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, message string) (*models.Process, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const sel = `SELECT ` + processColumns + ` FROM processes WHERE id = $1 FOR UPDATE`
	var p models.Process
	if err := tx.GetContext(ctx, &p, sel, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("process select for update: %w", err)
	}

	if err := domain.ValidateTransition(p.Status, status); err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		// Replayed terminal update: leave the frozen row untouched.
		return &p, nil
	}

	p.Status = status
	if message != "" {
		p.ErrorMessage = message
	}
	if status.Terminal() {
		now := r.clock()
		p.CompletedAt = &now
		d := now.Sub(p.InitiatedAt).Milliseconds()
		p.DurationMS = &d
	}

	const upd = `
		UPDATE processes
		SET status = $2, error_message = $3, completed_at = $4, duration_ms = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, upd, p.ID, p.Status, p.ErrorMessage, p.CompletedAt, p.DurationMS); err != nil {
		return nil, fmt.Errorf("process update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &p, nil
}

func (r *ProcessRepo) UpdateResult(ctx context.Context, id uuid.UUID, result json.RawMessage) (*models.Process, error) {
	const q = `
		UPDATE processes
		SET result = $2
		WHERE id = $1
		RETURNING ` + processColumns

	var p models.Process
	if err := r.db.GetContext(ctx, &p, q, id, result); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("process update result: %w", err)
	}
	return &p, nil
}

// WithLock serializes fn per process via a transaction-scoped advisory
// lock. fn runs while the lock is held; the surrounding transaction only
// carries the lock, fn's own statements use their usual connections.
func (r *ProcessRepo) WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, id); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
