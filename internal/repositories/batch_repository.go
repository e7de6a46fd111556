// Package repositories persists batch records in postgres.
package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lekhaslides/internal/models"
)

var ErrBatchNotFound = errors.New("batch not found")

// MaxErrorLength bounds the stored error text.
const MaxErrorLength = 2000

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type BatchRepository struct {
	db DB
}

func NewBatchRepository(db DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, COALESCE(title,''), status, total, completed, failed_slides, provider,
	input_key, COALESCE(deck_key,''), COALESCE(deck_size,0), COALESCE(error_text,''),
	created_at, started_at, finished_at`

func scanBatch(row pgx.Row) (*models.Batch, error) {
	var b models.Batch
	err := row.Scan(
		&b.ID, &b.Title, &b.Status, &b.Total, &b.Completed, &b.FailedSlides, &b.Provider,
		&b.InputKey, &b.DeckKey, &b.DeckSize, &b.Error,
		&b.CreatedAt, &b.StartedAt, &b.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts b as QUEUED and fills CreatedAt.
func (r *BatchRepository) Create(ctx context.Context, b *models.Batch) error {
	b.Status = models.BatchQueued
	return r.db.QueryRow(ctx, `
		INSERT INTO batches (id, title, status, total, provider, input_key)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, b.ID, nullIfEmpty(b.Title), string(b.Status), b.Total, b.Provider, b.InputKey).Scan(&b.CreatedAt)
}

func (r *BatchRepository) Get(ctx context.Context, id string) (*models.Batch, error) {
	b, err := scanBatch(r.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	return b, err
}

// List returns the newest batches first, optionally filtered by status.
func (r *BatchRepository) List(ctx context.Context, status models.BatchStatus, limit int) ([]models.Batch, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = r.db.Query(ctx, `SELECT `+batchColumns+`
			FROM batches WHERE status=$1
			ORDER BY created_at DESC
			LIMIT $2`, string(status), limit)
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+batchColumns+`
			FROM batches
			ORDER BY created_at DESC
			LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Batch, 0, limit)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BatchRepository) MarkRunning(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE batches
		SET status='RUNNING', started_at=now(), finished_at=NULL, completed=0, error_text=NULL
		WHERE id=$1
	`, id)
}

// UpdateProgress never moves completed backwards.
func (r *BatchRepository) UpdateProgress(ctx context.Context, id string, completed int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE batches SET completed=GREATEST(completed,$2) WHERE id=$1
	`, id, completed)
	return err
}

func (r *BatchRepository) MarkDone(ctx context.Context, id, deckKey string, deckSize int64, failedSlides int) error {
	return r.exec(ctx, `
		UPDATE batches
		SET status='DONE', completed=total, deck_key=$2, deck_size=$3, failed_slides=$4, finished_at=now()
		WHERE id=$1
	`, id, deckKey, deckSize, failedSlides)
}

func (r *BatchRepository) MarkFailed(ctx context.Context, id, msg string) error {
	return r.exec(ctx, `
		UPDATE batches SET status='FAILED', error_text=$2, finished_at=now() WHERE id=$1
	`, id, truncate(msg, MaxErrorLength))
}

func (r *BatchRepository) exec(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
