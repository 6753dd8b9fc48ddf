package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/stackgen/internal/domain"
	"github.com/splax/stackgen/internal/repository"
)

const historyColumns = `id, username, owner, repo, command, output, status, sealed_token, created_at, updated_at`

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.HistoryRepository = (*Repository)(nil)

// CreateHistory inserts a history record.
func (r *Repository) CreateHistory(ctx context.Context, record *domain.HistoryRecord) error {
	const query = `INSERT INTO history (` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		record.ID, record.Username, record.Owner, record.Repo, record.Command,
		record.Output, record.Status, record.SealedToken, record.CreatedAt, record.UpdatedAt)
	return err
}

// GetHistory fetches a record by identifier.
func (r *Repository) GetHistory(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	const query = `SELECT ` + historyColumns + ` FROM history WHERE id = $1`
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	record, err := scanHistory(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}

// ListHistory returns the most recent records first.
func (r *Repository) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + historyColumns + ` FROM history
		WHERE ($1 = '' OR owner = $1) AND ($2 = '' OR repo = $2)
		ORDER BY created_at DESC, id DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, filter.Owner, filter.Repo, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.HistoryRecord, 0, limit)
	for rows.Next() {
		record, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// UpdateHistory applies the non-nil fields of update and returns the stored row.
func (r *Repository) UpdateHistory(ctx context.Context, update domain.HistoryUpdate) (*domain.HistoryRecord, error) {
	const query = `UPDATE history SET
			command = COALESCE($2, command),
			output = COALESCE($3, output),
			status = COALESCE($4, status),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + historyColumns
	if !validID(update.ID) {
		return nil, repository.ErrNotFound
	}
	record, err := scanHistory(r.pool.QueryRow(ctx, query, update.ID, update.Command, update.Output, update.Status))
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}

// DeleteHistory removes a record and returns it as it was stored.
func (r *Repository) DeleteHistory(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	const query = `DELETE FROM history WHERE id = $1 RETURNING ` + historyColumns
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	record, err := scanHistory(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}

func scanHistory(row pgx.Row) (*domain.HistoryRecord, error) {
	var h domain.HistoryRecord
	if err := row.Scan(&h.ID, &h.Username, &h.Owner, &h.Repo, &h.Command, &h.Output, &h.Status, &h.SealedToken, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

// validID reports whether id can match the uuid primary key.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// mapError folds missing rows and malformed uuid lookups into ErrNotFound.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return repository.ErrNotFound
	}
	return err
}
