package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/stackgen/internal/app/migrate"
	"github.com/splax/stackgen/internal/domain"
	"github.com/splax/stackgen/internal/repository"
)

func TestMapError(t *testing.T) {
	other := errors.New("connection reset")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, repository.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), repository.ErrNotFound},
		{"invalid uuid", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}, repository.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, nil},
		{"other", other, other},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.in)
			if tc.want == nil {
				if errors.Is(got, repository.ErrNotFound) || got != tc.in {
					t.Fatalf("expected error to pass through, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

type rowStub struct {
	values []any
	err    error
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan expects %d columns, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return fmt.Errorf("unexpected destination %T", d)
		}
	}
	return nil
}

func TestScanHistoryColumnOrder(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row := rowStub{values: []any{
		"id-1", "alice", "octo", "app", "dockerfile", "FROM node", "success",
		[]byte("sealed"), created, created.Add(time.Minute),
	}}
	record, err := scanHistory(row)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if record.ID != "id-1" || record.Owner != "octo" || record.Repo != "app" || record.Status != "success" {
		t.Fatalf("unexpected record %+v", record)
	}
	if string(record.SealedToken) != "sealed" || !record.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("unexpected trailing columns %+v", record)
	}
	if _, err := scanHistory(rowStub{err: pgx.ErrNoRows}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected scan error to propagate, got %v", err)
	}
}

// newTestRepository connects to STACKGEN_TEST_DATABASE_URL and applies the
// embedded migrations. Rows are scoped to a fresh owner.
func newTestRepository(t *testing.T) (*Repository, string) {
	t.Helper()
	dsn := os.Getenv("STACKGEN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STACKGEN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	fsys, _, err := migrate.Source("")
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	runner, err := migrate.Open(ctx, dsn, fsys, nil)
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	defer runner.Close()
	if err := runner.Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	owner := "owner-" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM history WHERE owner = $1`, owner)
		pool.Close()
	})
	return New(pool), owner
}

func insert(t *testing.T, repo *Repository, owner, name, command string, at time.Time) *domain.HistoryRecord {
	t.Helper()
	record := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		Username:  "stackgen",
		Owner:     owner,
		Repo:      name,
		Command:   command,
		Output:    "out",
		Status:    domain.HistoryStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := repo.CreateHistory(context.Background(), record); err != nil {
		t.Fatalf("create: %v", err)
	}
	return record
}

func TestHistoryListFiltersAndOrders(t *testing.T) {
	repo, owner := newTestRepository(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	insert(t, repo, owner, "app", "first", base)
	insert(t, repo, owner, "web", "second", base.Add(time.Second))
	latest := insert(t, repo, owner, "app", "third", base.Add(2*time.Second))

	all, err := repo.ListHistory(ctx, domain.HistoryFilter{Owner: owner})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != latest.ID {
		t.Fatalf("expected 3 records newest first, got %+v", all)
	}
	apps, err := repo.ListHistory(ctx, domain.HistoryFilter{Owner: owner, Repo: "app", Limit: 1})
	if err != nil {
		t.Fatalf("list app: %v", err)
	}
	if len(apps) != 1 || apps[0].Command != "third" {
		t.Fatalf("unexpected filtered records %+v", apps)
	}
}

func TestHistoryUpdateKeepsUnsetFields(t *testing.T) {
	repo, owner := newTestRepository(t)
	ctx := context.Background()
	record := insert(t, repo, owner, "app", "dockerfile", time.Now().UTC())

	status := domain.HistoryStatusSuccess
	updated, err := repo.UpdateHistory(ctx, domain.HistoryUpdate{ID: record.ID, Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != status || updated.Command != "dockerfile" || updated.Output != "out" {
		t.Fatalf("unexpected updated record %+v", updated)
	}
	if _, err := repo.UpdateHistory(ctx, domain.HistoryUpdate{ID: uuid.NewString(), Status: &status}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestHistoryLookupsTreatMalformedIDAsMissing(t *testing.T) {
	repo := New(nil)
	ctx := context.Background()
	if _, err := repo.GetHistory(ctx, "not-a-uuid"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.DeleteHistory(ctx, "not-a-uuid"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
	status := domain.HistoryStatusFailed
	if _, err := repo.UpdateHistory(ctx, domain.HistoryUpdate{ID: "42", Status: &status}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
}

func TestValidID(t *testing.T) {
	if !validID(uuid.NewString()) {
		t.Fatalf("expected generated uuid to be valid")
	}
	for _, id := range []string{"", "42", "not-a-uuid", "Command"} {
		if validID(id) {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
}
