package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/splax/stackgen/db"
)

const commandTimeout = time.Minute

// Runner applies and inspects goose migrations for the history schema.
type Runner struct {
	db       *sql.DB
	provider *goose.Provider
	log      *slog.Logger
}

// Source returns the migrations directory when it exists on disk, otherwise
// the copy embedded in the binary. The second value describes the choice.
func Source(dir string) (fs.FS, string, error) {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir), dir, nil
		}
	}
	sub, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		return nil, "", fmt.Errorf("embedded migrations: %w", err)
	}
	return sub, "embedded", nil
}

// Open connects to dsn and prepares a goose provider over migrations.
func Open(ctx context.Context, dsn string, migrations fs.FS, log *slog.Logger) (*Runner, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	if migrations == nil {
		return nil, errors.New("nil migrations source")
	}
	if log == nil {
		log = slog.Default()
	}

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, conn, migrations)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure goose: %w", err)
	}
	return &Runner{db: conn, provider: provider, log: log}, nil
}

// Up applies pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	results, err := r.provider.Up(ctx)
	r.logResults("applied", results)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	r.log.Info("migrations up to date", "applied", len(results))
	return nil
}

// Status logs every known migration with its state.
func (r *Runner) Status(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	for _, st := range statuses {
		attrs := []any{"version", st.Source.Version, "path", st.Source.Path, "state", string(st.State)}
		if !st.AppliedAt.IsZero() {
			attrs = append(attrs, "applied_at", st.AppliedAt.Format(time.RFC3339))
		}
		r.log.Info("migration", attrs...)
	}
	return nil
}

// Down rolls back the latest migration, or everything above target when
// target is positive.
func (r *Runner) Down(ctx context.Context, target int64) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if target > 0 {
		results, err := r.provider.DownTo(ctx, target)
		r.logResults("rolled back", results)
		if err != nil {
			return fmt.Errorf("rollback to version %d: %w", target, err)
		}
		return nil
	}
	result, err := r.provider.Down(ctx)
	if result != nil {
		r.logResults("rolled back", []*goose.MigrationResult{result})
	}
	if err != nil {
		return fmt.Errorf("rollback latest migration: %w", err)
	}
	return nil
}

// Version returns the current database schema version.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	return r.provider.GetDBVersion(ctx)
}

// Close releases the underlying connection.
func (r *Runner) Close() error {
	return r.db.Close()
}

func (r *Runner) logResults(verb string, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		r.log.Info("migration "+verb, "version", res.Source.Version, "path", res.Source.Path, "duration", res.Duration)
	}
}
