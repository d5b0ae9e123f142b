package checkpoint

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps completed jobs in the exportsched_checkpoints table,
// created by the embedded migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Completed(ctx context.Context, runKey string) ([]string, error) {
	if err := checkKey(runKey); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id FROM exportsched_checkpoints WHERE run_key = $1 ORDER BY job_id`, runKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to read checkpoint: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, runKey, id string) error {
	if err := checkKey(runKey); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exportsched_checkpoints (run_key, job_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		runKey, id)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context, runKey string) error {
	if err := checkKey(runKey); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exportsched_checkpoints WHERE run_key = $1`, runKey); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
