// Package audit provides an optional PostgreSQL sink for abuse-report audit
// rows. It is strictly write-only: the relay never reads these rows back, so
// every moderation decision still comes from the in-memory state. Rows give
// moderators a durable trail of who reported whom even after the process
// restarts.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Row is one abuse-report audit record.
type Row struct {
	Target      string // reported connection identity
	Reporter    string // reporting connection identity
	TargetIP    string
	Fingerprint string // target's fingerprint, if identified
	Count       int    // distinct reporters after this report
}

// Store writes audit rows to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection, and applies pending
// schema migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("audit: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("audit: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("audit: migrate up: %w", err)
	}
	return nil
}

// RecordReport inserts one audit row.
func (s *Store) RecordReport(ctx context.Context, row Row) error {
	const query = `
		INSERT INTO report_audit (target, reporter, target_ip, fingerprint, distinct_count)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		row.Target,
		row.Reporter,
		row.TargetIP,
		row.Fingerprint,
		row.Count,
	)
	if err != nil {
		return fmt.Errorf("audit: insert report: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
