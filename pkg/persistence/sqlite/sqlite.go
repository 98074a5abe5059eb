// Package sqlite provides single-node SQLite persistence for collaboration requests and batches.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/dukex/trackcollab/pkg/persistence/sqlbase"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Persistence implements the persistence layer on an embedded SQLite database.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	requestRepo *RequestRepository
	batchRepo   *BatchRepository
}

// NewPersistence opens (creating if needed) the database at path and runs migrations.
// The path may carry a sqlite:// prefix.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string) (*Persistence, error) {
	cleanPath := strings.TrimPrefix(path, "sqlite://")
	if strings.TrimSpace(cleanPath) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := "file:" + filepath.Clean(cleanPath) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One writer at a time; SQLite serializes writes anyway and this keeps guarded
	// updates free of SQLITE_BUSY retries.
	database.SetMaxOpenConns(1)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	logger = logger.With("module", "sqlite")

	err = sqlbase.NewMigrationManager(logger, database, sqlbase.SQLite, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		requestRepo: NewRequestRepository(database, logger),
		batchRepo:   NewBatchRepository(database),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p == nil || p.db == nil {
		return nil
	}

	return p.db.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	return nil
}

func (p *Persistence) RequestRepository() persistence.RequestRepository {
	return p.requestRepo
}

func (p *Persistence) BatchRepository() persistence.BatchRepository {
	return p.batchRepo
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	default:
		return false
	}
}

// isKeyViolation reports a duplicate id on table. A TEXT PRIMARY KEY on a rowid table is
// enforced by an automatic unique index, so SQLite reports it as a UNIQUE failure naming
// the id column rather than as a primary key failure.
func isKeyViolation(err error, table string) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return strings.Contains(sqliteErr.Error(), "constraint failed: "+table+".id (")
	default:
		return false
	}
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
