// Package store persists the vehicle catalog in SQLite.
//
// Reads go through a connection pool; writes are serialized by a mutex so the
// WAL journal lets readers continue while a write is in progress.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/WessleyAI/carfinder/engine/store/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// Sentinel errors.
var (
	ErrNotFound     = errors.New("store: vehicle not found")
	ErrDuplicateVIN = errors.New("store: duplicate VIN")
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the SQLite-backed vehicle catalog.
type Store struct {
	db      *sqlx.DB
	writeMu sync.Mutex
	logger  *slog.Logger
}

// Open connects to the database at path, creating parent directories and
// applying migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create dir: %w", err)
			}
		}
	}

	db, err := sqlx.Connect("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
	}
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := applyMigrations(db.DB); err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.Error("close after migration failure", "err", cerr)
		}
		return nil, err
	}
	logger.Info("store opened", "path", path)
	return &Store{db: db, logger: logger.With("component", "store")}, nil
}

func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	// m.Close would also close db, so only the source is released.
	defer src.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx is a write transaction. It is only valid inside WithTx.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn in a single write transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.inTx(ctx, func(tx *sqlx.Tx) error { return fn(&Tx{tx: tx}) })
}

// inTx runs fn in a transaction. Callers hold writeMu.
func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "rollback failed", "err", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// write serializes a single-statement write.
func (s *Store) write(ctx context.Context, fn func(sqlx.ExtContext) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn(s.db)
}
