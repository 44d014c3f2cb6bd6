// Package database is the persistence gateway: parameterized statements over a
// single SQLite file, owned by the composition root.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"character-nexus/backend/pkg/config"
	"character-nexus/backend/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotInitialized is returned by every operation on a handle that was never
// opened or has been closed.
var ErrNotInitialized = errors.New("database: not initialized")

// Result reports the effect of a write statement.
type Result struct {
	InsertedID   int64
	RowsAffected int64
}

// Querier runs parameterized statements. Both *DB and the handle passed to a
// Transaction callback implement it.
type Querier interface {
	Execute(ctx context.Context, query string, args ...any) (Result, error)
	FetchOne(ctx context.Context, dest any, query string, args ...any) (bool, error)
	FetchAll(ctx context.Context, dest any, query string, args ...any) error
}

// DB is the process-wide store handle.
type DB struct {
	mu  sync.RWMutex
	gdb *gorm.DB
	log *logger.Logger
}

// Open connects to the SQLite file described by cfg, enables foreign keys and
// applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	log = log.WithComponent("database")

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var gdb *gorm.DB
	var err error
	for i := 0; i < retries; i++ {
		gdb, err = gorm.Open(sqlite.Open(cfg.DSN()), gormConfig)
		if err == nil {
			break
		}

		log.Warn("Failed to open database, retrying", "attempt", i+1, "delay", cfg.RetryDelay.String(), "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database after %d attempts: %w", retries, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	db := &DB{gdb: gdb, log: log}

	if err := db.ensureForeignKeys(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Owner read/write only; the file exists once the first connection is made.
	if err := os.Chmod(cfg.Path, 0o600); err != nil && !os.IsNotExist(err) {
		log.Warn("Could not restrict database file permissions", "path", cfg.Path, "error", err.Error())
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("Database ready", "path", cfg.Path)
	return db, nil
}

func (d *DB) ensureForeignKeys(ctx context.Context) error {
	var enabled int
	if _, err := d.FetchOne(ctx, &enabled, "PRAGMA foreign_keys"); err != nil {
		return fmt.Errorf("read foreign_keys pragma: %w", err)
	}
	if enabled == 1 {
		return nil
	}
	if _, err := d.Execute(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return nil
}

func (d *DB) conn() (*gorm.DB, error) {
	if d == nil {
		return nil, ErrNotInitialized
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.gdb == nil {
		return nil, ErrNotInitialized
	}
	return d.gdb, nil
}

// Execute runs a write statement.
func (d *DB) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	gdb, err := d.conn()
	if err != nil {
		return Result{}, err
	}
	return execute(ctx, gdb, query, args...)
}

// FetchOne scans the first row into dest and reports whether a row matched.
func (d *DB) FetchOne(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	gdb, err := d.conn()
	if err != nil {
		return false, err
	}
	return fetchOne(ctx, gdb, dest, query, args...)
}

// FetchAll scans every row into dest, which must point to a slice.
func (d *DB) FetchAll(ctx context.Context, dest any, query string, args ...any) error {
	gdb, err := d.conn()
	if err != nil {
		return err
	}
	return fetchAll(ctx, gdb, dest, query, args...)
}

// Transaction runs fn atomically. A non-nil error from fn rolls back.
func (d *DB) Transaction(ctx context.Context, fn func(q Querier) error) error {
	gdb, err := d.conn()
	if err != nil {
		return err
	}
	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txQuerier{tx: tx})
	})
}

// Ping checks that the store answers.
func (d *DB) Ping(ctx context.Context) error {
	gdb, err := d.conn()
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool. Calling it more than once is a no-op.
func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.gdb == nil {
		return nil
	}
	sqlDB, err := d.gdb.DB()
	d.gdb = nil
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	if d.log != nil {
		d.log.Info("Database connection closed")
	}
	return nil
}

type txQuerier struct {
	tx *gorm.DB
}

func (q *txQuerier) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	return execute(ctx, q.tx, query, args...)
}

func (q *txQuerier) FetchOne(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	return fetchOne(ctx, q.tx, dest, query, args...)
}

func (q *txQuerier) FetchAll(ctx context.Context, dest any, query string, args ...any) error {
	return fetchAll(ctx, q.tx, dest, query, args...)
}

func execute(ctx context.Context, gdb *gorm.DB, query string, args ...any) (Result, error) {
	res, err := gdb.Statement.ConnPool.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	id, _ := res.LastInsertId()
	n, _ := res.RowsAffected()
	return Result{InsertedID: id, RowsAffected: n}, nil
}

func fetchOne(ctx context.Context, gdb *gorm.DB, dest any, query string, args ...any) (bool, error) {
	res := gdb.WithContext(ctx).Raw(query, args...).Scan(dest)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func fetchAll(ctx context.Context, gdb *gorm.DB, dest any, query string, args ...any) error {
	return gdb.WithContext(ctx).Raw(query, args...).Scan(dest).Error
}
