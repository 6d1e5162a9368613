// File path: internal/sqlite/store.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = model.ErrNotFound

// Store wraps a pooled sqlx.DB connection to the triage database.
type Store struct {
	db *sqlx.DB
	q  *Queries
}

// OpenWithConfig opens the database described by cfg and migrates the schema.
func OpenWithConfig(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	// Writers take the lock up front so read-then-write transactions never
	// fail on upgrade.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(%s)&_txlock=immediate", abs, busy, cfg.JournalMode)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &Store{db: db, q: &Queries{ext: db}}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sqlx.DB for advanced callers.
func (s *Store) DB() *sqlx.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Q returns queries bound to the connection pool (autocommit).
func (s *Store) Q() *Queries {
	if s == nil {
		return nil
	}
	return s.q
}

// WithTx runs fn inside a single transaction. The transaction is rolled back
// when fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Queries{ext: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// Queries executes statements against either the pool or a transaction.
type Queries struct {
	ext sqlx.ExtContext
}

func (q *Queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if q == nil || q.ext == nil {
		return errors.New("sqlite store not initialised")
	}
	if err := sqlx.GetContext(ctx, q.ext, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (q *Queries) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if q == nil || q.ext == nil {
		return errors.New("sqlite store not initialised")
	}
	return sqlx.SelectContext(ctx, q.ext, dest, query, args...)
}

func (q *Queries) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if q == nil || q.ext == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	return q.ext.ExecContext(ctx, query, args...)
}

func (q *Queries) namedExec(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	if q == nil || q.ext == nil {
		return nil, errors.New("sqlite store not initialised")
	}
	return sqlx.NamedExecContext(ctx, q.ext, query, arg)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS investigations (
                id INTEGER PRIMARY KEY,
                customer_name TEXT,
                classification TEXT,
                connector_name TEXT,
                product_area TEXT,
                priority TEXT,
                suggested_priority TEXT,
                status TEXT NOT NULL,
                current_checkpoint TEXT,
                agent_mode TEXT NOT NULL DEFAULT 'team',
                current_version_id INTEGER,
                anchor_version_id INTEGER,
                current_run_number INTEGER NOT NULL DEFAULT 1,
                has_new_reply INTEGER NOT NULL DEFAULT 0,
                new_reply_summary TEXT,
                last_customer_message_at DATETIME,
                last_response_check_at DATETIME,
                error_message TEXT,
                error_type TEXT,
                output_path TEXT NOT NULL DEFAULT '',
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL,
                resolved_at DATETIME
        );`,
	`CREATE TABLE IF NOT EXISTS investigation_runs (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                investigation_id INTEGER NOT NULL,
                run_number INTEGER NOT NULL,
                trigger_type TEXT NOT NULL,
                trigger_summary TEXT,
                status TEXT NOT NULL DEFAULT 'running',
                current_checkpoint TEXT,
                created_at DATETIME NOT NULL,
                completed_at DATETIME,
                FOREIGN KEY(investigation_id) REFERENCES investigations(id),
                UNIQUE(investigation_id, run_number)
        );`,
	`CREATE TABLE IF NOT EXISTS investigation_versions (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                investigation_id INTEGER NOT NULL,
                run_number INTEGER NOT NULL DEFAULT 1,
                version_number INTEGER NOT NULL,
                label TEXT NOT NULL DEFAULT '',
                checkpoint TEXT,
                snapshot_investigation TEXT NOT NULL,
                snapshot_files TEXT NOT NULL,
                diff_summary TEXT NOT NULL DEFAULT '',
                created_by TEXT NOT NULL DEFAULT 'system',
                created_at DATETIME NOT NULL,
                FOREIGN KEY(investigation_id) REFERENCES investigations(id),
                UNIQUE(investigation_id, version_number)
        );`,
	`CREATE TABLE IF NOT EXISTS conversation_items (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                investigation_id INTEGER NOT NULL,
                run_number INTEGER NOT NULL DEFAULT 1,
                type TEXT NOT NULL,
                phase TEXT,
                actor_name TEXT,
                actor_role TEXT,
                content TEXT NOT NULL DEFAULT '',
                content_preview TEXT NOT NULL DEFAULT '',
                metadata TEXT,
                version_id INTEGER,
                is_collapsed INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL,
                FOREIGN KEY(investigation_id) REFERENCES investigations(id)
        );`,
	`CREATE TABLE IF NOT EXISTS ticket_responses (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                investigation_id INTEGER NOT NULL,
                pylon_message_id TEXT,
                sequence_number INTEGER NOT NULL,
                actor_role TEXT NOT NULL,
                actor_name TEXT,
                content TEXT NOT NULL DEFAULT '',
                created_at DATETIME,
                fetched_at DATETIME NOT NULL,
                triggered_reanalysis INTEGER NOT NULL DEFAULT 0,
                FOREIGN KEY(investigation_id) REFERENCES investigations(id),
                UNIQUE(investigation_id, sequence_number)
        );`,
	`CREATE TABLE IF NOT EXISTS debounce_timers (
                investigation_id INTEGER PRIMARY KEY,
                pending_messages INTEGER NOT NULL DEFAULT 0,
                started_at DATETIME NOT NULL,
                due_at DATETIME NOT NULL,
                FOREIGN KEY(investigation_id) REFERENCES investigations(id)
        );`,
	`CREATE TABLE IF NOT EXISTS phase_tasks (
                id TEXT PRIMARY KEY,
                investigation_id INTEGER NOT NULL,
                run_number INTEGER NOT NULL,
                phase TEXT NOT NULL,
                status TEXT NOT NULL,
                error TEXT,
                created_at DATETIME NOT NULL,
                started_at DATETIME,
                finished_at DATETIME,
                FOREIGN KEY(investigation_id) REFERENCES investigations(id)
        );`,
	`CREATE TABLE IF NOT EXISTS feature_requests (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                title TEXT NOT NULL,
                description TEXT NOT NULL,
                priority TEXT NOT NULL DEFAULT 'P3',
                status TEXT NOT NULL DEFAULT 'new',
                category TEXT NOT NULL DEFAULT 'Other',
                requester TEXT NOT NULL DEFAULT 'TSE',
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_investigations_status ON investigations(status);`,
	`CREATE INDEX IF NOT EXISTS idx_investigations_updated ON investigations(updated_at);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_investigation ON investigation_runs(investigation_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_run_created ON conversation_items(investigation_id, run_number, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_responses_pending ON ticket_responses(investigation_id, triggered_reanalysis);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_investigation_status ON phase_tasks(investigation_id, status);`,
}
