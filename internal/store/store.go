package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/strata/internal/index"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - No registry
// 1 - strata_entities registry
const currentSchemaVersion = 1

// Store is the column store client for one persistence unit.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db       *sql.DB
	catalog  meta.Catalog
	unit     string
	compiler *querysql.SQLCompiler
	index    *index.Index
	logger   *zap.Logger

	search    bool
	indexOpts []index.Option
}

// Option configures a Store.
type Option func(*Store)

// WithUnit restricts the store to the entities of one persistence unit.
// The default creates tables for every catalog entity.
func WithUnit(unit string) Option {
	return func(s *Store) { s.unit = unit }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSearch enables the search index. Index options are passed through.
func WithSearch(opts ...index.Option) Option {
	return func(s *Store) {
		s.search = true
		s.indexOpts = opts
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and creates entity tables automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, catalog meta.Catalog, opts ...Option) (*Store, error) {
	s := &Store{
		catalog:  catalog,
		compiler: querysql.NewSQLCompiler(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	s.db = db

	if err := s.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create entity tables: %w", err)
	}

	if s.search {
		opts := append([]index.Option{index.WithLogger(s.logger)}, s.indexOpts...)
		x, err := index.New(db, opts...)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.index = x
	}

	s.logger.Debug("store opened",
		zap.String("path", path),
		zap.String("unit", s.unit),
		zap.Bool("search", s.search))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Unit returns the persistence unit the store serves.
func (s *Store) Unit() string {
	return s.unit
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the registry if it doesn't exist and records the
// schema version. This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// createTables creates one table per entity of the unit plus every join
// table they reference, and registers the entities.
func (s *Store) createTables(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tables: %w", err)
	}
	defer tx.Rollback()

	for _, m := range s.catalog.Entities(s.unit) {
		if _, err := tx.ExecContext(ctx, s.compiler.CreateTable(m)); err != nil {
			return fmt.Errorf("create table for %s: %w", m.Class, err)
		}
		for _, r := range m.Relations {
			if !r.ViaJoinTable() {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.compiler.CreateJoinTable(r)); err != nil {
				return fmt.Errorf("create join table %s: %w", r.JoinTable, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO strata_entities (class, table_name, unit) VALUES (?, ?, ?)
			 ON CONFLICT(class) DO UPDATE SET table_name = excluded.table_name, unit = excluded.unit`,
			m.Class, m.Table, m.PersistenceUnit,
		); err != nil {
			return fmt.Errorf("register %s: %w", m.Class, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tables: %w", err)
	}
	return nil
}

// Registered returns the classes recorded in the registry, ordered by class.
func (s *Store) Registered(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT class FROM strata_entities ORDER BY class COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var class string
		if err := rows.Scan(&class); err != nil {
			return nil, fmt.Errorf("scan registry: %w", err)
		}
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry: %w", err)
	}
	return classes, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
