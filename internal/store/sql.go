package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/vyrodovalexey/todo-sync/internal/model"
)

// Supported store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at DESC, id DESC)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
    id VARCHAR(26) NOT NULL PRIMARY KEY,
    text VARCHAR(2000) NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL DEFAULT 0,
    INDEX idx_items_created (created_at, id)
) CHARACTER SET utf8mb4`,
}

// SQLStore implements Store on top of database/sql. Timestamps are stored as
// unix milliseconds so the same statements run on SQLite and MySQL.
type SQLStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	driver string
	ids    *idSource
	now    func() time.Time
}

// Open returns the Store for the given driver. dsn is ignored for memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite, DriverMySQL:
		return OpenSQL(ctx, driver, dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// OpenSQL opens a SQLite or MySQL database and creates the schema if missing.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var (
		db     *sql.DB
		schema []string
		err    error
	)

	switch driver {
	case DriverSQLite:
		db, err = openSQLite(ctx, dsn)
		schema = sqliteSchema
	case DriverMySQL:
		db, err = openMySQL(ctx, dsn)
		schema = mysqlSchema
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLStore{
		db:     db,
		driver: driver,
		ids:    newIDSource(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func openSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout=5000;"}
	if dsn != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	return db, nil
}

func openMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// Report matched rows so an update that leaves the row unchanged is not a miss.
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}

// Driver returns the database driver name.
func (s *SQLStore) Driver() string {
	return s.driver
}

// List returns all items from the store, newest first.
func (s *SQLStore) List(ctx context.Context) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("list items: %w", ErrClosed)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, created_at, updated_at FROM items ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]model.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	return items, nil
}

// Get retrieves an item by its ID.
func (s *SQLStore) Get(ctx context.Context, id string) (*model.Item, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("get item: %w", ErrClosed)
	}

	return getItem(ctx, s.db, id)
}

// Create adds a new item to the store and returns the created item with generated ID.
func (s *SQLStore) Create(ctx context.Context, item *model.Item) (*model.Item, error) {
	if item == nil {
		return nil, fmt.Errorf("create item: %w", ErrNilItem)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("create item: %w", ErrClosed)
	}

	now := s.now().Truncate(time.Millisecond)
	newItem := model.Item{
		ID:        s.ids.next(now),
		Text:      item.Text,
		CreatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, text, created_at, updated_at) VALUES (?, ?, ?, 0)`,
		newItem.ID, newItem.Text, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	return &newItem, nil
}

// Update modifies an existing item in the store.
func (s *SQLStore) Update(ctx context.Context, id string, item *model.Item) (*model.Item, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if item == nil {
		return nil, fmt.Errorf("update item: %w", ErrNilItem)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("update item: %w", ErrClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET text = ?, updated_at = ? WHERE id = ?`,
		item.Text, s.now().UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}

	updated, err := getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	return updated, nil
}

// Delete removes an item from the store by its ID.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return fmt.Errorf("delete item: %w", ErrClosed)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.driver, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getItem(ctx context.Context, q queryer, id string) (*model.Item, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, text, created_at, updated_at FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func scanItem(row scanner) (*model.Item, error) {
	var (
		item               model.Item
		createdAt, updated int64
	)
	if err := row.Scan(&item.ID, &item.Text, &createdAt, &updated); err != nil {
		return nil, err
	}

	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	if updated > 0 {
		item.UpdatedAt = time.UnixMilli(updated).UTC()
	}
	return &item, nil
}
