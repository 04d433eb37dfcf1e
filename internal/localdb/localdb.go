// Package localdb is the local-first store for Edil-Check.
//
// Each account owns one container (workers, sites, time entries, payments
// and the shared id counter) serialized as a single JSON document in an
// embedded SQLite database. Every mutation loads the container, changes it
// in memory and rewrites the whole row; there are no partial updates.
//
// Workflow:
//  1. Open the database and call InitSchema once.
//  2. Read collections with Workers/Sites/TimeEntries/Payments.
//  3. Mutate with the Add*/Update*/Delete* operations.
//  4. The sync engine and restore use Import*/Replace* to keep the
//     created_at of records that come from the backup server.
package localdb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/edilcheck/edilcheck/internal/types"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrNotFound is returned when an update addresses an id that is not in
	// the collection.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when a new or updated record would share
	// its business key with another record of the same collection.
	ErrDuplicateKey = errors.New("business key already in use")

	// ErrNoAccount is returned when an operation is called with an empty
	// account key.
	ErrNoAccount = errors.New("account is required")
)

//go:embed seed.toml
var seedTOML string

// DB is the per-account container store.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time

	// mu serializes read-modify-write cycles inside this process. Two
	// processes writing the same account still race; the last save wins.
	mu sync.Mutex
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces time.Now for created_at stamps, the seed and the
// "today" of DashboardStats.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open creates a new database connection at the specified path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := localdb.Open(filepath.Join(home, ".edilcheck", "edil.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the containers table. Safe to call repeatedly.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS containers (
		account TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Load returns the container of account. An account that has never been
// written is given the seeded sample container, which is persisted so that
// its created_at stamps stay stable.
func (db *DB) Load(account string) (*types.Container, error) {
	return db.LoadContext(context.Background(), account)
}

// LoadContext loads a container with context support.
func (db *DB) LoadContext(ctx context.Context, account string) (*types.Container, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.load(ctx, account)
}

// Save persists c as the whole state of account.
func (db *DB) Save(account string, c *types.Container) error {
	return db.SaveContext(context.Background(), account, c)
}

// SaveContext saves a container with context support.
func (db *DB) SaveContext(ctx context.Context, account string, c *types.Container) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.save(ctx, account, c)
}

// Accounts lists every account that has a stored container.
func (db *DB) Accounts(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT account FROM containers ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func (db *DB) load(ctx context.Context, account string) (*types.Container, error) {
	if account == "" {
		return nil, ErrNoAccount
	}

	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT data FROM containers WHERE account = ?`, account).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		c, err := db.seed()
		if err != nil {
			return nil, err
		}
		if err := db.save(ctx, account, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load container for %s: %w", account, err)
	}

	var c types.Container
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to parse container for %s: %w", account, err)
	}
	c.Normalize()
	return &c, nil
}

func (db *DB) save(ctx context.Context, account string, c *types.Container) error {
	if account == "" {
		return ErrNoAccount
	}

	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal container: %w", err)
	}

	query := `
	INSERT INTO containers (account, data, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(account) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`

	_, err = db.conn.ExecContext(ctx, query, account, string(data), db.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save container for %s: %w", account, err)
	}
	return nil
}

// mutate runs fn against the freshly loaded container and saves the result
// unless fn fails.
func (db *DB) mutate(ctx context.Context, account string, fn func(c *types.Container) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, err := db.load(ctx, account)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return db.save(ctx, account, c)
}

// Mutate runs fn against the container of account under the store lock and
// saves the result. Nothing is written when fn returns an error.
func (db *DB) Mutate(ctx context.Context, account string, fn func(c *types.Container) error) error {
	return db.mutate(ctx, account, fn)
}

// view runs fn against the loaded container without saving.
func (db *DB) view(ctx context.Context, account string, fn func(c *types.Container)) error {
	c, err := db.LoadContext(ctx, account)
	if err != nil {
		return err
	}
	fn(c)
	return nil
}

// seed decodes the embedded sample container and stamps it with the
// current time.
func (db *DB) seed() (*types.Container, error) {
	var c types.Container
	if _, err := toml.Decode(seedTOML, &c); err != nil {
		return nil, fmt.Errorf("failed to decode seed data: %w", err)
	}

	now := db.now()
	today := now.Format(types.DateLayout)
	year, week := now.ISOWeek()

	for i := range c.Workers {
		c.Workers[i].CreatedAt = now
	}
	for i := range c.Sites {
		c.Sites[i].CreatedAt = now
	}
	for i := range c.TimeEntries {
		if c.TimeEntries[i].Date == "" {
			c.TimeEntries[i].Date = today
		}
		c.TimeEntries[i].CreatedAt = now
	}
	for i := range c.Payments {
		if c.Payments[i].Week == "" {
			c.Payments[i].Week = fmt.Sprintf("%d-W%02d", year, week)
		}
		c.Payments[i].CreatedAt = now
	}

	c.Normalize()
	return &c, nil
}

// DashboardStats returns the summary counters of account. Today's hours
// compare entry dates with the local calendar date.
func (db *DB) DashboardStats(ctx context.Context, account string) (*types.Stats, error) {
	var stats types.Stats
	err := db.view(ctx, account, func(c *types.Container) {
		stats = c.Stats(db.now().Format(types.DateLayout))
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

func duplicateKey(kind, key string, owner int64) error {
	return fmt.Errorf("%s %q already used by id %d: %w", kind, key, owner, ErrDuplicateKey)
}
