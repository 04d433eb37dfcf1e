package backupserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/tursodatabase/go-libsql"
)

// Record kinds, used as the records.kind column and as container keys.
const (
	KindWorkers     = "workers"
	KindSites       = "sites"
	KindTimeEntries = "timeEntries"
	KindPayments    = "payments"
)

var (
	ErrEmailTaken     = errors.New("email already registered")
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("record not found")
)

// Store persists users and per-account records. Each record is kept as its
// JSON payload; created_at is stored alongside so clients can compare it.
type Store struct {
	db     *sql.DB
	driver string
}

// driverFor picks libsql for remote Turso/libsql URLs and the embedded
// SQLite driver for everything else.
func driverFor(dsn string) (driver, conn string) {
	switch {
	case strings.HasPrefix(dsn, "libsql://"),
		strings.HasPrefix(dsn, "http://"),
		strings.HasPrefix(dsn, "https://"):
		return "libsql", dsn
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite3", dsn
	default:
		return "sqlite3", "file:" + dsn
	}
}

// OpenStore opens the server database. A plain path or file: DSN is an
// embedded SQLite file; libsql:// and http(s):// DSNs go to a libsql server.
func OpenStore(dsn string) (*Store, error) {
	driver, conn := driverFor(dsn)

	if driver == "sqlite3" {
		path := strings.TrimPrefix(conn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates the tables. Safe to call repeatedly.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			account TEXT NOT NULL,
			kind TEXT NOT NULL,
			id INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (account, kind, id)
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			account TEXT PRIMARY KEY,
			next_id INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// CreateUser inserts a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (*types.User, error) {
	now := time.Now().UTC()

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		email, name, passwordHash, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return &types.User{ID: id, Email: email, Name: name, CreatedAt: now}, nil
}

// UserByEmail returns the user and its password hash.
func (s *Store) UserByEmail(ctx context.Context, email string) (*types.User, string, error) {
	var (
		u       types.User
		hash    string
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrUserNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &u, hash, nil
}

// List returns the payloads of one kind ordered by id.
func (s *Store) List(ctx context.Context, account, kind string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE account = ? AND kind = ? ORDER BY id`, account, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		out = append(out, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", kind, err)
	}
	return out, nil
}

// Get returns one payload.
func (s *Store) Get(ctx context.Context, account, kind string, id int64) (json.RawMessage, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE account = ? AND kind = ? AND id = ?`, account, kind, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", kind, id, err)
	}
	return json.RawMessage(payload), nil
}

// Insert allocates an id from the account counter, lets build produce the
// payload for it, and stores the record.
func (s *Store) Insert(ctx context.Context, account, kind string, createdAt time.Time, build func(id int64) ([]byte, error)) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := nextID(ctx, tx, account)
	if err != nil {
		return 0, err
	}
	payload, err := build(id)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (account, kind, id, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		account, kind, id, createdAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// Update overwrites one record.
func (s *Store) Update(ctx context.Context, account, kind string, id int64, createdAt time.Time, payload []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET created_at = ?, payload = ? WHERE account = ? AND kind = ? AND id = ?`,
		createdAt.UTC().Format(time.RFC3339Nano), string(payload), account, kind, id)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Delete removes one record. Workers take their time entries and payments
// with them; sites take their time entries.
func (s *Store) Delete(ctx context.Context, account, kind string, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE account = ? AND kind = ? AND id = ?`, account, kind, id); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	}

	switch kind {
	case KindWorkers:
		_, err = tx.ExecContext(ctx,
			`DELETE FROM records WHERE account = ? AND kind IN (?, ?) AND json_extract(payload, '$.workerId') = ?`,
			account, KindTimeEntries, KindPayments, id)
	case KindSites:
		_, err = tx.ExecContext(ctx,
			`DELETE FROM records WHERE account = ? AND kind = ? AND json_extract(payload, '$.siteId') = ?`,
			account, KindTimeEntries, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete dependents of %s %d: %w", kind, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Container assembles every record of account.
func (s *Store) Container(ctx context.Context, account string) (*types.Container, error) {
	var c types.Container
	targets := []struct {
		kind string
		dst  any
	}{
		{KindWorkers, &c.Workers},
		{KindSites, &c.Sites},
		{KindTimeEntries, &c.TimeEntries},
		{KindPayments, &c.Payments},
	}
	for _, t := range targets {
		payloads, err := s.List(ctx, account, t.kind)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(payloads)
		if err != nil {
			return nil, fmt.Errorf("failed to assemble %s: %w", t.kind, err)
		}
		if err := json.Unmarshal(data, t.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", t.kind, err)
		}
	}

	err := s.db.QueryRowContext(ctx, `SELECT next_id FROM counters WHERE account = ?`, account).Scan(&c.NextID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load counter: %w", err)
	}

	c.Normalize()
	return &c, nil
}

// ReplaceContainer discards every record of account and stores c instead,
// ids included.
func (s *Store) ReplaceContainer(ctx context.Context, account string, c *types.Container) error {
	c.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE account = ?`, account); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	insert := func(kind string, id int64, createdAt time.Time, rec any) error {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode %s %d: %w", kind, id, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (account, kind, id, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
			account, kind, id, createdAt.UTC().Format(time.RFC3339Nano), string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert %s %d: %w", kind, id, err)
		}
		return nil
	}

	for _, w := range c.Workers {
		if err := insert(KindWorkers, w.ID, w.CreatedAt, w); err != nil {
			return err
		}
	}
	for _, st := range c.Sites {
		if err := insert(KindSites, st.ID, st.CreatedAt, st); err != nil {
			return err
		}
	}
	for _, e := range c.TimeEntries {
		if err := insert(KindTimeEntries, e.ID, e.CreatedAt, e); err != nil {
			return err
		}
	}
	for _, p := range c.Payments {
		if err := insert(KindPayments, p.ID, p.CreatedAt, p); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO counters (account, next_id) VALUES (?, ?)
		 ON CONFLICT(account) DO UPDATE SET next_id = excluded.next_id`,
		account, c.NextID); err != nil {
		return fmt.Errorf("failed to store counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nextID returns the next id of account and advances the counter. The
// counter starts above any id already stored.
func nextID(ctx context.Context, tx *sql.Tx, account string) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `SELECT next_id FROM counters WHERE account = ?`, account).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		var maxID sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(id) FROM records WHERE account = ?`, account).Scan(&maxID); err != nil {
			return 0, fmt.Errorf("failed to read max id: %w", err)
		}
		next = maxID.Int64 + 1
	} else if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO counters (account, next_id) VALUES (?, ?)
		 ON CONFLICT(account) DO UPDATE SET next_id = excluded.next_id`,
		account, next+1); err != nil {
		return 0, fmt.Errorf("failed to advance counter: %w", err)
	}
	return next, nil
}
