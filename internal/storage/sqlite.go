package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER
);
CREATE TABLE IF NOT EXISTS kv_hash (
	key   TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (key, field)
);
CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at) WHERE expires_at IS NOT NULL;
`

// SQLite is a durable Adapter backed by a single SQLite database file.
// Expiry is stored as a unix timestamp and enforced on read; the
// maintenance sweeper reclaims expired rows via PurgeExpired.
type SQLite struct {
	conn *sql.DB
	path string
}

var _ Adapter = (*SQLite)(nil)
var _ Purger = (*SQLite)(nil)

// NewSQLite opens (creating if necessary) the key-value database at path.
func NewSQLite(path string) (*SQLite, error) {
	// file: URIs are used for in-memory databases in tests - skip filepath
	// operations for those.
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = absPath
	}

	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value database: %w", err)
	}

	// SQLite handles one writer at a time; a small pool avoids lock churn.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping key-value database: %w", err)
	}

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize key-value schema: %w", err)
	}

	return &SQLite{conn: conn, path: path}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Save(key, value string) error {
	_, err := s.conn.Exec(
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, NULL)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = NULL`,
		key, value,
	)
	if err != nil {
		return &BackendError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (s *SQLite) SaveWithTTL(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Save(key, value)
	}
	expiresAt := time.Now().Add(ttl).Unix()
	_, err := s.conn.Exec(
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return &BackendError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow(
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &BackendError{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (s *SQLite) Delete(key string) (bool, error) {
	res, err := s.conn.Exec(
		`DELETE FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().Unix(),
	)
	if err != nil {
		return false, &BackendError{Op: "delete", Key: key, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &BackendError{Op: "delete", Key: key, Err: err}
	}
	return affected > 0, nil
}

func (s *SQLite) Exists(key string) (bool, error) {
	var one int
	err := s.conn.QueryRow(
		`SELECT 1 FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().Unix(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &BackendError{Op: "exists", Key: key, Err: err}
	}
	return true, nil
}

func (s *SQLite) Keys(pattern string) ([]string, error) {
	like := patternToLike(pattern)

	rows, err := s.conn.Query(
		`SELECT key FROM kv WHERE key LIKE ? ESCAPE '\' AND (expires_at IS NULL OR expires_at > ?)
		 UNION SELECT DISTINCT key FROM kv_hash WHERE key LIKE ? ESCAPE '\'
		 ORDER BY key`,
		like, time.Now().Unix(), like,
	)
	if err != nil {
		return nil, &BackendError{Op: "keys", Key: pattern, Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &BackendError{Op: "keys", Key: pattern, Err: err}
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendError{Op: "keys", Key: pattern, Err: err}
	}
	return keys, nil
}

func (s *SQLite) SaveHash(key string, fields map[string]string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return &BackendError{Op: "save_hash", Key: key, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO kv_hash (key, field, value) VALUES (?, ?, ?)
		 ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
	)
	if err != nil {
		return &BackendError{Op: "save_hash", Key: key, Err: err}
	}
	defer stmt.Close()

	for field, value := range fields {
		if _, err := stmt.Exec(key, field, value); err != nil {
			return &BackendError{Op: "save_hash", Key: key, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &BackendError{Op: "save_hash", Key: key, Err: err}
	}
	return nil
}

func (s *SQLite) GetHash(key string) (map[string]string, error) {
	rows, err := s.conn.Query(`SELECT field, value FROM kv_hash WHERE key = ?`, key)
	if err != nil {
		return nil, &BackendError{Op: "get_hash", Key: key, Err: err}
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, &BackendError{Op: "get_hash", Key: key, Err: err}
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendError{Op: "get_hash", Key: key, Err: err}
	}
	return out, nil
}

func (s *SQLite) DeleteHash(key string) (bool, error) {
	res, err := s.conn.Exec(`DELETE FROM kv_hash WHERE key = ?`, key)
	if err != nil {
		return false, &BackendError{Op: "delete_hash", Key: key, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &BackendError{Op: "delete_hash", Key: key, Err: err}
	}
	return affected > 0, nil
}

// PurgeExpired removes rows whose expiry has passed.
func (s *SQLite) PurgeExpired(now time.Time) (int, error) {
	res, err := s.conn.Exec(
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		now.Unix(),
	)
	if err != nil {
		return 0, &BackendError{Op: "purge", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &BackendError{Op: "purge", Err: err}
	}
	return int(affected), nil
}

// patternToLike converts the trailing-glob pattern to a LIKE expression,
// escaping LIKE metacharacters in the literal part.
func patternToLike(pattern string) string {
	prefix, hasGlob := strings.CutSuffix(pattern, "*")
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	if hasGlob {
		return escaped + "%"
	}
	return escaped
}
