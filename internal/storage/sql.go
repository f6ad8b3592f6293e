package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Dialect holds the SQL statements a SQLStore issues against the kv table.
type Dialect struct {
	Name        string
	getQuery    string
	putQuery    string
	insertQuery string
	deleteQuery string
	listQuery   string
}

var SQLiteDialect = Dialect{
	Name:     "sqlite",
	getQuery: `SELECT value FROM kv WHERE key = ?`,
	putQuery: `
INSERT INTO kv (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	insertQuery: `
INSERT INTO kv (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO NOTHING`,
	deleteQuery: `DELETE FROM kv WHERE key = ?`,
	listQuery:   `SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
}

var PostgresDialect = Dialect{
	Name:     "postgres",
	getQuery: `SELECT value FROM kv WHERE key = $1`,
	putQuery: `
INSERT INTO kv (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	insertQuery: `
INSERT INTO kv (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`,
	deleteQuery: `DELETE FROM kv WHERE key = $1`,
	listQuery:   `SELECT key FROM kv WHERE substr(key, 1, length($1)) = $2 ORDER BY key`,
}

// SQLStore keeps keys in a single kv table of a relational database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, s.dialect.getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.putQuery, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) PutIfAbsent(ctx context.Context, key, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.insertQuery, key, value, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert %s rows affected: %w", key, err)
	}
	return affected == 1, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.deleteQuery, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.listQuery, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

var (
	_ Store             = (*SQLStore)(nil)
	_ ConditionalPutter = (*SQLStore)(nil)
)
