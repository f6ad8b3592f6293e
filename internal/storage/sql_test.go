package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exerciseStore(t, NewSQLStore(db, SQLiteDialect))
}

func setupMockStore(t *testing.T, dialect Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewSQLStore(db, dialect), mock
}

func TestSQLStoreGetMapsNoRows(t *testing.T) {
	store, mock := setupMockStore(t, PostgresDialect)

	mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.getQuery)).
		WithArgs("user:ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "user:ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreGetWrapsDriverErrors(t *testing.T) {
	store, mock := setupMockStore(t, PostgresDialect)
	boom := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.getQuery)).
		WithArgs("user:alice").
		WillReturnError(boom)

	_, err := store.Get(context.Background(), "user:alice")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLStorePutIfAbsent(t *testing.T) {
	store, mock := setupMockStore(t, PostgresDialect)

	mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.insertQuery)).
		WithArgs("user:alice", "digest", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.insertQuery)).
		WithArgs("user:alice", "digest", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.PutIfAbsent(context.Background(), "user:alice", "digest")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.PutIfAbsent(context.Background(), "user:alice", "digest")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSQLStoreList(t *testing.T) {
	store, mock := setupMockStore(t, PostgresDialect)

	mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.listQuery)).
		WithArgs("entry:alice:", "entry:alice:").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("entry:alice:1").
			AddRow("entry:alice:2"))

	keys, err := store.List(context.Background(), "entry:alice:")
	require.NoError(t, err)
	assert.Equal(t, []string{"entry:alice:1", "entry:alice:2"}, keys)
}

func TestSQLStoreDeleteError(t *testing.T) {
	store, mock := setupMockStore(t, SQLiteDialect)

	mock.ExpectExec(regexp.QuoteMeta(SQLiteDialect.deleteQuery)).
		WithArgs("entry:alice:1").
		WillReturnError(errors.New("disk I/O error"))

	err := store.Delete(context.Background(), "entry:alice:1")
	assert.ErrorContains(t, err, "delete entry:alice:1")
}

func TestRunMigrationsUsesEmbeddedFS(t *testing.T) {
	called := false
	prev := gooseUp
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		called = true
		assert.Equal(t, ".", dir)
		return nil
	}
	t.Cleanup(func() { gooseUp = prev })

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(context.Background(), db))
	assert.True(t, called)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "")
	assert.ErrorContains(t, err, "dsn is required")
}
