package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := NewDatabase(dbPath, quietLogger())
	require.NoError(t, err)
	defer db.Close()

	t.Run("MissingKey", func(t *testing.T) {
		v, ok, err := db.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, db.Set(ctx, "tracks", []byte(`[{"id":"a"}]`)))
		v, ok, err := db.Get(ctx, "tracks")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `[{"id":"a"}]`, string(v))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, db.Set(ctx, "tracks", []byte(`[]`)))
		v, _, err := db.Get(ctx, "tracks")
		require.NoError(t, err)
		assert.Equal(t, "[]", string(v))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.Delete(ctx, "tracks"))
		_, ok, err := db.Get(ctx, "tracks")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, db.Ping(ctx))
	})
}

func TestDatabaseReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDatabase(dbPath, quietLogger())
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, "history", []byte(`[1,2,3]`)))
	require.NoError(t, db.Close())

	db, err = NewDatabase(dbPath, quietLogger())
	require.NoError(t, err)
	defer db.Close()

	v, ok, err := db.Get(ctx, "history")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[1,2,3]", string(v))
}

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kv").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("SELECT value FROM kv WHERE key")
	mock.ExpectPrepare("INSERT INTO kv")
	mock.ExpectPrepare("DELETE FROM kv WHERE key")

	db, err := New(conn, quietLogger())
	require.NoError(t, err)
	return db, mock
}

func TestDatabaseWriteFailureIsUnavailable(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectExec("INSERT INTO kv").
		WithArgs("playlists", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	err := db.Set(context.Background(), "playlists", []byte(`[]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseReadFailureIsUnavailable(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectQuery("SELECT value FROM kv WHERE key").
		WithArgs("tracks").
		WillReturnError(errors.New("database is locked"))

	_, ok, err := db.Get(context.Background(), "tracks")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewFailsWhenSchemaCannotBeCreated(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kv").WillReturnError(errors.New("readonly database"))

	_, err = New(conn, quietLogger())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	buf := []byte("v1")
	require.NoError(t, m.Set(ctx, "k", buf))
	buf[0] = 'x'
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", string(v), "stored value must not alias the caller's slice")

	m.FailWrites = true
	assert.ErrorIs(t, m.Set(ctx, "k", []byte("v2")), ErrUnavailable)
}
