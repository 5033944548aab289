package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "tx.db")+"?_journal_mode=WAL&_txlock=immediate")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)`)
	require.NoError(t, err)

	return NewDB(sqlDB, zap.NewNop(), opts...)
}

func countNotes(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n))
	return n
}

func TestWithTransaction_CommitAndRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		_, err := Conn(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO notes (body) VALUES ('kept')`)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := Conn(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO notes (body) VALUES ('dropped')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countNotes(t, db))
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := openTestDB(t)

	err := db.WithTransaction(context.Background(), func(outer context.Context) error {
		outerTx := extractTx(outer)
		require.NotNil(t, outerTx)

		return db.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, outerTx, extractTx(inner))
			_, err := Conn(inner, db.DB).ExecContext(inner, `INSERT INTO notes (body) VALUES ('nested')`)
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countNotes(t, db))
}

func TestWithTransaction_RestartsWhenBusy(t *testing.T) {
	db := openTestDB(t, WithBusyRetries(2, time.Millisecond))
	busy := fmt.Errorf("insert note: %w", sqlite3.Error{Code: sqlite3.ErrBusy})

	attempts := 0
	err := db.WithTransaction(context.Background(), func(txCtx context.Context) error {
		attempts++
		if _, err := Conn(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO notes (body) VALUES ('x')`); err != nil {
			return err
		}
		if attempts < 2 {
			return busy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, countNotes(t, db), "the busy attempt must have been rolled back")

	attempts = 0
	err = db.WithTransaction(context.Background(), func(txCtx context.Context) error {
		attempts++
		return busy
	})
	assert.True(t, IsBusy(err))
	assert.Equal(t, 3, attempts)
}

func TestWithTransaction_OtherErrorsAreNotRetried(t *testing.T) {
	db := openTestDB(t)
	attempts := 0

	err := db.WithTransaction(context.Background(), func(txCtx context.Context) error {
		attempts++
		return sqlite3.Error{Code: sqlite3.ErrConstraint}
	})
	require.Error(t, err)
	assert.False(t, IsBusy(err))
	assert.Equal(t, 1, attempts)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, IsBusy(errors.New("database is locked")))
	assert.False(t, IsBusy(nil))
}
