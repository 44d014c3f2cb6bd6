package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"character-nexus/backend/pkg/config"
	"character-nexus/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "test.sqlite"),
		BusyTimeout:    time.Second,
		MaxOpenConns:   1,
		ConnectRetries: 1,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type convRow struct {
	ID           string `gorm:"column:id"`
	Title        string `gorm:"column:title"`
	MessageCount int    `gorm:"column:message_count"`
}

func insertConversation(t *testing.T, q Querier, id string) {
	t.Helper()
	_, err := q.Execute(context.Background(),
		`INSERT INTO conversations (id, title, created, modified) VALUES (?, ?, ?, ?)`,
		id, "T-"+id, "2024-01-01T00:00:00.000Z", "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)
}

func TestExecuteFetchOneFetchAll(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	insertConversation(t, db, "a")
	res, err := db.Execute(ctx,
		`INSERT INTO conversations (id, created, modified) VALUES (?, ?, ?)`,
		"b", "2024-01-02T00:00:00.000Z", "2024-01-02T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.NotZero(t, res.InsertedID)

	var row convRow
	found, err := db.FetchOne(ctx, &row, `SELECT id, title, message_count FROM conversations WHERE id = ?`, "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "New Conversation", row.Title)

	found, err = db.FetchOne(ctx, &row, `SELECT id, title, message_count FROM conversations WHERE id = ?`, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	var rows []convRow
	require.NoError(t, db.FetchAll(ctx, &rows, `SELECT id, title, message_count FROM conversations ORDER BY id`))
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)

	var none []convRow
	require.NoError(t, db.FetchAll(ctx, &none, `SELECT id, title, message_count FROM conversations WHERE id = ?`, "zzz"))
	assert.Empty(t, none)
}

func TestForeignKeysCascade(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	var enabled int
	_, err := db.FetchOne(ctx, &enabled, "PRAGMA foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, 1, enabled)

	insertConversation(t, db, "c1")
	_, err = db.Execute(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, timestamp, order_index) VALUES (?, ?, ?, ?, ?, ?)`,
		"m1", "c1", "user", "hi", "2024-01-01T00:00:00.000Z", 0)
	require.NoError(t, err)

	_, err = db.Execute(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, timestamp, order_index) VALUES (?, ?, ?, ?, ?, ?)`,
		"m2", "nope", "user", "hi", "2024-01-01T00:00:00.000Z", 0)
	assert.Error(t, err, "orphan message must be rejected")

	_, err = db.Execute(ctx, `DELETE FROM conversations WHERE id = ?`, "c1")
	require.NoError(t, err)

	var count int64
	_, err = db.FetchOne(ctx, &count, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, "c1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.Transaction(ctx, func(q Querier) error {
		insertConversation(t, q, "tx1")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	_, err = db.FetchOne(ctx, &count, `SELECT COUNT(*) FROM conversations`)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, db.Transaction(ctx, func(q Querier) error {
		insertConversation(t, q, "tx2")
		return nil
	}))
	_, err = db.FetchOne(ctx, &count, `SELECT COUNT(*) FROM conversations`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCloseIsIdempotentAndFailsFast(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.Execute(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = db.FetchOne(ctx, new(int), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, db.FetchAll(ctx, &[]int{}, "SELECT 1"), ErrNotInitialized)
	assert.ErrorIs(t, db.Ping(ctx), ErrNotInitialized)
}

func TestZeroValueHandleIsNotInitialized(t *testing.T) {
	var db DB
	_, err := db.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, db.Close())
}
