package chatlog

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreLogAppendsRow(t *testing.T) {
	db := openTestDB(t)
	store, err := New(db, "sqlite")
	require.NoError(t, err)

	require.NoError(t, store.Log(context.Background(), RoleClient, "fr", "Bonjour", "cid-1"))
	require.NoError(t, store.Log(context.Background(), RoleClient, "zh", "你好", "cid-1"))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conv_id = ?`, "cid-1").Scan(&count))
	require.Equal(t, 2, count)
}
