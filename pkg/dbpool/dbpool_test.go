package dbpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebindLeavesNonPostgresQueriesAlone(t *testing.T) {
	q := "SELECT * FROM messages WHERE cid = ? AND role = ?"
	require.Equal(t, q, Rebind("sqlite", q))
	require.Equal(t, q, Rebind("mysql", q))
}

func TestRebindNumbersPostgresPlaceholders(t *testing.T) {
	q := "SELECT * FROM messages WHERE cid = ? AND role = ?"
	require.Equal(t, "SELECT * FROM messages WHERE cid = $1 AND role = $2", Rebind("postgres", q))
}

func TestDSNDriverName(t *testing.T) {
	require.Equal(t, "sqlite3", DSN{Driver: "sqlite"}.driverName())
	require.Equal(t, "postgres", DSN{Driver: "postgres"}.driverName())
	require.Equal(t, "mysql", DSN{Driver: "mysql"}.driverName())
}

func TestDSNConnectionStringPerDriver(t *testing.T) {
	sqlite := DSN{Driver: "sqlite", Database: "chatbroker.db"}
	require.Equal(t, "chatbroker.db", sqlite.dsn())

	pg := DSN{Driver: "postgres", Host: "db", Port: 5432, Database: "chatbroker", Username: "app"}
	require.Equal(t, "host=db port=5432 dbname=chatbroker sslmode=disable user=app", pg.dsn())

	mysql := DSN{Driver: "mysql", Host: "db", Port: 3306, Database: "chatbroker", Username: "app", Password: "secret"}
	require.Equal(t, "app:secret@tcp(db:3306)/chatbroker?parseTime=true", mysql.dsn())
}

func TestPoolGetSharesConnectionForSameDSN(t *testing.T) {
	pool := New()
	defer pool.Close()

	dsn := DSN{Driver: "sqlite", Database: ":memory:"}
	db1, err := pool.Get(dsn)
	require.NoError(t, err)

	db2, err := pool.Get(dsn)
	require.NoError(t, err)
	require.Same(t, db1, db2)
}

func TestPoolGetOpensDistinctConnectionsForDistinctDSNs(t *testing.T) {
	pool := New()
	defer pool.Close()

	db1, err := pool.Get(DSN{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)

	db2, err := pool.Get(DSN{Driver: "sqlite", Database: "file:other?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NotSame(t, db1, db2)
}

func TestPoolCloseClearsCachedConnections(t *testing.T) {
	pool := New()
	_, err := pool.Get(DSN{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.Empty(t, pool.pools)
}
