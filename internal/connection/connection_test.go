package connection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionCreateInsertSelect(t *testing.T) {
	state, err := Open("testdb", "", true)
	require.NoError(t, err)
	defer state.Close()

	conn := state.NewConnection()
	defer conn.Close()

	_, err = conn.Execute(`CREATE TABLE users (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)
	require.True(t, state.HasTable("users"))

	_, err = conn.Execute(`INSERT INTO users (id, name) VALUES (1, 'alice')`)
	require.NoError(t, err)

	res, err := conn.Execute(`SELECT id, name FROM users`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestConnectionPreparedStatement(t *testing.T) {
	state, err := Open("testdb", "", true)
	require.NoError(t, err)
	defer state.Close()

	conn := state.NewConnection()
	_, err = conn.Execute(`CREATE TABLE users (id INT PRIMARY KEY, name TEXT) DATA SUBJECT`)
	require.NoError(t, err)

	conn.Prepare("insert_bob", `INSERT INTO users (id, name) VALUES (2, 'bob')`)
	_, err = conn.ExecutePrepared("insert_bob")
	require.NoError(t, err)

	_, err = conn.ExecutePrepared("missing")
	require.Error(t, err)
}
