package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/identity"
)

var (
	alice = identity.FromBytes([]byte{0xA1})
	bob   = identity.FromBytes([]byte{0xB0})
	carol = identity.FromBytes([]byte{0xC0})
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func insertTestCapsule(t *testing.T, q Querier, id uint64, owner identity.Identity) *capsule.Capsule {
	t.Helper()
	c := &capsule.Capsule{
		ID:         id,
		Owner:      owner,
		Contents:   []capsule.Entry{{Key: "letter", Value: "hello"}},
		UnlockTime: 1_000,
		Recipients: []identity.Identity{carol},
	}
	require.NoError(t, InsertCapsule(context.Background(), q, c))
	return c
}
