package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
)

func TestInsertCapsule_RoundTrip(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	c := &capsule.Capsule{
		ID:         2,
		Owner:      alice,
		Contents:   []capsule.Entry{{Key: "b", Value: "second"}, {Key: "a", Value: "first"}},
		UnlockTime: 1_700_000_000_000_000_000,
		Recipients: []identity.Identity{bob, carol},
		IsPublic:   true,
	}
	require.NoError(t, InsertCapsule(ctx, database, c))

	got, err := GetCapsule(ctx, database, 2)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestInsertCapsule_EmptySlicesStoredAsEmpty(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, InsertCapsule(ctx, database, &capsule.Capsule{ID: 3, Owner: alice}))

	got, err := GetCapsule(ctx, database, 3)
	require.NoError(t, err)
	assert.NotNil(t, got.Contents)
	assert.NotNil(t, got.Recipients)
	assert.Empty(t, got.Contents)
}

func TestInsertCapsule_DuplicateID(t *testing.T) {
	database := openTestDB(t)
	insertTestCapsule(t, database, 5, alice)

	err := InsertCapsule(context.Background(), database, &capsule.Capsule{ID: 5, Owner: bob})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateID))

	// First write wins
	got, err := GetCapsule(context.Background(), database, 5)
	require.NoError(t, err)
	assert.Equal(t, alice, got.Owner)
}

func TestGetCapsule_NotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := GetCapsule(context.Background(), database, 99)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = GetCapsule(context.Background(), database, ^uint64(0))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListCapsules_KeyOrder(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	empty, err := ListCapsules(ctx, database)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, id := range []uint64{9, 3, 6} {
		insertTestCapsule(t, database, id, alice)
	}

	list, err := ListCapsules(ctx, database)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint64{3, 6, 9}, []uint64{list[0].ID, list[1].ID, list[2].ID})

	n, err := CountCapsules(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListPublicCandidates(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	for _, c := range []*capsule.Capsule{
		{ID: 2, Owner: alice, UnlockTime: 100, IsPublic: true},
		{ID: 3, Owner: alice, UnlockTime: 200, IsPublic: true},
		{ID: 4, Owner: alice, UnlockTime: 100, IsPublic: false},
		{ID: 5, Owner: alice, UnlockTime: 201, IsPublic: true},
	} {
		require.NoError(t, InsertCapsule(ctx, database, c))
	}

	list, err := ListPublicCandidates(ctx, database, 200)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(2), list[0].ID)
	assert.Equal(t, uint64(3), list[1].ID)
}

func TestInsertCapsule_RejectsOutOfRangeUnlock(t *testing.T) {
	database := openTestDB(t)

	err := InsertCapsule(context.Background(), database, &capsule.Capsule{ID: 2, Owner: alice, UnlockTime: ^uint64(0)})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
