package db

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextID_StartsAboveSeed(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	id, err := NextID(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, uint64(SequenceSeed+1), id)

	id, err = NextID(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, uint64(SequenceSeed+2), id)
}

func TestNextID_BurnedIDsNotReused(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	// Reserve without storing anything, as an aborted purchase does.
	burned, err := NextID(ctx, database)
	require.NoError(t, err)

	next, err := NextID(ctx, database)
	require.NoError(t, err)
	assert.Greater(t, next, burned)

	last, err := LastID(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, next, last)
}

func TestNextID_AboveStoredCapsules(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	// Restored records can sit above the sequence.
	insertTestCapsule(t, database, 40, alice)

	id, err := NextID(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), id)
}

func TestNextID_ConcurrentCallersGetDistinctIDs(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	const workers, perWorker = 8, 10
	var (
		mu  sync.Mutex
		ids = make(map[uint64]bool)
		wg  sync.WaitGroup
	)
	errs := make(chan error, workers*perWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := NextID(ctx, database)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				ids[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, ids, workers*perWorker)
}

func TestNextID_InsideRolledBackTx(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	first, err := NextID(ctx, database)
	require.NoError(t, err)

	_ = WithTx(ctx, database, func(q Querier) error {
		_, err := NextID(ctx, q)
		require.NoError(t, err)
		return assert.AnError
	})

	// The rolled back reservation is not visible; ids stay unique either way.
	next, err := NextID(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, first+1, next)
}
