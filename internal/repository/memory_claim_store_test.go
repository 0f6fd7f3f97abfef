package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvenue/seatclaim/internal/model"
	"github.com/openvenue/seatclaim/internal/repository"
)

var t0 = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func held(owner string, acquired time.Time, ttl time.Duration) model.Claim {
	expires := acquired.Add(ttl)
	return model.Claim{
		ShowID:         77,
		SeatID:         "S12",
		OwnerSessionID: owner,
		Kind:           model.KindSeat,
		State:          model.StateHeld,
		AcquiredAt:     acquired,
		ExpiresAt:      &expires,
	}
}

func TestAcquireHeldFirstWriterWins(t *testing.T) {
	store := repository.NewMemoryClaimStore()
	ctx := context.Background()

	require.NoError(t, store.AcquireHeld(ctx, held("sess-a", t0, 15*time.Minute)))

	err := store.AcquireHeld(ctx, held("sess-b", t0.Add(time.Minute), 15*time.Minute))
	var conflict *repository.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, repository.ReasonHeldByOther, conflict.Reason)

	// The loser must not have overwritten anything.
	c, err := store.Get(ctx, 77, "S12")
	require.NoError(t, err)
	assert.Equal(t, "sess-a", c.OwnerSessionID)
}

func TestAcquireHeldStealsLapsedHold(t *testing.T) {
	store := repository.NewMemoryClaimStore()
	ctx := context.Background()

	require.NoError(t, store.AcquireHeld(ctx, held("sess-a", t0, 15*time.Minute)))
	require.NoError(t, store.AcquireHeld(ctx, held("sess-b", t0.Add(16*time.Minute), 15*time.Minute)),
		"an expired hold is equivalent to no row")

	c, err := store.Get(ctx, 77, "S12")
	require.NoError(t, err)
	assert.Equal(t, "sess-b", c.OwnerSessionID)
}

func TestConcurrentAcquireHeldSingleWinner(t *testing.T) {
	store := repository.NewMemoryClaimStore()
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.AcquireHeld(ctx, held(fmt.Sprintf("sess-%d", i), t0, 15*time.Minute))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, repository.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMarkSoldInsertsWhenHoldLapsedAway(t *testing.T) {
	store := repository.NewMemoryClaimStore()
	ctx := context.Background()

	// No row at all: the hold expired and a steal deleted it, but the
	// payment was already captured.
	require.NoError(t, store.MarkSold(ctx, 77, "S12", "", "sess-a", model.StateSold, "LOC-001", t0))

	c, err := store.Get(ctx, 77, "S12")
	require.NoError(t, err)
	assert.Equal(t, model.StateSold, c.State)
	assert.Nil(t, c.ExpiresAt)
	require.NotNil(t, c.SaleLocator)
	assert.Equal(t, "LOC-001", *c.SaleLocator)
}

func TestMarkSoldLocatorIdempotency(t *testing.T) {
	store := repository.NewMemoryClaimStore()
	ctx := context.Background()

	require.NoError(t, store.AcquireHeld(ctx, held("sess-a", t0, 15*time.Minute)))
	require.NoError(t, store.MarkSold(ctx, 77, "S12", "", "sess-a", model.StateSold, "LOC-001", t0))
	assert.NoError(t, store.MarkSold(ctx, 77, "S12", "", "sess-a", model.StateSold, "LOC-001", t0))
	assert.ErrorIs(t, store.MarkSold(ctx, 77, "S12", "", "sess-a", model.StateSold, "LOC-002", t0), repository.ErrConflict)
}

func TestRemoveBlockOnlyRemovesBlocks(t *testing.T) {
	store := repository.NewMemoryClaimStore()
	ctx := context.Background()

	require.NoError(t, store.AcquireHeld(ctx, held("sess-a", t0, 15*time.Minute)))
	removed, err := store.RemoveBlock(ctx, 77, "S12")
	require.NoError(t, err)
	assert.False(t, removed, "a shopper hold is not a block")

	c, err := store.Get(ctx, 77, "S12")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.StateHeld, c.State)
}

func TestListByShowScopesToShow(t *testing.T) {
	store := repository.NewMemoryClaimStore()
	ctx := context.Background()

	a := held("sess-a", t0, 15*time.Minute)
	require.NoError(t, store.AcquireHeld(ctx, a))
	b := a
	b.ShowID = 78
	b.OwnerSessionID = "sess-b"
	require.NoError(t, store.AcquireHeld(ctx, b))

	claims, err := store.ListByShow(ctx, 77)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, uint64(77), claims[0].ShowID)
}
