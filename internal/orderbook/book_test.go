package orderbook

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionlabs/auctiond/internal/domain"
)

func ord(userID uint64, buy, sell int64) domain.Order {
	return domain.NewOrder(userID, big.NewInt(buy), big.NewInt(sell))
}

func collect(b *Book, auctionID uint64) []domain.Order {
	var out []domain.Order
	b.Ascend(auctionID, func(o domain.Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

func TestInsertKeepsAscendingPriceOrder(t *testing.T) {
	b := New()
	high := ord(1, 30, 10) // rate 3
	mid := ord(2, 20, 10)  // rate 2
	low := ord(3, 10, 10)  // rate 1

	for _, o := range []domain.Order{mid, high, low} {
		inserted, err := b.Insert(7, o)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	got := collect(b, 7)
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(low))
	assert.True(t, got[1].Equal(mid))
	assert.True(t, got[2].Equal(high))
}

func TestInsertDuplicateIsNoOp(t *testing.T) {
	b := New()
	o := ord(1, 10, 10)

	inserted, err := b.Insert(1, o)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = b.Insert(1, o)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, b.Len(1))
}

func TestEqualPriceOrdersSortByUserID(t *testing.T) {
	b := New()
	second := ord(9, 10, 10)
	first := ord(2, 10, 10)

	_, err := b.Insert(1, second)
	require.NoError(t, err)
	_, err = b.Insert(1, first)
	require.NoError(t, err)

	got := collect(b, 1)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].UserID)
	assert.Equal(t, uint64(9), got[1].UserID)
}

func TestRemoveIsIdempotent(t *testing.T) {
	b := New()
	o := ord(1, 10, 10)
	_, err := b.Insert(1, o)
	require.NoError(t, err)

	removed, err := b.Remove(1, o)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = b.Remove(1, o)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = b.Remove(99, o) // unknown auction
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestContains(t *testing.T) {
	b := New()
	o := ord(4, 10, 20)
	_, err := b.Insert(1, o)
	require.NoError(t, err)

	ok, err := b.Contains(1, o)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Contains(1, ord(4, 10, 21))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNextCursorIteration(t *testing.T) {
	b := New()
	orders := []domain.Order{ord(1, 10, 40), ord(2, 10, 20), ord(3, 10, 10)}
	for _, o := range orders {
		_, err := b.Insert(1, o)
		require.NoError(t, err)
	}

	// Walk with explicit cursors, as the checkpointed clearing scan does.
	cursor := domain.QueueStart
	var seen []domain.Order
	for {
		o, ok := b.Next(1, cursor)
		if !ok {
			break
		}
		seen = append(seen, o)
		cursor = o.MustEncode()
	}

	require.Len(t, seen, 3)
	// Ascending price: 10/40 < 10/20 < 10/10.
	assert.Equal(t, uint64(1), seen[0].UserID)
	assert.Equal(t, uint64(2), seen[1].UserID)
	assert.Equal(t, uint64(3), seen[2].UserID)

	// Restarting from a mid-queue cursor resumes, it does not rewind.
	o, ok := b.Next(1, seen[0].MustEncode())
	require.True(t, ok)
	assert.True(t, o.Equal(seen[1]))
}

func TestNextOnEmptyQueue(t *testing.T) {
	b := New()
	_, ok := b.Next(5, domain.QueueStart)
	assert.False(t, ok)
}

func TestLoadRebuildsSorted(t *testing.T) {
	b := New()
	orders := []domain.Order{ord(3, 10, 10), ord(1, 10, 40), ord(2, 10, 20)}
	require.NoError(t, b.Load(1, orders))

	got := collect(b, 1)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(1), got[0].UserID)
	assert.Equal(t, uint64(2), got[1].UserID)
	assert.Equal(t, uint64(3), got[2].UserID)
}
