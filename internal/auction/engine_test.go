package auction

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionlabs/auctiond/internal/domain"
)

func bi(x int64) *big.Int { return big.NewInt(x) }

func ord(userID uint64, buy, sell int64) domain.Order {
	return domain.NewOrder(userID, bi(buy), bi(sell))
}

// seqNext turns a fixed slice into a NextFunc with restartable cursors.
func seqNext(orders []domain.Order) NextFunc {
	index := make(map[common.Hash]int, len(orders))
	for i, o := range orders {
		index[o.MustEncode()] = i
	}
	return func(cursor common.Hash) (domain.Order, bool) {
		if cursor == domain.QueueStart {
			if len(orders) == 0 {
				return domain.Order{}, false
			}
			return orders[0], true
		}
		i, ok := index[cursor]
		if !ok || i+1 >= len(orders) {
			return domain.Order{}, false
		}
		return orders[i+1], true
	}
}

func TestFindClearingUndersubscribed(t *testing.T) {
	// Lot 1.0 for at least 1.0; a single tiny bid cannot even reach the
	// proceeds floor, so the price degenerates to the floor order.
	initial := ord(1, 1_000_000, 1_000_000)
	bids := []domain.Order{ord(2, 50_000, 100_000)}

	c, err := FindClearing(initial, seqNext(bids), NewCheckpoint())
	require.NoError(t, err)

	assert.Equal(t, uint64(0), c.Order.UserID)
	assert.Equal(t, bi(1_000_000), c.Order.BuyAmount)
	assert.Equal(t, bi(1_000_000), c.Order.SellAmount)
	assert.Zero(t, c.Volume.Sign())
	assert.Equal(t, bi(100_000), c.Raised)

	// Only the raised volume converts at the floor price.
	assert.Equal(t, bi(100_000), SoldAmount(initial, c))
}

func TestFindClearingSingleOversubscribedBid(t *testing.T) {
	initial := ord(1, 1_000_000, 1_000_000)
	bid := ord(2, 10_000_000, 20_000_000)

	c, err := FindClearing(initial, seqNext([]domain.Order{bid}), NewCheckpoint())
	require.NoError(t, err)

	// The bid itself is the clearing order, partially filled by exactly
	// the bidding volume the lot converts to at its price.
	assert.True(t, c.Order.Equal(bid))
	assert.Equal(t, bi(2_000_000), c.Volume)
	assert.Equal(t, bi(2_000_000), c.Raised)
	assert.Equal(t, bi(1_000_000), SoldAmount(initial, c))
}

func TestFindClearingMarginalPartialFill(t *testing.T) {
	initial := ord(1, 2, 10)
	bids := []domain.Order{
		ord(2, 5, 10),
		ord(3, 5, 8),
	}

	c, err := FindClearing(initial, seqNext(bids), NewCheckpoint())
	require.NoError(t, err)

	// The second bid is marginal: 10 of its price covers 6 auctioned
	// units before it, leaving 4 to fill, which needs floor(4*8/5)=6 of
	// its sell amount.
	assert.True(t, c.Order.Equal(bids[1]))
	assert.Equal(t, bi(6), c.Volume)
	assert.Equal(t, bi(16), c.Raised)
	assert.Equal(t, bi(10), SoldAmount(initial, c))
}

func TestFindClearingAllVolumeAbsorbed(t *testing.T) {
	// Queue exhausts without any order covering the lot, but total
	// volume beats the proceeds floor: synthetic clearing at S/total.
	initial := ord(1, 1, 500)
	bids := []domain.Order{
		ord(2, 1, 1),
		ord(3, 1, 1),
		ord(4, 1, 1),
	}

	c, err := FindClearing(initial, seqNext(bids), NewCheckpoint())
	require.NoError(t, err)

	assert.Equal(t, uint64(0), c.Order.UserID)
	assert.Equal(t, bi(500), c.Order.BuyAmount)
	assert.Equal(t, bi(3), c.Order.SellAmount)
	assert.Zero(t, c.Volume.Sign())
	assert.Equal(t, bi(3), c.Raised)
	assert.Equal(t, bi(500), SoldAmount(initial, c))
}

func TestFindClearingSyntheticWhenPriorVolumeAbsorbsLot(t *testing.T) {
	// At the marginal order's much higher price the preceding volume
	// already over-covers the lot, so the marginal order stays entirely
	// unfilled and the clearing order is synthetic over the prior sum.
	initial := ord(1, 1, 4)
	bids := []domain.Order{
		ord(2, 2, 8),
		ord(3, 10, 10),
	}

	c, err := FindClearing(initial, seqNext(bids), NewCheckpoint())
	require.NoError(t, err)

	assert.Equal(t, uint64(0), c.Order.UserID)
	assert.Equal(t, bi(4), c.Order.BuyAmount)
	assert.Equal(t, bi(8), c.Order.SellAmount)
	assert.Zero(t, c.Volume.Sign())
	assert.Equal(t, bi(8), c.Raised)
}

func TestFindClearingNoParticipation(t *testing.T) {
	initial := ord(1, 7, 90)

	c, err := FindClearing(initial, seqNext(nil), NewCheckpoint())
	require.NoError(t, err)

	assert.Equal(t, uint64(0), c.Order.UserID)
	assert.Equal(t, bi(90), c.Order.BuyAmount)
	assert.Equal(t, bi(7), c.Order.SellAmount)
	assert.Zero(t, c.Raised.Sign())
	assert.Zero(t, SoldAmount(initial, c).Sign())
}

func TestFindClearingEqualPriceTieBreakByUserID(t *testing.T) {
	// Two identically priced bids sort by user id; the first already
	// covers the lot, so the smaller user id is the marginal order.
	initial := ord(1, 1, 4)
	bids := []domain.Order{
		ord(2, 5, 8),
		ord(3, 5, 8),
	}

	c, err := FindClearing(initial, seqNext(bids), NewCheckpoint())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), c.Order.UserID)
	assert.Equal(t, bi(6), c.Volume)
}

func TestFindClearingRejectsUnsortedSequence(t *testing.T) {
	initial := ord(1, 1, 1_000_000)
	bids := []domain.Order{
		ord(2, 5, 8),
		ord(3, 5, 10), // lower priced than its predecessor
	}

	_, err := FindClearing(initial, seqNext(bids), NewCheckpoint())
	require.ErrorIs(t, err, domain.ErrUnsortedOrders)
}

func TestAdvanceCheckpointAssociativity(t *testing.T) {
	initial := ord(1, 1, 1_000_000)
	bids := []domain.Order{
		ord(2, 1, 10),
		ord(3, 2, 10),
		ord(4, 3, 10),
		ord(5, 4, 10),
	}
	next := seqNext(bids)

	half, err := Advance(initial, next, NewCheckpoint(), 2)
	require.NoError(t, err)
	twice, err := Advance(initial, next, half, 2)
	require.NoError(t, err)

	once, err := Advance(initial, next, NewCheckpoint(), 4)
	require.NoError(t, err)

	assert.Zero(t, once.SumBidAmount.Cmp(twice.SumBidAmount))
	assert.True(t, once.Order.Equal(twice.Order))

	// The completed scan is identical either way.
	fromHalf, err := FindClearing(initial, next, half)
	require.NoError(t, err)
	fromScratch, err := FindClearing(initial, next, NewCheckpoint())
	require.NoError(t, err)
	assert.True(t, fromScratch.Order.Equal(fromHalf.Order))
	assert.Zero(t, fromScratch.Raised.Cmp(fromHalf.Raised))
}

func TestAdvancePastQueueEnd(t *testing.T) {
	initial := ord(1, 1, 1_000_000)
	bids := []domain.Order{ord(2, 1, 10), ord(3, 2, 10)}

	_, err := Advance(initial, seqNext(bids), NewCheckpoint(), 3)
	require.ErrorIs(t, err, domain.ErrQueueExhausted)
}

func TestAdvanceIntoMarginalOrder(t *testing.T) {
	// A single bid already covers the tiny lot, so any precalculation
	// step would carry the checkpoint into clearing territory.
	initial := ord(1, 1, 1)
	bids := []domain.Order{ord(2, 5, 10)}

	_, err := Advance(initial, seqNext(bids), NewCheckpoint(), 1)
	require.ErrorIs(t, err, domain.ErrTooManyOrdersScanned)
}

func TestAdvanceRejectsNonPositiveSteps(t *testing.T) {
	initial := ord(1, 1, 10)
	_, err := Advance(initial, seqNext(nil), NewCheckpoint(), 0)
	require.Error(t, err)
}
