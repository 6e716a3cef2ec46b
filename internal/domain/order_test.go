package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestOrderEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Order{
		NewOrder(1, big.NewInt(1), big.NewInt(1)),
		NewOrder(2, eth(1), eth(2)),
		NewOrder(0, big.NewInt(0), big.NewInt(1)),
		NewOrder(1<<63, maxUint96, maxUint96),
		NewOrder(42, new(big.Int).Sub(maxUint96, big.NewInt(1)), big.NewInt(7)),
	}
	for _, o := range cases {
		key, err := o.Encode()
		require.NoError(t, err)
		got := DecodeOrder(key)
		assert.True(t, o.Equal(got), "round trip %v != %v", o, got)
	}
}

func TestOrderEncodeRejectsOutOfRange(t *testing.T) {
	tooBig := new(big.Int).Add(maxUint96, big.NewInt(1))

	_, err := Order{UserID: 1, BuyAmount: tooBig, SellAmount: big.NewInt(1)}.Encode()
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = Order{UserID: 1, BuyAmount: big.NewInt(1), SellAmount: tooBig}.Encode()
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = Order{UserID: 1, BuyAmount: big.NewInt(-1), SellAmount: big.NewInt(1)}.Encode()
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestSentinelKeyValues(t *testing.T) {
	// The sentinels must match the packed layout exactly: QueueStart is
	// (0, 0, 1), QueueEnd is (max userId, max buyAmount, 1).
	start := DecodeOrder(QueueStart)
	assert.Equal(t, uint64(0), start.UserID)
	assert.Zero(t, start.BuyAmount.Sign())
	assert.Equal(t, int64(1), start.SellAmount.Int64())

	end := DecodeOrder(QueueEnd)
	assert.Equal(t, ^uint64(0), end.UserID)
	assert.Equal(t, 0, end.BuyAmount.Cmp(maxUint96))
	assert.Equal(t, int64(1), end.SellAmount.Int64())
}

func TestSentinelsBoundAllOrders(t *testing.T) {
	orders := []Order{
		NewOrder(1, big.NewInt(1), big.NewInt(1)),
		NewOrder(3, eth(10), eth(20)),
		NewOrder(7, maxUint96, big.NewInt(1)),
	}
	start := DecodeOrder(QueueStart)
	end := DecodeOrder(QueueEnd)
	for _, o := range orders {
		assert.True(t, start.LowerPriced(o), "start must sort before %v", o)
		assert.True(t, o.LowerPriced(end), "%v must sort before end", o)
	}
}

func TestComparatorPriceOrder(t *testing.T) {
	// 0.5 auctioned per bid unit vs 1.0 auctioned per bid unit: the
	// lower-rate order is the lower-priced one.
	low := NewOrder(3, eth(1), eth(2))  // rate 0.5
	high := NewOrder(3, eth(1), eth(1)) // rate 1.0
	assert.True(t, low.LowerPriced(high))
	assert.False(t, high.LowerPriced(low))
}

func TestComparatorTieBreakByUserID(t *testing.T) {
	a := NewOrder(2, eth(1), eth(2))
	b := NewOrder(5, eth(1), eth(2)) // same price, larger user id
	assert.True(t, a.LowerPriced(b))
	assert.False(t, b.LowerPriced(a))

	// Same ratio expressed with different magnitudes still ties on price.
	c := NewOrder(1, eth(2), eth(4))
	assert.True(t, c.LowerPriced(a))
}

func TestComparatorTotality(t *testing.T) {
	orders := []Order{
		NewOrder(1, eth(1), eth(2)),
		NewOrder(2, eth(1), eth(2)),
		NewOrder(2, eth(2), eth(4)),
		NewOrder(2, eth(3), eth(1)),
		NewOrder(9, big.NewInt(5), big.NewInt(7)),
	}
	for _, a := range orders {
		for _, b := range orders {
			lower := a.LowerPriced(b)
			higher := b.LowerPriced(a)
			equal := a.Cmp(b) == 0
			count := 0
			for _, v := range []bool{lower, higher, equal} {
				if v {
					count++
				}
			}
			assert.Equal(t, 1, count, "exactly one relation must hold for %v vs %v", a, b)
			if a.Equal(b) {
				assert.True(t, equal)
			}
		}
	}
}

func TestReferralCodeValidate(t *testing.T) {
	assert.NoError(t, ReferralCode("nogo").Validate())
	assert.NoError(t, ReferralCode("12345678").Validate())
	assert.ErrorIs(t, ReferralCode("").Validate(), ErrEmptyReferralCode)
	assert.ErrorIs(t, ReferralCode("123456789").Validate(), ErrReferralCodeLength)
}
