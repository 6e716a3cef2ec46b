package domain

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a limit order in a batch auction. For bids it reads "I offer
// SellAmount of the bidding asset for at least BuyAmount of the auctioned
// asset". The auctioneer's initial order is the mirror image: SellAmount of
// the auctioned asset for at least BuyAmount of the bidding asset.
//
// Orders are immutable; their identity is the triple itself. Both amounts
// must fit in 96 bits so the order packs into a single 32-byte key.
type Order struct {
	UserID     uint64
	BuyAmount  *big.Int
	SellAmount *big.Int
}

// maxUint96 bounds the packed amount fields.
var maxUint96 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))

// Sentinel keys bounding every order queue. QueueStart sorts before any
// valid order, QueueEnd after. The byte values match the on-chain layout.
var (
	QueueStart = common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000001")
	QueueEnd   = common.HexToHash("0xffffffffffffffffffffffffffffffffffffffff000000000000000000000001")
)

// NewOrder builds an order from raw amounts, copying the big.Ints.
func NewOrder(userID uint64, buyAmount, sellAmount *big.Int) Order {
	return Order{
		UserID:     userID,
		BuyAmount:  new(big.Int).Set(buyAmount),
		SellAmount: new(big.Int).Set(sellAmount),
	}
}

// Encode packs the order into its 32-byte key:
// userId (64 bits) | buyAmount (96 bits) | sellAmount (96 bits),
// most significant first. Amounts outside their bit width are rejected.
func (o Order) Encode() (common.Hash, error) {
	if o.BuyAmount == nil || o.SellAmount == nil {
		return common.Hash{}, fmt.Errorf("encode order: nil amount")
	}
	if o.BuyAmount.Sign() < 0 || o.BuyAmount.Cmp(maxUint96) > 0 {
		return common.Hash{}, fmt.Errorf("encode order buyAmount %s: %w", o.BuyAmount, ErrAmountOutOfRange)
	}
	if o.SellAmount.Sign() < 0 || o.SellAmount.Cmp(maxUint96) > 0 {
		return common.Hash{}, fmt.Errorf("encode order sellAmount %s: %w", o.SellAmount, ErrAmountOutOfRange)
	}

	var key common.Hash
	key[0] = byte(o.UserID >> 56)
	key[1] = byte(o.UserID >> 48)
	key[2] = byte(o.UserID >> 40)
	key[3] = byte(o.UserID >> 32)
	key[4] = byte(o.UserID >> 24)
	key[5] = byte(o.UserID >> 16)
	key[6] = byte(o.UserID >> 8)
	key[7] = byte(o.UserID)
	o.BuyAmount.FillBytes(key[8:20])
	o.SellAmount.FillBytes(key[20:32])
	return key, nil
}

// MustEncode is Encode for orders already known to be in range.
func (o Order) MustEncode() common.Hash {
	key, err := o.Encode()
	if err != nil {
		panic(err)
	}
	return key
}

// DecodeOrder unpacks a 32-byte order key. It is total: every key decodes
// to some order, and DecodeOrder(o.Encode()) == o for all valid orders.
func DecodeOrder(key common.Hash) Order {
	var userID uint64
	for _, b := range key[:8] {
		userID = userID<<8 | uint64(b)
	}
	return Order{
		UserID:     userID,
		BuyAmount:  new(big.Int).SetBytes(key[8:20]),
		SellAmount: new(big.Int).SetBytes(key[20:32]),
	}
}

// Cmp implements the canonical total order over orders ("lower price
// first"). Order a is lower-priced than b iff
//
//	a.BuyAmount * b.SellAmount < b.BuyAmount * a.SellAmount
//
// (cross multiplication avoids division). Exact price ties rank the smaller
// UserID lower; remaining ties fall back to the packed key bytes so the
// ordering is total. Returns -1, 0 or +1.
func (a Order) Cmp(b Order) int {
	left := new(big.Int).Mul(a.BuyAmount, b.SellAmount)
	right := new(big.Int).Mul(b.BuyAmount, a.SellAmount)
	if c := left.Cmp(right); c != 0 {
		return c
	}
	switch {
	case a.UserID < b.UserID:
		return -1
	case a.UserID > b.UserID:
		return 1
	}
	ka, _ := a.Encode()
	kb, _ := b.Encode()
	return bytes.Compare(ka[:], kb[:])
}

// LowerPriced reports whether a sorts strictly before b.
func (a Order) LowerPriced(b Order) bool { return a.Cmp(b) < 0 }

// Equal reports whether two orders are the same triple.
func (a Order) Equal(b Order) bool {
	return a.UserID == b.UserID &&
		a.BuyAmount.Cmp(b.BuyAmount) == 0 &&
		a.SellAmount.Cmp(b.SellAmount) == 0
}

// IsZero reports whether the order is the all-zero triple, used as the
// "unset" value for interim and clearing orders.
func (o Order) IsZero() bool {
	return o.UserID == 0 && o.BuyAmount.Sign() == 0 && o.SellAmount.Sign() == 0
}

func (o Order) String() string {
	return fmt.Sprintf("order{user=%d buy=%s sell=%s}", o.UserID, o.BuyAmount, o.SellAmount)
}
