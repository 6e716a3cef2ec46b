// Package auction implements the batch-auction core: the incremental
// clearing engine, the fee schedule, and the service coordinating order
// placement, settlement and claims.
package auction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// NextFunc yields the order following the cursor key in ascending price
// order; ok is false once the queue is exhausted. domain.QueueStart is the
// initial cursor.
type NextFunc func(cursor common.Hash) (domain.Order, bool)

// Checkpoint is the persisted state of a partially executed clearing
// scan: the running sum of bid sell amounts and the last order consumed.
// A zero Order means the scan has not started.
type Checkpoint struct {
	SumBidAmount *big.Int
	Order        domain.Order
}

// NewCheckpoint returns the scan-not-started checkpoint.
func NewCheckpoint() Checkpoint {
	return Checkpoint{
		SumBidAmount: new(big.Int),
		Order:        domain.Order{BuyAmount: new(big.Int), SellAmount: new(big.Int)},
	}
}

func (c Checkpoint) cursor() common.Hash {
	if c.Order.IsZero() {
		return domain.QueueStart
	}
	return c.Order.MustEncode()
}

// Clearing is the outcome of a completed clearing scan.
type Clearing struct {
	// Order defines the uniform price: BuyAmount auctioned units per
	// SellAmount bidding units. Synthetic clearing orders carry user id 0.
	Order domain.Order
	// Volume is the partial fill of the marginal order in bidding units
	// (volumeClearingPriceOrder); zero when no order is partially filled.
	Volume *big.Int
	// Raised is the bidding-asset volume actually consumed at the
	// clearing price, used for the funding-threshold check and fees.
	Raised *big.Int
}

func u256(x *big.Int) *uint256.Int {
	v, _ := uint256.FromBig(x)
	return v
}

// reachesLot reports whether sum bidding volume, converted to auctioned
// units at order o's limit price, covers the lot size. Comparing
// sum*buy >= lot*sell avoids the division entirely.
func reachesLot(sum *uint256.Int, o domain.Order, lot *uint256.Int) bool {
	left := new(uint256.Int).Mul(sum, u256(o.BuyAmount))
	right := new(uint256.Int).Mul(lot, u256(o.SellAmount))
	return left.Cmp(right) >= 0
}

// Advance executes up to steps iterations of the clearing scan without
// deciding the clearing order, returning the advanced checkpoint. It
// fails with E20 if the queue ends within steps, with E21 if the
// checkpoint would reach or pass the marginal order, and with a
// sortedness error if the sequence is not strictly ascending. initial is
// the auctioneer's order (lot size S = SellAmount).
func Advance(initial domain.Order, next NextFunc, cp Checkpoint, steps int) (Checkpoint, error) {
	if steps <= 0 {
		return cp, fmt.Errorf("advance clearing scan: steps must be positive")
	}

	sum := new(big.Int).Set(cp.SumBidAmount)
	cur := cp.Order
	cursor := cp.cursor()

	for i := 0; i < steps; i++ {
		o, ok := next(cursor)
		if !ok {
			return cp, domain.ErrQueueExhausted
		}
		if !cur.IsZero() && !cur.LowerPriced(o) {
			return cp, fmt.Errorf("advance clearing scan: %w", domain.ErrUnsortedOrders)
		}
		cur = o
		cursor = o.MustEncode()
		sum.Add(sum, o.SellAmount)
	}

	// The checkpoint must stop strictly before the marginal order;
	// otherwise the caller asked for too many steps.
	if reachesLot(u256(sum), cur, u256(initial.SellAmount)) {
		return cp, domain.ErrTooManyOrdersScanned
	}

	return Checkpoint{SumBidAmount: sum, Order: cur}, nil
}

// FindClearing runs the scan from the checkpoint to completion and
// computes the clearing order per the uniform-price rules:
//
//  1. The first order at which cumulative bid volume, valued at that
//     order's price, covers the lot is the marginal order.
//  2. If a positive portion of the marginal order is needed, it is the
//     clearing order and Volume records the partial fill. If the portion
//     floors to zero, the clearing order is the synthetic
//     (0, S, cumBefore): the preceding volume absorbs the lot exactly.
//  3. If the queue ends first: total volume above the proceeds floor B
//     yields the synthetic (0, S, total); otherwise the price degenerates
//     to the floor order (0, S, B).
//
// All divisions floor. The scan fails on a non-ascending sequence.
func FindClearing(initial domain.Order, next NextFunc, cp Checkpoint) (Clearing, error) {
	lot := u256(initial.SellAmount)   // S
	floor := u256(initial.BuyAmount)  // B

	sum := u256(cp.SumBidAmount)
	cur := cp.Order
	cursor := cp.cursor()

	for {
		o, ok := next(cursor)
		if !ok {
			break
		}
		if !cur.IsZero() && !cur.LowerPriced(o) {
			return Clearing{}, fmt.Errorf("clearing scan: %w", domain.ErrUnsortedOrders)
		}
		cur = o
		cursor = o.MustEncode()

		sell := u256(o.SellAmount)
		buy := u256(o.BuyAmount)
		sum = new(uint256.Int).Add(sum, sell)

		if !reachesLot(sum, o, lot) {
			continue
		}

		// o is the marginal order. coveredBuy is the auctioned amount
		// still unfilled before it; the portion of o needed to fill it
		// is coveredBuy converted back at o's price.
		sumBefore := new(uint256.Int).Sub(sum, sell)
		filledBefore := new(uint256.Int).Div(new(uint256.Int).Mul(sumBefore, buy), sell)
		portion := new(uint256.Int)
		if filledBefore.Cmp(lot) < 0 {
			coveredBuy := new(uint256.Int).Sub(lot, filledBefore)
			portion.Div(new(uint256.Int).Mul(coveredBuy, sell), buy)
		}

		if portion.Sign() > 0 {
			raised := new(uint256.Int).Add(sumBefore, portion)
			return Clearing{
				Order:  o,
				Volume: portion.ToBig(),
				Raised: raised.ToBig(),
			}, nil
		}

		// The volume before the marginal order absorbs the lot exactly;
		// the marginal order itself stays entirely unfilled.
		return Clearing{
			Order:  synthetic(initial.SellAmount, sumBefore.ToBig()),
			Volume: new(big.Int),
			Raised: sumBefore.ToBig(),
		}, nil
	}

	// Queue exhausted without covering the lot.
	if sum.Cmp(floor) > 0 {
		return Clearing{
			Order:  synthetic(initial.SellAmount, sum.ToBig()),
			Volume: new(big.Int),
			Raised: sum.ToBig(),
		}, nil
	}
	return Clearing{
		Order:  synthetic(initial.SellAmount, initial.BuyAmount),
		Volume: new(big.Int),
		Raised: sum.ToBig(),
	}, nil
}

// synthetic builds the user-id-0 clearing order (buy=S, sell=den).
func synthetic(lot, den *big.Int) domain.Order {
	return domain.NewOrder(0, lot, den)
}

// SoldAmount converts the raised bidding volume into auctioned units at
// the clearing price: the amount of the lot actually sold. For a fully
// covered lot this is exactly the lot size.
func SoldAmount(initial domain.Order, c Clearing) *big.Int {
	if c.Order.UserID == 0 && c.Order.SellAmount.Cmp(initial.BuyAmount) == 0 &&
		c.Order.BuyAmount.Cmp(initial.SellAmount) == 0 {
		// Undersubscribed: price degenerated to the floor; only the
		// raised volume converts.
		sold := new(big.Int).Mul(c.Raised, initial.SellAmount)
		return sold.Div(sold, initial.BuyAmount)
	}
	return new(big.Int).Set(initial.SellAmount)
}
