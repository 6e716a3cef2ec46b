package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeDenominator is the basis for all fee numerators (rates are x/1000).
const FeeDenominator = 1000

// AuctionStatus is the lifecycle phase of an auction. The AcceptingOrders
// to Closed transition is purely time gated; Settled is reached by the
// settlement operation.
type AuctionStatus string

const (
	StatusPending         AuctionStatus = "pending"
	StatusAcceptingOrders AuctionStatus = "accepting_orders"
	StatusClosed          AuctionStatus = "closed"
	StatusSettled         AuctionStatus = "settled"
)

// AuctionRecord is the durable per-auction state. It is created at
// initiation and mutated only by the precalculation, settlement and fee
// snapshot paths; it is never deleted.
type AuctionRecord struct {
	ID                       uint64
	AuctioningAsset          common.Address
	BiddingAsset             common.Address
	Auctioneer               common.Address
	AuctioneerUserID         uint64
	OrderCancellationEndDate time.Time
	AuctionEndDate           time.Time
	InitialAuctionOrder      Order
	MinimumBiddingAmount     *big.Int
	MinFundingThreshold      *big.Int

	// Fee parameters snapshotted when the auction is created; the tier
	// rate itself is fixed at settlement.
	FeeNumerator         uint64
	ReferralFeeNumerator uint64

	// Clearing-scan checkpoint, advanced by the precalculation operation
	// and consumed by settlement.
	InterimSumBidAmount *big.Int
	InterimOrder        Order

	// Settlement outcome. ClearingPriceOrder stays the zero order until
	// the auction settles.
	ClearingPriceOrder           Order
	VolumeClearingPriceOrder     *big.Int
	MinFundingThresholdNotReached bool

	CreatedAt time.Time
	SettledAt *time.Time
}

// Status derives the lifecycle phase at the given instant.
func (a *AuctionRecord) Status(now time.Time) AuctionStatus {
	if a.SettledAt != nil {
		return StatusSettled
	}
	if !now.Before(a.AuctionEndDate) {
		return StatusClosed
	}
	return StatusAcceptingOrders
}

// Settled reports whether the clearing price has been fixed.
func (a *AuctionRecord) Settled() bool { return a.SettledAt != nil }

// ClearingPrice returns the uniform settlement price as the pair
// (numerator, denominator) = (auctioned amount, bidding amount) of the
// clearing order. Only meaningful once settled.
func (a *AuctionRecord) ClearingPrice() (num, den *big.Int) {
	return a.ClearingPriceOrder.BuyAmount, a.ClearingPriceOrder.SellAmount
}

// FeeTier is one volume band of the tiered fee schedule.
type FeeTier struct {
	// Numerator is the fee rate over FeeDenominator.
	Numerator uint64
	// Threshold is the upper bound (inclusive) of realized volume, in the
	// oracle's reference unit, for which this tier applies.
	Threshold *big.Int
}

// FeeParameters is the owner-configurable fee schedule. Tiers are ordered
// by ascending threshold; realized volume beyond the last threshold pays
// the last tier's rate.
type FeeParameters struct {
	Tiers       [5]FeeTier
	FeeReceiver common.Address
}

// TierFor picks the fee numerator for a realized volume expressed in the
// schedule's reference unit.
func (p FeeParameters) TierFor(volume *big.Int) uint64 {
	for _, t := range p.Tiers[:4] {
		if volume.Cmp(t.Threshold) <= 0 {
			return t.Numerator
		}
	}
	return p.Tiers[4].Numerator
}

// SettlementResult summarizes what the settlement operation computed and
// paid out on the auctioneer's side of the trade.
type SettlementResult struct {
	AuctionID             uint64
	ClearingOrder         Order
	VolumeClearingOrder   *big.Int
	SoldAuctionedAmount   *big.Int
	RaisedBiddingAmount   *big.Int
	FeeAmount             *big.Int
	FeeNumerator          uint64
	FundingThresholdNotReached bool
}

// ClaimResult is the payout of one claim batch.
type ClaimResult struct {
	ReceiptID         string
	UserID            uint64
	AuctionedAmount   *big.Int
	BiddingAmount     *big.Int
	ClaimedOrders     int
}
