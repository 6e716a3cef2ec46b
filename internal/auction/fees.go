package auction

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// ValidateFeeParameters checks a fee schedule: every tier rate must stay
// below the denominator and thresholds must be strictly ascending.
func ValidateFeeParameters(p domain.FeeParameters) error {
	var prev *big.Int
	for i, t := range p.Tiers {
		if t.Numerator >= domain.FeeDenominator {
			return fmt.Errorf("fee tier %d: numerator %d must be below %d", i+1, t.Numerator, domain.FeeDenominator)
		}
		if t.Threshold == nil || t.Threshold.Sign() < 0 {
			return fmt.Errorf("fee tier %d: threshold must be non-negative", i+1)
		}
		if prev != nil && t.Threshold.Cmp(prev) <= 0 {
			return fmt.Errorf("fee tier %d: thresholds must be strictly ascending", i+1)
		}
		prev = t.Threshold
	}
	if p.FeeReceiver == (common.Address{}) {
		return fmt.Errorf("fee receiver must be set")
	}
	return nil
}

// feeTierFor converts the realized bidding-asset volume into the fee
// schedule's reference unit using the oracle and picks the tier rate. The
// oracle is consulted exactly once and its answer is never cached.
func feeTierFor(ctx context.Context, oracle domain.PriceOracle, params domain.FeeParameters, biddingAsset common.Address, raised *big.Int) (uint64, error) {
	num, den, err := oracle.ReferencePrice(ctx, biddingAsset)
	if err != nil {
		return 0, fmt.Errorf("fee tier: oracle price for %s: %w", biddingAsset.Hex(), err)
	}
	if den.Sign() == 0 {
		return 0, fmt.Errorf("fee tier: oracle returned zero denominator for %s", biddingAsset.Hex())
	}
	volume := new(big.Int).Mul(raised, num)
	volume.Div(volume, den)
	return params.TierFor(volume), nil
}

// feeAmount computes rate/1000 of the proceeds, flooring.
func feeAmount(proceeds *big.Int, numerator uint64) *big.Int {
	fee := new(big.Int).Mul(proceeds, new(big.Int).SetUint64(numerator))
	return fee.Div(fee, big.NewInt(domain.FeeDenominator))
}
