package auction

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionlabs/auctiond/internal/domain"
)

func testFeeParams() domain.FeeParameters {
	return domain.FeeParameters{
		Tiers: [5]domain.FeeTier{
			{Numerator: 10, Threshold: bi(199_999)},
			{Numerator: 8, Threshold: bi(399_999)},
			{Numerator: 6, Threshold: bi(599_999)},
			{Numerator: 4, Threshold: bi(799_999)},
			{Numerator: 2, Threshold: bi(999_999)},
		},
		FeeReceiver: common.HexToAddress("0x00000000000000000000000000000000000000fe"),
	}
}

type staticOracle struct {
	num, den *big.Int
}

func (o staticOracle) ReferencePrice(context.Context, common.Address) (*big.Int, *big.Int, error) {
	return o.num, o.den, nil
}

func TestValidateFeeParameters(t *testing.T) {
	require.NoError(t, ValidateFeeParameters(testFeeParams()))

	p := testFeeParams()
	p.Tiers[1].Numerator = domain.FeeDenominator
	require.Error(t, ValidateFeeParameters(p))

	p = testFeeParams()
	p.Tiers[2].Threshold = p.Tiers[1].Threshold
	require.Error(t, ValidateFeeParameters(p))

	p = testFeeParams()
	p.FeeReceiver = common.Address{}
	require.Error(t, ValidateFeeParameters(p))
}

func TestFeeTierSelection(t *testing.T) {
	params := testFeeParams()
	oracle := staticOracle{num: bi(1), den: bi(1)}
	ctx := context.Background()
	asset := common.HexToAddress("0x01")

	// Larger realized volume lands in a cheaper tier.
	rate, err := feeTierFor(ctx, oracle, params, asset, bi(100_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), rate)

	rate, err = feeTierFor(ctx, oracle, params, asset, bi(200_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), rate)

	// Volume beyond every threshold pays the last tier's rate.
	rate, err = feeTierFor(ctx, oracle, params, asset, bi(5_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rate)
}

func TestFeeTierOracleConversion(t *testing.T) {
	params := testFeeParams()
	// 1 bidding unit = 2 reference units: 150k raised counts as 300k.
	oracle := staticOracle{num: bi(2), den: bi(1)}

	rate, err := feeTierFor(context.Background(), oracle, params, common.Address{}, bi(150_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), rate)
}

func TestFeeAmountFloors(t *testing.T) {
	assert.Equal(t, bi(10), feeAmount(bi(1000), 10))
	assert.Equal(t, bi(9), feeAmount(bi(999), 10))
	assert.Zero(t, feeAmount(bi(99), 10).Cmp(bi(0)))
}
