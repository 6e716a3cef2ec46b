package auction

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/oracle"
	"github.com/auctionlabs/auctiond/internal/orderbook"
	"github.com/auctionlabs/auctiond/internal/store/memory"
	"github.com/auctionlabs/auctiond/internal/token"
)

var (
	assetA   = common.HexToAddress("0x00000000000000000000000000000000000000aa") // auctioned
	assetB   = common.HexToAddress("0x00000000000000000000000000000000000000bb") // bidding
	house    = common.HexToAddress("0x0000000000000000000000000000000000001111")
	aAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a01") // auctioneer
	b1Addr   = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	b2Addr   = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	refOwner = common.HexToAddress("0x0000000000000000000000000000000000000c01")
)

type testEnv struct {
	svc       *Service
	ledger    *token.Ledger
	referrals *memory.ReferralStore
	clock     *time.Time
	t0        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0

	ledger := token.NewLedger()
	referrals := memory.NewReferralStore()
	svc := New(
		memory.NewAuctionStore(),
		memory.NewOrderStore(),
		memory.NewUserStore(),
		referrals,
		memory.NewAuditStore(),
		orderbook.New(),
		ledger,
		oracle.NewStatic(),
		memory.NewLocker(),
		house,
		testFeeParams(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	svc.WithClock(func() time.Time { return now })

	env := &testEnv{svc: svc, ledger: ledger, referrals: referrals, clock: &now, t0: t0}

	ctx := context.Background()
	for _, addr := range []common.Address{aAddr, b1Addr, b2Addr} {
		_, err := svc.RegisterUser(ctx, addr)
		require.NoError(t, err)
	}
	ledger.Mint(assetA, aAddr, bi(1_000_000))
	ledger.Mint(assetB, b1Addr, bi(1_000_000))
	ledger.Mint(assetB, b2Addr, bi(1_000_000))
	return env
}

func (e *testEnv) advance(d time.Duration) { *e.clock = e.clock.Add(d) }

func (e *testEnv) params() InitiateParams {
	return InitiateParams{
		AuctioningAsset:          assetA,
		BiddingAsset:             assetB,
		Auctioneer:               aAddr,
		AuctionedSellAmount:      bi(100),
		MinBuyAmount:             bi(10),
		OrderCancellationEndDate: e.t0.Add(30 * time.Minute),
		AuctionEndDate:           e.t0.Add(time.Hour),
		MinimumBiddingAmount:     bi(1),
		MinFundingThreshold:      bi(0),
	}
}

func (e *testEnv) balance(t *testing.T, asset, account common.Address) *big.Int {
	t.Helper()
	bal, err := e.ledger.BalanceOf(context.Background(), asset, account)
	require.NoError(t, err)
	return bal
}

func TestInitiateAuctionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*InitiateParams)
		want   error
	}{
		{"zero lot", func(p *InitiateParams) { p.AuctionedSellAmount = bi(0) }, domain.ErrZeroAuctionedAmount},
		{"giveaway", func(p *InitiateParams) { p.MinBuyAmount = bi(0) }, domain.ErrAuctionIsGiveaway},
		{"zero minimum bid", func(p *InitiateParams) { p.MinimumBiddingAmount = bi(0) }, domain.ErrZeroMinimumBidAmount},
		{"cancellation after end", func(p *InitiateParams) {
			p.OrderCancellationEndDate = p.AuctionEndDate.Add(time.Minute)
		}, domain.ErrCancellationAfterEnd},
		{"end in past", func(p *InitiateParams) { p.AuctionEndDate = env.t0.Add(-time.Minute) }, domain.ErrAuctionEndInPast},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := env.params()
			tc.mutate(&p)
			_, err := env.svc.InitiateAuction(ctx, p)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestInitiateAuctionEscrowsLot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, bi(100), env.balance(t, assetA, house))
	assert.Equal(t, bi(999_900), env.balance(t, assetA, aAddr))

	rec, err := env.svc.AuctionData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAcceptingOrders, rec.Status(*env.clock))
}

func TestPlaceOrdersValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(0), SellAmount: bi(10)}}, "")
	require.ErrorIs(t, err, domain.ErrZeroBuyAmount)

	// Demands more auctioned units per bidding unit than the floor allows.
	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(200), SellAmount: bi(10)}}, "")
	require.ErrorIs(t, err, domain.ErrLimitPriceNotBetter)

	strict := env.params()
	strict.MinimumBiddingAmount = bi(50)
	small, err := env.svc.InitiateAuction(ctx, strict)
	require.NoError(t, err)
	_, err = env.svc.PlaceOrders(ctx, small, b1Addr, []OrderSpec{{BuyAmount: bi(5), SellAmount: bi(10)}}, "")
	require.ErrorIs(t, err, domain.ErrOrderBelowMinimum)

	env.advance(2 * time.Hour)
	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(5), SellAmount: bi(10)}}, "")
	require.ErrorIs(t, err, domain.ErrAuctionEnded)
}

func TestPlaceOrdersEscrowAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)

	keys, err := env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{
		{BuyAmount: bi(50), SellAmount: bi(100)},
		{BuyAmount: bi(40), SellAmount: bi(90)},
	}, "")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, bi(999_810), env.balance(t, assetB, b1Addr))

	// Re-placing an active order must not escrow again.
	keys, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{
		{BuyAmount: bi(50), SellAmount: bi(100)},
	}, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, bi(999_810), env.balance(t, assetB, b1Addr))

	ok, err := env.svc.ContainsOrder(ctx, id, domain.NewOrder(2, bi(50), bi(100)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancelOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(100)}}, "")
	require.NoError(t, err)
	o := domain.NewOrder(2, bi(50), bi(100))

	_, err = env.svc.CancelOrders(ctx, id, b2Addr, []domain.Order{o})
	require.ErrorIs(t, err, domain.ErrCancelOnlyOwnOrders)

	refund, err := env.svc.CancelOrders(ctx, id, b1Addr, []domain.Order{o})
	require.NoError(t, err)
	assert.Equal(t, bi(100), refund)
	assert.Equal(t, bi(1_000_000), env.balance(t, assetB, b1Addr))

	// Cancelling again refunds exactly zero, without error.
	refund, err = env.svc.CancelOrders(ctx, id, b1Addr, []domain.Order{o})
	require.NoError(t, err)
	assert.Zero(t, refund.Sign())

	env.advance(45 * time.Minute)
	_, err = env.svc.CancelOrders(ctx, id, b1Addr, []domain.Order{o})
	require.ErrorIs(t, err, domain.ErrCancellationEnded)
}

func TestSettleAndClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(100)}}, "")
	require.NoError(t, err)
	_, err = env.svc.PlaceOrders(ctx, id, b2Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(80)}}, "")
	require.NoError(t, err)

	o1 := domain.NewOrder(2, bi(50), bi(100))
	o2 := domain.NewOrder(3, bi(50), bi(80))

	_, err = env.svc.Claim(ctx, id, []domain.Order{o1})
	require.ErrorIs(t, err, domain.ErrNotSettled)

	_, err = env.svc.Settle(ctx, id)
	require.ErrorIs(t, err, domain.ErrAuctionNotClosed)

	env.advance(2 * time.Hour)
	res, err := env.svc.Settle(ctx, id)
	require.NoError(t, err)

	// The second bid is marginal, partially filled with 60 of its 80.
	assert.True(t, res.ClearingOrder.Equal(o2))
	assert.Equal(t, bi(60), res.VolumeClearingOrder)
	assert.Equal(t, bi(160), res.RaisedBiddingAmount)
	assert.Equal(t, bi(100), res.SoldAuctionedAmount)
	assert.False(t, res.FundingThresholdNotReached)

	// Raised 160 sits in tier one (rate 10/1000): fee floors to 1.
	assert.Equal(t, uint64(10), res.FeeNumerator)
	assert.Equal(t, bi(1), res.FeeAmount)
	assert.Equal(t, bi(159), env.balance(t, assetB, aAddr))
	assert.Equal(t, bi(1), env.balance(t, assetB, testFeeParams().FeeReceiver))

	_, err = env.svc.Settle(ctx, id)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)

	_, err = env.svc.Claim(ctx, id, []domain.Order{o1, o2})
	require.ErrorIs(t, err, domain.ErrClaimMixedUsers)

	// Fully filled below clearing: 100 bidding converts to floor(100*50/80).
	claim, err := env.svc.Claim(ctx, id, []domain.Order{o1})
	require.NoError(t, err)
	assert.Equal(t, bi(62), claim.AuctionedAmount)
	assert.Zero(t, claim.BiddingAmount.Sign())
	assert.Equal(t, bi(62), env.balance(t, assetA, b1Addr))

	_, err = env.svc.Claim(ctx, id, []domain.Order{o1})
	require.ErrorIs(t, err, domain.ErrOrderAlreadyClaimed)

	// Marginal order: 60 of 80 filled, 20 refunded.
	claim, err = env.svc.Claim(ctx, id, []domain.Order{o2})
	require.NoError(t, err)
	assert.Equal(t, bi(37), claim.AuctionedAmount)
	assert.Equal(t, bi(20), claim.BiddingAmount)
	assert.Equal(t, bi(37), env.balance(t, assetA, b2Addr))
	assert.Equal(t, bi(1_000_000-80+20), env.balance(t, assetB, b2Addr))
}

func TestSettleFundingThresholdNotReached(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.params()
	p.MinFundingThreshold = bi(1_000)
	id, err := env.svc.InitiateAuction(ctx, p)
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(100)}}, "")
	require.NoError(t, err)

	env.advance(2 * time.Hour)
	res, err := env.svc.Settle(ctx, id)
	require.NoError(t, err)

	assert.True(t, res.FundingThresholdNotReached)
	assert.Zero(t, res.FeeAmount.Sign())
	assert.Zero(t, res.SoldAuctionedAmount.Sign())
	// The full lot went back to the auctioneer.
	assert.Equal(t, bi(1_000_000), env.balance(t, assetA, aAddr))

	// Every bid is refunded in full regardless of price.
	claim, err := env.svc.Claim(ctx, id, []domain.Order{domain.NewOrder(2, bi(50), bi(100))})
	require.NoError(t, err)
	assert.Zero(t, claim.AuctionedAmount.Sign())
	assert.Equal(t, bi(100), claim.BiddingAmount)
	assert.Equal(t, bi(1_000_000), env.balance(t, assetB, b1Addr))
}

func TestClaimCreditsReferralReward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.referrals.RegisterCode(ctx, "ALPHA", refOwner))

	p := env.params()
	p.ReferralFeeNumerator = 100
	id, err := env.svc.InitiateAuction(ctx, p)
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(100)}}, "ALPHA")
	require.NoError(t, err)
	_, err = env.svc.PlaceOrders(ctx, id, b2Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(80)}}, "")
	require.NoError(t, err)

	env.advance(2 * time.Hour)
	_, err = env.svc.Settle(ctx, id)
	require.NoError(t, err)

	// 10% of the filled 62 auctioned units goes to the code owner.
	claim, err := env.svc.Claim(ctx, id, []domain.Order{domain.NewOrder(2, bi(50), bi(100))})
	require.NoError(t, err)
	assert.Equal(t, bi(56), claim.AuctionedAmount)

	bal, err := env.referrals.Balance(ctx, refOwner, assetA)
	require.NoError(t, err)
	assert.Equal(t, bi(6), bal)
}

func TestUnregisteredReferralCodeIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.params()
	p.ReferralFeeNumerator = 100
	id, err := env.svc.InitiateAuction(ctx, p)
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(100)}}, "NOBODY")
	require.NoError(t, err)
	_, err = env.svc.PlaceOrders(ctx, id, b2Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(80)}}, "")
	require.NoError(t, err)

	env.advance(2 * time.Hour)
	_, err = env.svc.Settle(ctx, id)
	require.NoError(t, err)

	claim, err := env.svc.Claim(ctx, id, []domain.Order{domain.NewOrder(2, bi(50), bi(100))})
	require.NoError(t, err)
	assert.Equal(t, bi(62), claim.AuctionedAmount)
}

func TestPrecalculateSellAmountSum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.params()
	p.AuctionedSellAmount = bi(100_000)
	id, err := env.svc.InitiateAuction(ctx, p)
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{
		{BuyAmount: bi(10), SellAmount: bi(100)},
		{BuyAmount: bi(20), SellAmount: bi(100)},
		{BuyAmount: bi(30), SellAmount: bi(100)},
	}, "")
	require.NoError(t, err)

	err = env.svc.PrecalculateSellAmountSum(ctx, id, 2)
	require.ErrorIs(t, err, domain.ErrAuctionNotClosed)

	env.advance(2 * time.Hour)
	require.NoError(t, env.svc.PrecalculateSellAmountSum(ctx, id, 2))

	rec, err := env.svc.AuctionData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, bi(200), rec.InterimSumBidAmount)
	assert.Equal(t, uint64(2), rec.InterimOrder.UserID)

	err = env.svc.PrecalculateSellAmountSum(ctx, id, 5)
	require.ErrorIs(t, err, domain.ErrQueueExhausted)

	// Settlement continues from the checkpoint; the huge lot never fills
	// and total volume below the floor degenerates to the floor price.
	res, err := env.svc.Settle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.ClearingOrder.UserID)
	assert.Equal(t, bi(100_000), res.ClearingOrder.BuyAmount)
	assert.Equal(t, bi(300), res.ClearingOrder.SellAmount)

	err = env.svc.PrecalculateSellAmountSum(ctx, id, 1)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestSetFeeParameters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.SetFeeParameters(ctx, Capability{}, testFeeParams())
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	p := testFeeParams()
	p.Tiers[0].Numerator = 20
	require.NoError(t, env.svc.SetFeeParameters(ctx, Capability{Admin: true}, p))
	assert.Equal(t, uint64(20), env.svc.FeeParameters().Tiers[0].Numerator)

	bad := testFeeParams()
	bad.Tiers[0].Numerator = domain.FeeDenominator
	require.Error(t, env.svc.SetFeeParameters(ctx, Capability{Admin: true}, bad))
}

func TestFeeRateSnapshottedAtSettlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(200)}}, "")
	require.NoError(t, err)

	// The schedule changes before settlement: the new rate applies.
	p := testFeeParams()
	p.Tiers[0].Numerator = 20
	require.NoError(t, env.svc.SetFeeParameters(ctx, Capability{Admin: true}, p))

	env.advance(2 * time.Hour)
	res, err := env.svc.Settle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), res.FeeNumerator)

	// Changing the schedule after settlement never touches the record.
	require.NoError(t, env.svc.SetFeeParameters(ctx, Capability{Admin: true}, testFeeParams()))
	rec, err := env.svc.AuctionData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), rec.FeeNumerator)
}

func TestLoadBooksRebuildsActiveOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)

	_, err = env.svc.PlaceOrders(ctx, id, b1Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(100)}}, "")
	require.NoError(t, err)
	_, err = env.svc.PlaceOrders(ctx, id, b2Addr, []OrderSpec{{BuyAmount: bi(50), SellAmount: bi(80)}}, "")
	require.NoError(t, err)
	_, err = env.svc.CancelOrders(ctx, id, b2Addr, []domain.Order{domain.NewOrder(3, bi(50), bi(80))})
	require.NoError(t, err)

	// Simulate a restart: fresh book, same stores.
	env.svc.book = orderbook.New()
	require.NoError(t, env.svc.LoadBooks(ctx))

	ok, err := env.svc.ContainsOrder(ctx, id, domain.NewOrder(2, bi(50), bi(100)))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.svc.ContainsOrder(ctx, id, domain.NewOrder(3, bi(50), bi(80)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecondsRemaining(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.svc.InitiateAuction(ctx, env.params())
	require.NoError(t, err)

	left, err := env.svc.SecondsRemaining(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), left)

	env.advance(2 * time.Hour)
	left, err = env.svc.SecondsRemaining(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, left)
}
