package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/orderbook"
)

// settleLockTTL bounds how long a settlement holds its per-auction lock.
const settleLockTTL = 30 * time.Second

// Capability is the permission token for administrative mutations. The
// transport layer mints it after authenticating the caller; the service
// never inspects caller identity itself.
type Capability struct {
	Admin bool
}

// Service coordinates the auction lifecycle against the durable stores,
// the in-memory order book and the asset ledger. All mutating operations
// are atomic from the caller's perspective: they either commit fully or
// return an error with state unchanged.
type Service struct {
	auctions  domain.AuctionStore
	orders    domain.OrderStore
	users     domain.UserStore
	referrals domain.ReferralStore
	audit     domain.AuditStore
	book      *orderbook.Book
	ledger    domain.AssetLedger
	oracle    domain.PriceOracle
	locker    domain.Locker
	sink      domain.EventSink
	cache     domain.AuctionCache
	logger    *slog.Logger

	// house is the escrow account holding lots and bids between
	// initiation and settlement/claims.
	house common.Address

	feeMu     sync.RWMutex
	feeParams domain.FeeParameters

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Service. The fee schedule starts with the given defaults
// and can be changed later through SetFeeParameters.
func New(
	auctions domain.AuctionStore,
	orders domain.OrderStore,
	users domain.UserStore,
	referrals domain.ReferralStore,
	audit domain.AuditStore,
	book *orderbook.Book,
	ledger domain.AssetLedger,
	oracle domain.PriceOracle,
	locker domain.Locker,
	house common.Address,
	feeParams domain.FeeParameters,
	logger *slog.Logger,
) *Service {
	return &Service{
		auctions:  auctions,
		orders:    orders,
		users:     users,
		referrals: referrals,
		audit:     audit,
		book:      book,
		ledger:    ledger,
		oracle:    oracle,
		locker:    locker,
		house:     house,
		feeParams: feeParams,
		logger:    logger,
		now:       time.Now,
	}
}

// WithEventSink attaches an event sink for websocket fan-out.
func (s *Service) WithEventSink(sink domain.EventSink) *Service {
	s.sink = sink
	return s
}

// WithCache attaches a read-through cache for auction records. Mutating
// operations invalidate the cached entry; reads fall back to the store on
// a miss or a cache failure.
func (s *Service) WithCache(cache domain.AuctionCache) *Service {
	s.cache = cache
	return s
}

// WithClock replaces the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) publish(ev domain.Event) {
	if s.sink != nil {
		ev.At = s.now().UTC()
		s.sink.Publish(ev)
	}
}

// RegisterUser binds an address to a fresh user id. Registering the same
// address twice fails with E25.
func (s *Service) RegisterUser(ctx context.Context, addr common.Address) (uint64, error) {
	id, err := s.users.Register(ctx, addr)
	if err != nil {
		return 0, err
	}
	s.logger.Info("auction: user registered",
		slog.String("address", addr.Hex()),
		slog.Uint64("user_id", id),
	)
	return id, nil
}

// UserID resolves the user id of a registered address.
func (s *Service) UserID(ctx context.Context, addr common.Address) (uint64, error) {
	return s.users.UserID(ctx, addr)
}

// InitiateParams are the auctioneer-supplied auction parameters.
type InitiateParams struct {
	AuctioningAsset          common.Address
	BiddingAsset             common.Address
	Auctioneer               common.Address
	AuctionedSellAmount      *big.Int
	MinBuyAmount             *big.Int
	OrderCancellationEndDate time.Time
	AuctionEndDate           time.Time
	MinimumBiddingAmount     *big.Int
	MinFundingThreshold      *big.Int
	ReferralFeeNumerator     uint64
}

// InitiateAuction validates the parameters (E9-E13), escrows the lot and
// creates the auction record in AcceptingOrders.
func (s *Service) InitiateAuction(ctx context.Context, p InitiateParams) (uint64, error) {
	now := s.now()
	switch {
	case p.AuctionedSellAmount == nil || p.AuctionedSellAmount.Sign() <= 0:
		return 0, domain.ErrZeroAuctionedAmount
	case p.MinBuyAmount == nil || p.MinBuyAmount.Sign() <= 0:
		return 0, domain.ErrAuctionIsGiveaway
	case p.MinimumBiddingAmount == nil || p.MinimumBiddingAmount.Sign() <= 0:
		return 0, domain.ErrZeroMinimumBidAmount
	case p.OrderCancellationEndDate.After(p.AuctionEndDate):
		return 0, domain.ErrCancellationAfterEnd
	case !p.AuctionEndDate.After(now):
		return 0, domain.ErrAuctionEndInPast
	}
	if p.ReferralFeeNumerator >= domain.FeeDenominator {
		return 0, fmt.Errorf("initiate auction: referral fee numerator %d must be below %d",
			p.ReferralFeeNumerator, domain.FeeDenominator)
	}

	auctioneerID, err := s.users.UserID(ctx, p.Auctioneer)
	if err != nil {
		return 0, fmt.Errorf("initiate auction: auctioneer: %w", err)
	}

	initial := domain.NewOrder(auctioneerID, p.MinBuyAmount, p.AuctionedSellAmount)
	if _, err := initial.Encode(); err != nil {
		return 0, fmt.Errorf("initiate auction: %w", err)
	}

	// Escrow the full lot up front.
	if err := s.ledger.Transfer(ctx, p.AuctioningAsset, p.Auctioneer, s.house, p.AuctionedSellAmount); err != nil {
		return 0, fmt.Errorf("initiate auction: escrow lot: %w", errors.Join(domain.ErrTransferFailed, err))
	}

	s.feeMu.RLock()
	defaultFee := s.feeParams.Tiers[4].Numerator
	s.feeMu.RUnlock()

	rec := &domain.AuctionRecord{
		AuctioningAsset:          p.AuctioningAsset,
		BiddingAsset:             p.BiddingAsset,
		Auctioneer:               p.Auctioneer,
		AuctioneerUserID:         auctioneerID,
		OrderCancellationEndDate: p.OrderCancellationEndDate,
		AuctionEndDate:           p.AuctionEndDate,
		InitialAuctionOrder:      initial,
		MinimumBiddingAmount:     new(big.Int).Set(p.MinimumBiddingAmount),
		MinFundingThreshold:      new(big.Int).Set(p.MinFundingThreshold),
		FeeNumerator:             defaultFee,
		ReferralFeeNumerator:     p.ReferralFeeNumerator,
		InterimSumBidAmount:      new(big.Int),
		InterimOrder:             domain.Order{BuyAmount: new(big.Int), SellAmount: new(big.Int)},
		ClearingPriceOrder:       domain.Order{BuyAmount: new(big.Int), SellAmount: new(big.Int)},
		VolumeClearingPriceOrder: new(big.Int),
		CreatedAt:                now.UTC(),
	}

	id, err := s.auctions.Create(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("initiate auction: %w", err)
	}

	s.logger.Info("auction: initiated",
		slog.Uint64("auction_id", id),
		slog.String("auctioning_asset", p.AuctioningAsset.Hex()),
		slog.String("bidding_asset", p.BiddingAsset.Hex()),
		slog.String("lot", p.AuctionedSellAmount.String()),
	)
	_ = s.audit.Log(ctx, "auction_initiated", map[string]any{
		"auction_id": id,
		"lot":        p.AuctionedSellAmount.String(),
		"min_buy":    p.MinBuyAmount.String(),
	})
	s.publish(domain.Event{Type: domain.EventAuctionCreated, AuctionID: id})
	return id, nil
}

// OrderSpec is one bid in a placement batch.
type OrderSpec struct {
	BuyAmount  *big.Int
	SellAmount *big.Int
}

// PlaceOrders places a batch of sell orders for the given user. Every
// order must beat the auction floor price (E16), carry a positive buy
// amount (E15) and meet the per-order minimum (E17). Re-placing an order
// already in the book is skipped without escrow. The bidding-asset escrow
// for all newly inserted orders is taken in one transfer; a transfer
// failure unwinds the inserts.
func (s *Service) PlaceOrders(ctx context.Context, auctionID uint64, userAddr common.Address, specs []OrderSpec, code domain.ReferralCode) ([]common.Hash, error) {
	rec, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("place orders: auction %d: %w", auctionID, err)
	}
	now := s.now()
	if rec.Status(now) != domain.StatusAcceptingOrders {
		return nil, domain.ErrAuctionEnded
	}

	userID, err := s.users.UserID(ctx, userAddr)
	if err != nil {
		return nil, fmt.Errorf("place orders: %w", err)
	}

	// An unregistered or empty code is silently "no referral".
	if code != "" {
		if _, err := s.referrals.CodeOwner(ctx, code); err != nil {
			code = ""
		}
	}

	initial := rec.InitialAuctionOrder
	sumEscrow := new(big.Int)
	var placed []domain.Order
	var keys []common.Hash

	for _, spec := range specs {
		if spec.BuyAmount == nil || spec.BuyAmount.Sign() <= 0 {
			return nil, domain.ErrZeroBuyAmount
		}
		if spec.SellAmount == nil || spec.SellAmount.Sign() <= 0 {
			return nil, domain.ErrZeroBuyAmount
		}
		// The bid's limit price must be strictly better than the floor
		// defined by the inverse initial order: buy*B < sell*S.
		left := new(big.Int).Mul(spec.BuyAmount, initial.BuyAmount)
		right := new(big.Int).Mul(spec.SellAmount, initial.SellAmount)
		if left.Cmp(right) >= 0 {
			return nil, domain.ErrLimitPriceNotBetter
		}
		if spec.SellAmount.Cmp(rec.MinimumBiddingAmount) < 0 {
			return nil, domain.ErrOrderBelowMinimum
		}

		o := domain.NewOrder(userID, spec.BuyAmount, spec.SellAmount)
		key, err := o.Encode()
		if err != nil {
			return nil, fmt.Errorf("place orders: %w", err)
		}

		inserted, err := s.book.Insert(auctionID, o)
		if err != nil {
			return nil, fmt.Errorf("place orders: %w", err)
		}
		if !inserted {
			// Identical order already active: escrow neutral no-op.
			continue
		}
		placed = append(placed, o)
		keys = append(keys, key)
		sumEscrow.Add(sumEscrow, o.SellAmount)
	}

	if len(placed) == 0 {
		return nil, nil
	}

	if err := s.ledger.Transfer(ctx, rec.BiddingAsset, userAddr, s.house, sumEscrow); err != nil {
		for _, o := range placed {
			_, _ = s.book.Remove(auctionID, o)
		}
		return nil, fmt.Errorf("place orders: escrow bids: %w", errors.Join(domain.ErrTransferFailed, err))
	}

	for i, o := range placed {
		bo := domain.BookOrder{
			AuctionID:    auctionID,
			Order:        o,
			ReferralCode: code,
			Status:       domain.BookOrderPlaced,
			PlacedAt:     now.UTC(),
		}
		if err := s.orders.Insert(ctx, bo); err != nil {
			return nil, fmt.Errorf("place orders: persist %s: %w", keys[i].Hex(), err)
		}
	}

	s.logger.Info("auction: orders placed",
		slog.Uint64("auction_id", auctionID),
		slog.Uint64("user_id", userID),
		slog.Int("count", len(placed)),
		slog.String("escrowed", sumEscrow.String()),
	)
	s.publish(domain.Event{
		Type:      domain.EventOrderPlaced,
		AuctionID: auctionID,
		Detail:    map[string]any{"user_id": userID, "count": len(placed)},
	})
	return keys, nil
}

// CancelOrders cancels the given orders and refunds their escrow.
// Cancellation is idempotent: an order not active in the book refunds
// zero and is not an error. Orders of other users are rejected (E22).
func (s *Service) CancelOrders(ctx context.Context, auctionID uint64, userAddr common.Address, orders []domain.Order) (*big.Int, error) {
	rec, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("cancel orders: auction %d: %w", auctionID, err)
	}
	if !s.now().Before(rec.OrderCancellationEndDate) {
		return nil, domain.ErrCancellationEnded
	}

	userID, err := s.users.UserID(ctx, userAddr)
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}

	refund := new(big.Int)
	var removed []common.Hash
	for _, o := range orders {
		if o.UserID != userID {
			return nil, domain.ErrCancelOnlyOwnOrders
		}
		ok, err := s.book.Remove(auctionID, o)
		if err != nil {
			return nil, fmt.Errorf("cancel orders: %w", err)
		}
		if !ok {
			continue
		}
		refund.Add(refund, o.SellAmount)
		removed = append(removed, o.MustEncode())
	}

	for _, key := range removed {
		if err := s.orders.MarkCancelled(ctx, auctionID, key); err != nil {
			return nil, fmt.Errorf("cancel orders: persist %s: %w", key.Hex(), err)
		}
	}

	if refund.Sign() > 0 {
		if err := s.ledger.Transfer(ctx, rec.BiddingAsset, s.house, userAddr, refund); err != nil {
			return nil, fmt.Errorf("cancel orders: refund: %w", errors.Join(domain.ErrTransferFailed, err))
		}
	}

	s.logger.Info("auction: orders cancelled",
		slog.Uint64("auction_id", auctionID),
		slog.Uint64("user_id", userID),
		slog.Int("count", len(removed)),
		slog.String("refund", refund.String()),
	)
	s.publish(domain.Event{
		Type:      domain.EventOrderCancelled,
		AuctionID: auctionID,
		Detail:    map[string]any{"user_id": userID, "count": len(removed)},
	})
	return refund, nil
}

// PrecalculateSellAmountSum advances the clearing-scan checkpoint by
// steps orders without deciding the clearing price. It is only valid
// between auction close and settlement.
func (s *Service) PrecalculateSellAmountSum(ctx context.Context, auctionID uint64, steps int) error {
	rec, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("precalculate: auction %d: %w", auctionID, err)
	}
	switch rec.Status(s.now()) {
	case domain.StatusAcceptingOrders:
		return domain.ErrAuctionNotClosed
	case domain.StatusSettled:
		return domain.ErrAlreadySettled
	}

	cp := Checkpoint{SumBidAmount: rec.InterimSumBidAmount, Order: rec.InterimOrder}
	next := func(cursor common.Hash) (domain.Order, bool) {
		return s.book.Next(auctionID, cursor)
	}

	advanced, err := Advance(rec.InitialAuctionOrder, next, cp, steps)
	if err != nil {
		return err
	}
	if err := s.auctions.SaveCheckpoint(ctx, auctionID, advanced.SumBidAmount, advanced.Order); err != nil {
		return fmt.Errorf("precalculate: save checkpoint: %w", err)
	}
	s.invalidateCache(ctx, auctionID)

	s.logger.Debug("auction: checkpoint advanced",
		slog.Uint64("auction_id", auctionID),
		slog.Int("steps", steps),
		slog.String("sum", advanced.SumBidAmount.String()),
	)
	return nil
}

// Settle completes the clearing scan, fixes the clearing price, applies
// the funding threshold, deducts the tiered fee and releases the
// auctioneer's side of the trade. Participant orders are paid out by
// Claim. Settlement is serialized per auction via the locker.
func (s *Service) Settle(ctx context.Context, auctionID uint64) (*domain.SettlementResult, error) {
	release, err := s.locker.Acquire(ctx, fmt.Sprintf("settle:%d", auctionID), settleLockTTL)
	if err != nil {
		return nil, fmt.Errorf("settle auction %d: %w", auctionID, err)
	}
	defer release()

	rec, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("settle: auction %d: %w", auctionID, err)
	}
	switch rec.Status(s.now()) {
	case domain.StatusAcceptingOrders:
		return nil, domain.ErrAuctionNotClosed
	case domain.StatusSettled:
		return nil, domain.ErrAlreadySettled
	}

	initial := rec.InitialAuctionOrder
	cp := Checkpoint{SumBidAmount: rec.InterimSumBidAmount, Order: rec.InterimOrder}
	next := func(cursor common.Hash) (domain.Order, bool) {
		return s.book.Next(auctionID, cursor)
	}

	clearing, err := FindClearing(initial, next, cp)
	if err != nil {
		return nil, fmt.Errorf("settle auction %d: %w", auctionID, err)
	}

	notReached := rec.MinFundingThreshold.Sign() > 0 && clearing.Raised.Cmp(rec.MinFundingThreshold) < 0

	// The fee rate is fixed now, from the schedule as it stands at this
	// moment; later parameter changes never touch this auction again.
	s.feeMu.RLock()
	params := s.feeParams
	s.feeMu.RUnlock()

	result := &domain.SettlementResult{
		AuctionID:                  auctionID,
		ClearingOrder:              clearing.Order,
		VolumeClearingOrder:        clearing.Volume,
		RaisedBiddingAmount:        clearing.Raised,
		FeeAmount:                  new(big.Int),
		FundingThresholdNotReached: notReached,
	}

	if notReached {
		// Failed auction: the full lot goes back, no fee is charged.
		result.SoldAuctionedAmount = new(big.Int)
		if err := s.ledger.Transfer(ctx, rec.AuctioningAsset, s.house, rec.Auctioneer, initial.SellAmount); err != nil {
			return nil, fmt.Errorf("settle: return lot: %w", errors.Join(domain.ErrTransferFailed, err))
		}
	} else {
		rate, err := feeTierFor(ctx, s.oracle, params, rec.BiddingAsset, clearing.Raised)
		if err != nil {
			return nil, fmt.Errorf("settle auction %d: %w", auctionID, err)
		}
		result.FeeNumerator = rate
		result.FeeAmount = feeAmount(clearing.Raised, rate)
		result.SoldAuctionedAmount = SoldAmount(initial, clearing)

		unsold := new(big.Int).Sub(initial.SellAmount, result.SoldAuctionedAmount)
		if unsold.Sign() > 0 {
			if err := s.ledger.Transfer(ctx, rec.AuctioningAsset, s.house, rec.Auctioneer, unsold); err != nil {
				return nil, fmt.Errorf("settle: return unsold lot: %w", errors.Join(domain.ErrTransferFailed, err))
			}
		}
		proceeds := new(big.Int).Sub(clearing.Raised, result.FeeAmount)
		if proceeds.Sign() > 0 {
			if err := s.ledger.Transfer(ctx, rec.BiddingAsset, s.house, rec.Auctioneer, proceeds); err != nil {
				return nil, fmt.Errorf("settle: proceeds: %w", errors.Join(domain.ErrTransferFailed, err))
			}
		}
		if result.FeeAmount.Sign() > 0 {
			if err := s.ledger.Transfer(ctx, rec.BiddingAsset, s.house, params.FeeReceiver, result.FeeAmount); err != nil {
				return nil, fmt.Errorf("settle: fee: %w", errors.Join(domain.ErrTransferFailed, err))
			}
		}
	}

	settledAt := s.now().UTC()
	rec.ClearingPriceOrder = clearing.Order
	rec.VolumeClearingPriceOrder = clearing.Volume
	rec.MinFundingThresholdNotReached = notReached
	rec.FeeNumerator = result.FeeNumerator
	rec.SettledAt = &settledAt
	if err := s.auctions.SaveSettlement(ctx, rec); err != nil {
		return nil, fmt.Errorf("settle: persist: %w", err)
	}
	s.invalidateCache(ctx, auctionID)

	s.logger.Info("auction: settled",
		slog.Uint64("auction_id", auctionID),
		slog.String("clearing_order", clearing.Order.String()),
		slog.String("raised", clearing.Raised.String()),
		slog.String("fee", result.FeeAmount.String()),
		slog.Bool("funding_threshold_not_reached", notReached),
	)
	_ = s.audit.Log(ctx, "auction_settled", map[string]any{
		"auction_id": auctionID,
		"raised":     clearing.Raised.String(),
		"fee":        result.FeeAmount.String(),
		"threshold_not_reached": notReached,
	})
	s.publish(domain.Event{
		Type:      domain.EventAuctionSettled,
		AuctionID: auctionID,
		Detail: map[string]any{
			"raised":                clearing.Raised.String(),
			"threshold_not_reached": notReached,
		},
	})
	return result, nil
}

// Claim pays out a batch of settled orders. All orders in a batch must
// belong to the same user (E23); each order is redeemable exactly once
// (E24). Filled orders receive auctioned-asset proceeds at the uniform
// clearing price (minus the per-order referral fee when a registered code
// was cited); the marginal order receives its partial fill plus a
// bidding-asset refund for the rest; orders above the clearing price are
// refunded in full. If the funding threshold was not reached, every order
// is refunded in full regardless of price.
func (s *Service) Claim(ctx context.Context, auctionID uint64, orders []domain.Order) (*domain.ClaimResult, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("claim: no orders given")
	}

	rec, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("claim: auction %d: %w", auctionID, err)
	}
	if !rec.Settled() {
		return nil, domain.ErrNotSettled
	}

	userID := orders[0].UserID
	for _, o := range orders[1:] {
		if o.UserID != userID {
			return nil, domain.ErrClaimMixedUsers
		}
	}
	payoutAddr, err := s.users.Address(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("claim: user %d: %w", userID, err)
	}

	clearing := rec.ClearingPriceOrder
	priceNum, priceDen := rec.ClearingPrice()

	sumAuctioned := new(big.Int)
	sumBidding := new(big.Int)
	type referralCredit struct {
		owner  common.Address
		amount *big.Int
	}
	var referralCredits []referralCredit
	var keys []common.Hash

	for _, o := range orders {
		key, err := o.Encode()
		if err != nil {
			return nil, fmt.Errorf("claim: %w", err)
		}
		bo, err := s.orders.Get(ctx, auctionID, key)
		if err != nil || bo.Status != domain.BookOrderPlaced {
			return nil, domain.ErrOrderAlreadyClaimed
		}
		keys = append(keys, key)

		if rec.MinFundingThresholdNotReached {
			sumBidding.Add(sumBidding, o.SellAmount)
			continue
		}

		var filled *big.Int
		switch {
		case o.Equal(clearing):
			// Marginal order: partial fill recorded at settlement, rest
			// refunded.
			filled = mulDiv(rec.VolumeClearingPriceOrder, priceNum, priceDen)
			sumBidding.Add(sumBidding, new(big.Int).Sub(o.SellAmount, rec.VolumeClearingPriceOrder))
		case o.LowerPriced(clearing):
			// Fully filled below the clearing price.
			filled = mulDiv(o.SellAmount, priceNum, priceDen)
		default:
			// Priced above clearing: fully refunded.
			sumBidding.Add(sumBidding, o.SellAmount)
			continue
		}

		if bo.ReferralCode != "" && rec.ReferralFeeNumerator > 0 && filled.Sign() > 0 {
			owner, err := s.referrals.CodeOwner(ctx, bo.ReferralCode)
			if err == nil {
				cut := feeAmount(filled, rec.ReferralFeeNumerator)
				if cut.Sign() > 0 {
					filled = new(big.Int).Sub(filled, cut)
					referralCredits = append(referralCredits, referralCredit{owner: owner, amount: cut})
				}
			}
		}
		sumAuctioned.Add(sumAuctioned, filled)
	}

	if err := s.orders.MarkClaimed(ctx, auctionID, keys); err != nil {
		return nil, fmt.Errorf("claim: persist: %w", err)
	}
	for _, o := range orders {
		_, _ = s.book.Remove(auctionID, o)
	}

	if sumAuctioned.Sign() > 0 {
		if err := s.ledger.Transfer(ctx, rec.AuctioningAsset, s.house, payoutAddr, sumAuctioned); err != nil {
			return nil, fmt.Errorf("claim: payout: %w", errors.Join(domain.ErrTransferFailed, err))
		}
	}
	if sumBidding.Sign() > 0 {
		if err := s.ledger.Transfer(ctx, rec.BiddingAsset, s.house, payoutAddr, sumBidding); err != nil {
			return nil, fmt.Errorf("claim: refund: %w", errors.Join(domain.ErrTransferFailed, err))
		}
	}
	for _, rc := range referralCredits {
		if err := s.referrals.Credit(ctx, rc.owner, rec.AuctioningAsset, rc.amount); err != nil {
			return nil, fmt.Errorf("claim: referral credit: %w", err)
		}
	}

	receipt := uuid.NewString()
	s.logger.Info("auction: orders claimed",
		slog.Uint64("auction_id", auctionID),
		slog.Uint64("user_id", userID),
		slog.Int("count", len(orders)),
		slog.String("auctioned", sumAuctioned.String()),
		slog.String("refund", sumBidding.String()),
		slog.String("receipt", receipt),
	)
	_ = s.audit.Log(ctx, "orders_claimed", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
		"receipt":    receipt,
	})
	s.publish(domain.Event{
		Type:      domain.EventOrderClaimed,
		AuctionID: auctionID,
		Detail:    map[string]any{"user_id": userID, "count": len(orders)},
	})

	return &domain.ClaimResult{
		ReceiptID:       receipt,
		UserID:          userID,
		AuctionedAmount: sumAuctioned,
		BiddingAmount:   sumBidding,
		ClaimedOrders:   len(orders),
	}, nil
}

// SetFeeParameters replaces the fee schedule. Admin capability required;
// already-settled auctions keep their snapshotted rate.
func (s *Service) SetFeeParameters(ctx context.Context, cap Capability, params domain.FeeParameters) error {
	if !cap.Admin {
		return domain.ErrUnauthorized
	}
	if err := ValidateFeeParameters(params); err != nil {
		return fmt.Errorf("set fee parameters: %w", err)
	}
	s.feeMu.Lock()
	s.feeParams = params
	s.feeMu.Unlock()

	s.logger.Info("auction: fee parameters updated",
		slog.String("fee_receiver", params.FeeReceiver.Hex()),
	)
	_ = s.audit.Log(ctx, "fee_parameters_updated", map[string]any{
		"fee_receiver": params.FeeReceiver.Hex(),
	})
	return nil
}

// FeeParameters returns the current schedule.
func (s *Service) FeeParameters() domain.FeeParameters {
	s.feeMu.RLock()
	defer s.feeMu.RUnlock()
	return s.feeParams
}

// AuctionData returns the auction record, served from the cache when one
// is attached.
func (s *Service) AuctionData(ctx context.Context, auctionID uint64) (*domain.AuctionRecord, error) {
	if s.cache != nil {
		if rec, err := s.cache.Get(ctx, auctionID); err == nil {
			return rec, nil
		}
	}
	rec, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.logger.Warn("auction: cache set failed",
				slog.Uint64("auction_id", auctionID),
				slog.String("error", err.Error()),
			)
		}
	}
	return rec, nil
}

func (s *Service) invalidateCache(ctx context.Context, auctionID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, auctionID); err != nil {
		s.logger.Warn("auction: cache invalidate failed",
			slog.Uint64("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
	}
}

// ListAuctions returns auction records ordered by id.
func (s *Service) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]*domain.AuctionRecord, error) {
	return s.auctions.List(ctx, opts)
}

// SecondsRemaining reports the time left until auction close, zero once
// closed.
func (s *Service) SecondsRemaining(ctx context.Context, auctionID uint64) (int64, error) {
	rec, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	left := rec.AuctionEndDate.Sub(s.now())
	if left < 0 {
		return 0, nil
	}
	return int64(left.Seconds()), nil
}

// ContainsOrder reports whether the exact order is active in the book.
func (s *Service) ContainsOrder(ctx context.Context, auctionID uint64, o domain.Order) (bool, error) {
	return s.book.Contains(auctionID, o)
}

// LoadBooks rebuilds the in-memory order books of all unsettled auctions
// from the durable order store, called once at startup.
func (s *Service) LoadBooks(ctx context.Context) error {
	recs, err := s.auctions.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("load books: %w", err)
	}
	for _, rec := range recs {
		if rec.Settled() {
			continue
		}
		active, err := s.orders.ListActive(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("load books: auction %d: %w", rec.ID, err)
		}
		orders := make([]domain.Order, 0, len(active))
		for _, bo := range active {
			orders = append(orders, bo.Order)
		}
		if err := s.book.Load(rec.ID, orders); err != nil {
			return fmt.Errorf("load books: auction %d: %w", rec.ID, err)
		}
		s.logger.Info("auction: book rebuilt",
			slog.Uint64("auction_id", rec.ID),
			slog.Int("orders", len(orders)),
		)
	}
	return nil
}

// mulDiv computes x*num/den with floor division.
func mulDiv(x, num, den *big.Int) *big.Int {
	out := new(big.Int).Mul(x, num)
	return out.Div(out, den)
}
