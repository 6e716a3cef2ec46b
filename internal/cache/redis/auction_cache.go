package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/auctionlabs/auctiond/internal/domain"
)

const auctionTTL = 30 * time.Second

// AuctionCache keeps recently read auction snapshots so the public query
// endpoints do not hit PostgreSQL on every poll. Snapshots are short
// lived; all lifecycle mutations invalidate the entry.
//
// Key schema:
//
//	auction:{id} - JSON snapshot of the record
type AuctionCache struct {
	rdb *redis.Client
}

// NewAuctionCache creates an AuctionCache backed by the given Client.
func NewAuctionCache(c *Client) *AuctionCache {
	return &AuctionCache{rdb: c.Underlying()}
}

var _ domain.AuctionCache = (*AuctionCache)(nil)

func auctionKey(id uint64) string {
	return fmt.Sprintf("auction:%d", id)
}

// auctionSnapshot is the wire form of an AuctionRecord. Amounts travel
// as decimal strings; orders as their encoded hex keys.
type auctionSnapshot struct {
	ID                   uint64     `json:"id"`
	AuctioningAsset      string     `json:"auctioning_asset"`
	BiddingAsset         string     `json:"bidding_asset"`
	Auctioneer           string     `json:"auctioneer"`
	AuctioneerUserID     uint64     `json:"auctioneer_user_id"`
	CancellationEndDate  time.Time  `json:"cancellation_end_date"`
	EndDate              time.Time  `json:"end_date"`
	InitialOrder         string     `json:"initial_order"`
	MinimumBiddingAmount string     `json:"minimum_bidding_amount"`
	MinFundingThreshold  string     `json:"min_funding_threshold"`
	FeeNumerator         uint64     `json:"fee_numerator"`
	ReferralFeeNumerator uint64     `json:"referral_fee_numerator"`
	InterimSumBidAmount  string     `json:"interim_sum_bid_amount"`
	InterimOrder         string     `json:"interim_order"`
	ClearingOrder        string     `json:"clearing_order"`
	ClearingVolume       string     `json:"clearing_volume"`
	ThresholdNotReached  bool       `json:"threshold_not_reached"`
	CreatedAt            time.Time  `json:"created_at"`
	SettledAt            *time.Time `json:"settled_at,omitempty"`
}

// Set stores an auction snapshot with a short TTL.
func (ac *AuctionCache) Set(ctx context.Context, rec *domain.AuctionRecord) error {
	snap := auctionSnapshot{
		ID:                   rec.ID,
		AuctioningAsset:      rec.AuctioningAsset.Hex(),
		BiddingAsset:         rec.BiddingAsset.Hex(),
		Auctioneer:           rec.Auctioneer.Hex(),
		AuctioneerUserID:     rec.AuctioneerUserID,
		CancellationEndDate:  rec.OrderCancellationEndDate,
		EndDate:              rec.AuctionEndDate,
		InitialOrder:         rec.InitialAuctionOrder.MustEncode().Hex(),
		MinimumBiddingAmount: rec.MinimumBiddingAmount.String(),
		MinFundingThreshold:  rec.MinFundingThreshold.String(),
		FeeNumerator:         rec.FeeNumerator,
		ReferralFeeNumerator: rec.ReferralFeeNumerator,
		InterimSumBidAmount:  rec.InterimSumBidAmount.String(),
		InterimOrder:         rec.InterimOrder.MustEncode().Hex(),
		ClearingOrder:        rec.ClearingPriceOrder.MustEncode().Hex(),
		ClearingVolume:       rec.VolumeClearingPriceOrder.String(),
		ThresholdNotReached:  rec.MinFundingThresholdNotReached,
		CreatedAt:            rec.CreatedAt,
		SettledAt:            rec.SettledAt,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal auction %d: %w", rec.ID, err)
	}
	if err := ac.rdb.Set(ctx, auctionKey(rec.ID), data, auctionTTL).Err(); err != nil {
		return fmt.Errorf("redis: set auction %d: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a cached auction snapshot, domain.ErrNotFound on miss.
func (ac *AuctionCache) Get(ctx context.Context, id uint64) (*domain.AuctionRecord, error) {
	data, err := ac.rdb.Get(ctx, auctionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get auction %d: %w", id, err)
	}

	var snap auctionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis: unmarshal auction %d: %w", id, err)
	}
	return snap.record()
}

// Invalidate drops a cached snapshot after a lifecycle mutation.
func (ac *AuctionCache) Invalidate(ctx context.Context, id uint64) error {
	if err := ac.rdb.Del(ctx, auctionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate auction %d: %w", id, err)
	}
	return nil
}

func (s auctionSnapshot) record() (*domain.AuctionRecord, error) {
	rec := &domain.AuctionRecord{
		ID:                            s.ID,
		AuctioningAsset:               common.HexToAddress(s.AuctioningAsset),
		BiddingAsset:                  common.HexToAddress(s.BiddingAsset),
		Auctioneer:                    common.HexToAddress(s.Auctioneer),
		AuctioneerUserID:              s.AuctioneerUserID,
		OrderCancellationEndDate:      s.CancellationEndDate,
		AuctionEndDate:                s.EndDate,
		InitialAuctionOrder:           domain.DecodeOrder(common.HexToHash(s.InitialOrder)),
		FeeNumerator:                  s.FeeNumerator,
		ReferralFeeNumerator:          s.ReferralFeeNumerator,
		InterimOrder:                  domain.DecodeOrder(common.HexToHash(s.InterimOrder)),
		ClearingPriceOrder:            domain.DecodeOrder(common.HexToHash(s.ClearingOrder)),
		MinFundingThresholdNotReached: s.ThresholdNotReached,
		CreatedAt:                     s.CreatedAt,
		SettledAt:                     s.SettledAt,
	}

	var ok bool
	if rec.MinimumBiddingAmount, ok = new(big.Int).SetString(s.MinimumBiddingAmount, 10); !ok {
		return nil, fmt.Errorf("redis: malformed amount %q", s.MinimumBiddingAmount)
	}
	if rec.MinFundingThreshold, ok = new(big.Int).SetString(s.MinFundingThreshold, 10); !ok {
		return nil, fmt.Errorf("redis: malformed amount %q", s.MinFundingThreshold)
	}
	if rec.InterimSumBidAmount, ok = new(big.Int).SetString(s.InterimSumBidAmount, 10); !ok {
		return nil, fmt.Errorf("redis: malformed amount %q", s.InterimSumBidAmount)
	}
	if rec.VolumeClearingPriceOrder, ok = new(big.Int).SetString(s.ClearingVolume, 10); !ok {
		return nil, fmt.Errorf("redis: malformed amount %q", s.ClearingVolume)
	}
	return rec, nil
}
