package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionColumns = `
	id, auctioning_asset, bidding_asset, auctioneer, auctioneer_user_id,
	cancellation_end_date, end_date, initial_order_key,
	minimum_bidding_amount, min_funding_threshold,
	fee_numerator, referral_fee_numerator,
	interim_sum_bid_amount, interim_order_key,
	clearing_order_key, clearing_volume, threshold_not_reached,
	created_at, settled_at`

// Create inserts a new auction record and returns its assigned id.
func (s *AuctionStore) Create(ctx context.Context, rec *domain.AuctionRecord) (uint64, error) {
	const query = `
		INSERT INTO auctions (
			auctioning_asset, bidding_asset, auctioneer, auctioneer_user_id,
			cancellation_end_date, end_date, initial_order_key,
			minimum_bidding_amount, min_funding_threshold,
			fee_numerator, referral_fee_numerator,
			interim_sum_bid_amount, interim_order_key,
			clearing_order_key, clearing_volume, threshold_not_reached,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`

	initialKey, err := rec.InitialAuctionOrder.Encode()
	if err != nil {
		return 0, fmt.Errorf("postgres: encode initial order: %w", err)
	}

	var id uint64
	err = s.pool.QueryRow(ctx, query,
		rec.AuctioningAsset.Hex(),
		rec.BiddingAsset.Hex(),
		rec.Auctioneer.Hex(),
		rec.AuctioneerUserID,
		rec.OrderCancellationEndDate,
		rec.AuctionEndDate,
		initialKey.Hex(),
		rec.MinimumBiddingAmount.String(),
		rec.MinFundingThreshold.String(),
		rec.FeeNumerator,
		rec.ReferralFeeNumerator,
		rec.InterimSumBidAmount.String(),
		rec.InterimOrder.MustEncode().Hex(),
		rec.ClearingPriceOrder.MustEncode().Hex(),
		rec.VolumeClearingPriceOrder.String(),
		rec.MinFundingThresholdNotReached,
		rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create auction: %w", err)
	}
	rec.ID = id
	return id, nil
}

// Get fetches one auction record by id.
func (s *AuctionStore) Get(ctx context.Context, id uint64) (*domain.AuctionRecord, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	rec, err := scanAuction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get auction %d: %w", id, err)
	}
	return rec, nil
}

// List returns auction records ordered by id with pagination.
func (s *AuctionStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.AuctionRecord, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions ORDER BY id`
	args := []any{}
	argIdx := 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuctionRecord
	for rows.Next() {
		rec, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list auctions rows: %w", err)
	}
	return out, nil
}

// SaveCheckpoint persists the incremental clearing-scan checkpoint.
func (s *AuctionStore) SaveCheckpoint(ctx context.Context, id uint64, sum *big.Int, interim domain.Order) error {
	const query = `
		UPDATE auctions
		SET interim_sum_bid_amount = $2, interim_order_key = $3
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, sum.String(), interim.MustEncode().Hex())
	if err != nil {
		return fmt.Errorf("postgres: save checkpoint for auction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveSettlement persists the clearing outcome.
func (s *AuctionStore) SaveSettlement(ctx context.Context, rec *domain.AuctionRecord) error {
	const query = `
		UPDATE auctions
		SET clearing_order_key = $2, clearing_volume = $3,
		    threshold_not_reached = $4, fee_numerator = $5, settled_at = $6
		WHERE id = $1 AND settled_at IS NULL`
	tag, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.ClearingPriceOrder.MustEncode().Hex(),
		rec.VolumeClearingPriceOrder.String(),
		rec.MinFundingThresholdNotReached,
		rec.FeeNumerator,
		rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save settlement for auction %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadySettled
	}
	return nil
}

func scanAuction(row pgx.Row) (*domain.AuctionRecord, error) {
	var (
		rec                                      domain.AuctionRecord
		auctioning, bidding, auctioneer          string
		initialKey, interimKey, clearingKey      string
		minBid, threshold, interimSum, clearVol  string
	)
	err := row.Scan(
		&rec.ID, &auctioning, &bidding, &auctioneer, &rec.AuctioneerUserID,
		&rec.OrderCancellationEndDate, &rec.AuctionEndDate, &initialKey,
		&minBid, &threshold,
		&rec.FeeNumerator, &rec.ReferralFeeNumerator,
		&interimSum, &interimKey,
		&clearingKey, &clearVol, &rec.MinFundingThresholdNotReached,
		&rec.CreatedAt, &rec.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	rec.AuctioningAsset = common.HexToAddress(auctioning)
	rec.BiddingAsset = common.HexToAddress(bidding)
	rec.Auctioneer = common.HexToAddress(auctioneer)
	rec.InitialAuctionOrder = domain.DecodeOrder(common.HexToHash(initialKey))
	rec.InterimOrder = domain.DecodeOrder(common.HexToHash(interimKey))
	rec.ClearingPriceOrder = domain.DecodeOrder(common.HexToHash(clearingKey))

	if rec.MinimumBiddingAmount, err = parseAmount(minBid); err != nil {
		return nil, err
	}
	if rec.MinFundingThreshold, err = parseAmount(threshold); err != nil {
		return nil, err
	}
	if rec.InterimSumBidAmount, err = parseAmount(interimSum); err != nil {
		return nil, err
	}
	if rec.VolumeClearingPriceOrder, err = parseAmount(clearVol); err != nil {
		return nil, err
	}
	return &rec, nil
}
