package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Insert records a placed order. Re-inserting an existing key resets it
// to placed (covers a cancelled order being placed again).
func (s *OrderStore) Insert(ctx context.Context, o domain.BookOrder) error {
	const query = `
		INSERT INTO orders (
			auction_id, order_key, user_id, buy_amount, sell_amount,
			referral_code, status, placed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (auction_id, order_key) DO UPDATE
		SET status = EXCLUDED.status, referral_code = EXCLUDED.referral_code,
		    placed_at = EXCLUDED.placed_at`
	_, err := s.pool.Exec(ctx, query,
		o.AuctionID,
		o.Order.MustEncode().Hex(),
		o.Order.UserID,
		o.Order.BuyAmount.String(),
		o.Order.SellAmount.String(),
		string(o.ReferralCode),
		string(o.Status),
		o.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	return nil
}

// Get fetches one order by its encoded key.
func (s *OrderStore) Get(ctx context.Context, auctionID uint64, key common.Hash) (domain.BookOrder, error) {
	const query = `
		SELECT auction_id, order_key, referral_code, status, placed_at
		FROM orders WHERE auction_id = $1 AND order_key = $2`

	var (
		o       domain.BookOrder
		keyHex  string
		code    string
		status  string
	)
	err := s.pool.QueryRow(ctx, query, auctionID, key.Hex()).Scan(
		&o.AuctionID, &keyHex, &code, &status, &o.PlacedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BookOrder{}, domain.ErrNotFound
		}
		return domain.BookOrder{}, fmt.Errorf("postgres: get order %s: %w", key.Hex(), err)
	}
	o.Order = domain.DecodeOrder(common.HexToHash(keyHex))
	o.ReferralCode = domain.ReferralCode(code)
	o.Status = domain.BookOrderStatus(status)
	return o, nil
}

// MarkCancelled flips an active order to cancelled.
func (s *OrderStore) MarkCancelled(ctx context.Context, auctionID uint64, key common.Hash) error {
	const query = `
		UPDATE orders SET status = $3
		WHERE auction_id = $1 AND order_key = $2 AND status = $4`
	tag, err := s.pool.Exec(ctx, query,
		auctionID, key.Hex(), string(domain.BookOrderCancelled), string(domain.BookOrderPlaced))
	if err != nil {
		return fmt.Errorf("postgres: cancel order %s: %w", key.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkClaimed flips a batch of orders to claimed in one transaction; if
// any order is not currently placed, the whole batch rolls back.
func (s *OrderStore) MarkClaimed(ctx context.Context, auctionID uint64, keys []common.Hash) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		UPDATE orders SET status = $3
		WHERE auction_id = $1 AND order_key = $2 AND status = $4`
	for _, key := range keys {
		tag, err := tx.Exec(ctx, query,
			auctionID, key.Hex(), string(domain.BookOrderClaimed), string(domain.BookOrderPlaced))
		if err != nil {
			return fmt.Errorf("postgres: claim order %s: %w", key.Hex(), err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrOrderAlreadyClaimed
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit claim tx: %w", err)
	}
	return nil
}

// ListActive returns every placed order of an auction.
func (s *OrderStore) ListActive(ctx context.Context, auctionID uint64) ([]domain.BookOrder, error) {
	const query = `
		SELECT auction_id, order_key, referral_code, status, placed_at
		FROM orders
		WHERE auction_id = $1 AND status = $2
		ORDER BY order_key`

	return s.listOrders(ctx, query, auctionID, string(domain.BookOrderPlaced))
}

// ListAll returns the full bid history of an auction, cancelled and
// claimed orders included.
func (s *OrderStore) ListAll(ctx context.Context, auctionID uint64) ([]domain.BookOrder, error) {
	const query = `
		SELECT auction_id, order_key, referral_code, status, placed_at
		FROM orders
		WHERE auction_id = $1
		ORDER BY order_key`

	return s.listOrders(ctx, query, auctionID)
}

func (s *OrderStore) listOrders(ctx context.Context, query string, args ...any) ([]domain.BookOrder, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.BookOrder
	for rows.Next() {
		var (
			o      domain.BookOrder
			keyHex string
			code   string
			status string
		)
		if err := rows.Scan(&o.AuctionID, &keyHex, &code, &status, &o.PlacedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Order = domain.DecodeOrder(common.HexToHash(keyHex))
		o.ReferralCode = domain.ReferralCode(code)
		o.Status = domain.BookOrderStatus(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return out, nil
}
