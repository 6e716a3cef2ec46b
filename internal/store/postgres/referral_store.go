package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// ReferralStore implements domain.ReferralStore using PostgreSQL.
type ReferralStore struct {
	pool *pgxpool.Pool
}

// NewReferralStore creates a new ReferralStore backed by the given pool.
func NewReferralStore(pool *pgxpool.Pool) *ReferralStore {
	return &ReferralStore{pool: pool}
}

// RegisterCode binds a code to an owner. Uniqueness of both the code and
// the owner is enforced by the schema.
func (s *ReferralStore) RegisterCode(ctx context.Context, code domain.ReferralCode, owner common.Address) error {
	const query = `INSERT INTO referral_codes (code, owner) VALUES ($1, $2)`
	_, err := s.pool.Exec(ctx, query, string(code), owner.Hex())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrCodeAlreadyRegistered
		}
		return fmt.Errorf("postgres: register code %q: %w", code, err)
	}
	return nil
}

// CodeOwner resolves a code to its owner.
func (s *ReferralStore) CodeOwner(ctx context.Context, code domain.ReferralCode) (common.Address, error) {
	const query = `SELECT owner FROM referral_codes WHERE code = $1`
	var owner string
	err := s.pool.QueryRow(ctx, query, string(code)).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, domain.ErrNotFound
		}
		return common.Address{}, fmt.Errorf("postgres: owner of code %q: %w", code, err)
	}
	return common.HexToAddress(owner), nil
}

// AddressCode resolves an owner to its registered code.
func (s *ReferralStore) AddressCode(ctx context.Context, owner common.Address) (domain.ReferralCode, error) {
	const query = `SELECT code FROM referral_codes WHERE owner = $1`
	var code string
	err := s.pool.QueryRow(ctx, query, owner.Hex()).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotRegistered
		}
		return "", fmt.Errorf("postgres: code of %s: %w", owner.Hex(), err)
	}
	return domain.ReferralCode(code), nil
}

// Credit adds amount to the owner's balance in asset.
func (s *ReferralStore) Credit(ctx context.Context, owner, asset common.Address, amount *big.Int) error {
	// Amounts are decimal text; the addition happens in SQL via numeric
	// casts, which cover the 96-bit range comfortably.
	const query = `
		INSERT INTO referral_balances (owner, asset, amount) VALUES ($1, $2, $3)
		ON CONFLICT (owner, asset) DO UPDATE
		SET amount = (referral_balances.amount::numeric + EXCLUDED.amount::numeric)::text`
	_, err := s.pool.Exec(ctx, query, owner.Hex(), asset.Hex(), amount.String())
	if err != nil {
		return fmt.Errorf("postgres: credit %s to %s: %w", amount, owner.Hex(), err)
	}
	return nil
}

// Debit atomically subtracts amount, failing when the balance is short.
func (s *ReferralStore) Debit(ctx context.Context, owner, asset common.Address, amount *big.Int) error {
	const query = `
		UPDATE referral_balances
		SET amount = (amount::numeric - $3::numeric)::text
		WHERE owner = $1 AND asset = $2 AND amount::numeric >= $3::numeric`
	tag, err := s.pool.Exec(ctx, query, owner.Hex(), asset.Hex(), amount.String())
	if err != nil {
		return fmt.Errorf("postgres: debit %s from %s: %w", amount, owner.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Balance returns the owner's balance in asset, zero when absent.
func (s *ReferralStore) Balance(ctx context.Context, owner, asset common.Address) (*big.Int, error) {
	const query = `SELECT amount FROM referral_balances WHERE owner = $1 AND asset = $2`
	var amount string
	err := s.pool.QueryRow(ctx, query, owner.Hex(), asset.Hex()).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: balance of %s: %w", owner.Hex(), err)
	}
	return parseAmount(amount)
}

// SetWithdrawOpen flips the single-row withdraw switch.
func (s *ReferralStore) SetWithdrawOpen(ctx context.Context, open bool) error {
	const query = `UPDATE referral_settings SET withdraw_open = $1 WHERE id`
	if _, err := s.pool.Exec(ctx, query, open); err != nil {
		return fmt.Errorf("postgres: set withdraw switch: %w", err)
	}
	return nil
}

// WithdrawOpen reads the withdraw switch.
func (s *ReferralStore) WithdrawOpen(ctx context.Context) (bool, error) {
	const query = `SELECT withdraw_open FROM referral_settings WHERE id`
	var open bool
	if err := s.pool.QueryRow(ctx, query).Scan(&open); err != nil {
		return false, fmt.Errorf("postgres: read withdraw switch: %w", err)
	}
	return open, nil
}
