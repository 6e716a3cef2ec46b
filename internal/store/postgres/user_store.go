package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL. Ids come from
// a sequence starting at 1; id 0 stays reserved for synthetic orders.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Register binds a fresh user id to the address. A second registration
// of the same address fails with the double-registration error.
func (s *UserStore) Register(ctx context.Context, addr common.Address) (uint64, error) {
	const query = `INSERT INTO users (address) VALUES ($1) RETURNING id`
	var id uint64
	err := s.pool.QueryRow(ctx, query, addr.Hex()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, domain.ErrCodeAlreadyRegistered
		}
		return 0, fmt.Errorf("postgres: register user %s: %w", addr.Hex(), err)
	}
	return id, nil
}

// UserID resolves the user id of a registered address.
func (s *UserStore) UserID(ctx context.Context, addr common.Address) (uint64, error) {
	const query = `SELECT id FROM users WHERE address = $1`
	var id uint64
	err := s.pool.QueryRow(ctx, query, addr.Hex()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: user id for %s: %w", addr.Hex(), err)
	}
	return id, nil
}

// Address resolves a user id back to its address.
func (s *UserStore) Address(ctx context.Context, userID uint64) (common.Address, error) {
	const query = `SELECT address FROM users WHERE id = $1`
	var addr string
	err := s.pool.QueryRow(ctx, query, userID).Scan(&addr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, domain.ErrNotFound
		}
		return common.Address{}, fmt.Errorf("postgres: address for user %d: %w", userID, err)
	}
	return common.HexToAddress(addr), nil
}
