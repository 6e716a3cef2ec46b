// Package referral manages referral code registration and the reward
// balances accrued from claimed auction orders.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// Capability gates the administrative withdraw switch.
type Capability struct {
	Admin bool
}

// Service exposes code registration, balance lookups and withdrawals.
// Rewards are credited by the auction claim path; this service only
// ever debits.
type Service struct {
	store  domain.ReferralStore
	ledger domain.AssetLedger
	// house is the escrow account the accrued rewards sit in until
	// withdrawal.
	house  common.Address
	logger *slog.Logger
}

func New(store domain.ReferralStore, ledger domain.AssetLedger, house common.Address, logger *slog.Logger) *Service {
	return &Service{store: store, ledger: ledger, house: house, logger: logger}
}

// RegisterCode permanently binds a code to an address. Both directions
// are exclusive: a code cannot be re-registered and an address cannot
// hold a second code (E25).
func (s *Service) RegisterCode(ctx context.Context, code domain.ReferralCode, owner common.Address) error {
	if err := code.Validate(); err != nil {
		return err
	}
	if err := s.store.RegisterCode(ctx, code, owner); err != nil {
		return fmt.Errorf("referral: register %q: %w", code, err)
	}
	s.logger.Info("referral: code registered",
		slog.String("code", string(code)),
		slog.String("owner", owner.Hex()),
	)
	return nil
}

// CodeOwner resolves a code to its owner address.
func (s *Service) CodeOwner(ctx context.Context, code domain.ReferralCode) (common.Address, error) {
	return s.store.CodeOwner(ctx, code)
}

// AddressCode resolves an address to its registered code.
func (s *Service) AddressCode(ctx context.Context, owner common.Address) (domain.ReferralCode, error) {
	return s.store.AddressCode(ctx, owner)
}

// Balance returns the unclaimed reward balance of owner in asset.
func (s *Service) Balance(ctx context.Context, owner, asset common.Address) (*big.Int, error) {
	return s.store.Balance(ctx, owner, asset)
}

// Withdraw pays out amount of the owner's reward balance. The global
// withdraw switch must be open; the balance must cover the amount.
func (s *Service) Withdraw(ctx context.Context, owner, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("referral: withdraw amount must be positive")
	}
	open, err := s.store.WithdrawOpen(ctx)
	if err != nil {
		return fmt.Errorf("referral: withdraw: %w", err)
	}
	if !open {
		return domain.ErrWithdrawClosed
	}

	if err := s.store.Debit(ctx, owner, asset, amount); err != nil {
		return fmt.Errorf("referral: withdraw %s of %s: %w", amount, asset.Hex(), err)
	}
	if err := s.ledger.Transfer(ctx, asset, s.house, owner, amount); err != nil {
		// Put the balance back so the debit does not strand funds.
		if crerr := s.store.Credit(ctx, owner, asset, amount); crerr != nil {
			err = errors.Join(err, crerr)
		}
		return fmt.Errorf("referral: withdraw payout: %w", errors.Join(domain.ErrTransferFailed, err))
	}

	s.logger.Info("referral: withdrawn",
		slog.String("owner", owner.Hex()),
		slog.String("asset", asset.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// SetWithdrawOpen flips the global withdraw switch. Admin only.
func (s *Service) SetWithdrawOpen(ctx context.Context, cap Capability, open bool) error {
	if !cap.Admin {
		return domain.ErrUnauthorized
	}
	if err := s.store.SetWithdrawOpen(ctx, open); err != nil {
		return fmt.Errorf("referral: set withdraw switch: %w", err)
	}
	s.logger.Info("referral: withdraw switch set", slog.Bool("open", open))
	return nil
}

// WithdrawOpen reports the state of the global withdraw switch.
func (s *Service) WithdrawOpen(ctx context.Context) (bool, error) {
	return s.store.WithdrawOpen(ctx)
}
