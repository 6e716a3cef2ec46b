package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

type balanceKey struct {
	owner common.Address
	asset common.Address
}

// ReferralStore keeps code bindings and reward balances in maps.
type ReferralStore struct {
	mu           sync.RWMutex
	codeToOwner  map[domain.ReferralCode]common.Address
	ownerToCode  map[common.Address]domain.ReferralCode
	balances     map[balanceKey]*big.Int
	withdrawOpen bool
}

func NewReferralStore() *ReferralStore {
	return &ReferralStore{
		codeToOwner: make(map[domain.ReferralCode]common.Address),
		ownerToCode: make(map[common.Address]domain.ReferralCode),
		balances:    make(map[balanceKey]*big.Int),
	}
}

func (s *ReferralStore) RegisterCode(_ context.Context, code domain.ReferralCode, owner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codeToOwner[code]; ok {
		return domain.ErrCodeAlreadyRegistered
	}
	if _, ok := s.ownerToCode[owner]; ok {
		return domain.ErrCodeAlreadyRegistered
	}
	s.codeToOwner[code] = owner
	s.ownerToCode[owner] = code
	return nil
}

func (s *ReferralStore) CodeOwner(_ context.Context, code domain.ReferralCode) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.codeToOwner[code]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}
	return owner, nil
}

func (s *ReferralStore) AddressCode(_ context.Context, owner common.Address) (domain.ReferralCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.ownerToCode[owner]
	if !ok {
		return "", domain.ErrNotRegistered
	}
	return code, nil
}

func (s *ReferralStore) Credit(_ context.Context, owner, asset common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := balanceKey{owner, asset}
	bal, ok := s.balances[k]
	if !ok {
		bal = new(big.Int)
		s.balances[k] = bal
	}
	bal.Add(bal, amount)
	return nil
}

func (s *ReferralStore) Debit(_ context.Context, owner, asset common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[balanceKey{owner, asset}]
	if !ok || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	bal.Sub(bal, amount)
	return nil
}

func (s *ReferralStore) Balance(_ context.Context, owner, asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bal, ok := s.balances[balanceKey{owner, asset}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (s *ReferralStore) SetWithdrawOpen(_ context.Context, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawOpen = open
	return nil
}

func (s *ReferralStore) WithdrawOpen(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.withdrawOpen, nil
}
