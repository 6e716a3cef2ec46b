package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// UserStore assigns user ids sequentially from 1; id 0 stays reserved
// for synthetic clearing orders.
type UserStore struct {
	mu     sync.RWMutex
	nextID uint64
	byAddr map[common.Address]uint64
	byID   map[uint64]common.Address
}

func NewUserStore() *UserStore {
	return &UserStore{
		nextID: 1,
		byAddr: make(map[common.Address]uint64),
		byID:   make(map[uint64]common.Address),
	}
}

func (s *UserStore) Register(_ context.Context, addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAddr[addr]; ok {
		return 0, domain.ErrCodeAlreadyRegistered
	}
	id := s.nextID
	s.nextID++
	s.byAddr[addr] = id
	s.byID[id] = addr
	return id, nil
}

func (s *UserStore) UserID(_ context.Context, addr common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAddr[addr]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

func (s *UserStore) Address(_ context.Context, userID uint64) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.byID[userID]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}
	return addr, nil
}
