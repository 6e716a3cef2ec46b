package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

type orderKey struct {
	auctionID uint64
	key       common.Hash
}

// OrderStore keeps durable book membership in a map.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[orderKey]domain.BookOrder
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[orderKey]domain.BookOrder)}
}

func (s *OrderStore) Insert(_ context.Context, o domain.BookOrder) error {
	k := orderKey{o.AuctionID, o.Order.MustEncode()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[k] = o
	return nil
}

func (s *OrderStore) Get(_ context.Context, auctionID uint64, key common.Hash) (domain.BookOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderKey{auctionID, key}]
	if !ok {
		return domain.BookOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *OrderStore) MarkCancelled(_ context.Context, auctionID uint64, key common.Hash) error {
	return s.setStatus(auctionID, key, domain.BookOrderCancelled)
}

func (s *OrderStore) MarkClaimed(_ context.Context, auctionID uint64, keys []common.Hash) error {
	for _, key := range keys {
		if err := s.setStatus(auctionID, key, domain.BookOrderClaimed); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderStore) setStatus(auctionID uint64, key common.Hash, status domain.BookOrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := orderKey{auctionID, key}
	o, ok := s.orders[k]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	s.orders[k] = o
	return nil
}

func (s *OrderStore) ListActive(_ context.Context, auctionID uint64) ([]domain.BookOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BookOrder
	for k, o := range s.orders {
		if k.auctionID == auctionID && o.Status == domain.BookOrderPlaced {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListAll returns the full bid history of an auction regardless of status.
func (s *OrderStore) ListAll(_ context.Context, auctionID uint64) ([]domain.BookOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BookOrder
	for k, o := range s.orders {
		if k.auctionID == auctionID {
			out = append(out, o)
		}
	}
	return out, nil
}
