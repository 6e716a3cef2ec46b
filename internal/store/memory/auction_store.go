// Package memory provides in-process implementations of the persistence
// interfaces, used by tests and the standalone development mode. The
// postgres package is the durable production backend.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// AuctionStore keeps auction records in a map guarded by a mutex.
type AuctionStore struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]*domain.AuctionRecord
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{nextID: 1, byID: make(map[uint64]*domain.AuctionRecord)}
}

func (s *AuctionStore) Create(_ context.Context, rec *domain.AuctionRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	cp := *rec
	s.byID[rec.ID] = &cp
	return rec.ID, nil
}

func (s *AuctionStore) Get(_ context.Context, id uint64) (*domain.AuctionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *AuctionStore) List(_ context.Context, opts domain.ListOpts) ([]*domain.AuctionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.AuctionRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *AuctionStore) SaveCheckpoint(_ context.Context, id uint64, sum *big.Int, interim domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.InterimSumBidAmount = new(big.Int).Set(sum)
	rec.InterimOrder = interim
	return nil
}

func (s *AuctionStore) SaveSettlement(_ context.Context, rec *domain.AuctionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *rec
	s.byID[rec.ID] = &cp
	return nil
}
