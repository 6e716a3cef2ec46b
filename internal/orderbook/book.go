// Package orderbook maintains the per-auction sorted sets of active sell
// orders. Each queue is a doubly linked list in ascending price order with
// sentinel elements at both ends, plus a key index for O(1) membership
// checks and removals. Iteration is cursor based and restartable, which is
// what lets the clearing scan span multiple calls.
package orderbook

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

type element struct {
	key   common.Hash
	order domain.Order
	prev  *element
	next  *element
}

// queue is one auction's sorted order set. head and tail are sentinels
// carrying the QueueStart / QueueEnd keys; they are never returned to
// callers.
type queue struct {
	head  *element
	tail  *element
	index map[common.Hash]*element
	size  int
}

func newQueue() *queue {
	head := &element{key: domain.QueueStart, order: domain.DecodeOrder(domain.QueueStart)}
	tail := &element{key: domain.QueueEnd, order: domain.DecodeOrder(domain.QueueEnd)}
	head.next = tail
	tail.prev = head
	return &queue{head: head, tail: tail, index: map[common.Hash]*element{}}
}

// Book holds the order queues of all auctions. All methods are safe for
// concurrent use; the service layer serializes mutations per auction.
type Book struct {
	mu     sync.RWMutex
	queues map[uint64]*queue
}

// New creates an empty Book.
func New() *Book {
	return &Book{queues: map[uint64]*queue{}}
}

func (b *Book) queue(auctionID uint64) *queue {
	q, ok := b.queues[auctionID]
	if !ok {
		q = newQueue()
		b.queues[auctionID] = q
	}
	return q
}

// Insert places the order at its sorted position. It returns false if the
// identical order is already present (the caller treats that as an
// escrow-neutral no-op). Validation against the auction's parameters is
// the service layer's job; the book only maintains the total order.
func (b *Book) Insert(auctionID uint64, order domain.Order) (bool, error) {
	key, err := order.Encode()
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(auctionID)
	if _, dup := q.index[key]; dup {
		return false, nil
	}

	// Walk forward until the first element that does not sort before the
	// new order; insert in front of it. The sentinels guarantee the walk
	// terminates.
	at := q.head.next
	for at != q.tail && at.order.LowerPriced(order) {
		at = at.next
	}

	el := &element{key: key, order: order, prev: at.prev, next: at}
	at.prev.next = el
	at.prev = el
	q.index[key] = el
	q.size++
	return true, nil
}

// Remove unlinks the order. Removing an absent order is a no-op returning
// false, which is what makes cancellation idempotent.
func (b *Book) Remove(auctionID uint64, order domain.Order) (bool, error) {
	key, err := order.Encode()
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[auctionID]
	if !ok {
		return false, nil
	}
	el, ok := q.index[key]
	if !ok {
		return false, nil
	}
	el.prev.next = el.next
	el.next.prev = el.prev
	delete(q.index, key)
	q.size--
	return true, nil
}

// Contains reports active membership of the exact order.
func (b *Book) Contains(auctionID uint64, order domain.Order) (bool, error) {
	key, err := order.Encode()
	if err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.queues[auctionID]
	if !ok {
		return false, nil
	}
	_, ok = q.index[key]
	return ok, nil
}

// Next returns the order following the given cursor key in ascending
// price order. The QueueStart sentinel is the initial cursor; ok is false
// once the cursor is the last element. A cursor that is no longer in the
// queue (and is not QueueStart) yields ok false as well.
func (b *Book) Next(auctionID uint64, cursor common.Hash) (domain.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q, ok := b.queues[auctionID]
	if !ok {
		return domain.Order{}, false
	}
	var el *element
	if cursor == domain.QueueStart {
		el = q.head
	} else if el, ok = q.index[cursor]; !ok {
		return domain.Order{}, false
	}
	if el.next == q.tail {
		return domain.Order{}, false
	}
	return el.next.order, true
}

// Len returns the number of active orders in the auction's queue.
func (b *Book) Len(auctionID uint64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if q, ok := b.queues[auctionID]; ok {
		return q.size
	}
	return 0
}

// Ascend walks the queue in ascending price order, calling fn for each
// order until fn returns false or the queue is exhausted.
func (b *Book) Ascend(auctionID uint64, fn func(domain.Order) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.queues[auctionID]
	if !ok {
		return
	}
	for el := q.head.next; el != q.tail; el = el.next {
		if !fn(el.order) {
			return
		}
	}
}

// Load rebuilds an auction's queue from persisted active orders, e.g.
// after a restart. Existing in-memory state for the auction is replaced.
func (b *Book) Load(auctionID uint64, orders []domain.Order) error {
	b.mu.Lock()
	q := newQueue()
	b.queues[auctionID] = q
	b.mu.Unlock()

	for _, o := range orders {
		if _, err := b.Insert(auctionID, o); err != nil {
			return err
		}
	}
	return nil
}
