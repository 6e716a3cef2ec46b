package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// BookOrderStatus tracks a bid's durable state.
type BookOrderStatus string

const (
	BookOrderPlaced    BookOrderStatus = "placed"
	BookOrderCancelled BookOrderStatus = "cancelled"
	BookOrderClaimed   BookOrderStatus = "claimed"
)

// BookOrder is the durable record of one bid: the order itself plus the
// referral code cited at placement and its claim state. Keyed by
// (auction id, encoded order).
type BookOrder struct {
	AuctionID    uint64
	Order        Order
	ReferralCode ReferralCode
	Status       BookOrderStatus
	PlacedAt     time.Time
}

// AuctionStore persists auction records.
type AuctionStore interface {
	Create(ctx context.Context, rec *AuctionRecord) (uint64, error)
	Get(ctx context.Context, id uint64) (*AuctionRecord, error)
	List(ctx context.Context, opts ListOpts) ([]*AuctionRecord, error)
	// SaveCheckpoint persists the incremental clearing-scan checkpoint.
	SaveCheckpoint(ctx context.Context, id uint64, sum *big.Int, interim Order) error
	// SaveSettlement persists the clearing outcome exactly once.
	SaveSettlement(ctx context.Context, rec *AuctionRecord) error
}

// OrderStore persists book membership. The in-memory order book is
// rebuilt from ListActive after a restart; ordering is re-derived from
// the order comparator, not from storage.
type OrderStore interface {
	Insert(ctx context.Context, o BookOrder) error
	Get(ctx context.Context, auctionID uint64, key common.Hash) (BookOrder, error)
	MarkCancelled(ctx context.Context, auctionID uint64, key common.Hash) error
	MarkClaimed(ctx context.Context, auctionID uint64, keys []common.Hash) error
	ListActive(ctx context.Context, auctionID uint64) ([]BookOrder, error)
}

// ReferralStore persists the referral ledger: code bindings and unclaimed
// reward balances.
type ReferralStore interface {
	RegisterCode(ctx context.Context, code ReferralCode, owner common.Address) error
	CodeOwner(ctx context.Context, code ReferralCode) (common.Address, error)
	AddressCode(ctx context.Context, owner common.Address) (ReferralCode, error)
	Credit(ctx context.Context, owner common.Address, asset common.Address, amount *big.Int) error
	// Debit atomically reduces a balance, failing with ErrInsufficientFunds
	// if the balance is smaller than amount.
	Debit(ctx context.Context, owner common.Address, asset common.Address, amount *big.Int) error
	Balance(ctx context.Context, owner common.Address, asset common.Address) (*big.Int, error)
	SetWithdrawOpen(ctx context.Context, open bool) error
	WithdrawOpen(ctx context.Context) (bool, error)
}

// UserStore maps account addresses to compact user ids. Ids start at 1;
// id 0 is reserved for synthetic clearing orders.
type UserStore interface {
	Register(ctx context.Context, addr common.Address) (uint64, error)
	UserID(ctx context.Context, addr common.Address) (uint64, error)
	Address(ctx context.Context, userID uint64) (common.Address, error)
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID     uint64
	Event  string
	Detail map[string]any
	At     time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// AuctionCache is a read-through cache for auction records. Get returns
// ErrNotFound on a miss.
type AuctionCache interface {
	Get(ctx context.Context, id uint64) (*AuctionRecord, error)
	Set(ctx context.Context, rec *AuctionRecord) error
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter is a sliding-window limiter keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Locker provides short-lived exclusive locks (used to serialize
// settlement per auction across processes).
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
