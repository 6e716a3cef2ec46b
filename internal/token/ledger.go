// Package token provides the in-process asset ledger used in development
// and tests. Production deployments replace it with an adapter to the
// real asset backend.
package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

type accountKey struct {
	asset   common.Address
	account common.Address
}

// Ledger is a thread-safe in-memory domain.AssetLedger. Balances are
// non-negative; a transfer exceeding the sender's balance fails and
// leaves both sides unchanged.
type Ledger struct {
	mu       sync.Mutex
	balances map[accountKey]*big.Int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[accountKey]*big.Int)}
}

// Mint credits an account out of thin air (test and faucet use only).
func (l *Ledger) Mint(asset, account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(asset, account, amount)
}

func (l *Ledger) credit(asset, account common.Address, amount *big.Int) {
	k := accountKey{asset, account}
	bal, ok := l.balances[k]
	if !ok {
		bal = new(big.Int)
		l.balances[k] = bal
	}
	bal.Add(bal, amount)
}

func (l *Ledger) BalanceOf(_ context.Context, asset, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[accountKey{asset, account}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (l *Ledger) Transfer(_ context.Context, asset, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount %s", amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src, ok := l.balances[accountKey{asset, from}]
	if !ok || src.Cmp(amount) < 0 {
		return fmt.Errorf("token: transfer %s of %s from %s: %w",
			amount, asset.Hex(), from.Hex(), domain.ErrInsufficientFunds)
	}
	src.Sub(src, amount)
	l.credit(asset, to, amount)
	return nil
}
