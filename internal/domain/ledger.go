package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetLedger is the boundary to the fungible assets being auctioned and
// bid with. The engine treats assets as opaque movable value: it queries
// balances and moves amounts between accounts (escrow is a transfer into
// the auction house account). Implementations must be atomic per call; a
// failed transfer leaves both balances unchanged.
type AssetLedger interface {
	BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error
}

// PriceOracle supplies the reference price used to express realized
// auction volume in the fee schedule's unit. It is consulted once per
// settlement and never cached by the engine.
type PriceOracle interface {
	// ReferencePrice returns the rational factor (num/den) converting one
	// unit of asset into the fee schedule's reference unit.
	ReferencePrice(ctx context.Context, asset common.Address) (num, den *big.Int, err error)
}
