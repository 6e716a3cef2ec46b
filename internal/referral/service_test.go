package referral

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/store/memory"
	"github.com/auctionlabs/auctiond/internal/token"
)

var (
	house = common.HexToAddress("0x0000000000000000000000000000000000001111")
	owner = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	other = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	asset = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func newService(t *testing.T) (*Service, *memory.ReferralStore, *token.Ledger) {
	t.Helper()
	store := memory.NewReferralStore()
	ledger := token.NewLedger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, ledger, house, logger), store, ledger
}

func TestRegisterCode(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterCode(ctx, "ALPHA", owner))

	got, err := svc.CodeOwner(ctx, "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	code, err := svc.AddressCode(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralCode("ALPHA"), code)

	// Codes are case sensitive: a differently cased code is free.
	require.NoError(t, svc.RegisterCode(ctx, "alpha", other))
}

func TestRegisterCodeValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.RegisterCode(ctx, "", owner), domain.ErrEmptyReferralCode)
	require.ErrorIs(t, svc.RegisterCode(ctx, "TOOLONGCODE", owner), domain.ErrReferralCodeLength)
}

func TestRegisterCodeBindingsArePermanent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.RegisterCode(ctx, "ALPHA", owner))

	// Same code, different owner.
	require.ErrorIs(t, svc.RegisterCode(ctx, "ALPHA", other), domain.ErrCodeAlreadyRegistered)
	// Same owner, different code.
	require.ErrorIs(t, svc.RegisterCode(ctx, "BETA", owner), domain.ErrCodeAlreadyRegistered)
}

func TestWithdraw(t *testing.T) {
	svc, store, ledger := newService(t)
	ctx := context.Background()

	require.NoError(t, store.Credit(ctx, owner, asset, big.NewInt(100)))
	ledger.Mint(asset, house, big.NewInt(100))

	// Closed by default.
	err := svc.Withdraw(ctx, owner, asset, big.NewInt(40))
	require.ErrorIs(t, err, domain.ErrWithdrawClosed)

	require.ErrorIs(t, svc.SetWithdrawOpen(ctx, Capability{}, true), domain.ErrUnauthorized)
	require.NoError(t, svc.SetWithdrawOpen(ctx, Capability{Admin: true}, true))

	require.NoError(t, svc.Withdraw(ctx, owner, asset, big.NewInt(40)))

	bal, err := svc.Balance(ctx, owner, asset)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(60), bal)
	paid, err := ledger.BalanceOf(ctx, asset, owner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(40), paid)

	// More than the remaining balance.
	err = svc.Withdraw(ctx, owner, asset, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}
