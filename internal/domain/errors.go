package domain

import "errors"

// Error is a stable, coded auction error. The numeric codes (E1..E25) are
// part of the public API surface: callers match on Code, not on the text.
type Error struct {
	Code string
	Text string
}

func (e *Error) Error() string { return e.Code + ": " + e.Text }

// Lifecycle, parameter, order, scan, authorization and claim errors. The
// code assignments are fixed; new errors get new codes, existing codes are
// never reused for different conditions.
var (
	ErrAuctionEnded          = &Error{"E1", "no longer in order placement phase"}
	ErrCancellationEnded     = &Error{"E2", "no longer in order cancellation phase"}
	ErrNotSettled            = &Error{"E4", "auction not yet settled"}
	ErrZeroAuctionedAmount   = &Error{"E9", "auctioned sell amount must be positive"}
	ErrAuctionIsGiveaway     = &Error{"E10", "tokens cannot be auctioned for free"}
	ErrZeroMinimumBidAmount  = &Error{"E11", "minimum bidding amount per order must be positive"}
	ErrCancellationAfterEnd  = &Error{"E12", "cancellation period must end before auction"}
	ErrAuctionEndInPast      = &Error{"E13", "auction end date must be in the future"}
	ErrZeroBuyAmount         = &Error{"E15", "buy amounts must be positive"}
	ErrLimitPriceNotBetter   = &Error{"E16", "limit price not better than minimal auction price"}
	ErrOrderBelowMinimum     = &Error{"E17", "order too small"}
	ErrQueueExhausted        = &Error{"E20", "reached end of order queue"}
	ErrTooManyOrdersScanned  = &Error{"E21", "too many orders summed up"}
	ErrCancelOnlyOwnOrders   = &Error{"E22", "only the order owner can cancel"}
	ErrClaimMixedUsers       = &Error{"E23", "claimable orders must have the same user id"}
	ErrOrderAlreadyClaimed   = &Error{"E24", "order not claimable"}
	ErrCodeAlreadyRegistered = &Error{"E25", "referral code or address already registered"}
)

// Non-coded infrastructure and validation errors.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrAmountOutOfRange   = errors.New("order amount exceeds 96-bit range")
	ErrUserIDOutOfRange   = errors.New("user id exceeds 64-bit range")
	ErrUnsortedOrders     = errors.New("orders must be sorted")
	ErrTransferFailed     = errors.New("asset transfer failed")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrEmptyReferralCode  = errors.New("referral code cannot be empty")
	ErrReferralCodeLength = errors.New("referral code cannot be above 8 characters")
	ErrWithdrawClosed     = errors.New("withdrawals are not open")
	ErrNotRegistered      = errors.New("address has no registered code")
	ErrAuctionNotClosed   = errors.New("auction still accepting orders")
	ErrAlreadySettled     = errors.New("auction already settled")
)
