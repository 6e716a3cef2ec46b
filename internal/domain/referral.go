package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxReferralCodeLength bounds referral codes. Codes are case sensitive
// and permanently bound to the first address that registers them.
const MaxReferralCodeLength = 8

// ReferralCode is a short, case-sensitive code cited at order placement.
type ReferralCode string

// Validate checks the code's shape (not its registration state).
func (c ReferralCode) Validate() error {
	if len(c) == 0 {
		return ErrEmptyReferralCode
	}
	if len(c) > MaxReferralCodeLength {
		return ErrReferralCodeLength
	}
	return nil
}

// ReferralBalance is one unclaimed reward balance in the referral ledger.
type ReferralBalance struct {
	Owner  common.Address
	Asset  common.Address
	Amount *big.Int
}
