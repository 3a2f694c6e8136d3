// Package fees computes how a gross payout is divided between the primary
// recipient, the two administrators and the resolver.
package fees

import (
	"fmt"
	"math/bits"
)

// Mode selects the fee schedule applied to a payout.
type Mode uint8

const (
	// Approve pays a milestone to the taker: admin fee only.
	Approve Mode = iota + 1
	// Refund returns the remaining deposit to the initializer: admin fee only.
	Refund
	// Resolve pays an arbitrated milestone: admin fee and resolver fee.
	Resolve
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Approve:
		return "approve"
	case Refund:
		return "refund"
	case Resolve:
		return "resolve"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

const (
	// Admin1Weight and Admin2Weight split the admin fee pool 15/85.
	Admin1Weight = 15
	Admin2Weight = 85

	percentBase    = 100
	adminShareBase = 10000
)

// Split is one payout divided into its recipients' shares.
type Split struct {
	Primary  uint64
	Admin1   uint64
	Admin2   uint64
	Resolver uint64
}

// Total returns the sum of all shares.
func (s Split) Total() uint64 {
	return s.Primary + s.Admin1 + s.Admin2 + s.Resolver
}

// Dust returns the truncation residual left behind by integer division.
func (s Split) Dust(amount uint64) uint64 {
	return amount - s.Total()
}

// Compute divides amount according to mode. All divisions truncate and keep
// the multiply-before-divide order:
//
//	primary  = amount*(100-adminFee[-resolverFee])/100
//	admin1   = amount*adminFee*15/10000
//	admin2   = amount*adminFee*85/10000
//	resolver = amount*resolverFee/100   (Resolve only)
//
// Products are formed in 128 bits, so no amount overflows.
func Compute(amount uint64, adminFeePercent, resolverFeePercent uint8, mode Mode) (Split, error) {
	if err := ValidatePercents(adminFeePercent, resolverFeePercent); err != nil {
		return Split{}, err
	}

	admin := uint64(adminFeePercent)
	s := Split{
		Admin1: mulDiv(amount, admin*Admin1Weight, adminShareBase),
		Admin2: mulDiv(amount, admin*Admin2Weight, adminShareBase),
	}

	switch mode {
	case Approve, Refund:
		s.Primary = mulDiv(amount, percentBase-admin, percentBase)
	case Resolve:
		resolver := uint64(resolverFeePercent)
		s.Primary = mulDiv(amount, percentBase-admin-resolver, percentBase)
		s.Resolver = mulDiv(amount, resolver, percentBase)
	default:
		return Split{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	return s, nil
}

// mulDiv returns floor(a*b/d) for b <= d, so the quotient always fits in 64 bits.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}
