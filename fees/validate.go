package fees

import "fmt"

// ValidatePercents checks that each fee is at most 100 and that together they
// leave a non-negative primary share.
func ValidatePercents(adminFeePercent, resolverFeePercent uint8) error {
	if adminFeePercent > percentBase {
		return fmt.Errorf("%w: admin fee %d", ErrInvalidPercent, adminFeePercent)
	}
	if resolverFeePercent > percentBase {
		return fmt.Errorf("%w: resolver fee %d", ErrInvalidPercent, resolverFeePercent)
	}
	if uint16(adminFeePercent)+uint16(resolverFeePercent) > percentBase {
		return fmt.Errorf("%w: %d + %d", ErrFeeSumExceeded, adminFeePercent, resolverFeePercent)
	}
	return nil
}

// ValidateSplit checks that the shares of s do not sum to more than amount.
func ValidateSplit(s Split, amount uint64) error {
	var total uint64
	for _, share := range []uint64{s.Primary, s.Admin1, s.Admin2, s.Resolver} {
		if share > amount-total {
			return fmt.Errorf("%w: total exceeds %d", ErrOverpayment, amount)
		}
		total += share
	}
	return nil
}
