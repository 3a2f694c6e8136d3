package fees

import "errors"

var (
	// ErrInvalidPercent indicates a fee percentage above 100.
	ErrInvalidPercent = errors.New("fees: fee percent exceeds 100")

	// ErrFeeSumExceeded indicates admin + resolver fees above 100 percent.
	ErrFeeSumExceeded = errors.New("fees: admin and resolver fees exceed 100 percent")

	// ErrUnknownMode indicates a split mode other than Approve, Refund or Resolve.
	ErrUnknownMode = errors.New("fees: unknown split mode")

	// ErrOverpayment indicates split shares sum to more than the gross amount.
	ErrOverpayment = errors.New("fees: shares exceed gross amount")
)
