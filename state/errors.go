package state

import "errors"

var (
	// ErrInvalidAdminData indicates an encoded AdminConfig is malformed.
	ErrInvalidAdminData = errors.New("state: invalid admin config data")

	// ErrInvalidEscrowData indicates an encoded EscrowRecord is malformed.
	ErrInvalidEscrowData = errors.New("state: invalid escrow record data")

	// ErrInvalidAccountData indicates an encoded TokenAccount is malformed.
	ErrInvalidAccountData = errors.New("state: invalid token account data")

	// ErrMilestoneIndex indicates a milestone index outside [0, MilestoneCount).
	ErrMilestoneIndex = errors.New("state: milestone index out of range")

	// ErrAmountOverflow indicates milestone amounts do not fit in 64 bits when summed.
	ErrAmountOverflow = errors.New("state: milestone total overflows")
)
