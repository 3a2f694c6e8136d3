package escrow

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/milestone-escrow/ledger"
	"github.com/bitfsorg/milestone-escrow/store"
)

// Error kinds. Every error returned by an Engine operation wraps exactly one.
var (
	// ErrUnauthorized indicates the caller does not hold the role the operation requires.
	ErrUnauthorized = errors.New("escrow: caller not authorized")

	// ErrInvariantViolation indicates a precondition of the operation is false.
	ErrInvariantViolation = errors.New("escrow: invariant violation")

	// ErrInsufficientFunds indicates a vault or deposit cannot cover a transfer.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")

	// ErrDuplicateRecord indicates the record key is already occupied.
	ErrDuplicateRecord = errors.New("escrow: record already exists")
)

// Specific invariant violations.
var (
	ErrAdminNotInitialized = fmt.Errorf("%w: admin config not initialized", ErrInvariantViolation)
	ErrRecordNotFound      = fmt.Errorf("%w: escrow record not found", ErrInvariantViolation)
	ErrMilestoneIndex      = fmt.Errorf("%w: milestone index out of range", ErrInvariantViolation)
	ErrMilestoneSettled    = fmt.Errorf("%w: milestone already paid or unfunded", ErrInvariantViolation)
	ErrDisputed            = fmt.Errorf("%w: escrow is disputed", ErrInvariantViolation)
	ErrNotDisputed         = fmt.Errorf("%w: escrow is not disputed", ErrInvariantViolation)
	ErrInsufficientDeposit = fmt.Errorf("%w: deposit balance below milestone total", ErrInvariantViolation)
	ErrInvalidAmount       = fmt.Errorf("%w: invalid milestone amounts", ErrInvariantViolation)
	ErrInvalidFee          = fmt.Errorf("%w: invalid fee percentages", ErrInvariantViolation)
	ErrInvalidParty        = fmt.Errorf("%w: invalid party identity", ErrInvariantViolation)
	ErrInvalidRecipient    = fmt.Errorf("%w: recipient is neither initializer nor taker", ErrInvariantViolation)
)

// Kind names the error kind of err for metrics and transport mapping:
// "unauthorized", "invariant", "insufficient_funds", "duplicate" or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrDuplicateRecord):
		return "duplicate"
	default:
		return "internal"
	}
}

// classify attaches an error kind to failures raised below the engine.
func classify(err error) error {
	if Kind(err) != "internal" {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case errors.Is(err, store.ErrExists), errors.Is(err, ledger.ErrAccountExists):
		return fmt.Errorf("%w: %w", ErrDuplicateRecord, err)
	}
	return err
}
