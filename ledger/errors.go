package ledger

import "errors"

var (
	// ErrAccountNotFound indicates the token account does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrAccountExists indicates a token account already occupies the address.
	ErrAccountExists = errors.New("ledger: account already exists")

	// ErrInsufficientFunds indicates the source balance does not cover the transfer.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrAuthorityMismatch indicates the authority does not control the account.
	ErrAuthorityMismatch = errors.New("ledger: authority does not control account")

	// ErrMintMismatch indicates the two accounts hold different currencies.
	ErrMintMismatch = errors.New("ledger: currency mismatch")

	// ErrNonZeroBalance indicates an account cannot close while holding funds.
	ErrNonZeroBalance = errors.New("ledger: account balance is not zero")

	// ErrBalanceOverflow indicates a credit would overflow the destination balance.
	ErrBalanceOverflow = errors.New("ledger: balance overflow")

	// ErrInvalidAccount indicates a zero owner, mint or address.
	ErrInvalidAccount = errors.New("ledger: invalid account parameters")
)
