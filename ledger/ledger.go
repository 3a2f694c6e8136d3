// Package ledger is the balance-transfer primitive the escrow engine moves
// funds with. It operates on token accounts inside a store transaction, so
// transfers commit or roll back together with the engine's record changes.
package ledger

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/state"
	"github.com/bitfsorg/milestone-escrow/store"
)

// ProgramID identifies the ledger when deriving per-owner account addresses.
var ProgramID = identity.LabelAddress("milestone-escrow/ledger")

// AccountAddress returns the canonical token account of owner for mint.
func AccountAddress(owner, mint identity.Address) identity.Address {
	return identity.MustDeriveProgramAddress(ProgramID, owner[:], mint[:])
}

// Get returns the account at addr.
func Get(tx store.Tx, addr identity.Address) (*state.TokenAccount, error) {
	acct, err := tx.Account(addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acct, err
}

// Balance returns the amount held at addr, or zero if no account exists.
func Balance(tx store.Tx, addr identity.Address) (uint64, error) {
	acct, err := Get(tx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// Create opens an empty account at addr. Returns ErrAccountExists if taken.
func Create(tx store.Tx, addr, owner, mint identity.Address) (*state.TokenAccount, error) {
	if addr.IsZero() || owner.IsZero() || mint.IsZero() {
		return nil, ErrInvalidAccount
	}
	if _, err := tx.Account(addr); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, addr)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	acct := &state.TokenAccount{Address: addr, Mint: mint, Owner: owner}
	if err := tx.PutAccount(acct); err != nil {
		return nil, fmt.Errorf("ledger: create account: %w", err)
	}
	return acct, nil
}

// Open returns owner's canonical account for mint, creating it if needed.
func Open(tx store.Tx, owner, mint identity.Address) (*state.TokenAccount, error) {
	addr := AccountAddress(owner, mint)
	acct, err := Get(tx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return Create(tx, addr, owner, mint)
	}
	return acct, err
}

// Issue credits amount to owner's canonical account for mint.
func Issue(tx store.Tx, owner, mint identity.Address, amount uint64) error {
	acct, err := Open(tx, owner, mint)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(acct.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, acct.Address)
	}
	acct.Amount = sum
	return tx.PutAccount(acct)
}

// Transfer moves amount from one account to another. authority must be the
// current owner of from, both accounts must hold the same currency, and from
// must cover amount.
func Transfer(tx store.Tx, from, to, authority identity.Address, amount uint64) error {
	src, err := Get(tx, from)
	if err != nil {
		return err
	}
	if src.Owner != authority {
		return fmt.Errorf("%w: %s", ErrAuthorityMismatch, from)
	}
	if from == to {
		if src.Amount < amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
		}
		return nil
	}
	dst, err := Get(tx, to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}

	src.Amount -= amount
	dst.Amount = sum
	if err := tx.PutAccount(src); err != nil {
		return fmt.Errorf("ledger: debit: %w", err)
	}
	if err := tx.PutAccount(dst); err != nil {
		return fmt.Errorf("ledger: credit: %w", err)
	}
	return nil
}

// SetAuthority hands control of addr from current to next.
func SetAuthority(tx store.Tx, addr, current, next identity.Address) error {
	if next.IsZero() {
		return ErrInvalidAccount
	}
	acct, err := Get(tx, addr)
	if err != nil {
		return err
	}
	if acct.Owner != current {
		return fmt.Errorf("%w: %s", ErrAuthorityMismatch, addr)
	}
	acct.Owner = next
	return tx.PutAccount(acct)
}

// Close deletes an empty account controlled by authority.
func Close(tx store.Tx, addr, authority identity.Address) error {
	acct, err := Get(tx, addr)
	if err != nil {
		return err
	}
	if acct.Owner != authority {
		return fmt.Errorf("%w: %s", ErrAuthorityMismatch, addr)
	}
	if acct.Amount != 0 {
		return fmt.Errorf("%w: %d remaining", ErrNonZeroBalance, acct.Amount)
	}
	return tx.DeleteAccount(addr)
}
