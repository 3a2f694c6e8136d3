package escrow

import (
	"fmt"

	"github.com/bitfsorg/milestone-escrow/fees"
	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/ledger"
	"github.com/bitfsorg/milestone-escrow/state"
	"github.com/bitfsorg/milestone-escrow/store"
)

// InitializeParams describes a new escrow record.
type InitializeParams struct {
	Seed       uint64
	Taker      identity.Address
	Currency   identity.Address
	Milestones state.Milestones
}

// Initialize creates the record for p.Seed and moves the milestone total from
// the caller's account for p.Currency into a new vault controlled by the
// program authority. The caller becomes the initializer.
func (e *Engine) Initialize(caller identity.Address, p InitializeParams) error {
	log := e.opLogger(OpInitialize, caller).Uint64("seed", p.Seed).Logger()
	return e.execute(OpInitialize, log, func(tx store.Tx) ([]payout, error) {
		if _, err := loadAdmin(tx); err != nil {
			return nil, err
		}
		if caller.IsZero() || p.Taker.IsZero() || p.Currency.IsZero() {
			return nil, fmt.Errorf("%w: zero initializer, taker or currency", ErrInvalidParty)
		}
		if caller == p.Taker {
			return nil, fmt.Errorf("%w: taker equals initializer", ErrInvalidParty)
		}
		total, err := p.Milestones.Total()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
		}
		if total == 0 {
			return nil, fmt.Errorf("%w: zero total", ErrInvalidAmount)
		}

		addrs := e.Addresses(p.Seed)
		rec := &state.EscrowRecord{
			Seed:        p.Seed,
			Initializer: caller,
			Taker:       p.Taker,
			Currency:    p.Currency,
			Vault:       addrs.Vault,
			Milestones:  p.Milestones,
		}
		if err := tx.CreateEscrow(addrs.Record, rec); err != nil {
			return nil, fmt.Errorf("escrow: seed %d: %w", p.Seed, err)
		}

		deposit := ledger.AccountAddress(caller, p.Currency)
		have, err := ledger.Balance(tx, deposit)
		if err != nil {
			return nil, err
		}
		if have < total {
			return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientDeposit, have, total)
		}
		if _, err := ledger.Create(tx, addrs.Vault, caller, p.Currency); err != nil {
			return nil, fmt.Errorf("escrow: create vault: %w", err)
		}
		if err := ledger.SetAuthority(tx, addrs.Vault, caller, e.authority); err != nil {
			return nil, fmt.Errorf("escrow: hand vault to program: %w", err)
		}
		if err := ledger.Transfer(tx, deposit, addrs.Vault, caller, total); err != nil {
			return nil, fmt.Errorf("escrow: fund vault: %w", err)
		}
		return nil, nil
	})
}

// Approve releases milestone idx to the taker, less the admin fee. Only the
// initializer may call it, and not while the record is disputed.
func (e *Engine) Approve(caller identity.Address, seed uint64, idx int) error {
	log := e.opLogger(OpApprove, caller).Uint64("seed", seed).Int("milestone", idx).Logger()
	return e.execute(OpApprove, log, func(tx store.Tx) ([]payout, error) {
		admin, err := loadAdmin(tx)
		if err != nil {
			return nil, err
		}
		addr := e.Addresses(seed).Record
		rec, err := loadEscrow(tx, addr)
		if err != nil {
			return nil, err
		}
		if caller != rec.Initializer {
			return nil, fmt.Errorf("%w: %s is not the initializer", ErrUnauthorized, caller.Short())
		}
		if rec.Disputed {
			return nil, ErrDisputed
		}
		amount, err := milestoneAmount(rec, idx)
		if err != nil {
			return nil, err
		}

		paid, err := e.disburse(tx, rec, admin, amount, fees.Approve, RoleTaker, rec.Taker)
		if err != nil {
			return nil, err
		}
		if err := rec.Milestones.Clear(idx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMilestoneIndex, err)
		}
		if err := tx.PutEscrow(addr, rec); err != nil {
			return nil, err
		}
		return paid, nil
	})
}

// Dispute marks the record disputed, freezing approve and refund until the
// resolver acts. Either party may call it; repeating it has no effect.
func (e *Engine) Dispute(caller identity.Address, seed uint64) error {
	log := e.opLogger(OpDispute, caller).Uint64("seed", seed).Logger()
	return e.execute(OpDispute, log, func(tx store.Tx) ([]payout, error) {
		addr := e.Addresses(seed).Record
		rec, err := loadEscrow(tx, addr)
		if err != nil {
			return nil, err
		}
		if caller != rec.Initializer && caller != rec.Taker {
			return nil, fmt.Errorf("%w: %s is not a party", ErrUnauthorized, caller.Short())
		}
		if rec.Disputed {
			return nil, nil
		}
		rec.Disputed = true
		return nil, tx.PutEscrow(addr, rec)
	})
}

// Refund returns every unpaid milestone to the initializer, less the admin
// fee. Only the taker may call it, and not while the record is disputed.
// Refunding a fully paid record succeeds and moves nothing.
func (e *Engine) Refund(caller identity.Address, seed uint64) error {
	log := e.opLogger(OpRefund, caller).Uint64("seed", seed).Logger()
	return e.execute(OpRefund, log, func(tx store.Tx) ([]payout, error) {
		admin, err := loadAdmin(tx)
		if err != nil {
			return nil, err
		}
		addr := e.Addresses(seed).Record
		rec, err := loadEscrow(tx, addr)
		if err != nil {
			return nil, err
		}
		if caller != rec.Taker {
			return nil, fmt.Errorf("%w: %s is not the taker", ErrUnauthorized, caller.Short())
		}
		if rec.Disputed {
			return nil, ErrDisputed
		}
		if rec.Milestones.Settled() {
			return nil, nil
		}
		total, err := rec.Milestones.Total()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
		}

		paid, err := e.disburse(tx, rec, admin, total, fees.Refund, RoleInitializer, rec.Initializer)
		if err != nil {
			return nil, err
		}
		rec.Milestones.ClearAll()
		if err := tx.PutEscrow(addr, rec); err != nil {
			return nil, err
		}
		return paid, nil
	})
}

// Resolve pays milestone idx of a disputed record to recipient, which must be
// the initializer or the taker, less admin and resolver fees. Only the
// resolver may call it.
func (e *Engine) Resolve(caller identity.Address, seed uint64, idx int, recipient identity.Address) error {
	log := e.opLogger(OpResolve, caller).Uint64("seed", seed).Int("milestone", idx).
		Str("recipient", recipient.Short()).Logger()
	return e.execute(OpResolve, log, func(tx store.Tx) ([]payout, error) {
		admin, err := loadAdmin(tx)
		if err != nil {
			return nil, err
		}
		if caller != admin.Resolver {
			return nil, fmt.Errorf("%w: %s is not the resolver", ErrUnauthorized, caller.Short())
		}
		addr := e.Addresses(seed).Record
		rec, err := loadEscrow(tx, addr)
		if err != nil {
			return nil, err
		}
		if !rec.Disputed {
			return nil, ErrNotDisputed
		}
		amount, err := milestoneAmount(rec, idx)
		if err != nil {
			return nil, err
		}
		var role string
		switch recipient {
		case rec.Initializer:
			role = RoleInitializer
		case rec.Taker:
			role = RoleTaker
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, recipient.Short())
		}

		paid, err := e.disburse(tx, rec, admin, amount, fees.Resolve, role, recipient)
		if err != nil {
			return nil, err
		}
		if err := rec.Milestones.Clear(idx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMilestoneIndex, err)
		}
		if err := tx.PutEscrow(addr, rec); err != nil {
			return nil, err
		}
		return paid, nil
	})
}

// WithdrawForResolve sweeps the whole vault balance, including fee rounding
// residue, to the resolver, then closes the vault and deletes the record.
// Only the resolver may call it.
func (e *Engine) WithdrawForResolve(caller identity.Address, seed uint64) error {
	log := e.opLogger(OpWithdrawForResolve, caller).Uint64("seed", seed).Logger()
	return e.execute(OpWithdrawForResolve, log, func(tx store.Tx) ([]payout, error) {
		admin, err := loadAdmin(tx)
		if err != nil {
			return nil, err
		}
		if caller != admin.Resolver {
			return nil, fmt.Errorf("%w: %s is not the resolver", ErrUnauthorized, caller.Short())
		}
		addr := e.Addresses(seed).Record
		rec, err := loadEscrow(tx, addr)
		if err != nil {
			return nil, err
		}
		bal, err := ledger.Balance(tx, rec.Vault)
		if err != nil {
			return nil, err
		}

		var paid []payout
		if bal > 0 {
			dst, err := ledger.Open(tx, admin.Resolver, rec.Currency)
			if err != nil {
				return nil, fmt.Errorf("escrow: open resolver account: %w", err)
			}
			if err := ledger.Transfer(tx, rec.Vault, dst.Address, e.authority, bal); err != nil {
				return nil, fmt.Errorf("escrow: sweep vault: %w", err)
			}
			paid = append(paid, payout{role: RoleResolver, to: admin.Resolver, amount: bal})
		}
		if err := ledger.Close(tx, rec.Vault, e.authority); err != nil {
			return nil, fmt.Errorf("escrow: close vault: %w", err)
		}
		if err := tx.DeleteEscrow(addr); err != nil {
			return nil, err
		}
		return paid, nil
	})
}
