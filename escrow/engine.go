// Package escrow implements the milestone settlement engine: an initializer
// deposits funds into a program-controlled vault, releases them milestone by
// milestone to a taker, and a resolver arbitrates once either party raises a
// dispute. Administrators take a fee from every payout.
//
// Each operation runs in a single store transaction. A failed precondition or
// transfer returns an error and leaves records and balances untouched.
package escrow

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/milestone-escrow/fees"
	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/ledger"
	"github.com/bitfsorg/milestone-escrow/observability"
	"github.com/bitfsorg/milestone-escrow/state"
	"github.com/bitfsorg/milestone-escrow/store"
)

// Operation names.
const (
	OpInitAdmin          = "init_admin"
	OpChangeAdmin        = "change_admin"
	OpSetFee             = "set_fee"
	OpInitialize         = "initialize"
	OpApprove            = "approve"
	OpDispute            = "dispute"
	OpRefund             = "refund"
	OpResolve            = "resolve"
	OpWithdrawForResolve = "withdraw_for_resolve"
)

// Payout recipient roles.
const (
	RoleTaker       = "taker"
	RoleInitializer = "initializer"
	RoleAdmin1      = "admin1"
	RoleAdmin2      = "admin2"
	RoleResolver    = "resolver"
)

// Derivation labels for program addresses.
var (
	labelState     = []byte("state")
	labelVault     = []byte("vault")
	labelAuthority = []byte("authority")
)

// Engine executes settlement operations against a Store.
type Engine struct {
	store     store.Store
	programID identity.Address
	authority identity.Address
	log       zerolog.Logger
}

// New creates an Engine for programID. The vault authority is derived from
// programID, so no party holds a key for it.
func New(st store.Store, programID identity.Address, log zerolog.Logger) *Engine {
	return &Engine{
		store:     st,
		programID: programID,
		authority: identity.MustDeriveProgramAddress(programID, labelAuthority),
		log:       log,
	}
}

// ProgramID returns the program the engine acts for.
func (e *Engine) ProgramID() identity.Address { return e.programID }

// Addresses are the program addresses bound to one record seed.
type Addresses struct {
	Record    identity.Address `json:"record"`
	Vault     identity.Address `json:"vault"`
	Authority identity.Address `json:"authority"`
}

// Addresses derives the record, vault and vault-authority addresses for seed.
func (e *Engine) Addresses(seed uint64) Addresses {
	sb := identity.SeedBytes(seed)
	return Addresses{
		Record:    identity.MustDeriveProgramAddress(e.programID, labelState, sb),
		Vault:     identity.MustDeriveProgramAddress(e.programID, labelVault, sb),
		Authority: e.authority,
	}
}

// payout is one transfer out of a vault.
type payout struct {
	role   string
	to     identity.Address
	amount uint64
}

// execute runs fn in one write transaction, then records the outcome.
// Metrics for payouts are only emitted once the transaction has committed.
func (e *Engine) execute(op string, log zerolog.Logger, fn func(tx store.Tx) ([]payout, error)) error {
	var paid []payout
	err := e.store.Update(func(tx store.Tx) error {
		var err error
		paid, err = fn(tx)
		return err
	})
	if err != nil {
		err = classify(err)
		observability.RecordOperation(op, Kind(err))
		log.Debug().Err(err).Str("kind", Kind(err)).Msg("operation rejected")
		return err
	}

	observability.RecordOperation(op, "ok")
	var total uint64
	for _, p := range paid {
		observability.RecordPayout(op, p.role, p.amount)
		total += p.amount
	}
	log.Info().Int("payouts", len(paid)).Uint64("paid", total).Msg("operation committed")
	return nil
}

func (e *Engine) opLogger(op string, caller identity.Address) zerolog.Context {
	return e.log.With().Str("op", op).Str("caller", caller.Short())
}

// loadAdmin reads the AdminConfig snapshot used for the whole operation.
func loadAdmin(tx store.Tx) (*state.AdminConfig, error) {
	cfg, err := tx.Admin()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAdminNotInitialized
	}
	return cfg, err
}

// loadEscrow reads the record at addr.
func loadEscrow(tx store.Tx, addr identity.Address) (*state.EscrowRecord, error) {
	rec, err := tx.Escrow(addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
	}
	return rec, err
}

// milestoneAmount returns the unpaid amount in slot idx.
func milestoneAmount(rec *state.EscrowRecord, idx int) (uint64, error) {
	amount, err := rec.Milestones.At(idx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMilestoneIndex, err)
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: slot %d", ErrMilestoneSettled, idx)
	}
	return amount, nil
}

// checkSplit rejects a split whose shares add up to more than amount.
func checkSplit(split fees.Split, amount uint64) error {
	if err := fees.ValidateSplit(split, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	return nil
}

// disburse splits amount by mode and transfers each non-zero share out of the
// record's vault into the recipient's account for the record's currency.
func (e *Engine) disburse(tx store.Tx, rec *state.EscrowRecord, admin *state.AdminConfig,
	amount uint64, mode fees.Mode, primaryRole string, primary identity.Address) ([]payout, error) {
	split, err := fees.Compute(amount, admin.AdminFeePercent, admin.ResolverFeePercent, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFee, err)
	}
	if err := checkSplit(split, amount); err != nil {
		return nil, err
	}

	planned := []payout{
		{role: primaryRole, to: primary, amount: split.Primary},
		{role: RoleAdmin1, to: admin.Admin1, amount: split.Admin1},
		{role: RoleAdmin2, to: admin.Admin2, amount: split.Admin2},
		{role: RoleResolver, to: admin.Resolver, amount: split.Resolver},
	}
	paid := make([]payout, 0, len(planned))
	for _, p := range planned {
		if p.amount == 0 {
			continue
		}
		dst, err := ledger.Open(tx, p.to, rec.Currency)
		if err != nil {
			return nil, fmt.Errorf("escrow: open %s account: %w", p.role, err)
		}
		if err := ledger.Transfer(tx, rec.Vault, dst.Address, e.authority, p.amount); err != nil {
			return nil, fmt.Errorf("escrow: pay %s: %w", p.role, err)
		}
		paid = append(paid, p)
	}
	return paid, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Admin returns the current AdminConfig.
func (e *Engine) Admin() (*state.AdminConfig, error) {
	var cfg *state.AdminConfig
	err := e.store.View(func(tx store.Tx) error {
		var err error
		cfg, err = loadAdmin(tx)
		return err
	})
	return cfg, err
}

// Escrow returns the record for seed.
func (e *Engine) Escrow(seed uint64) (*state.EscrowRecord, error) {
	var rec *state.EscrowRecord
	err := e.store.View(func(tx store.Tx) error {
		var err error
		rec, err = loadEscrow(tx, e.Addresses(seed).Record)
		return err
	})
	return rec, err
}

// Escrows returns every open record.
func (e *Engine) Escrows() ([]*state.EscrowRecord, error) {
	var recs []*state.EscrowRecord
	err := e.store.View(func(tx store.Tx) error {
		var err error
		recs, err = tx.Escrows()
		return err
	})
	return recs, err
}

// Balance returns owner's balance of mint.
func (e *Engine) Balance(owner, mint identity.Address) (uint64, error) {
	var bal uint64
	err := e.store.View(func(tx store.Tx) error {
		var err error
		bal, err = ledger.Balance(tx, ledger.AccountAddress(owner, mint))
		return err
	})
	return bal, err
}

// VaultBalance returns the amount held in the vault of the record for seed.
func (e *Engine) VaultBalance(seed uint64) (uint64, error) {
	var bal uint64
	err := e.store.View(func(tx store.Tx) error {
		rec, err := loadEscrow(tx, e.Addresses(seed).Record)
		if err != nil {
			return err
		}
		bal, err = ledger.Balance(tx, rec.Vault)
		return err
	})
	return bal, err
}

// Issue credits amount of mint to owner. It is the funding entry point for
// hosts; authorizing the issuer is the host's job.
func (e *Engine) Issue(owner, mint identity.Address, amount uint64) error {
	if owner.IsZero() || mint.IsZero() {
		return fmt.Errorf("%w: zero owner or currency", ErrInvalidParty)
	}
	err := e.store.Update(func(tx store.Tx) error {
		return ledger.Issue(tx, owner, mint, amount)
	})
	if err != nil {
		return classify(err)
	}
	e.log.Info().Str("owner", owner.Short()).Str("mint", mint.Short()).Uint64("amount", amount).Msg("issued")
	return nil
}
