package escrow

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/milestone-escrow/fees"
	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/state"
	"github.com/bitfsorg/milestone-escrow/store"
)

// checkAdmins validates a set of governance identities.
func checkAdmins(admin1, admin2, resolver identity.Address) error {
	if admin1.IsZero() || admin2.IsZero() || resolver.IsZero() {
		return fmt.Errorf("%w: zero admin or resolver", ErrInvalidParty)
	}
	if admin1 == admin2 {
		return fmt.Errorf("%w: admin1 equals admin2", ErrInvalidParty)
	}
	return nil
}

// InitAdmin creates the AdminConfig with the caller as admin1 and both fees
// at zero. It succeeds once per deployment.
func (e *Engine) InitAdmin(caller, admin2, resolver identity.Address) error {
	log := e.opLogger(OpInitAdmin, caller).Logger()
	return e.execute(OpInitAdmin, log, func(tx store.Tx) ([]payout, error) {
		if err := checkAdmins(caller, admin2, resolver); err != nil {
			return nil, err
		}
		cfg := &state.AdminConfig{Admin1: caller, Admin2: admin2, Resolver: resolver}
		if err := tx.CreateAdmin(cfg); err != nil {
			if errors.Is(err, store.ErrExists) {
				return nil, fmt.Errorf("%w: admin config", ErrDuplicateRecord)
			}
			return nil, err
		}
		return nil, nil
	})
}

// ChangeAdmin replaces all three governance identities. Only admin1 may call
// it. Fee percentages are kept.
func (e *Engine) ChangeAdmin(caller, admin1, admin2, resolver identity.Address) error {
	log := e.opLogger(OpChangeAdmin, caller).Logger()
	return e.execute(OpChangeAdmin, log, func(tx store.Tx) ([]payout, error) {
		cfg, err := loadAdmin(tx)
		if err != nil {
			return nil, err
		}
		if caller != cfg.Admin1 {
			return nil, fmt.Errorf("%w: %s is not admin1", ErrUnauthorized, caller.Short())
		}
		if err := checkAdmins(admin1, admin2, resolver); err != nil {
			return nil, err
		}
		cfg.Admin1, cfg.Admin2, cfg.Resolver = admin1, admin2, resolver
		return nil, tx.PutAdmin(cfg)
	})
}

// SetFee sets both fee percentages. Only admin1 may call it. Each percentage
// and their sum must not exceed 100.
func (e *Engine) SetFee(caller identity.Address, adminFeePercent, resolverFeePercent uint8) error {
	log := e.opLogger(OpSetFee, caller).Logger()
	return e.execute(OpSetFee, log, func(tx store.Tx) ([]payout, error) {
		cfg, err := loadAdmin(tx)
		if err != nil {
			return nil, err
		}
		if caller != cfg.Admin1 {
			return nil, fmt.Errorf("%w: %s is not admin1", ErrUnauthorized, caller.Short())
		}
		if err := fees.ValidatePercents(adminFeePercent, resolverFeePercent); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFee, err)
		}
		cfg.AdminFeePercent = adminFeePercent
		cfg.ResolverFeePercent = resolverFeePercent
		return nil, tx.PutAdmin(cfg)
	})
}
