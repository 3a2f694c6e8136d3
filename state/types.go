// Package state holds the persisted records of the escrow engine and their
// fixed-layout binary encodings.
package state

import (
	"fmt"
	"math/bits"

	"github.com/bitfsorg/milestone-escrow/identity"
)

// MilestoneCount is the number of independently payable milestones per record.
const MilestoneCount = 5

// AdminConfig is the deployment-wide governance record.
type AdminConfig struct {
	Admin1             identity.Address
	Admin2             identity.Address
	Resolver           identity.Address
	AdminFeePercent    uint8
	ResolverFeePercent uint8
}

// Milestones is the bounded milestone sequence. A zero slot is paid or unfunded.
type Milestones [MilestoneCount]uint64

// EscrowRecord is the per-agreement state.
type EscrowRecord struct {
	Seed        uint64
	Initializer identity.Address
	Taker       identity.Address
	Currency    identity.Address // mint of the vault's balance
	Vault       identity.Address // token account holding the deposit
	Milestones  Milestones
	Disputed    bool
}

// TokenAccount is a balance of one currency controlled by Owner.
type TokenAccount struct {
	Address identity.Address
	Mint    identity.Address
	Owner   identity.Address
	Amount  uint64
}

// checkIndex reports whether idx addresses a milestone slot.
func checkIndex(idx int) error {
	if idx < 0 || idx >= MilestoneCount {
		return fmt.Errorf("%w: %d", ErrMilestoneIndex, idx)
	}
	return nil
}

// At returns the amount in slot idx.
func (m *Milestones) At(idx int) (uint64, error) {
	if err := checkIndex(idx); err != nil {
		return 0, err
	}
	return m[idx], nil
}

// Clear zeroes slot idx.
func (m *Milestones) Clear(idx int) error {
	if err := checkIndex(idx); err != nil {
		return err
	}
	m[idx] = 0
	return nil
}

// ClearAll zeroes every slot.
func (m *Milestones) ClearAll() {
	*m = Milestones{}
}

// Total sums all slots, rejecting totals that overflow uint64.
func (m *Milestones) Total() (uint64, error) {
	var total uint64
	for i, v := range m {
		sum, carry := bits.Add64(total, v, 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: at slot %d", ErrAmountOverflow, i)
		}
		total = sum
	}
	return total, nil
}

// Settled reports whether every slot is zero.
func (m *Milestones) Settled() bool {
	return *m == Milestones{}
}
