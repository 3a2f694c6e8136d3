package state

import (
	"encoding/binary"
	"fmt"

	"github.com/bitfsorg/milestone-escrow/identity"
)

const (
	// admin1(20) + admin2(20) + resolver(20) + admin_fee(1) + resolver_fee(1)
	adminConfigSize = 62

	// seed(8) + initializer(20) + taker(20) + currency(20) + vault(20) +
	// milestones(5*8) + disputed(1)
	escrowRecordSize = 129

	// address(20) + mint(20) + owner(20) + amount(8)
	tokenAccountSize = 68
)

// SerializeAdmin encodes an AdminConfig.
func SerializeAdmin(cfg *AdminConfig) []byte {
	buf := make([]byte, adminConfigSize)
	copy(buf[0:20], cfg.Admin1[:])
	copy(buf[20:40], cfg.Admin2[:])
	copy(buf[40:60], cfg.Resolver[:])
	buf[60] = cfg.AdminFeePercent
	buf[61] = cfg.ResolverFeePercent
	return buf
}

// DeserializeAdmin decodes an AdminConfig.
func DeserializeAdmin(data []byte) (*AdminConfig, error) {
	if len(data) != adminConfigSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAdminData, adminConfigSize, len(data))
	}
	cfg := &AdminConfig{}
	copy(cfg.Admin1[:], data[0:20])
	copy(cfg.Admin2[:], data[20:40])
	copy(cfg.Resolver[:], data[40:60])
	cfg.AdminFeePercent = data[60]
	cfg.ResolverFeePercent = data[61]
	return cfg, nil
}

// SerializeEscrow encodes an EscrowRecord.
func SerializeEscrow(rec *EscrowRecord) []byte {
	buf := make([]byte, escrowRecordSize)
	offset := 0

	binary.BigEndian.PutUint64(buf[offset:offset+8], rec.Seed)
	offset += 8

	for _, addr := range []identity.Address{rec.Initializer, rec.Taker, rec.Currency, rec.Vault} {
		copy(buf[offset:offset+20], addr[:])
		offset += 20
	}

	for _, amount := range rec.Milestones {
		binary.BigEndian.PutUint64(buf[offset:offset+8], amount)
		offset += 8
	}

	if rec.Disputed {
		buf[offset] = 1
	}
	return buf
}

// DeserializeEscrow decodes an EscrowRecord.
func DeserializeEscrow(data []byte) (*EscrowRecord, error) {
	if len(data) != escrowRecordSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidEscrowData, escrowRecordSize, len(data))
	}
	rec := &EscrowRecord{}
	offset := 0

	rec.Seed = binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	for _, addr := range []*identity.Address{&rec.Initializer, &rec.Taker, &rec.Currency, &rec.Vault} {
		copy(addr[:], data[offset:offset+20])
		offset += 20
	}

	for i := range rec.Milestones {
		rec.Milestones[i] = binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8
	}

	switch data[offset] {
	case 0:
	case 1:
		rec.Disputed = true
	default:
		return nil, fmt.Errorf("%w: dispute flag %d", ErrInvalidEscrowData, data[offset])
	}
	return rec, nil
}

// SerializeAccount encodes a TokenAccount.
func SerializeAccount(acct *TokenAccount) []byte {
	buf := make([]byte, tokenAccountSize)
	copy(buf[0:20], acct.Address[:])
	copy(buf[20:40], acct.Mint[:])
	copy(buf[40:60], acct.Owner[:])
	binary.BigEndian.PutUint64(buf[60:68], acct.Amount)
	return buf
}

// DeserializeAccount decodes a TokenAccount.
func DeserializeAccount(data []byte) (*TokenAccount, error) {
	if len(data) != tokenAccountSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAccountData, tokenAccountSize, len(data))
	}
	acct := &TokenAccount{}
	copy(acct.Address[:], data[0:20])
	copy(acct.Mint[:], data[20:40])
	copy(acct.Owner[:], data[40:60])
	acct.Amount = binary.BigEndian.Uint64(data[60:68])
	return acct, nil
}
