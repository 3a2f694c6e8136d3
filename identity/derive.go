package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFInfo is the info string for program address derivation.
const HKDFInfo = "milestone-escrow/pda"

// MaxSeeds bounds the number of seed components in a derivation.
const MaxSeeds = 16

// MaxSeedLen bounds the length of one seed component.
const MaxSeedLen = 32

// DeriveProgramAddress maps (programID, seeds) to an address that has no
// corresponding private key. Only the program holding programID can act for it.
//
// The HKDF parameters are:
//   - IKM  = programID
//   - Salt = len(seed_0) || seed_0 || ... || len(seed_n) || seed_n
//   - Info = "milestone-escrow/pda"
//   - Len  = 20
//
// Length-prefixing keeps ("ab","c") and ("a","bc") apart.
func DeriveProgramAddress(programID Address, seeds ...[]byte) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Zero, fmt.Errorf("%w: %d seeds exceeds maximum %d", ErrDerivationFailed, len(seeds), MaxSeeds)
	}
	salt := make([]byte, 0, 64)
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return Zero, fmt.Errorf("%w: seed %d is %d bytes, maximum %d", ErrDerivationFailed, i, len(s), MaxSeedLen)
		}
		salt = append(salt, byte(len(s)))
		salt = append(salt, s...)
	}

	r := hkdf.New(sha256.New, programID[:], salt, []byte(HKDFInfo))
	var out Address
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return Zero, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return out, nil
}

// MustDeriveProgramAddress is DeriveProgramAddress for seeds known to be
// within bounds.
func MustDeriveProgramAddress(programID Address, seeds ...[]byte) Address {
	a, err := DeriveProgramAddress(programID, seeds...)
	if err != nil {
		panic(err)
	}
	return a
}

// SeedBytes encodes a record seed little-endian, matching how clients
// derive record addresses.
func SeedBytes(seed uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, seed)
	return b
}
