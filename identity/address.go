// Package identity defines the caller and account addresses used by the
// escrow engine, derives keyless program addresses, and authenticates
// signed operation requests.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

// AddressLen is the length of an address: HASH160 of a compressed public key.
const AddressLen = 20

// Address identifies a party, a token account, a currency or a program.
type Address [AddressLen]byte

// Zero is the unset address. It never names a valid party.
var Zero Address

// FromPublicKey returns HASH160(compressed pubkey), the P2PKH address hash.
func FromPublicKey(pub *ec.PublicKey) (Address, error) {
	if pub == nil {
		return Zero, fmt.Errorf("%w: public key", ErrNilParam)
	}
	return FromBytes(bsvhash.Hash160(pub.Compressed()))
}

// FromBytes copies a 20-byte slice into an Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLen {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress decodes a hex-encoded address.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return FromBytes(b)
}

// MustParseAddress is ParseAddress for constants. Panics on bad input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// LabelAddress returns HASH160(label). Used for fixed well-known identifiers
// such as program IDs.
func LabelAddress(label string) Address {
	var a Address
	copy(a[:], bsvhash.Hash160([]byte(label)))
	return a
}

// IsZero reports whether a is the unset address.
func (a Address) IsZero() bool { return a == Zero }

// String returns the lowercase hex form.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// Short returns the first 8 hex characters, for log lines.
func (a Address) Short() string { return a.String()[:8] }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
