package identity

import "errors"

var (
	// ErrInvalidAddress indicates an address is not 20 bytes of hex.
	ErrInvalidAddress = errors.New("identity: invalid address")

	// ErrInvalidPublicKey indicates the public key cannot be parsed.
	ErrInvalidPublicKey = errors.New("identity: invalid public key")

	// ErrInvalidSignature indicates the signature is malformed or does not verify.
	ErrInvalidSignature = errors.New("identity: invalid signature")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("identity: required parameter is nil")

	// ErrDerivationFailed indicates program address derivation failed.
	ErrDerivationFailed = errors.New("identity: program address derivation failed")

	// ErrEmptyOperation indicates a signed request has no operation name.
	ErrEmptyOperation = errors.New("identity: empty operation")
)
