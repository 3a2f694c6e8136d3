package identity

import (
	"encoding/binary"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

// SignedRequest is an operation request authenticated by the caller's key.
// The host verifies it before any handler runs; handlers only see the
// resulting Address.
type SignedRequest struct {
	Operation string `json:"operation"`
	Payload   []byte `json:"payload"`   // operation-specific JSON
	Timestamp int64  `json:"timestamp"` // unix seconds
	PubKey    []byte `json:"pubkey"`    // compressed, 33 bytes
	Signature []byte `json:"signature"` // DER
}

// RequestDigest computes SHA256(program || op || 0x00 || timestamp_be || payload).
// A request verifies only against the program it was signed for.
func RequestDigest(program Address, op string, timestamp int64, payload []byte) []byte {
	buf := make([]byte, 0, AddressLen+len(op)+1+8+len(payload))
	buf = append(buf, program[:]...)
	buf = append(buf, op...)
	buf = append(buf, 0x00)
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))
	buf = append(buf, payload...)
	return bsvhash.Sha256(buf)
}

// SignRequest signs an operation request for program with priv.
func SignRequest(priv *ec.PrivateKey, program Address, op string, timestamp int64, payload []byte) (*SignedRequest, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: private key", ErrNilParam)
	}
	if op == "" {
		return nil, ErrEmptyOperation
	}
	sig, err := priv.Sign(RequestDigest(program, op, timestamp, payload))
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %w", ErrInvalidSignature, err)
	}
	return &SignedRequest{
		Operation: op,
		Payload:   payload,
		Timestamp: timestamp,
		PubKey:    priv.PubKey().Compressed(),
		Signature: sig.Serialize(),
	}, nil
}

// Verify checks the signature against program and returns the caller's address.
func (r *SignedRequest) Verify(program Address) (Address, error) {
	if r == nil {
		return Zero, fmt.Errorf("%w: request", ErrNilParam)
	}
	if r.Operation == "" {
		return Zero, ErrEmptyOperation
	}
	pub, err := ec.PublicKeyFromBytes(r.PubKey)
	if err != nil {
		return Zero, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	sig, err := ec.ParseDERSignature(r.Signature)
	if err != nil {
		return Zero, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !sig.Verify(RequestDigest(program, r.Operation, r.Timestamp, r.Payload), pub) {
		return Zero, fmt.Errorf("%w: verification failed", ErrInvalidSignature)
	}
	return FromPublicKey(pub)
}
