package server

import "errors"

var (
	// ErrMalformedRequest indicates the body or payload could not be decoded.
	ErrMalformedRequest = errors.New("server: malformed request")

	// ErrUnknownOperation indicates the path names no operation.
	ErrUnknownOperation = errors.New("server: unknown operation")

	// ErrOperationMismatch indicates the signed operation differs from the path.
	ErrOperationMismatch = errors.New("server: signed operation does not match path")

	// ErrStaleRequest indicates the request timestamp is outside the accepted window.
	ErrStaleRequest = errors.New("server: request timestamp outside window")

	// ErrReplayedRequest indicates the same signed request was already accepted.
	ErrReplayedRequest = errors.New("server: request already accepted")

	// ErrIssuanceDisabled indicates issue was called but no issuer is configured.
	ErrIssuanceDisabled = errors.New("server: issuance disabled")

	// ErrNotIssuer indicates issue was called by someone other than the issuer.
	ErrNotIssuer = errors.New("server: caller is not the issuer")
)
