package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/bitfsorg/milestone-escrow/escrow"
	"github.com/bitfsorg/milestone-escrow/identity"
)

// statusFor maps an error to its HTTP status and kind label.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMalformedRequest), errors.Is(err, ErrOperationMismatch):
		return http.StatusBadRequest, "malformed"
	case errors.Is(err, ErrUnknownOperation):
		return http.StatusNotFound, "unknown_operation"
	case errors.Is(err, ErrStaleRequest),
		errors.Is(err, ErrReplayedRequest),
		errors.Is(err, identity.ErrInvalidSignature),
		errors.Is(err, identity.ErrInvalidPublicKey),
		errors.Is(err, identity.ErrEmptyOperation):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, ErrNotIssuer), errors.Is(err, ErrIssuanceDisabled):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, escrow.ErrRecordNotFound), errors.Is(err, escrow.ErrAdminNotInitialized):
		return http.StatusNotFound, "not_found"
	}

	kind := escrow.Kind(err)
	switch kind {
	case "unauthorized":
		return http.StatusForbidden, kind
	case "invariant", "duplicate":
		return http.StatusConflict, kind
	case "insufficient_funds":
		return http.StatusPaymentRequired, kind
	}
	return http.StatusInternalServerError, kind
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
