package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bitfsorg/milestone-escrow/escrow"
	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/state"
)

// OpIssue credits currency to an account. Only the configured issuer may call it.
const OpIssue = "issue"

// ---------------------------------------------------------------------------
// Operation payloads
// ---------------------------------------------------------------------------

type initAdminPayload struct {
	Admin2   identity.Address `json:"admin2"`
	Resolver identity.Address `json:"resolver"`
}

type changeAdminPayload struct {
	Admin1   identity.Address `json:"admin1"`
	Admin2   identity.Address `json:"admin2"`
	Resolver identity.Address `json:"resolver"`
}

type setFeePayload struct {
	AdminFeePercent    uint8 `json:"admin_fee_percent"`
	ResolverFeePercent uint8 `json:"resolver_fee_percent"`
}

type initializePayload struct {
	Seed       uint64           `json:"seed"`
	Taker      identity.Address `json:"taker"`
	Currency   identity.Address `json:"currency"`
	Milestones []uint64         `json:"milestones"`
}

type seedPayload struct {
	Seed uint64 `json:"seed"`
}

type milestonePayload struct {
	Seed      uint64 `json:"seed"`
	Milestone int    `json:"milestone"`
}

type resolvePayload struct {
	Seed      uint64           `json:"seed"`
	Milestone int              `json:"milestone"`
	Recipient identity.Address `json:"recipient"`
}

type issuePayload struct {
	Owner  identity.Address `json:"owner"`
	Mint   identity.Address `json:"mint"`
	Amount uint64           `json:"amount"`
}

// decodePayload strictly decodes an operation payload.
func decodePayload(payload []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: payload: %w", ErrMalformedRequest, err)
	}
	return nil
}

// opFunc runs one operation for an authenticated caller and returns an
// optional result body.
type opFunc func(caller identity.Address, payload []byte) (interface{}, error)

func (s *Server) operation(op string) (opFunc, bool) {
	e := s.engine
	switch op {
	case escrow.OpInitAdmin:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p initAdminPayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.InitAdmin(caller, p.Admin2, p.Resolver)
		}, true
	case escrow.OpChangeAdmin:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p changeAdminPayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.ChangeAdmin(caller, p.Admin1, p.Admin2, p.Resolver)
		}, true
	case escrow.OpSetFee:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p setFeePayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.SetFee(caller, p.AdminFeePercent, p.ResolverFeePercent)
		}, true
	case escrow.OpInitialize:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p initializePayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			if len(p.Milestones) > state.MilestoneCount {
				return nil, fmt.Errorf("%w: at most %d milestones", ErrMalformedRequest, state.MilestoneCount)
			}
			var m state.Milestones
			copy(m[:], p.Milestones)
			err := e.Initialize(caller, escrow.InitializeParams{
				Seed: p.Seed, Taker: p.Taker, Currency: p.Currency, Milestones: m,
			})
			if err != nil {
				return nil, err
			}
			return e.Addresses(p.Seed), nil
		}, true
	case escrow.OpApprove:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p milestonePayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.Approve(caller, p.Seed, p.Milestone)
		}, true
	case escrow.OpDispute:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p seedPayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.Dispute(caller, p.Seed)
		}, true
	case escrow.OpRefund:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p seedPayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.Refund(caller, p.Seed)
		}, true
	case escrow.OpResolve:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p resolvePayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.Resolve(caller, p.Seed, p.Milestone, p.Recipient)
		}, true
	case escrow.OpWithdrawForResolve:
		return func(caller identity.Address, payload []byte) (interface{}, error) {
			var p seedPayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			return nil, e.WithdrawForResolve(caller, p.Seed)
		}, true
	case OpIssue:
		return s.issue, true
	}
	return nil, false
}

func (s *Server) issue(caller identity.Address, payload []byte) (interface{}, error) {
	if s.issuer.IsZero() {
		return nil, ErrIssuanceDisabled
	}
	if caller != s.issuer {
		return nil, fmt.Errorf("%w: %s", ErrNotIssuer, caller.Short())
	}
	var p issuePayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return nil, s.engine.Issue(p.Owner, p.Mint, p.Amount)
}

// authenticate verifies the request signature and timestamp window, and
// accepts each signed request at most once.
func (s *Server) authenticate(req *identity.SignedRequest) (identity.Address, error) {
	now := s.now()
	skew := now.Sub(time.Unix(req.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.window {
		return identity.Zero, fmt.Errorf("%w: skew %s", ErrStaleRequest, skew)
	}
	program := s.engine.ProgramID()
	caller, err := req.Verify(program)
	if err != nil {
		return identity.Zero, err
	}
	digest := identity.RequestDigest(program, req.Operation, req.Timestamp, req.Payload)
	if !s.seen.accept(caller, digest, req.Timestamp, now) {
		return identity.Zero, fmt.Errorf("%w: %s from %s", ErrReplayedRequest, req.Operation, caller.Short())
	}
	return caller, nil
}

type opResponse struct {
	Op        string           `json:"op"`
	Caller    identity.Address `json:"caller"`
	RequestID string           `json:"request_id"`
	Result    interface{}      `json:"result,omitempty"`
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")
	run, ok := s.operation(op)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %q", ErrUnknownOperation, op))
		return
	}

	var req identity.SignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", ErrMalformedRequest, err))
		return
	}
	if req.Operation != op {
		s.writeError(w, r, fmt.Errorf("%w: %q", ErrOperationMismatch, req.Operation))
		return
	}
	caller, err := s.authenticate(&req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := run(caller, req.Payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opResponse{
		Op:        op,
		Caller:    caller,
		RequestID: requestIDFrom(r.Context()),
		Result:    result,
	})
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

type adminView struct {
	Admin1             identity.Address `json:"admin1"`
	Admin2             identity.Address `json:"admin2"`
	Resolver           identity.Address `json:"resolver"`
	AdminFeePercent    uint8            `json:"admin_fee_percent"`
	ResolverFeePercent uint8            `json:"resolver_fee_percent"`
}

type escrowView struct {
	Seed         uint64           `json:"seed"`
	Initializer  identity.Address `json:"initializer"`
	Taker        identity.Address `json:"taker"`
	Currency     identity.Address `json:"currency"`
	Vault        identity.Address `json:"vault"`
	Milestones   state.Milestones `json:"milestones"`
	Disputed     bool             `json:"disputed"`
	VaultBalance *uint64          `json:"vault_balance,omitempty"`
}

func newEscrowView(rec *state.EscrowRecord) escrowView {
	return escrowView{
		Seed:        rec.Seed,
		Initializer: rec.Initializer,
		Taker:       rec.Taker,
		Currency:    rec.Currency,
		Vault:       rec.Vault,
		Milestones:  rec.Milestones,
		Disputed:    rec.Disputed,
	}
}

func (s *Server) getAdmin(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Admin()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminView{
		Admin1:             cfg.Admin1,
		Admin2:             cfg.Admin2,
		Resolver:           cfg.Resolver,
		AdminFeePercent:    cfg.AdminFeePercent,
		ResolverFeePercent: cfg.ResolverFeePercent,
	})
}

func (s *Server) listEscrows(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.Escrows()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]escrowView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, newEscrowView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"escrows": views})
}

func seedParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "seed")
	seed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: seed %q", ErrMalformedRequest, raw)
	}
	return seed, nil
}

func addressParam(r *http.Request, name string) (identity.Address, error) {
	addr, err := identity.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		return identity.Zero, fmt.Errorf("%w: %s: %w", ErrMalformedRequest, name, err)
	}
	return addr, nil
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	seed, err := seedParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.engine.Escrow(seed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.engine.VaultBalance(seed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := newEscrowView(rec)
	view.VaultBalance = &bal
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getAddresses(w http.ResponseWriter, r *http.Request) {
	seed, err := seedParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Addresses(seed))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mint, err := addressParam(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.engine.Balance(owner, mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "mint": mint, "balance": bal})
}
