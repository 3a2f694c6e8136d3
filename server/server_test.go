package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/milestone-escrow/escrow"
	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/store"
)

var (
	testProgram = identity.LabelAddress("server-test-program")
	testMint    = identity.LabelAddress("usd")
	testNow     = time.Unix(1_700_000_000, 0)
)

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	engine *escrow.Engine
	clock  atomic.Int64 // unix seconds seen by the server

	issuer, admin1, admin2, resolver, alice, bob *identity.KeyPair
}

func newKey(t *testing.T) *identity.KeyPair {
	t.Helper()
	kp, err := identity.NewKeyPair()
	require.NoError(t, err)
	return kp
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		issuer:   newKey(t),
		admin1:   newKey(t),
		admin2:   newKey(t),
		resolver: newKey(t),
		alice:    newKey(t),
		bob:      newKey(t),
	}
	h.clock.Store(testNow.Unix())
	h.engine = escrow.New(store.NewMemStore(), testProgram, zerolog.Nop())
	s := New(h.engine, Options{
		Issuer:        h.issuer.Address,
		RequestWindow: time.Minute,
		Logger:        zerolog.Nop(),
		Now:           h.now,
	})
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) now() time.Time { return time.Unix(h.clock.Load(), 0) }

// tick advances the server clock by one second so that repeated identical
// operations produce distinct signed requests.
func (h *harness) tick() time.Time { return time.Unix(h.clock.Add(1), 0) }

// signedBody builds a signed request body for op at timestamp ts.
func (h *harness) signedBody(kp *identity.KeyPair, op string, ts time.Time, payload interface{}) []byte {
	h.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(h.t, err)
	req, err := identity.SignRequest(kp.PrivateKey, testProgram, op, ts.Unix(), raw)
	require.NoError(h.t, err)
	body, err := json.Marshal(req)
	require.NoError(h.t, err)
	return body
}

func (h *harness) post(path string, body []byte) (int, map[string]interface{}) {
	h.t.Helper()
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) do(kp *identity.KeyPair, op string, payload interface{}) (int, map[string]interface{}) {
	h.t.Helper()
	return h.post("/v1/ops/"+op, h.signedBody(kp, op, h.tick(), payload))
}

func (h *harness) mustDo(kp *identity.KeyPair, op string, payload interface{}) map[string]interface{} {
	h.t.Helper()
	status, body := h.do(kp, op, payload)
	require.Equal(h.t, http.StatusOK, status, "op %s: %v", op, body)
	return body
}

func (h *harness) get(path string) (int, map[string]interface{}) {
	h.t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// setup configures admins and funds alice.
func (h *harness) setup(adminFee, resolverFee uint8) {
	h.t.Helper()
	h.mustDo(h.admin1, escrow.OpInitAdmin, map[string]interface{}{
		"admin2": h.admin2.Address, "resolver": h.resolver.Address,
	})
	h.mustDo(h.admin1, escrow.OpSetFee, map[string]interface{}{
		"admin_fee_percent": adminFee, "resolver_fee_percent": resolverFee,
	})
	h.mustDo(h.issuer, OpIssue, map[string]interface{}{
		"owner": h.alice.Address, "mint": testMint, "amount": 10_000,
	})
}

func (h *harness) balance(owner identity.Address) float64 {
	h.t.Helper()
	status, body := h.get("/v1/balances/" + owner.String() + "/" + testMint.String())
	require.Equal(h.t, http.StatusOK, status)
	return body["balance"].(float64)
}

// ---------------------------------------------------------------------------
// Health / metrics
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	status, body := h.get("/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.setup(0, 0)

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "escrow_engine_operations_total")
	assert.Contains(t, buf.String(), "escrow_http_requests_total")
}

func TestMetricsUnmatchedRouteLabel(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/no-such-route-5f3a")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `route="unmatched"`)
	assert.NotContains(t, buf.String(), "no-such-route-5f3a")
}

func TestRequestIDHeader(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	id := "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, id)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(requestIDHeader))
}

// ---------------------------------------------------------------------------
// Settlement flow over HTTP
// ---------------------------------------------------------------------------

func TestSettlementFlow(t *testing.T) {
	h := newHarness(t)
	h.setup(20, 5)

	body := h.mustDo(h.alice, escrow.OpInitialize, map[string]interface{}{
		"seed": 7, "taker": h.bob.Address, "currency": testMint, "milestones": []uint64{1000, 1000},
	})
	result := body["result"].(map[string]interface{})
	assert.Equal(t, h.engine.Addresses(7).Vault.String(), result["vault"])
	assert.Equal(t, h.alice.Address.String(), body["caller"])

	h.mustDo(h.alice, escrow.OpApprove, map[string]interface{}{"seed": 7, "milestone": 0})
	assert.Equal(t, float64(800), h.balance(h.bob.Address))

	h.mustDo(h.bob, escrow.OpDispute, map[string]interface{}{"seed": 7})
	h.mustDo(h.resolver, escrow.OpResolve, map[string]interface{}{
		"seed": 7, "milestone": 1, "recipient": h.bob.Address,
	})
	assert.Equal(t, float64(800+750), h.balance(h.bob.Address))
	assert.Equal(t, float64(30+30), h.balance(h.admin1.Address))
	assert.Equal(t, float64(170+170), h.balance(h.admin2.Address))
	assert.Equal(t, float64(50), h.balance(h.resolver.Address))

	status, view := h.get("/v1/escrows/7")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, view["disputed"])
	assert.Equal(t, []interface{}{0.0, 0.0, 0.0, 0.0, 0.0}, view["milestones"])
	assert.Equal(t, 0.0, view["vault_balance"])

	h.mustDo(h.resolver, escrow.OpWithdrawForResolve, map[string]interface{}{"seed": 7})
	status, _ = h.get("/v1/escrows/7")
	assert.Equal(t, http.StatusNotFound, status)

	status, list := h.get("/v1/escrows")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, list["escrows"])
}

func TestGetAdmin(t *testing.T) {
	h := newHarness(t)
	status, body := h.get("/v1/admin")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["kind"])

	h.setup(20, 5)
	status, body = h.get("/v1/admin")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, h.admin1.Address.String(), body["admin1"])
	assert.Equal(t, float64(20), body["admin_fee_percent"])
	assert.Equal(t, float64(5), body["resolver_fee_percent"])
}

func TestGetAddresses(t *testing.T) {
	h := newHarness(t)
	status, body := h.get("/v1/escrows/42/addresses")
	require.Equal(t, http.StatusOK, status)
	want := h.engine.Addresses(42)
	assert.Equal(t, want.Record.String(), body["record"])
	assert.Equal(t, want.Vault.String(), body["vault"])
	assert.Equal(t, want.Authority.String(), body["authority"])
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t)
	h.setup(0, 0)
	h.mustDo(h.alice, escrow.OpInitialize, map[string]interface{}{
		"seed": 1, "taker": h.bob.Address, "currency": testMint, "milestones": []uint64{100},
	})

	tests := []struct {
		name    string
		kp      *identity.KeyPair
		op      string
		payload interface{}
		status  int
		kind    string
	}{
		{"change_admin by admin2", h.admin2, escrow.OpChangeAdmin,
			map[string]interface{}{"admin1": h.admin2.Address, "admin2": h.admin1.Address, "resolver": h.resolver.Address},
			http.StatusForbidden, "unauthorized"},
		{"approve by taker", h.bob, escrow.OpApprove,
			map[string]interface{}{"seed": 1, "milestone": 0}, http.StatusForbidden, "unauthorized"},
		{"approve unfunded slot", h.alice, escrow.OpApprove,
			map[string]interface{}{"seed": 1, "milestone": 4}, http.StatusConflict, "invariant"},
		{"resolve undisputed", h.resolver, escrow.OpResolve,
			map[string]interface{}{"seed": 1, "milestone": 0, "recipient": h.bob.Address}, http.StatusConflict, "invariant"},
		{"duplicate seed", h.alice, escrow.OpInitialize,
			map[string]interface{}{"seed": 1, "taker": h.bob.Address, "currency": testMint, "milestones": []uint64{1}},
			http.StatusConflict, "duplicate"},
		{"duplicate admin", h.admin1, escrow.OpInitAdmin,
			map[string]interface{}{"admin2": h.admin2.Address, "resolver": h.resolver.Address},
			http.StatusConflict, "duplicate"},
		{"unknown record", h.alice, escrow.OpDispute,
			map[string]interface{}{"seed": 99}, http.StatusNotFound, "not_found"},
		{"too many milestones", h.alice, escrow.OpInitialize,
			map[string]interface{}{"seed": 2, "taker": h.bob.Address, "currency": testMint, "milestones": []uint64{1, 1, 1, 1, 1, 1}},
			http.StatusBadRequest, "malformed"},
		{"unknown payload field", h.alice, escrow.OpDispute,
			map[string]interface{}{"seed": 1, "extra": true}, http.StatusBadRequest, "malformed"},
		{"issue by non-issuer", h.alice, OpIssue,
			map[string]interface{}{"owner": h.alice.Address, "mint": testMint, "amount": 1},
			http.StatusForbidden, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := h.do(tt.kp, tt.op, tt.payload)
			assert.Equal(t, tt.status, status, "%v", body)
			assert.Equal(t, tt.kind, body["kind"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestUnknownOperation(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(h.alice, "cancel", map[string]interface{}{"seed": 1})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_operation", body["kind"])
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t)
	h.setup(0, 0)
	payload := map[string]interface{}{"seed": 1}

	t.Run("stale timestamp", func(t *testing.T) {
		body := h.signedBody(h.alice, escrow.OpDispute, h.now().Add(-2*time.Minute), payload)
		status, out := h.post("/v1/ops/dispute", body)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthenticated", out["kind"])
	})

	t.Run("future timestamp", func(t *testing.T) {
		body := h.signedBody(h.alice, escrow.OpDispute, h.now().Add(2*time.Minute), payload)
		status, _ := h.post("/v1/ops/dispute", body)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("tampered payload", func(t *testing.T) {
		var req identity.SignedRequest
		require.NoError(t, json.Unmarshal(h.signedBody(h.alice, escrow.OpDispute, h.tick(), payload), &req))
		req.Payload = []byte(`{"seed":2}`)
		body, err := json.Marshal(req)
		require.NoError(t, err)
		status, _ := h.post("/v1/ops/dispute", body)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("operation mismatch", func(t *testing.T) {
		body := h.signedBody(h.alice, escrow.OpRefund, h.tick(), payload)
		status, out := h.post("/v1/ops/dispute", body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "malformed", out["kind"])
	})

	t.Run("malformed envelope", func(t *testing.T) {
		status, _ := h.post("/v1/ops/dispute", []byte("{not json"))
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestReplayedRequest(t *testing.T) {
	h := newHarness(t)
	h.setup(0, 0)

	body := h.signedBody(h.issuer, OpIssue, h.tick(), map[string]interface{}{
		"owner": h.alice.Address, "mint": testMint, "amount": 1000,
	})
	status, _ := h.post("/v1/ops/issue", body)
	require.Equal(t, http.StatusOK, status)

	status, out := h.post("/v1/ops/issue", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", out["kind"])
	assert.Equal(t, float64(10_000+1000), h.balance(h.alice.Address))
}

func TestReplayedRequest_FailedOperationIsConsumed(t *testing.T) {
	h := newHarness(t)
	h.setup(0, 0)

	body := h.signedBody(h.alice, escrow.OpDispute, h.tick(), map[string]interface{}{"seed": 5})
	status, _ := h.post("/v1/ops/dispute", body)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = h.post("/v1/ops/dispute", body)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestReplayedRequest_SamePayloadOtherCaller(t *testing.T) {
	h := newHarness(t)
	h.setup(0, 0)
	h.mustDo(h.alice, escrow.OpInitialize, map[string]interface{}{
		"seed": 3, "taker": h.bob.Address, "currency": testMint, "milestones": []uint64{100},
	})

	ts := h.tick()
	payload := map[string]interface{}{"seed": 3}
	status, out := h.post("/v1/ops/dispute", h.signedBody(h.alice, escrow.OpDispute, ts, payload))
	require.Equal(t, http.StatusOK, status, "%v", out)
	status, out = h.post("/v1/ops/dispute", h.signedBody(h.bob, escrow.OpDispute, ts, payload))
	assert.Equal(t, http.StatusOK, status, "%v", out)
}

func TestOtherDeploymentRejected(t *testing.T) {
	h := newHarness(t)
	h.setup(0, 0)

	raw, err := json.Marshal(map[string]interface{}{"owner": h.alice.Address, "mint": testMint, "amount": 1000})
	require.NoError(t, err)
	req, err := identity.SignRequest(h.issuer.PrivateKey, identity.LabelAddress("other-deployment"), OpIssue, h.tick().Unix(), raw)
	require.NoError(t, err)
	body, err := json.Marshal(req)
	require.NoError(t, err)

	status, out := h.post("/v1/ops/issue", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", out["kind"])
	assert.Equal(t, float64(10_000), h.balance(h.alice.Address))
}

func TestReplayGuard_Expiry(t *testing.T) {
	g := newReplayGuard(time.Minute)
	caller := identity.LabelAddress("caller")
	digest := identity.RequestDigest(testProgram, OpIssue, testNow.Unix(), nil)

	assert.True(t, g.accept(caller, digest, testNow.Unix(), testNow))
	assert.False(t, g.accept(caller, digest, testNow.Unix(), testNow.Add(30*time.Second)))
	assert.True(t, g.accept(identity.LabelAddress("other"), digest, testNow.Unix(), testNow))
	assert.Equal(t, 2, g.size())

	later := testNow.Add(2 * time.Minute)
	other := identity.RequestDigest(testProgram, OpIssue, later.Unix(), nil)
	assert.True(t, g.accept(caller, other, later.Unix(), later))
	assert.Equal(t, 1, g.size())
}

func TestIssuanceDisabled(t *testing.T) {
	engine := escrow.New(store.NewMemStore(), testProgram, zerolog.Nop())
	srv := httptest.NewServer(New(engine, Options{
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testNow },
	}).Handler())
	defer srv.Close()

	kp := newKey(t)
	raw, err := json.Marshal(map[string]interface{}{"owner": kp.Address, "mint": testMint, "amount": 1})
	require.NoError(t, err)
	req, err := identity.SignRequest(kp.PrivateKey, testProgram, OpIssue, testNow.Unix(), raw)
	require.NoError(t, err)
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/v1/ops/issue", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBadPathParams(t *testing.T) {
	h := newHarness(t)
	status, _ := h.get("/v1/escrows/not-a-number")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.get("/v1/balances/zz/" + testMint.String())
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := h.get("/v1/balances/" + strings.Repeat("ab", 20) + "/" + testMint.String())
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["balance"])
}
