package http

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payungku-returns/internal/domain"
	"payungku-returns/internal/flow"
	"payungku-returns/internal/payment"
	"payungku-returns/internal/security"
	"payungku-returns/internal/session"
)

const testServerKey = "SB-Mid-server-test"

type stubResolver struct {
	outcome domain.ValidationOutcome
}

func (s stubResolver) ValidateReturn(ctx context.Context, token, locationID string) (domain.ValidationOutcome, error) {
	return s.outcome, nil
}

type stubSubmitter struct{}

func (stubSubmitter) ConfirmReturn(ctx context.Context, rentCode, token, locationID, bearer string) (string, string, error) {
	return "A3", "2 jam", nil
}

func (stubSubmitter) CompleteLateReturn(ctx context.Context, token, locationID string) (string, error) {
	return "B7", nil
}

type stubNotifier struct{}

func (stubNotifier) AlertLockerCodeFailure(ctx context.Context, rentCode string, penaltyAmount int64, cause error) {
}

type stubValidator struct {
	err error
}

func (s stubValidator) Validate(tokenString string) (*security.RenterClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &security.RenterClaims{UserID: 1, Name: "Sari"}, nil
}

func newTestServer(t *testing.T, outcome domain.ValidationOutcome, tokens security.TokenValidator) (*httptest.Server, *session.Manager) {
	t.Helper()
	deps := flow.Deps{
		Resolver:  stubResolver{outcome: outcome},
		Submitter: stubSubmitter{},
	}
	return newTestServerDeps(t, deps, tokens)
}

// newTestServerDeps spins up the full router with the given resolver and
// submitter; the checkout bridge and notifier are always real/stubbed here.
func newTestServerDeps(t *testing.T, deps flow.Deps, tokens security.TokenValidator) (*httptest.Server, *session.Manager) {
	t.Helper()
	deps.Checkout = payment.NewBridge(payment.NewSnapGateway("https://app.sandbox.midtrans.com", testServerKey))
	deps.Notifier = stubNotifier{}
	factory := func(id, token, locationID string) *flow.Controller {
		return flow.New(id, token, locationID, deps, flow.WithTickInterval(time.Hour))
	}
	manager := session.NewManager(factory, nil, time.Minute)

	router := NewRouter(
		NewReturnHandler(manager, tokens),
		NewWebhookHandler(manager, testServerKey),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, manager
}

func onTimeOutcome() domain.ValidationOutcome {
	return domain.OnTimeOutcome(&domain.TransactionSnapshot{RentCode: "RENT-1", UserName: "Sari"})
}

func lateOutcome() domain.ValidationOutcome {
	return domain.LateOutcome(&domain.TransactionSnapshot{RentCode: "RENT-1"}, 15000, "snap-abc")
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeView(t *testing.T, resp *http.Response) domain.SessionView {
	t.Helper()
	defer resp.Body.Close()
	var view domain.SessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func createSession(t *testing.T, srv *httptest.Server) domain.SessionView {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]string{"token": "tok-1"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decodeView(t, resp)
	require.NotEmpty(t, view.ID)
	return view
}

func getView(t *testing.T, srv *httptest.Server, id string) domain.SessionView {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/v1/returns/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeView(t, resp)
}

func waitForViewState(t *testing.T, srv *httptest.Server, id string, want domain.SessionState) domain.SessionView {
	t.Helper()
	var view domain.SessionView
	require.Eventually(t, func() bool {
		view = getView(t, srv, id)
		return view.State == want
	}, 2*time.Second, 10*time.Millisecond, "session never reached %s", want)
	return view
}

func TestReturnHandler_CreateAndPoll(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})

	view := createSession(t, srv)
	settled := waitForViewState(t, srv, view.ID, domain.StateValidated)
	require.NotNil(t, settled.Transaction)
	assert.Equal(t, "RENT-1", settled.Transaction.RentCode)
	assert.Zero(t, settled.PenaltyAmount)
}

func TestReturnHandler_CreateWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})

	resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]string{}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReturnHandler_GetUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})

	resp, err := http.Get(srv.URL + "/api/v1/returns/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReturnHandler_ConfirmRequiresBearer(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})
	view := createSession(t, srv)
	waitForViewState(t, srv, view.ID, domain.StateValidated)

	resp := postJSON(t, srv.URL+"/api/v1/returns/"+view.ID+"/confirm", map[string]string{}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReturnHandler_ConfirmRejectsBadBearer(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{err: security.ErrInvalidToken})
	view := createSession(t, srv)
	waitForViewState(t, srv, view.ID, domain.StateValidated)

	resp := postJSON(t, srv.URL+"/api/v1/returns/"+view.ID+"/confirm", map[string]string{},
		map[string]string{"Authorization": "Bearer bogus"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReturnHandler_ConfirmHappyPath(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})
	view := createSession(t, srv)
	waitForViewState(t, srv, view.ID, domain.StateValidated)

	resp := postJSON(t, srv.URL+"/api/v1/returns/"+view.ID+"/confirm",
		map[string]string{"return_location_id": "loc-2"},
		map[string]string{"Authorization": "Bearer good"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	settled := waitForViewState(t, srv, view.ID, domain.StateSuccess)
	assert.Equal(t, "A3", settled.LockerCode)
	assert.Equal(t, "2 jam", settled.RentDuration)
}

func TestReturnHandler_PayOutsideLateState(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})
	view := createSession(t, srv)
	waitForViewState(t, srv, view.ID, domain.StateValidated)

	resp := postJSON(t, srv.URL+"/api/v1/returns/"+view.ID+"/pay", map[string]string{}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReturnHandler_LatePayAndWebhookSettlement(t *testing.T) {
	srv, _ := newTestServer(t, lateOutcome(), stubValidator{})
	view := createSession(t, srv)

	late := waitForViewState(t, srv, view.ID, domain.StateLate)
	assert.Equal(t, int64(15000), late.PenaltyAmount)
	assert.Equal(t, "snap-abc", late.SnapToken)
	assert.Equal(t, 300, late.RemainingSeconds)

	resp := postJSON(t, srv.URL+"/api/v1/returns/"+view.ID+"/pay", map[string]string{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var checkout payment.Checkout
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&checkout))
	resp.Body.Close()
	assert.Equal(t, "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-abc", checkout.RedirectURL)

	status := postNotification(t, srv, "RENT-1", "settlement", "15000.00")
	assert.Equal(t, "applied", status)

	settled := waitForViewState(t, srv, view.ID, domain.StateSuccess)
	assert.Equal(t, "B7", settled.LockerCode)
}

func TestReturnHandler_CloseSession(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})
	view := createSession(t, srv)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/returns/"+view.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	gone, err := http.Get(srv.URL + "/api/v1/returns/" + view.ID)
	require.NoError(t, err)
	defer gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, onTimeOutcome(), stubValidator{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func signNotification(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + testServerKey))
	return hex.EncodeToString(sum[:])
}

func postNotification(t *testing.T, srv *httptest.Server, orderID, txStatus, grossAmount string) string {
	t.Helper()
	n := payment.Notification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       grossAmount,
		TransactionStatus: txStatus,
		SignatureKey:      signNotification(orderID, "200", grossAmount),
	}
	resp := postJSON(t, srv.URL+"/api/v1/payments/snap/notify", n, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["status"]
}

// deadlineSubmitter only completes if its context stays alive past the
// handler's return. A request-scoped context gets canceled first and the
// calls fail, which is exactly what these tests guard against.
type deadlineSubmitter struct {
	delay time.Duration
}

func (s deadlineSubmitter) ConfirmReturn(ctx context.Context, rentCode, token, locationID, bearer string) (string, string, error) {
	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case <-time.After(s.delay):
		return "A3", "2 jam", nil
	}
}

func (s deadlineSubmitter) CompleteLateReturn(ctx context.Context, token, locationID string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.delay):
		return "B7", nil
	}
}

func TestReturnHandler_ConfirmOutlivesRequest(t *testing.T) {
	deps := flow.Deps{
		Resolver:  stubResolver{outcome: onTimeOutcome()},
		Submitter: deadlineSubmitter{delay: 50 * time.Millisecond},
	}
	srv, _ := newTestServerDeps(t, deps, stubValidator{})
	view := createSession(t, srv)
	waitForViewState(t, srv, view.ID, domain.StateValidated)

	resp := postJSON(t, srv.URL+"/api/v1/returns/"+view.ID+"/confirm",
		map[string]string{"return_location_id": "loc-2"},
		map[string]string{"Authorization": "Bearer good"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	settled := waitForViewState(t, srv, view.ID, domain.StateSuccess)
	assert.Equal(t, "A3", settled.LockerCode)
	assert.Empty(t, settled.Notice)
}

func TestWebhookHandler_CompletionOutlivesRequest(t *testing.T) {
	deps := flow.Deps{
		Resolver:  stubResolver{outcome: lateOutcome()},
		Submitter: deadlineSubmitter{delay: 50 * time.Millisecond},
	}
	srv, _ := newTestServerDeps(t, deps, stubValidator{})
	view := createSession(t, srv)
	waitForViewState(t, srv, view.ID, domain.StateLate)

	status := postNotification(t, srv, "RENT-1", "settlement", "15000.00")
	assert.Equal(t, "applied", status)

	settled := waitForViewState(t, srv, view.ID, domain.StateSuccess)
	assert.Equal(t, "B7", settled.LockerCode)
}

// failThenSlowResolver fails the first validation and then resolves on time,
// but only if the context survives the delay.
type failThenSlowResolver struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
}

func (r *failThenSlowResolver) ValidateReturn(ctx context.Context, token, locationID string) (domain.ValidationOutcome, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		return domain.InvalidOutcome("expired"), nil
	}
	select {
	case <-ctx.Done():
		return domain.ValidationOutcome{}, ctx.Err()
	case <-time.After(r.delay):
		return onTimeOutcome(), nil
	}
}

func TestReturnHandler_RetryOutlivesRequest(t *testing.T) {
	deps := flow.Deps{
		Resolver:  &failThenSlowResolver{delay: 50 * time.Millisecond},
		Submitter: stubSubmitter{},
	}
	srv, _ := newTestServerDeps(t, deps, stubValidator{})
	view := createSession(t, srv)
	waitForViewState(t, srv, view.ID, domain.StateError)

	resp := postJSON(t, srv.URL+"/api/v1/returns/"+view.ID+"/retry", map[string]string{}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	settled := waitForViewState(t, srv, view.ID, domain.StateValidated)
	assert.Empty(t, settled.ErrorMessage)
}

func TestWebhookHandler_RejectsBadSignature(t *testing.T) {
	srv, _ := newTestServer(t, lateOutcome(), stubValidator{})

	n := payment.Notification{
		OrderID:           "RENT-1",
		StatusCode:        "200",
		GrossAmount:       "15000.00",
		TransactionStatus: "settlement",
		SignatureKey:      "forged",
	}
	resp := postJSON(t, srv.URL+"/api/v1/payments/snap/notify", n, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhookHandler_UnknownOrderIsAcknowledged(t *testing.T) {
	srv, _ := newTestServer(t, lateOutcome(), stubValidator{})

	status := postNotification(t, srv, "RENT-UNKNOWN", "settlement", "15000.00")
	assert.Equal(t, "ignored", status)
}
