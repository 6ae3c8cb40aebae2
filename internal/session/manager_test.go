package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payungku-returns/internal/domain"
	"payungku-returns/internal/flow"
	"payungku-returns/internal/payment"
)

type staticResolver struct {
	mu      sync.Mutex
	outcome domain.ValidationOutcome
	tokens  []string
}

func (r *staticResolver) ValidateReturn(ctx context.Context, token, locationID string) (domain.ValidationOutcome, error) {
	r.mu.Lock()
	r.tokens = append(r.tokens, token)
	r.mu.Unlock()
	return r.outcome, nil
}

func (r *staticResolver) seenTokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

type nopSubmitter struct{}

func (nopSubmitter) ConfirmReturn(ctx context.Context, rentCode, token, locationID, bearer string) (string, string, error) {
	return "L-01", "1 jam", nil
}

func (nopSubmitter) CompleteLateReturn(ctx context.Context, token, locationID string) (string, error) {
	return "L-02", nil
}

type nopCheckout struct{}

func (nopCheckout) Open(sessionID, snapToken string) (*payment.Checkout, error) {
	return &payment.Checkout{SnapToken: snapToken}, nil
}

func (nopCheckout) Release(sessionID string) {}

type nopNotifier struct{}

func (nopNotifier) AlertLockerCodeFailure(ctx context.Context, rentCode string, penaltyAmount int64, cause error) {
}

type memResumeRepo struct {
	mu     sync.Mutex
	states map[string]*domain.ResumeState
}

func newMemResumeRepo() *memResumeRepo {
	return &memResumeRepo{states: make(map[string]*domain.ResumeState)}
}

func (r *memResumeRepo) Get(ctx context.Context, deviceID string) (*domain.ResumeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[deviceID], nil
}

func (r *memResumeRepo) Upsert(ctx context.Context, state *domain.ResumeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.DeviceID] = state
	return nil
}

func (r *memResumeRepo) Delete(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, deviceID)
	return nil
}

func (r *memResumeRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestManager(resolver *staticResolver, resume *memResumeRepo, ttl time.Duration) *Manager {
	deps := flow.Deps{
		Resolver:  resolver,
		Submitter: nopSubmitter{},
		Checkout:  nopCheckout{},
		Notifier:  nopNotifier{},
	}
	factory := func(id, token, locationID string) *flow.Controller {
		return flow.New(id, token, locationID, deps, flow.WithTickInterval(time.Hour))
	}
	return NewManager(factory, resume, ttl)
}

func onTimeResolver() *staticResolver {
	return &staticResolver{
		outcome: domain.OnTimeOutcome(&domain.TransactionSnapshot{RentCode: "RENT-9"}),
	}
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(onTimeResolver(), newMemResumeRepo(), time.Minute)

	ctl, err := m.Create(context.Background(), CreateParams{Token: "tok-1"})
	require.NoError(t, err)
	require.NotNil(t, ctl)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(ctl.ID())
	require.NoError(t, err)
	assert.Same(t, ctl, got)
}

func TestManager_CreateWithoutTokenFails(t *testing.T) {
	m := newTestManager(onTimeResolver(), newMemResumeRepo(), time.Minute)

	_, err := m.Create(context.Background(), CreateParams{})
	assert.ErrorIs(t, err, domain.ErrEmptyToken)
	assert.Zero(t, m.Len())
}

func TestManager_ResumeCacheSuppliesToken(t *testing.T) {
	resolver := onTimeResolver()
	resume := newMemResumeRepo()
	require.NoError(t, resume.Upsert(context.Background(), &domain.ResumeState{
		DeviceID:         "dev-1",
		ReturnLocationID: "loc-9",
		RentToken:        "cached-tok",
	}))
	m := newTestManager(resolver, resume, time.Minute)

	ctl, err := m.Create(context.Background(), CreateParams{DeviceID: "dev-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ctl.State() == domain.StateValidated
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, resolver.seenTokens(), "cached-tok")
}

func TestManager_CreateWritesResumeCache(t *testing.T) {
	resume := newMemResumeRepo()
	m := newTestManager(onTimeResolver(), resume, time.Minute)

	_, err := m.Create(context.Background(), CreateParams{
		Token:            "tok-1",
		DeviceID:         "dev-2",
		ReturnLocationID: "loc-3",
	})
	require.NoError(t, err)

	cached, err := resume.Get(context.Background(), "dev-2")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "tok-1", cached.RentToken)
	assert.Equal(t, "loc-3", cached.ReturnLocationID)
}

func TestManager_FindByRentCode(t *testing.T) {
	m := newTestManager(onTimeResolver(), newMemResumeRepo(), time.Minute)

	ctl, err := m.Create(context.Background(), CreateParams{Token: "tok-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ctl.RentCode() == "RENT-9"
	}, 2*time.Second, 5*time.Millisecond)

	found, err := m.FindByRentCode("RENT-9")
	require.NoError(t, err)
	assert.Same(t, ctl, found)

	_, err = m.FindByRentCode("RENT-0")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = m.FindByRentCode("")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(onTimeResolver(), newMemResumeRepo(), time.Minute)

	ctl, err := m.Create(context.Background(), CreateParams{Token: "tok-1"})
	require.NoError(t, err)

	require.NoError(t, m.Close(ctl.ID()))
	assert.True(t, ctl.Closed())

	_, err = m.Get(ctl.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(ctl.ID()), domain.ErrSessionNotFound)
}

func TestManager_SweepDeadEvictsIdleSessions(t *testing.T) {
	m := newTestManager(onTimeResolver(), newMemResumeRepo(), 10*time.Millisecond)

	ctl, err := m.Create(context.Background(), CreateParams{Token: "tok-1"})
	require.NoError(t, err)

	// Nothing to sweep while fresh.
	assert.Zero(t, m.SweepDead(time.Now()))

	evicted := m.SweepDead(time.Now().Add(time.Minute))
	assert.Equal(t, 1, evicted)
	assert.Zero(t, m.Len())
	assert.True(t, ctl.Closed())
}
