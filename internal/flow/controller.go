// Package flow owns the return-validation state machine. One Controller
// exists per client page view; it is the only writer of its session state.
// Every asynchronous completion (validation response, confirmation response,
// gateway outcome, timer tick) is guarded by a generation counter so a
// completion that arrives after the flow has moved on cannot mutate state.
package flow

import (
	"context"
	"sync"
	"time"

	"payungku-returns/internal/domain"
	"payungku-returns/internal/logger"
	"payungku-returns/internal/payment"
)

// DefaultPenaltyWindowSeconds is the client-enforced payment window. The
// gateway remains the authority on whether the Snap token is actually live;
// expiry here is a UX timeout, not proof of gateway-side expiry.
const DefaultPenaltyWindowSeconds = 300

// Resolver classifies a return token via the core API.
type Resolver interface {
	ValidateReturn(ctx context.Context, token, locationID string) (domain.ValidationOutcome, error)
}

// Submitter finalizes a return via the core API.
type Submitter interface {
	ConfirmReturn(ctx context.Context, rentCode, token, locationID, bearer string) (lockerCode, rentDuration string, err error)
	CompleteLateReturn(ctx context.Context, token, locationID string) (lockerCode string, err error)
}

// PenaltyCheckout opens and releases penalty checkouts for a session.
type PenaltyCheckout interface {
	Open(sessionID, snapToken string) (*payment.Checkout, error)
	Release(sessionID string)
}

// SupportNotifier is told when a captured payment could not be followed by
// locker-code retrieval. Silent retry is not safe there, so a human must be.
type SupportNotifier interface {
	AlertLockerCodeFailure(ctx context.Context, rentCode string, penaltyAmount int64, cause error)
}

// Deps bundles the controller's collaborators.
type Deps struct {
	Resolver  Resolver
	Submitter Submitter
	Checkout  PenaltyCheckout
	Notifier  SupportNotifier
}

// Option tunes a Controller.
type Option func(*Controller)

// WithTickInterval overrides the one-second countdown beat (tests only).
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tickInterval = d }
}

// WithPenaltyWindow overrides the countdown start value in seconds.
func WithPenaltyWindow(seconds int) Option {
	return func(c *Controller) {
		if seconds > 0 {
			c.penaltyWindow = seconds
		}
	}
}

// Controller drives one return-validation session.
type Controller struct {
	id            string
	deps          Deps
	tickInterval  time.Duration
	penaltyWindow int

	mu            sync.Mutex
	state         domain.SessionState
	token         string
	locationID    string
	tx            *domain.TransactionSnapshot
	penaltyAmount int64
	snapToken     string
	remaining     int
	lockerCode    string
	rentDuration  string
	errMsg        string
	notice        string
	rotated       bool
	gen           int
	closed        bool
	timer         *countdown
}

// New creates a controller for one return attempt. token comes from the QR
// route parameter (or the resume cache); locationID is the chosen return
// location, which may still be empty at session start.
func New(id, token, locationID string, deps Deps, opts ...Option) *Controller {
	c := &Controller{
		id:            id,
		deps:          deps,
		tickInterval:  time.Second,
		penaltyWindow: DefaultPenaltyWindowSeconds,
		state:         domain.StateLoading,
		token:         token,
		locationID:    locationID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) ID() string { return c.id }

// State returns the current flow state.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RentCode returns the rent code of the validated transaction, if any. The
// gateway uses it as the checkout order id, so webhooks route by it.
func (c *Controller) RentCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return ""
	}
	return c.tx.RentCode
}

// Closed reports whether the session has been torn down.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Start kicks off the initial validation. The controller returns immediately;
// the state settles asynchronously.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = domain.StateLoading
	gen := c.gen
	token := c.token
	c.mu.Unlock()

	go c.runValidation(ctx, token, gen)
}

func (c *Controller) runValidation(ctx context.Context, token string, gen int) {
	outcome, err := c.deps.Resolver.ValidateReturn(ctx, token, c.locationIDSnapshot())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) || c.state != domain.StateLoading {
		return
	}
	if err != nil {
		c.toErrorLocked(domain.MsgNetworkFailure)
		return
	}

	switch outcome.Kind {
	case domain.OutcomeInvalid:
		reason := outcome.Reason
		if reason == "" {
			reason = domain.MsgInvalidCode
		}
		c.toErrorLocked(reason)

	case domain.OutcomeRotated:
		// The old token is permanently dead for this flow. Follow the new
		// one automatically, but only once per attempt, so a misbehaving
		// upstream cannot loop the client.
		if c.rotated {
			c.toErrorLocked(domain.MsgTokenRotatedLoop)
			return
		}
		c.rotated = true
		c.token = outcome.NewToken
		logger.WithSession(c.id).Info("Return token rotated, re-validating")
		go c.runValidation(ctx, outcome.NewToken, gen)

	case domain.OutcomeOnTime:
		c.tx = outcome.Transaction
		c.state = domain.StateValidated

	case domain.OutcomeLate:
		c.tx = outcome.Transaction
		c.enterLateLocked(outcome.PenaltyAmount, outcome.SnapToken)
	}
}

// enterLateLocked moves to LATE and arms the payment countdown.
func (c *Controller) enterLateLocked(penalty int64, snapToken string) {
	c.state = domain.StateLate
	c.penaltyAmount = penalty
	c.snapToken = snapToken
	c.remaining = c.penaltyWindow
	c.startTimerLocked()
}

func (c *Controller) startTimerLocked() {
	gen := c.gen
	c.timer = startCountdown(c.tickInterval, func() bool {
		return c.onTick(gen)
	})
}

func (c *Controller) onTick(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) || c.state != domain.StateLate {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		return true
	}

	// Countdown expired before the penalty was paid.
	c.gen++
	c.timer = nil
	c.state = domain.StateTimeout
	c.clearLateLocked()
	c.deps.Checkout.Release(c.id)
	logger.WithSession(c.id).Info("Penalty payment window expired")
	return false
}

// ConfirmReturn finalizes an on-time return. Only legal in VALIDATED. A
// failed confirmation keeps the session in VALIDATED with a toast-level
// notice so the user can retry.
func (c *Controller) ConfirmReturn(ctx context.Context, locationID, bearer string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.state != domain.StateValidated {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	if locationID != "" {
		c.locationID = locationID
	}
	gen := c.gen
	token, loc := c.token, c.locationID
	rentCode := c.tx.RentCode
	c.mu.Unlock()

	go func() {
		code, dur, err := c.deps.Submitter.ConfirmReturn(ctx, rentCode, token, loc, bearer)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.staleLocked(gen) || c.state != domain.StateValidated {
			return
		}
		if err != nil {
			c.notice = domain.MsgConfirmFailed
			logger.WithSession(c.id).Warn("Return confirmation failed", "error", err)
			return
		}
		c.gen++
		c.state = domain.StateSuccess
		c.lockerCode = code
		c.rentDuration = dur
		c.notice = ""
	}()
	return nil
}

// PayPenalty opens the penalty checkout. Only legal in LATE. Re-invocation
// while a checkout is open returns the live checkout; two overlapping
// checkouts are never opened for one session.
func (c *Controller) PayPenalty() (*payment.Checkout, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if c.state != domain.StateLate {
		c.mu.Unlock()
		return nil, domain.ErrInvalidTransition
	}
	snapToken := c.snapToken
	gen := c.gen
	c.mu.Unlock()

	co, err := c.deps.Checkout.Open(c.id, snapToken)
	if err != nil {
		return nil, err
	}

	// The countdown may have expired while the checkout was being opened;
	// a timed-out session must not keep a live checkout registered.
	c.mu.Lock()
	if c.staleLocked(gen) || c.state != domain.StateLate {
		closed := c.closed
		c.mu.Unlock()
		c.deps.Checkout.Release(c.id)
		if closed {
			return nil, domain.ErrSessionClosed
		}
		return nil, domain.ErrInvalidTransition
	}
	c.mu.Unlock()
	return co, nil
}

// HandlePaymentOutcome applies a gateway-reported checkout outcome. Outcomes
// arriving in any state other than LATE are stale and discarded.
func (c *Controller) HandlePaymentOutcome(ctx context.Context, outcome payment.CheckoutOutcome) {
	c.mu.Lock()
	if c.closed || c.state != domain.StateLate {
		c.mu.Unlock()
		return
	}

	switch outcome {
	case payment.CheckoutPending:
		c.notice = domain.MsgPaymentPending
		c.mu.Unlock()

	case payment.CheckoutClosed:
		// User closed the widget without completing; they may retry paying.
		c.deps.Checkout.Release(c.id)
		c.mu.Unlock()

	case payment.CheckoutError:
		c.deps.Checkout.Release(c.id)
		c.toErrorLocked(domain.MsgPaymentFailed)
		c.mu.Unlock()

	case payment.CheckoutSuccess:
		c.deps.Checkout.Release(c.id)
		c.stopTimerLocked()
		c.gen++ // ticks armed in LATE are now stale
		gen := c.gen
		token, loc := c.token, c.locationID
		rentCode, penalty := c.tx.RentCode, c.penaltyAmount
		c.mu.Unlock()
		go c.completeLate(ctx, token, loc, rentCode, penalty, gen)

	default:
		c.mu.Unlock()
	}
}

func (c *Controller) completeLate(ctx context.Context, token, loc, rentCode string, penalty int64, gen int) {
	code, err := c.deps.Submitter.CompleteLateReturn(ctx, token, loc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return
	}
	if err != nil {
		// The payment is already captured; retrying silently risks an
		// inconsistent return, so this is fatal for the session and
		// support gets an alert.
		c.toErrorLocked(domain.MsgLockerCodeFailed)
		go c.deps.Notifier.AlertLockerCodeFailure(context.Background(), rentCode, penalty, err)
		return
	}
	c.state = domain.StateSuccess
	c.lockerCode = code
	c.notice = ""
	c.clearLateLocked()
}

// Retry restarts the flow from a terminal state. From ERROR the validation
// re-runs from scratch; from TIMEOUT it re-validates as well, which both
// refreshes the penalty quote and guarantees a live payment handle instead
// of reusing one that may have expired.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.state != domain.StateTimeout && c.state != domain.StateError {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}

	c.gen++
	gen := c.gen
	c.state = domain.StateLoading
	c.errMsg = ""
	c.notice = ""
	c.lockerCode = ""
	c.rotated = false
	c.clearLateLocked()
	token := c.token
	c.mu.Unlock()

	go c.runValidation(ctx, token, gen)
	return nil
}

// Close tears the session down (page unmount). The countdown stops and any
// in-flight network completion is discarded when it later resolves.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.stopTimerLocked()
	c.mu.Unlock()

	c.deps.Checkout.Release(c.id)
}

// Snapshot returns the JSON projection of the session. Fields belonging to
// other states are left empty so exactly one of {penalty+handle, locker
// code, error message} is populated.
func (c *Controller) Snapshot() domain.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := domain.SessionView{
		ID:     c.id,
		State:  c.state,
		Notice: c.notice,
	}
	if c.state != domain.StateError {
		view.Transaction = c.tx
	}
	switch c.state {
	case domain.StateLate:
		view.PenaltyAmount = c.penaltyAmount
		view.SnapToken = c.snapToken
		view.RemainingSeconds = c.remaining
	case domain.StateSuccess:
		view.LockerCode = c.lockerCode
		view.RentDuration = c.rentDuration
	case domain.StateError:
		view.ErrorMessage = c.errMsg
	}
	return view
}

func (c *Controller) staleLocked(gen int) bool {
	return c.closed || gen != c.gen
}

func (c *Controller) toErrorLocked(msg string) {
	c.stopTimerLocked()
	c.gen++
	c.state = domain.StateError
	c.errMsg = msg
	c.notice = ""
	c.clearLateLocked()
}

func (c *Controller) clearLateLocked() {
	c.penaltyAmount = 0
	c.snapToken = ""
	c.remaining = 0
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) locationIDSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locationID
}
