package payment

import (
	"sync"

	"payungku-returns/internal/domain"
)

// Checkout is one opened checkout attempt.
type Checkout struct {
	SnapToken   string `json:"snap_token"`
	RedirectURL string `json:"redirect_url"`
}

// Bridge serializes access to the gateway per session: while a checkout is
// open for a session, opening again returns the live checkout instead of
// starting a second one. The gateway itself is a single shared instance.
type Bridge struct {
	mu      sync.Mutex
	gateway Gateway
	open    map[string]*Checkout // session ID -> live checkout
}

func NewBridge(gateway Gateway) *Bridge {
	return &Bridge{
		gateway: gateway,
		open:    make(map[string]*Checkout),
	}
}

// Open starts a checkout for the session, or returns the one already open.
// An empty Snap token is refused before the gateway is ever touched.
func (b *Bridge) Open(sessionID, snapToken string) (*Checkout, error) {
	if snapToken == "" {
		return nil, domain.ErrMissingPaymentHandle
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if live, ok := b.open[sessionID]; ok {
		return live, nil
	}

	co := &Checkout{
		SnapToken:   snapToken,
		RedirectURL: b.gateway.RedirectURL(snapToken),
	}
	b.open[sessionID] = co
	return co, nil
}

// Release closes the checkout marker for a session. Called when the gateway
// reports a final outcome, or when the session is closed.
func (b *Bridge) Release(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.open, sessionID)
}

// IsOpen reports whether a checkout is currently open for the session.
func (b *Bridge) IsOpen(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.open[sessionID]
	return ok
}
