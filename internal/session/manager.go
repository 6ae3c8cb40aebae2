// Package session keeps the registry of live return-validation sessions.
// Sessions are ephemeral: one per page view, destroyed on unmount or swept
// once stale. Durable rental state lives in the core API only.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"payungku-returns/internal/domain"
	"payungku-returns/internal/flow"
	"payungku-returns/internal/logger"
	"payungku-returns/internal/repository"
)

// ControllerFactory builds a flow controller for one session.
type ControllerFactory func(id, token, locationID string) *flow.Controller

type entry struct {
	ctl      *flow.Controller
	deviceID string
	created  time.Time
	touched  time.Time
}

type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	factory ControllerFactory
	resume  repository.ResumeCacheRepository
	ttl     time.Duration
}

func NewManager(factory ControllerFactory, resume repository.ResumeCacheRepository, ttl time.Duration) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		factory: factory,
		resume:  resume,
		ttl:     ttl,
	}
}

// CreateParams carries the session-initialization input. Token may be empty
// when the page was reloaded; in that case the resume cache for the device
// supplies the token and location cached on the previous visit.
type CreateParams struct {
	Token            string
	DeviceID         string
	ReturnLocationID string
}

// Create registers a new session and starts its validation. The resume cache
// is read once here, at session start, never polled afterwards.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*flow.Controller, error) {
	token := params.Token
	locationID := params.ReturnLocationID

	if token == "" && params.DeviceID != "" && m.resume != nil {
		cached, err := m.resume.Get(ctx, params.DeviceID)
		if err != nil {
			logger.Warn("Resume cache read failed", "error", err, "deviceID", params.DeviceID)
		} else if cached != nil {
			token = cached.RentToken
			if locationID == "" {
				locationID = cached.ReturnLocationID
			}
		}
	}
	if token == "" {
		return nil, domain.ErrEmptyToken
	}

	id := uuid.NewString()
	ctl := m.factory(id, token, locationID)

	now := time.Now()
	m.mu.Lock()
	m.entries[id] = &entry{ctl: ctl, deviceID: params.DeviceID, created: now, touched: now}
	m.mu.Unlock()

	// Validation outlives the creating request.
	ctl.Start(context.Background())

	if params.DeviceID != "" && m.resume != nil {
		state := &domain.ResumeState{
			DeviceID:         params.DeviceID,
			ReturnLocationID: locationID,
			RentToken:        token,
		}
		if err := m.resume.Upsert(ctx, state); err != nil {
			logger.Warn("Resume cache write failed", "error", err, "deviceID", params.DeviceID)
		}
	}

	logger.WithSession(id).Info("Return session created")
	return ctl, nil
}

// Get returns the controller for a session id.
func (m *Manager) Get(id string) (*flow.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	e.touched = time.Now()
	return e.ctl, nil
}

// FindByRentCode locates the live session whose validated transaction carries
// the given rent code. Gateway webhooks route by it: the checkout order id is
// the rent code.
func (m *Manager) FindByRentCode(rentCode string) (*flow.Controller, error) {
	if rentCode == "" {
		return nil, domain.ErrSessionNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ctl.RentCode() == rentCode && !e.ctl.Closed() {
			return e.ctl, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

// Close tears down one session (page unmount).
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	e.ctl.Close()
	logger.WithSession(id).Info("Return session closed")
	return nil
}

// SweepDead evicts closed sessions and sessions idle past the TTL. Returns
// the number of sessions evicted.
func (m *Manager) SweepDead(now time.Time) int {
	m.mu.Lock()
	var dead []*entry
	for id, e := range m.entries {
		if e.ctl.Closed() || now.Sub(e.touched) > m.ttl {
			dead = append(dead, e)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, e := range dead {
		e.ctl.Close()
	}
	return len(dead)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
