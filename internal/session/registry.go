// Package session hosts the per-browser-session cart and auth managers.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/commerce"
	"storefront/internal/session/auth"
	"storefront/internal/session/cart"
	"storefront/internal/storage"
)

var ErrUnknownSession = errors.New("unknown session")

// Session is one shopper's cart and sign-in state.
type Session struct {
	ID   string
	Cart *cart.Manager
	Auth *auth.Manager
}

type entry struct {
	ready    chan struct{}
	s        *Session
	lastUsed time.Time
}

// Registry builds sessions on first use and keeps them until dropped or
// swept for idleness. Session state itself lives in the store, so a
// dropped session can be reopened later with the same id.
type Registry struct {
	stores  storage.Factory
	client  commerce.Client
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry builds an empty registry. timeout bounds each backend call
// made by the sessions it opens; non-positive means the managers' default.
func NewRegistry(stores storage.Factory, client commerce.Client, timeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		stores:   stores,
		client:   client,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Open returns the session for id, building it on first use: the cart is
// hydrated from the store and the persisted token is checked. Hydration is
// detached from ctx so a caller that gives up never leaves a half-checked
// session behind; it is bounded by the registry timeout instead.
func (r *Registry) Open(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUnknownSession
	}

	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		select {
		case <-e.ready:
			return e.s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := &entry{ready: make(chan struct{}), lastUsed: r.now()}
	r.sessions[id] = e
	r.mu.Unlock()

	hydrateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*r.callTimeout())
	defer cancel()

	store := r.stores(id)
	log := r.logger.With(zap.String("session_id", id))
	s := &Session{
		ID:   id,
		Cart: cart.New(store, r.client, log.Named("cart"), cart.WithTimeout(r.timeout)),
		Auth: auth.New(store, r.client, log.Named("auth"), auth.WithTimeout(r.timeout)),
	}
	s.Cart.Load(hydrateCtx)
	st := s.Auth.CheckStatus(hydrateCtx)
	log.Debug("session opened",
		zap.Int("cart_items", s.Cart.TotalItemCount()),
		zap.String("auth_status", string(st.Status)),
	)

	e.s = s
	close(e.ready)
	return s, nil
}

// Drop forgets the in-memory session. Persisted state is kept.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Sweep drops every hydrated session not opened within idle and returns
// how many were dropped. Persisted state is kept, as with Drop.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	dropped := 0
	r.mu.Lock()
	for id, e := range r.sessions {
		select {
		case <-e.ready:
		default:
			continue
		}
		// Checked and deleted under one lock so a session reopened
		// meanwhile is never evicted.
		if e.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			dropped++
		}
	}
	r.mu.Unlock()

	if dropped > 0 {
		r.logger.Debug("idle sessions dropped", zap.Int("count", dropped))
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Len reports how many sessions are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) callTimeout() time.Duration {
	if r.timeout > 0 {
		return r.timeout
	}
	return auth.DefaultTimeout
}
