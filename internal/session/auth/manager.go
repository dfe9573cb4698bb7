// Package auth tracks a storefront shopper's sign-in state and the
// customer token persisted in the session store.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront/internal/commerce"
	"storefront/internal/domain"
	"storefront/internal/storage"
)

// DefaultTimeout bounds each backend call made by a Manager.
const DefaultTimeout = 15 * time.Second

// Status is the sign-in lifecycle state of a Manager.
type Status string

const (
	StatusInit            Status = "INIT"
	StatusUnauthenticated Status = "UNAUTHENTICATED"
	StatusAuthenticated   Status = "AUTHENTICATED"
)

type backend interface {
	VerifyToken(ctx context.Context, token string) (*domain.Customer, error)
	Login(ctx context.Context, email, password string) (*commerce.AccessToken, error)
	CreateAccount(ctx context.Context, in commerce.AccountInput) (*commerce.AccountCreation, error)
	Logout(ctx context.Context, token string) error
	UpdateCustomerProfile(ctx context.Context, token string, patch domain.CustomerPatch) (*domain.Customer, error)
}

// Option configures a Manager built by New.
type Option func(*Manager)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns one session's authentication state. Network-backed
// operations are serialised; readers never wait on the network.
type Manager struct {
	store   storage.Store
	backend backend
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	opMu sync.Mutex

	mu       sync.Mutex
	status   Status
	customer *domain.Customer
	token    string
	expiry   time.Time
	loading  bool
	lastErr  string
}

// State is a copy of the auth session. The token itself is never exposed
// here; use AccessToken.
type State struct {
	Status          Status           `json:"status"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	Customer        *domain.Customer `json:"customer"`
	TokenExpiry     *time.Time       `json:"tokenExpiry,omitempty"`
	Loading         bool             `json:"loading"`
	Error           string           `json:"error,omitempty"`
}

// AccountResult is the outcome of a successful account creation.
// RequiresLogin means the account exists but the session was not signed in.
type AccountResult struct {
	Customer      *domain.Customer `json:"customer,omitempty"`
	RequiresLogin bool             `json:"requiresLogin"`
}

// New builds a manager in the INIT state; CheckStatus restores any
// persisted sign-in.
func New(store storage.Store, b backend, logger *zap.Logger, opts ...Option) *Manager {
	if store == nil {
		panic("auth: nil store")
	}
	if b == nil {
		panic("auth: nil backend")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:   store,
		backend: b,
		logger:  logger,
		timeout: DefaultTimeout,
		now:     time.Now,
		status:  StatusInit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) mustInit() {
	if m == nil || m.store == nil || m.now == nil {
		panic("auth: Manager used without auth.New")
	}
}

func (m *Manager) State() State {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := State{
		Status:          m.status,
		IsAuthenticated: m.status == StatusAuthenticated,
		Loading:         m.loading,
		Error:           m.lastErr,
	}
	if m.customer != nil {
		c := *m.customer
		s.Customer = &c
	}
	if !m.expiry.IsZero() && s.IsAuthenticated {
		exp := m.expiry
		s.TokenExpiry = &exp
	}
	return s
}

// LastEmail returns the email of the last successful sign-in, for form prefill.
func (m *Manager) LastEmail(ctx context.Context) string {
	m.mustInit()
	return m.read(ctx, storage.KeyUserEmail)
}

// CheckStatus restores the session from the persisted token. A missing or
// expired token, or one the backend no longer accepts, leaves the session
// signed out; the reason is recorded but never returned.
func (m *Manager) CheckStatus(ctx context.Context) State {
	m.mustInit()
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	token := m.read(ctx, storage.KeyToken)
	if token == "" {
		m.signedOut("no token found")
		return m.State()
	}

	expiry, hasExpiry := m.readExpiry(ctx)
	if hasExpiry && !m.now().Before(expiry) {
		m.logger.Info("persisted token expired", zap.Time("expired_at", expiry))
		m.clearCredentials(ctx)
		m.signedOut("token expired")
		return m.State()
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	customer, err := m.backend.VerifyToken(callCtx, token)
	if err != nil {
		if ctx.Err() != nil {
			// The caller went away; the token was never judged, so keep it.
			m.logger.Info("token check abandoned", zap.Error(err))
			m.signedOut(domain.UserMessage(err))
			return m.State()
		}
		m.logger.Info("persisted token rejected", zap.String("kind", domain.KindName(err)), zap.Error(err))
		m.clearCredentials(ctx)
		m.signedOut(domain.UserMessage(err))
		return m.State()
	}

	m.mu.Lock()
	m.status = StatusAuthenticated
	m.customer = customer
	m.token = token
	m.expiry = time.Time{}
	if hasExpiry {
		m.expiry = expiry
	}
	m.lastErr = ""
	m.loading = false
	m.mu.Unlock()
	return m.State()
}

// Refresh re-runs the startup check against the persisted token.
func (m *Manager) Refresh(ctx context.Context) State {
	return m.CheckStatus(ctx)
}

// Login signs in and persists the token, its expiry and the email. On
// failure the persisted credentials are left as they were.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.Customer, error) {
	m.mustInit()
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		m.failed(err)
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.setLoading(true)

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	tok, err := m.backend.Login(callCtx, email, password)
	if err != nil {
		m.logger.Info("login failed", zap.String("kind", domain.KindName(err)), zap.Error(err))
		m.failed(err)
		return nil, err
	}
	customer, err := m.backend.VerifyToken(callCtx, tok.Token)
	if err != nil {
		m.logger.Warn("token issued at login failed verification", zap.Error(err))
		m.failed(err)
		return nil, err
	}

	m.signedIn(ctx, email, tok, customer)
	return m.State().Customer, nil
}

// CreateAccount registers a customer. When the backend answers that a
// separate login is required the session stays signed out.
func (m *Manager) CreateAccount(ctx context.Context, in commerce.AccountInput) (*AccountResult, error) {
	m.mustInit()
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validateCredentials(in.Email, in.Password); err != nil {
		m.failed(err)
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.setLoading(true)

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	res, err := m.backend.CreateAccount(callCtx, in)
	if err != nil {
		m.logger.Info("account creation failed", zap.String("kind", domain.KindName(err)), zap.Error(err))
		m.failed(err)
		return nil, err
	}
	if res.RequiresLogin || res.Token == nil {
		m.mu.Lock()
		m.loading = false
		m.lastErr = ""
		if m.status == StatusInit {
			m.status = StatusUnauthenticated
		}
		m.mu.Unlock()
		m.logger.Info("account created; login required")
		return &AccountResult{RequiresLogin: true}, nil
	}

	customer := res.Customer
	if customer == nil {
		customer, err = m.backend.VerifyToken(callCtx, res.Token.Token)
		if err != nil {
			m.failed(err)
			return nil, err
		}
	}
	m.signedIn(ctx, in.Email, res.Token, customer)
	return &AccountResult{Customer: m.State().Customer}, nil
}

// Logout invalidates the token remotely when it can and always signs the
// session out locally.
func (m *Manager) Logout(ctx context.Context) {
	m.mustInit()
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	token := m.token
	m.loading = true
	m.mu.Unlock()
	if token == "" {
		token = m.read(ctx, storage.KeyToken)
	}

	if token != "" {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		if err := m.backend.Logout(callCtx, token); err != nil {
			m.logger.Info("remote logout failed; signing out locally", zap.Error(err))
		}
		cancel()
	}
	m.clearCredentials(ctx)
	m.signedOut("")
}

// UpdateProfile sends patch to the backend and overlays the returned
// customer onto the session. An expired token signs the session out.
func (m *Manager) UpdateProfile(ctx context.Context, patch domain.CustomerPatch) (*domain.Customer, error) {
	m.mustInit()
	if patch.Empty() {
		return nil, domain.NewError(domain.ErrValidation, "nothing to update")
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	token, err := m.usableToken(ctx)
	if err != nil {
		return nil, err
	}
	m.setLoading(true)

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	updated, err := m.backend.UpdateCustomerProfile(callCtx, token, patch)
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			m.logger.Info("token rejected during profile update")
			m.clearCredentials(ctx)
			m.signedOut(domain.UserMessage(err))
			return nil, err
		}
		m.mu.Lock()
		m.loading = false
		m.lastErr = domain.UserMessage(err)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	merged := updated
	if m.customer != nil {
		c := m.customer.Overlay(*updated)
		merged = &c
	}
	m.customer = merged
	m.loading = false
	m.lastErr = ""
	out := *merged
	m.mu.Unlock()
	return &out, nil
}

// AccessToken returns the customer token for authenticated calls. It fails
// closed with AuthExpired once the token's expiry has passed.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mustInit()
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.usableToken(ctx)
}

// usableToken requires opMu.
func (m *Manager) usableToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	status, token, expiry := m.status, m.token, m.expiry
	m.mu.Unlock()

	if status != StatusAuthenticated || token == "" {
		return "", domain.NewError(domain.ErrAuthExpired, "not logged in")
	}
	if !expiry.IsZero() && !m.now().Before(expiry) {
		m.logger.Info("token expired; signing out", zap.Time("expired_at", expiry))
		m.clearCredentials(ctx)
		m.signedOut("token expired")
		return "", domain.NewError(domain.ErrAuthExpired, "token expired")
	}
	return token, nil
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return domain.NewError(domain.ErrValidation, "a valid email address is required")
	}
	if password == "" {
		return domain.NewError(domain.ErrValidation, "password required")
	}
	return nil
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) signedIn(ctx context.Context, email string, tok *commerce.AccessToken, customer *domain.Customer) {
	m.write(ctx, storage.KeyToken, tok.Token)
	if tok.ExpiresAt.IsZero() {
		m.remove(ctx, storage.KeyTokenExpiry)
	} else {
		m.write(ctx, storage.KeyTokenExpiry, tok.ExpiresAt.UTC().Format(time.RFC3339))
	}
	m.write(ctx, storage.KeyUserEmail, email)

	m.mu.Lock()
	m.status = StatusAuthenticated
	m.customer = customer
	m.token = tok.Token
	m.expiry = tok.ExpiresAt
	m.loading = false
	m.lastErr = ""
	m.mu.Unlock()
	m.logger.Info("customer signed in", zap.String("customer_id", customer.ID))
}

func (m *Manager) signedOut(reason string) {
	m.mu.Lock()
	m.status = StatusUnauthenticated
	m.customer = nil
	m.token = ""
	m.expiry = time.Time{}
	m.loading = false
	m.lastErr = reason
	m.mu.Unlock()
}

// failed records a failed sign-in attempt without touching storage. An
// already signed-in session stays signed in.
func (m *Manager) failed(err error) {
	m.mu.Lock()
	if m.status != StatusAuthenticated {
		m.status = StatusUnauthenticated
	}
	m.loading = false
	m.lastErr = domain.UserMessage(err)
	m.mu.Unlock()
}

func (m *Manager) clearCredentials(ctx context.Context) {
	m.remove(ctx, storage.KeyToken)
	m.remove(ctx, storage.KeyTokenExpiry)
}

func (m *Manager) readExpiry(ctx context.Context) (time.Time, bool) {
	raw := m.read(ctx, storage.KeyTokenExpiry)
	if raw == "" {
		return time.Time{}, false
	}
	exp, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		m.logger.Debug("ignoring malformed token expiry", zap.String("value", raw))
		return time.Time{}, false
	}
	return exp, true
}

func (m *Manager) read(ctx context.Context, key string) string {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("read session store", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (m *Manager) write(ctx context.Context, key, value string) {
	if err := m.store.Set(ctx, key, value); err != nil {
		m.logger.Warn("write session store", zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) remove(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Warn("write session store", zap.String("key", key), zap.Error(err))
	}
}
