package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	custrepo "storefront/internal/repository/customer"
	tokenrepo "storefront/internal/repository/token"
)

var (
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates the provided token could not be validated.
	ErrInvalidToken = errors.New("invalid token")
)

// Options tunes token lifetime and the signup flow.
type Options struct {
	AccessTTL time.Duration
	// SignupRequiresLogin makes Signup create the account without issuing
	// a token, so the shopper has to log in separately.
	SignupRequiresLogin bool
}

// Service handles customer signup/login flows.
type Service struct {
	repo                custrepo.Repository
	tokens              *tokenManager
	logger              *zap.Logger
	accessTTL           time.Duration
	signupRequiresLogin bool
	passwordMin         int
}

// New creates a Service; a zero AccessTTL means 48 hours.
func New(repo custrepo.Repository, tokens tokenrepo.Repository, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.AccessTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Service{
		repo:                repo,
		tokens:              newTokenManager(tokens),
		logger:              logger,
		accessTTL:           ttl,
		signupRequiresLogin: opts.SignupRequiresLogin,
		passwordMin:         8,
	}
}

// IssuedToken is an access token handed to a customer.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// SignupInput captures fields expected by the create-account endpoint.
type SignupInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Signup registers a new customer. The token is nil when the service is
// configured to require a separate login.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*domain.Customer, *IssuedToken, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, domain.NewError(domain.ErrValidation, "a valid email address is required")
	}
	password := strings.TrimSpace(in.Password)
	if err := validatePassword(password, s.passwordMin); err != nil {
		return nil, nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	c, err := s.repo.Create(ctx, domain.Customer{
		Email:        email,
		PasswordHash: string(hashed),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("customer created", zap.String("customer_id", c.ID))
	if s.signupRequiresLogin {
		return c, nil, nil
	}
	tok, err := s.issue(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, tok, nil
}

// Login validates credentials and returns an access token plus the customer.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.Customer, *IssuedToken, error) {
	password = strings.TrimSpace(password)
	c, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	tok, err := s.issue(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, tok, nil
}

func (s *Service) issue(ctx context.Context, customerID string) (*IssuedToken, error) {
	token, expiresAt, err := s.tokens.Issue(ctx, customerID, s.accessTTL)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// LookupByToken returns the customer bound to a valid access token.
func (s *Service) LookupByToken(ctx context.Context, token string) (*domain.Customer, error) {
	meta, ok := s.tokens.Validate(ctx, token)
	if !ok {
		return nil, ErrInvalidToken
	}
	c, err := s.repo.GetByID(ctx, meta.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return c, nil
}

// Logout revokes token. Revoking an unknown token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, token); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// UpdateProfile applies patch to the customer owning token.
func (s *Service) UpdateProfile(ctx context.Context, token string, patch domain.CustomerPatch) (*domain.Customer, error) {
	if patch.Empty() {
		return nil, domain.NewError(domain.ErrValidation, "nothing to update")
	}
	if patch.Phone != nil {
		if err := validatePhone(*patch.Phone); err != nil {
			return nil, err
		}
	}
	meta, ok := s.tokens.Validate(ctx, token)
	if !ok {
		return nil, ErrInvalidToken
	}
	c, err := s.repo.Update(ctx, meta.CustomerID, patch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return c, nil
}

// PurgeExpiredTokens deletes tokens past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.repo.DeleteExpired(ctx, time.Now())
}

// AccessTTLSeconds exposes the access token lifetime in seconds.
func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}

func validatePassword(p string, min int) error {
	trimmed := strings.TrimSpace(p)
	if len(trimmed) < min {
		return domain.NewError(domain.ErrValidation, "password must be at least %d characters", min)
	}
	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range trimmed {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return domain.NewError(domain.ErrValidation, "password must contain at least 1 uppercase letter, 1 lowercase letter, and 1 number")
	}
	return nil
}

func validatePhone(p string) error {
	p = strings.TrimSpace(p)
	if p == "" {
		return nil
	}
	digits := 0
	for i, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0, r == ' ', r == '-':
		default:
			return domain.NewError(domain.ErrValidation, "phone may only contain digits, spaces, dashes and a leading +")
		}
	}
	if digits < 6 {
		return domain.NewError(domain.ErrValidation, "phone is too short")
	}
	return nil
}
