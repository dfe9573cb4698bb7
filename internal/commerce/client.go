// Package commerce is the storefront's client for the headless commerce backend.
package commerce

import (
	"context"
	"time"

	"storefront/internal/domain"
)

// Client is the backend contract the session managers depend on. Every
// method returns errors classified under the domain error kinds.
type Client interface {
	CreateRemoteCart(ctx context.Context, lines []domain.LineInput) (*RemoteCart, error)
	AddLinesToRemoteCart(ctx context.Context, remoteCartID string, lines []domain.LineInput) error
	// UpdateRemoteCartLines sets absolute quantities; zero removes a line.
	UpdateRemoteCartLines(ctx context.Context, remoteCartID string, lines []domain.LineInput) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, handle string) (*domain.Product, error)
	VerifyToken(ctx context.Context, token string) (*domain.Customer, error)
	Login(ctx context.Context, email, password string) (*AccessToken, error)
	CreateAccount(ctx context.Context, in AccountInput) (*AccountCreation, error)
	Logout(ctx context.Context, token string) error
	UpdateCustomerProfile(ctx context.Context, token string, patch domain.CustomerPatch) (*domain.Customer, error)
	Reviews
}

// Reviews is the product review part of the backend contract. Reviews are
// keyed by product id.
type Reviews interface {
	GetReviews(ctx context.Context, productID string, q domain.ReviewQuery) (*domain.ReviewPage, error)
	SubmitReview(ctx context.Context, productID string, in domain.ReviewInput) (*domain.Review, error)
	MarkReviewHelpful(ctx context.Context, productID, reviewID string) (*domain.Review, error)
	ReportReview(ctx context.Context, productID, reviewID, reason string) (*domain.Review, error)
	GetReviewStats(ctx context.Context, productID string) (*domain.ReviewStats, error)
}

// RemoteCart identifies a server-side cart and where to pay for it.
type RemoteCart struct {
	ID          string
	CheckoutURL string
}

type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

type AccountInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AccountCreation is either an issued token (with the new customer) or
// RequiresLogin when the backend wants a separate login.
type AccountCreation struct {
	Token         *AccessToken
	Customer      *domain.Customer
	RequiresLogin bool
}
