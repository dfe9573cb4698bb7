package customer

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists and fetches customers. Emails are matched
// case-insensitively.
type Repository interface {
	Create(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	Update(ctx context.Context, id string, patch domain.CustomerPatch) (*domain.Customer, error)
}
