package product

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	List(ctx context.Context) ([]domain.Product, error)
	GetByHandle(ctx context.Context, handle string) (*domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// GetByVariantID returns the product owning the variant.
	GetByVariantID(ctx context.Context, variantID string) (*domain.Product, error)
	// Upsert inserts or replaces the product with the same handle.
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}
