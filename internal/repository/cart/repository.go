package cart

import (
	"context"

	"storefront/internal/domain"
)

// NewLine is a priced cart line ready to be stored.
type NewLine struct {
	VariantID      string
	ProductID      string
	Quantity       int
	UnitPriceCents int64
	Snapshot       map[string]interface{}
}

type Repository interface {
	// CreateWithLines stores a new active cart and its lines atomically.
	CreateWithLines(ctx context.Context, currency string, lines []NewLine) (*domain.Cart, error)
	// AddLines adds lines to an active cart, summing quantities of variants
	// already present. A missing or closed cart yields domain.ErrNotFound.
	AddLines(ctx context.Context, cartID string, lines []NewLine) (*domain.Cart, error)
	// SetLines sets the absolute quantity of each line, adding variants not
	// yet present, and deletes the lines of the variants in remove.
	SetLines(ctx context.Context, cartID string, lines []NewLine, remove []string) (*domain.Cart, error)
	GetByID(ctx context.Context, id string) (*domain.Cart, error)
}
