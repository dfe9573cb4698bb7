package seed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

// ProductWriter persists catalogue products by handle.
type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

var seedNamespace = uuid.MustParse("0b8f5c2e-1d3a-4e6f-9a7b-3c2d1e0f9a8b")

type variantSeed struct {
	Title     string
	SKU       string
	Cents     int64
	Available bool
}

type productSeed struct {
	Handle      string
	Title       string
	Description string
	Image       string
	Variants    []variantSeed
}

var demoProducts = []productSeed{
	{
		Handle:      "masala-granola",
		Title:       "Masala Granola",
		Description: "Roasted oats with jaggery and warm spices",
		Image:       "https://cdn.example.com/demo/masala-granola.jpg",
		Variants: []variantSeed{
			{Title: "250g", SKU: "GRAN-250", Cents: 24900, Available: true},
			{Title: "500g", SKU: "GRAN-500", Cents: 44900, Available: true},
		},
	},
	{
		Handle:      "wild-honey",
		Title:       "Wild Forest Honey",
		Description: "Raw honey from the Nilgiris",
		Image:       "https://cdn.example.com/demo/wild-honey.jpg",
		Variants: []variantSeed{
			{SKU: "HONEY-350", Cents: 39900, Available: true},
		},
	},
	{
		Handle:      "cold-pressed-oil",
		Title:       "Cold Pressed Groundnut Oil",
		Description: "Wood-pressed, unrefined",
		Variants: []variantSeed{
			{Title: "1L", SKU: "OIL-1L", Cents: 52000, Available: false},
		},
	},
}

// Apply upserts the demo catalogue priced in currency. Ids are derived from
// handles and SKUs, so running it again updates rather than duplicates.
func Apply(ctx context.Context, products ProductWriter, currency string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range demoProducts {
		p := domain.Product{
			ID:          uuid.NewSHA1(seedNamespace, []byte(s.Handle)).String(),
			Handle:      s.Handle,
			Title:       s.Title,
			Description: s.Description,
		}
		if s.Image != "" {
			p.Images = []domain.Image{{URL: s.Image, AltText: s.Title}}
		}
		for _, v := range s.Variants {
			p.Variants = append(p.Variants, domain.Variant{
				ID:               uuid.NewSHA1(seedNamespace, []byte(s.Handle+"/"+v.SKU)).String(),
				Title:            v.Title,
				SKU:              v.SKU,
				Price:            domain.MoneyFromCents(v.Cents, currency),
				AvailableForSale: v.Available,
			})
		}
		if _, err := products.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", s.Handle, err)
		}
		logger.Info("seeded product", zap.String("handle", s.Handle), zap.Int("variants", len(p.Variants)))
	}
	return nil
}
