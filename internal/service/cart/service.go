package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"
)

// LineErrors lists per-line business rejections, rendered to clients as
// userErrors.
type LineErrors []string

func (e LineErrors) Error() string {
	return strings.Join(e, "; ")
}

type Service struct {
	repo         cartrepo.Repository
	productRepo  productRepo
	checkoutBase string
	logger       *zap.Logger
}

type productRepo interface {
	GetByVariantID(ctx context.Context, variantID string) (*domain.Product, error)
}

// New builds the cart service. Checkout URLs are checkoutBase + "/" + cart id.
func New(repo cartrepo.Repository, productRepo productRepo, checkoutBase string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:         repo,
		productRepo:  productRepo,
		checkoutBase: strings.TrimRight(checkoutBase, "/"),
		logger:       logger,
	}
}

// Create prices the lines and stores them as a new cart.
func (s *Service) Create(ctx context.Context, lines []domain.LineInput) (*domain.Cart, error) {
	priced, currency, err := s.price(ctx, lines, "")
	if err != nil {
		return nil, err
	}
	cart, err := s.repo.CreateWithLines(ctx, currency, priced)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cart created", zap.String("cart_id", cart.ID), zap.Int("lines", len(cart.Lines)))
	return s.withCheckoutURL(cart), nil
}

// AddLines adds lines to an existing active cart.
func (s *Service) AddLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, domain.NewError(domain.ErrValidation, "checkoutId required")
	}
	existing, err := s.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if existing.State != "active" {
		return nil, LineErrors{"Cart is no longer open for changes"}
	}
	priced, _, err := s.price(ctx, lines, existing.Currency)
	if err != nil {
		return nil, err
	}
	cart, err := s.repo.AddLines(ctx, cartID, priced)
	if err != nil {
		return nil, err
	}
	return s.withCheckoutURL(cart), nil
}

// UpdateLines sets absolute quantities on an existing active cart. A zero
// quantity removes the line; variants not yet in the cart are added.
func (s *Service) UpdateLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, domain.NewError(domain.ErrValidation, "cartId required")
	}
	if len(lines) == 0 {
		return nil, domain.NewError(domain.ErrValidation, "lines required")
	}
	var set []domain.LineInput
	var remove []string
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		variantID := strings.TrimSpace(l.VariantID)
		if variantID == "" {
			return nil, domain.NewError(domain.ErrValidation, "variantId required")
		}
		if l.Quantity < 0 {
			return nil, domain.NewError(domain.ErrValidation, "quantity must not be negative")
		}
		if seen[variantID] {
			return nil, domain.NewError(domain.ErrValidation, "variant %s listed twice", variantID)
		}
		seen[variantID] = true
		if l.Quantity == 0 {
			remove = append(remove, variantID)
			continue
		}
		set = append(set, domain.LineInput{VariantID: variantID, Quantity: l.Quantity})
	}

	existing, err := s.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if existing.State != "active" {
		return nil, LineErrors{"Cart is no longer open for changes"}
	}
	var priced []cartrepo.NewLine
	if len(set) > 0 {
		if priced, _, err = s.price(ctx, set, existing.Currency); err != nil {
			return nil, err
		}
	}
	cart, err := s.repo.SetLines(ctx, cartID, priced, remove)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("cart lines set", zap.String("cart_id", cart.ID), zap.Int("set", len(priced)), zap.Int("removed", len(remove)))
	return s.withCheckoutURL(cart), nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Cart, error) {
	cart, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withCheckoutURL(cart), nil
}

func (s *Service) withCheckoutURL(c *domain.Cart) *domain.Cart {
	c.CheckoutURL = s.checkoutBase + "/" + c.ID
	return c
}

// price resolves every line to its variant. Duplicate variants are merged.
// All lines must share one currency, which must equal want when set.
func (s *Service) price(ctx context.Context, lines []domain.LineInput, want string) ([]cartrepo.NewLine, string, error) {
	if len(lines) == 0 {
		return nil, "", domain.NewError(domain.ErrValidation, "lineItems required")
	}
	if s.productRepo == nil {
		return nil, "", errors.New("product repository unavailable")
	}

	var out []cartrepo.NewLine
	index := make(map[string]int, len(lines))
	var rejected LineErrors
	currency := want
	for _, l := range lines {
		variantID := strings.TrimSpace(l.VariantID)
		if variantID == "" {
			return nil, "", domain.NewError(domain.ErrValidation, "variantId required")
		}
		if l.Quantity <= 0 {
			return nil, "", domain.NewError(domain.ErrValidation, "quantity must be positive")
		}
		if i, ok := index[variantID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}

		product, err := s.productRepo.GetByVariantID(ctx, variantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				rejected = append(rejected, fmt.Sprintf("Variant %s does not exist", variantID))
				continue
			}
			return nil, "", err
		}
		variant, _ := product.Variant(variantID)
		if !variant.AvailableForSale {
			rejected = append(rejected, fmt.Sprintf("%s (%s) is sold out", product.Title, variantLabel(variant)))
			continue
		}
		if currency == "" {
			currency = variant.Price.CurrencyCode
		} else if variant.Price.CurrencyCode != currency {
			rejected = append(rejected, fmt.Sprintf("%s is priced in %s, cart currency is %s", product.Title, variant.Price.CurrencyCode, currency))
			continue
		}
		index[variantID] = len(out)
		out = append(out, cartrepo.NewLine{
			VariantID:      variantID,
			ProductID:      product.ID,
			Quantity:       l.Quantity,
			UnitPriceCents: variant.Price.Cents(),
			Snapshot:       snapshotFromProduct(*product, variant),
		})
	}
	if len(rejected) > 0 {
		return nil, "", rejected
	}
	return out, currency, nil
}

func variantLabel(v domain.Variant) string {
	if v.Title != "" {
		return v.Title
	}
	return v.ID
}

func snapshotFromProduct(p domain.Product, v domain.Variant) map[string]interface{} {
	snap := map[string]interface{}{
		"productHandle": p.Handle,
		"productTitle":  p.Title,
		"variantTitle":  v.Title,
		"sku":           v.SKU,
		"price":         v.Price.Amount.StringFixed(2),
		"currency":      v.Price.CurrencyCode,
	}
	if len(p.Images) > 0 {
		snap["image"] = p.Images[0].URL
	}
	return snap
}
