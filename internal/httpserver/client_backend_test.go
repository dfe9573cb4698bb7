package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"storefront/internal/commerce"
	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/session/cart"
	"storefront/internal/storage"
)

// memCartService keeps remote carts as variant quantities.
type memCartService struct {
	mu      sync.Mutex
	carts   map[string]map[string]int
	creates int
}

func newMemCartService() *memCartService {
	return &memCartService{carts: make(map[string]map[string]int)}
}

func (s *memCartService) Create(_ context.Context, lines []domain.LineInput) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		return nil, domain.NewError(domain.ErrValidation, "lineItems required")
	}
	s.creates++
	id := fmt.Sprintf("cart-%d", s.creates)
	s.carts[id] = make(map[string]int)
	for _, l := range lines {
		s.carts[id][l.VariantID] += l.Quantity
	}
	return s.cartLocked(id), nil
}

func (s *memCartService) AddLines(_ context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, l := range lines {
		q[l.VariantID] += l.Quantity
	}
	return s.cartLocked(cartID), nil
}

func (s *memCartService) UpdateLines(_ context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, l := range lines {
		if l.Quantity == 0 {
			delete(q, l.VariantID)
			continue
		}
		q[l.VariantID] = l.Quantity
	}
	return s.cartLocked(cartID), nil
}

func (s *memCartService) cartLocked(id string) *domain.Cart {
	c := &domain.Cart{ID: id, Currency: "INR", State: "active", CheckoutURL: "https://pay.example/" + id}
	for variant, qty := range s.carts[id] {
		c.Lines = append(c.Lines, domain.CartLine{VariantID: variant, Quantity: qty})
	}
	sort.Slice(c.Lines, func(i, j int) bool { return c.Lines[i].VariantID < c.Lines[j].VariantID })
	return c
}

func (s *memCartService) quantities(id string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.carts[id]))
	for k, v := range s.carts[id] {
		out[k] = v
	}
	return out
}

// defaultClient points a client built from the default BACKEND_URL at srv,
// keeping the default path.
func defaultClient(t *testing.T, srv *httptest.Server) *commerce.HTTPClient {
	t.Helper()
	t.Setenv("BACKEND_URL", "")
	base, err := url.Parse(config.FromEnv().BackendURL)
	if err != nil {
		t.Fatalf("parse default backend url: %v", err)
	}
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	base.Host = target.Host
	return commerce.NewHTTPClient(base.String(), 2*time.Second, nil)
}

func startBackend(t *testing.T, carts *memCartService) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(backendRouter(t, BackendDeps{
		ProductSvc: &stubProductService{products: []domain.Product{granola}},
		CartSvc:    carts,
		ReviewSvc: &stubReviewService{reviews: []domain.Review{
			{ID: "r1", ProductID: granola.ID, Name: "Ann", Rating: 5, Comment: "Crunchy"},
			{ID: "r2", ProductID: granola.ID, Name: "Ben", Rating: 3, Comment: "Sweet"},
		}},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDefaultClientReachesBackendRoutes(t *testing.T) {
	client := defaultClient(t, startBackend(t, newMemCartService()))
	ctx := context.Background()

	p, err := client.GetProduct(ctx, "granola")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.ID != granola.ID || len(p.Variants) != 2 || p.Variants[0].Price.Cents() != 1000 {
		t.Fatalf("unexpected product: %+v", p)
	}

	_, err = client.GetProduct(ctx, "missing")
	if !errors.Is(err, domain.ErrRemoteRejection) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found rejection, got %v", err)
	}

	products, err := client.ListProducts(ctx)
	if err != nil || len(products) != 1 {
		t.Fatalf("list products: %v %+v", err, products)
	}

	page, err := client.GetReviews(ctx, granola.ID, domain.ReviewQuery{})
	if err != nil || page.Total != 2 || len(page.Reviews) != 2 {
		t.Fatalf("get reviews: %v %+v", err, page)
	}
	stats, err := client.GetReviewStats(ctx, granola.ID)
	if err != nil || stats.Count != 2 || stats.Average != 4 {
		t.Fatalf("review stats: %v %+v", err, stats)
	}
	rv, err := client.MarkReviewHelpful(ctx, granola.ID, "r2")
	if err != nil || rv.Helpful != 1 {
		t.Fatalf("mark helpful: %v %+v", err, rv)
	}
}

func TestCartSyncAgainstBackendRouter(t *testing.T) {
	carts := newMemCartService()
	client := defaultClient(t, startBackend(t, carts))
	ctx := context.Background()

	p, err := client.GetProduct(ctx, "granola")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	m := cart.New(storage.NewMemory(), client, nil)
	m.Load(ctx)
	if err := m.AddItem(ctx, *p, p.Variants[0], 2); err != nil {
		t.Fatalf("add item: %v", err)
	}

	first, err := m.GoToCheckout(ctx)
	if err != nil || first != "https://pay.example/cart-1" {
		t.Fatalf("first checkout: %q %v", first, err)
	}

	if err := m.UpdateQuantity(ctx, p.Variants[0].ID, 1); err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if err := m.AddItem(ctx, *p, p.Variants[1], 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	second, err := m.GoToCheckout(ctx)
	if err != nil || second != first {
		t.Fatalf("expected in-place update keeping %q, got %q %v", first, second, err)
	}
	if got := carts.quantities("cart-1"); len(got) != 2 || got["V1"] != 1 || got["V2"] != 1 {
		t.Fatalf("unexpected remote quantities: %v", got)
	}

	m.RemoveItem(ctx, p.Variants[0].ID)
	if _, err := m.GoToCheckout(ctx); err != nil {
		t.Fatalf("checkout after removal: %v", err)
	}
	if got := carts.quantities("cart-1"); len(got) != 1 || got["V2"] != 1 {
		t.Fatalf("expected only V2 remotely, got %v", got)
	}
	if carts.creates != 1 {
		t.Fatalf("expected one remote cart, got %d", carts.creates)
	}
}
