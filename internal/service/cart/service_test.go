package cart

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"
)

type stubRepo struct {
	createErr     error
	getByID       *domain.Cart
	getByIDErr    error
	lastCurrency  string
	lastCreate    []cartrepo.NewLine
	lastAddCartID string
	lastAdd       []cartrepo.NewLine
	lastSet       []cartrepo.NewLine
	lastRemove    []string
}

func (s *stubRepo) CreateWithLines(_ context.Context, currency string, lines []cartrepo.NewLine) (*domain.Cart, error) {
	s.lastCurrency = currency
	s.lastCreate = lines
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &domain.Cart{ID: "cart-1", Currency: currency, State: "active"}, nil
}

func (s *stubRepo) AddLines(_ context.Context, cartID string, lines []cartrepo.NewLine) (*domain.Cart, error) {
	s.lastAddCartID = cartID
	s.lastAdd = lines
	return &domain.Cart{ID: cartID, State: "active"}, nil
}

func (s *stubRepo) SetLines(_ context.Context, cartID string, lines []cartrepo.NewLine, remove []string) (*domain.Cart, error) {
	s.lastSet = lines
	s.lastRemove = remove
	return &domain.Cart{ID: cartID, State: "active"}, nil
}

func (s *stubRepo) GetByID(_ context.Context, _ string) (*domain.Cart, error) {
	if s.getByIDErr != nil {
		return nil, s.getByIDErr
	}
	return s.getByID, nil
}

type stubProductRepo map[string]*domain.Product

func (s stubProductRepo) GetByVariantID(_ context.Context, variantID string) (*domain.Product, error) {
	if p, ok := s[variantID]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func catalog() stubProductRepo {
	inr := domain.MoneyFromCents(1000, "INR")
	usd := domain.MoneyFromCents(500, "USD")
	granola := &domain.Product{ID: "p1", Handle: "granola", Title: "Granola", Variants: []domain.Variant{
		{ID: "V1", Title: "500g", Price: inr, AvailableForSale: true},
		{ID: "V2", Title: "1kg", Price: inr.Mul(2), AvailableForSale: false},
	}}
	muesli := &domain.Product{ID: "p2", Handle: "muesli", Title: "Muesli", Variants: []domain.Variant{
		{ID: "V3", Price: usd, AvailableForSale: true},
	}}
	return stubProductRepo{"V1": granola, "V2": granola, "V3": muesli}
}

func TestServiceCreatePricesAndMergesLines(t *testing.T) {
	repo := &stubRepo{}
	svc := New(repo, catalog(), "https://shop.example/checkout/", nil)

	cart, err := svc.Create(context.Background(), []domain.LineInput{
		{VariantID: "V1", Quantity: 2},
		{VariantID: "V1", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.CheckoutURL != "https://shop.example/checkout/cart-1" {
		t.Fatalf("unexpected checkout url %q", cart.CheckoutURL)
	}
	if repo.lastCurrency != "INR" || len(repo.lastCreate) != 1 {
		t.Fatalf("unexpected create call currency=%s lines=%+v", repo.lastCurrency, repo.lastCreate)
	}
	line := repo.lastCreate[0]
	if line.Quantity != 3 || line.UnitPriceCents != 1000 || line.ProductID != "p1" {
		t.Fatalf("unexpected line %+v", line)
	}
	if line.Snapshot["productHandle"] != "granola" {
		t.Fatalf("unexpected snapshot %+v", line.Snapshot)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc := New(&stubRepo{}, catalog(), "", nil)
	cases := [][]domain.LineInput{
		nil,
		{{VariantID: " ", Quantity: 1}},
		{{VariantID: "V1", Quantity: 0}},
	}
	for _, lines := range cases {
		if _, err := svc.Create(context.Background(), lines); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", lines, err)
		}
	}
}

func TestServiceCreateRejectsUnavailableLines(t *testing.T) {
	repo := &stubRepo{}
	svc := New(repo, catalog(), "", nil)

	_, err := svc.Create(context.Background(), []domain.LineInput{
		{VariantID: "V1", Quantity: 1},
		{VariantID: "V2", Quantity: 1},
		{VariantID: "missing", Quantity: 1},
		{VariantID: "V3", Quantity: 1},
	})
	var rejected LineErrors
	if !errors.As(err, &rejected) {
		t.Fatalf("expected LineErrors, got %v", err)
	}
	want := []string{
		"Granola (1kg) is sold out",
		"Variant missing does not exist",
		"Muesli is priced in USD, cart currency is INR",
	}
	if len(rejected) != len(want) {
		t.Fatalf("expected %d rejections, got %v", len(want), rejected)
	}
	for i := range want {
		if rejected[i] != want[i] {
			t.Fatalf("rejection %d: expected %q, got %q", i, want[i], rejected[i])
		}
	}
	if repo.lastCreate != nil {
		t.Fatalf("nothing should be stored on rejection")
	}
}

func TestServiceAddLinesUsesCartCurrency(t *testing.T) {
	repo := &stubRepo{getByID: &domain.Cart{ID: "cart-9", Currency: "USD", State: "active"}}
	svc := New(repo, catalog(), "https://shop.example/checkout", nil)

	_, err := svc.AddLines(context.Background(), "cart-9", []domain.LineInput{{VariantID: "V1", Quantity: 1}})
	var rejected LineErrors
	if !errors.As(err, &rejected) {
		t.Fatalf("expected currency rejection, got %v", err)
	}

	cart, err := svc.AddLines(context.Background(), "cart-9", []domain.LineInput{{VariantID: "V3", Quantity: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastAddCartID != "cart-9" || repo.lastAdd[0].Quantity != 2 {
		t.Fatalf("unexpected add call %s %+v", repo.lastAddCartID, repo.lastAdd)
	}
	if cart.CheckoutURL != "https://shop.example/checkout/cart-9" {
		t.Fatalf("unexpected checkout url %q", cart.CheckoutURL)
	}
}

func TestServiceAddLinesMissingOrClosedCart(t *testing.T) {
	svc := New(&stubRepo{getByIDErr: domain.ErrNotFound}, catalog(), "", nil)
	if _, err := svc.AddLines(context.Background(), "nope", []domain.LineInput{{VariantID: "V1", Quantity: 1}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	svc = New(&stubRepo{getByID: &domain.Cart{ID: "c", State: "ordered"}}, catalog(), "", nil)
	_, err := svc.AddLines(context.Background(), "c", []domain.LineInput{{VariantID: "V1", Quantity: 1}})
	var rejected LineErrors
	if !errors.As(err, &rejected) {
		t.Fatalf("expected closed-cart rejection, got %v", err)
	}
}

func TestServiceCreateRepoError(t *testing.T) {
	svc := New(&stubRepo{createErr: errors.New("boom")}, catalog(), "", nil)
	_, err := svc.Create(context.Background(), []domain.LineInput{{VariantID: "V1", Quantity: 1}})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected repo error, got %v", err)
	}
}

func TestServiceUpdateLinesSetsAndRemoves(t *testing.T) {
	repo := &stubRepo{getByID: &domain.Cart{ID: "cart-1", Currency: "INR", State: "active"}}
	svc := New(repo, catalog(), "https://shop.example/checkout", nil)

	cart, err := svc.UpdateLines(context.Background(), "cart-1", []domain.LineInput{
		{VariantID: "V1", Quantity: 4},
		{VariantID: "V9", Quantity: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.CheckoutURL != "https://shop.example/checkout/cart-1" {
		t.Fatalf("unexpected checkout url %q", cart.CheckoutURL)
	}
	if len(repo.lastSet) != 1 || repo.lastSet[0].Quantity != 4 || repo.lastSet[0].UnitPriceCents != 1000 {
		t.Fatalf("unexpected set lines %+v", repo.lastSet)
	}
	if len(repo.lastRemove) != 1 || repo.lastRemove[0] != "V9" {
		t.Fatalf("unexpected removals %v", repo.lastRemove)
	}
}

func TestServiceUpdateLinesRejects(t *testing.T) {
	cases := map[string]struct {
		cart  *domain.Cart
		lines []domain.LineInput
		check func(error) bool
	}{
		"no lines":  {&domain.Cart{ID: "cart-1", State: "active"}, nil, func(err error) bool { return errors.Is(err, domain.ErrValidation) }},
		"negative":  {&domain.Cart{ID: "cart-1", State: "active"}, []domain.LineInput{{VariantID: "V1", Quantity: -1}}, func(err error) bool { return errors.Is(err, domain.ErrValidation) }},
		"duplicate": {&domain.Cart{ID: "cart-1", State: "active"}, []domain.LineInput{{VariantID: "V1", Quantity: 1}, {VariantID: "V1", Quantity: 0}}, func(err error) bool { return errors.Is(err, domain.ErrValidation) }},
		"closed": {&domain.Cart{ID: "cart-1", State: "completed"}, []domain.LineInput{{VariantID: "V1", Quantity: 1}}, func(err error) bool {
			var le LineErrors
			return errors.As(err, &le)
		}},
		"sold out": {&domain.Cart{ID: "cart-1", Currency: "INR", State: "active"}, []domain.LineInput{{VariantID: "V2", Quantity: 1}}, func(err error) bool {
			var le LineErrors
			return errors.As(err, &le)
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := New(&stubRepo{getByID: tc.cart}, catalog(), "https://shop.example/checkout", nil)
			_, err := svc.UpdateLines(context.Background(), "cart-1", tc.lines)
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}
