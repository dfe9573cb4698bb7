package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
	customersvc "storefront/internal/service/customer"
)

type stubCustomerService struct {
	customer  *domain.Customer
	token     *customersvc.IssuedToken
	signupErr error
	loginErr  error
	lookupErr error
	updateErr error
	gotToken  string
}

func (s *stubCustomerService) Signup(_ context.Context, _ customersvc.SignupInput) (*domain.Customer, *customersvc.IssuedToken, error) {
	return s.customer, s.token, s.signupErr
}

func (s *stubCustomerService) Login(_ context.Context, _, _ string) (*domain.Customer, *customersvc.IssuedToken, error) {
	return s.customer, s.token, s.loginErr
}

func (s *stubCustomerService) LookupByToken(_ context.Context, token string) (*domain.Customer, error) {
	s.gotToken = token
	return s.customer, s.lookupErr
}

func (s *stubCustomerService) Logout(_ context.Context, token string) error {
	s.gotToken = token
	return nil
}

func (s *stubCustomerService) UpdateProfile(_ context.Context, token string, _ domain.CustomerPatch) (*domain.Customer, error) {
	s.gotToken = token
	return s.customer, s.updateErr
}

type stubProductService struct {
	products []domain.Product
	err      error
}

func (s *stubProductService) List(_ context.Context) ([]domain.Product, error) {
	return s.products, s.err
}

func (s *stubProductService) GetByHandle(_ context.Context, handle string) (*domain.Product, error) {
	for i := range s.products {
		if s.products[i].Handle == handle {
			return &s.products[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type stubCartService struct {
	cart     *domain.Cart
	err      error
	gotID    string
	gotLen   int
	gotLines []domain.LineInput
}

func (s *stubCartService) Create(_ context.Context, lines []domain.LineInput) (*domain.Cart, error) {
	s.gotLen = len(lines)
	return s.cart, s.err
}

func (s *stubCartService) AddLines(_ context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error) {
	s.gotID = cartID
	s.gotLen = len(lines)
	return s.cart, s.err
}

func (s *stubCartService) UpdateLines(_ context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error) {
	s.gotID = cartID
	s.gotLen = len(lines)
	s.gotLines = lines
	return s.cart, s.err
}

type stubReviewService struct {
	reviews   []domain.Review
	err       error
	gotQuery  domain.ReviewQuery
	gotReason string
}

func (s *stubReviewService) List(_ context.Context, productID string, q domain.ReviewQuery) (domain.ReviewPage, error) {
	s.gotQuery = q
	if s.err != nil {
		return domain.ReviewPage{}, s.err
	}
	q = q.Normalize()
	var out []domain.Review
	for _, rv := range s.reviews {
		if rv.ProductID == productID {
			out = append(out, rv)
		}
	}
	return domain.NewReviewPage(out, q, len(out)), nil
}

func (s *stubReviewService) Submit(_ context.Context, productID string, in domain.ReviewInput) (*domain.Review, error) {
	if s.err != nil {
		return nil, s.err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if productID != granola.ID {
		return nil, domain.ErrNotFound
	}
	rv := domain.Review{ID: "r1", ProductID: productID, Name: in.Name, Email: in.Email, Rating: in.Rating, Comment: in.Comment}
	s.reviews = append(s.reviews, rv)
	return &rv, nil
}

func (s *stubReviewService) find(productID, reviewID string) (*domain.Review, error) {
	for i := range s.reviews {
		if s.reviews[i].ProductID == productID && s.reviews[i].ID == reviewID {
			return &s.reviews[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubReviewService) MarkHelpful(_ context.Context, productID, reviewID string) (*domain.Review, error) {
	rv, err := s.find(productID, reviewID)
	if err != nil {
		return nil, err
	}
	rv.Helpful++
	return rv, nil
}

func (s *stubReviewService) Report(_ context.Context, productID, reviewID, reason string) (*domain.Review, error) {
	s.gotReason = reason
	if reason == "" {
		return nil, domain.NewError(domain.ErrValidation, "A reason is required to report a review")
	}
	return s.find(productID, reviewID)
}

func (s *stubReviewService) Stats(_ context.Context, productID string) (domain.ReviewStats, error) {
	stats := domain.ReviewStats{ProductID: productID, Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	sum := 0
	for _, rv := range s.reviews {
		if rv.ProductID == productID {
			stats.Count++
			stats.Distribution[rv.Rating]++
			sum += rv.Rating
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}

func backendRouter(t *testing.T, deps BackendDeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.CustomerSvc == nil {
		deps.CustomerSvc = &stubCustomerService{}
	}
	if deps.ProductSvc == nil {
		deps.ProductSvc = &stubProductService{}
	}
	if deps.CartSvc == nil {
		deps.CartSvc = &stubCartService{}
	}
	if deps.ReviewSvc == nil {
		deps.ReviewSvc = &stubReviewService{}
	}
	return BuildBackendRouter(nil, deps)
}

func serve(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestBackendCreateCart(t *testing.T) {
	carts := &stubCartService{cart: &domain.Cart{
		ID:          "cart-1",
		Currency:    "INR",
		TotalCents:  2000,
		State:       "active",
		CheckoutURL: "https://pay.example/cart-1",
		Lines:       []domain.CartLine{{ID: "l1", VariantID: "V1", Quantity: 2, TotalCents: 2000}},
	}}
	router := backendRouter(t, BackendDeps{CartSvc: carts})

	rec := serve(router, http.MethodPost, "/api/shopify/checkout/create", `{"lineItems":[{"variantId":"V1","quantity":2}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if carts.gotLen != 1 {
		t.Fatalf("expected one line passed to service, got %d", carts.gotLen)
	}
	body := decodeBody(t, rec)
	cart := body["cart"].(map[string]interface{})
	if body["success"] != true || cart["id"] != "cart-1" || cart["checkoutUrl"] != "https://pay.example/cart-1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestBackendAddLinesPassesCartID(t *testing.T) {
	carts := &stubCartService{cart: &domain.Cart{ID: "cart-1", Currency: "INR"}}
	router := backendRouter(t, BackendDeps{CartSvc: carts})

	rec := serve(router, http.MethodPost, "/api/shopify/checkout/add-items", `{"checkoutId":"cart-1","lineItems":[{"variantId":"V1","quantity":1}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if carts.gotID != "cart-1" {
		t.Fatalf("expected cart-1, got %q", carts.gotID)
	}
}

func TestBackendUpdateLinesPassesAbsoluteQuantities(t *testing.T) {
	carts := &stubCartService{cart: &domain.Cart{ID: "cart-1", Currency: "INR", CheckoutURL: "https://pay.example/cart-1"}}
	router := backendRouter(t, BackendDeps{CartSvc: carts})

	rec := serve(router, http.MethodPost, "/api/shopify/checkout/update-items", `{"cartId":"cart-1","lines":[{"variantId":"V1","quantity":1},{"variantId":"V2","quantity":0}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if carts.gotID != "cart-1" || len(carts.gotLines) != 2 || carts.gotLines[1].Quantity != 0 {
		t.Fatalf("unexpected update passed to service: %q %+v", carts.gotID, carts.gotLines)
	}
	cart := decodeBody(t, rec)["cart"].(map[string]interface{})
	if cart["checkoutUrl"] != "https://pay.example/cart-1" {
		t.Fatalf("unexpected cart: %v", cart)
	}

	carts.err = domain.NewError(domain.ErrValidation, "quantity must not be negative")
	rec = serve(router, http.MethodPost, "/api/shopify/checkout/update-items", `{"cartId":"cart-1","lines":[{"variantId":"V1","quantity":-1}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBackendReviewRoutes(t *testing.T) {
	reviews := &stubReviewService{}
	router := backendRouter(t, BackendDeps{ReviewSvc: reviews})

	rec := serve(router, http.MethodPost, "/api/shopify/reviews/p1", `{"name":"Ann","email":"ann@example.com","rating":4,"comment":"Crunchy"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := dataOf(t, decodeBody(t, rec))
	if created["id"] != "r1" || created["rating"] != float64(4) {
		t.Fatalf("unexpected review: %v", created)
	}
	if _, leaked := created["email"]; leaked {
		t.Fatalf("reviewer email must not be served: %v", created)
	}

	rec = serve(router, http.MethodPost, "/api/shopify/reviews/p1", `{"name":"Ann","rating":9,"comment":"Crunchy"}`, nil)
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "Rating must be between 1 and 5" {
		t.Fatalf("expected 400 with message, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, http.MethodPost, "/api/shopify/reviews/unknown", `{"name":"Ann","rating":3,"comment":"Fine"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = serve(router, http.MethodGet, "/api/shopify/reviews/p1?page=2&limit=5&sort=-rating", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reviews.gotQuery != (domain.ReviewQuery{Page: 2, Limit: 5, Sort: domain.SortHighestRated}) {
		t.Fatalf("unexpected query: %+v", reviews.gotQuery)
	}
	if page := dataOf(t, decodeBody(t, rec)); page["total"] != float64(1) {
		t.Fatalf("unexpected page: %v", page)
	}

	rec = serve(router, http.MethodPost, "/api/shopify/reviews/p1/r1/helpful", "", nil)
	if rec.Code != http.StatusOK || dataOf(t, decodeBody(t, rec))["helpful"] != float64(1) {
		t.Fatalf("expected helpful count 1, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, http.MethodPost, "/api/shopify/reviews/p1/r1/report", `{"reason":"spam"}`, nil)
	if rec.Code != http.StatusOK || reviews.gotReason != "spam" {
		t.Fatalf("expected report with reason, got %d %q", rec.Code, reviews.gotReason)
	}

	rec = serve(router, http.MethodGet, "/api/shopify/reviews/p1/stats", "", nil)
	stats := dataOf(t, decodeBody(t, rec))
	if stats["count"] != float64(1) || stats["average"] != float64(4) {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestBackendLineErrorsBecomeUserErrors(t *testing.T) {
	carts := &stubCartService{err: cartsvc.LineErrors{"Variant X does not exist", "Granola is sold out"}}
	router := backendRouter(t, BackendDeps{CartSvc: carts})

	rec := serve(router, http.MethodPost, "/api/shopify/checkout/create", `{"lineItems":[{"variantId":"X","quantity":1}]}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	userErrors := decodeBody(t, rec)["userErrors"].([]interface{})
	if len(userErrors) != 2 {
		t.Fatalf("expected 2 user errors, got %v", userErrors)
	}
	if userErrors[0].(map[string]interface{})["message"] != "Variant X does not exist" {
		t.Fatalf("unexpected first message: %v", userErrors[0])
	}
}

func TestBackendProductNotFound(t *testing.T) {
	router := backendRouter(t, BackendDeps{})
	rec := serve(router, http.MethodGet, "/api/shopify/products/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBackendLoginStatuses(t *testing.T) {
	exp := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)
	ok := &stubCustomerService{
		customer: &domain.Customer{ID: "c1", Email: "ann@example.com"},
		token:    &customersvc.IssuedToken{Token: "tok", ExpiresAt: exp},
	}
	rec := serve(backendRouter(t, BackendDeps{CustomerSvc: ok}), http.MethodPost, "/api/shopify/login", `{"email":"ann@example.com","password":"secret-pass"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["accessToken"] != "tok" || body["expiresAt"] != "2026-03-12T12:00:00Z" {
		t.Fatalf("unexpected body: %v", body)
	}

	bad := &stubCustomerService{loginErr: customersvc.ErrInvalidCredentials}
	rec = serve(backendRouter(t, BackendDeps{CustomerSvc: bad}), http.MethodPost, "/api/shopify/login", `{"email":"ann@example.com","password":"nope"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "Invalid email or password" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestBackendCreateAccountVariants(t *testing.T) {
	requiresLogin := &stubCustomerService{customer: &domain.Customer{ID: "c1"}}
	rec := serve(backendRouter(t, BackendDeps{CustomerSvc: requiresLogin}), http.MethodPost, "/api/shopify/create-account", `{"email":"a@b.c","password":"longenough"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if decodeBody(t, rec)["requiresLogin"] != true {
		t.Fatalf("expected requiresLogin, got %s", rec.Body.String())
	}

	dup := &stubCustomerService{signupErr: domain.ErrAlreadyExists}
	rec = serve(backendRouter(t, BackendDeps{CustomerSvc: dup}), http.MethodPost, "/api/shopify/create-account", `{"email":"a@b.c","password":"longenough"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	invalid := &stubCustomerService{signupErr: domain.NewError(domain.ErrValidation, "password must be at least 8 characters")}
	rec = serve(backendRouter(t, BackendDeps{CustomerSvc: invalid}), http.MethodPost, "/api/shopify/create-account", `{"email":"a@b.c","password":"x"}`, nil)
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "password must be at least 8 characters" {
		t.Fatalf("expected 400 with message, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestBackendCustomerMe(t *testing.T) {
	svc := &stubCustomerService{customer: &domain.Customer{ID: "c1", Email: "ann@example.com"}}
	rec := serve(backendRouter(t, BackendDeps{CustomerSvc: svc}), http.MethodPost, "/api/shopify/customer/me", `{"token":"tok"}`, nil)
	if rec.Code != http.StatusOK || svc.gotToken != "tok" {
		t.Fatalf("expected 200 with token tok, got %d %q", rec.Code, svc.gotToken)
	}

	expired := &stubCustomerService{lookupErr: customersvc.ErrInvalidToken}
	rec = serve(backendRouter(t, BackendDeps{CustomerSvc: expired}), http.MethodPost, "/api/shopify/customer/me", `{"token":"old"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBackendUpdateRequiresBearer(t *testing.T) {
	svc := &stubCustomerService{customer: &domain.Customer{ID: "c1", FirstName: "Ann"}}
	router := backendRouter(t, BackendDeps{CustomerSvc: svc})

	rec := serve(router, http.MethodPut, "/api/shopify/customer/update", `{"firstName":"Ann"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}

	rec = serve(router, http.MethodPut, "/api/shopify/customer/update", `{"firstName":"Ann"}`, map[string]string{"Authorization": "Bearer tok"})
	if rec.Code != http.StatusOK || svc.gotToken != "tok" {
		t.Fatalf("expected 200 with bearer tok, got %d %q", rec.Code, svc.gotToken)
	}
}

func TestBackendInternalErrorIsGeneric(t *testing.T) {
	router := backendRouter(t, BackendDeps{ProductSvc: &stubProductService{err: errors.New("db down")}})
	rec := serve(router, http.MethodGet, "/api/shopify/products", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	router := backendRouter(t, BackendDeps{Ready: []ReadyCheck{{
		Name:  "postgres",
		Check: func(context.Context) error { return errors.New("refused") },
	}}})
	rec := serve(router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	rec = serve(router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
