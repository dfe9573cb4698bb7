package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
	customersvc "storefront/internal/service/customer"
)

type customerService interface {
	Signup(ctx context.Context, in customersvc.SignupInput) (*domain.Customer, *customersvc.IssuedToken, error)
	Login(ctx context.Context, email, password string) (*domain.Customer, *customersvc.IssuedToken, error)
	LookupByToken(ctx context.Context, token string) (*domain.Customer, error)
	Logout(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, token string, patch domain.CustomerPatch) (*domain.Customer, error)
}

type productService interface {
	List(ctx context.Context) ([]domain.Product, error)
	GetByHandle(ctx context.Context, handle string) (*domain.Product, error)
}

type cartService interface {
	Create(ctx context.Context, lines []domain.LineInput) (*domain.Cart, error)
	AddLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error)
	UpdateLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.Cart, error)
}

type reviewService interface {
	List(ctx context.Context, productID string, q domain.ReviewQuery) (domain.ReviewPage, error)
	Submit(ctx context.Context, productID string, in domain.ReviewInput) (*domain.Review, error)
	MarkHelpful(ctx context.Context, productID, reviewID string) (*domain.Review, error)
	Report(ctx context.Context, productID, reviewID, reason string) (*domain.Review, error)
	Stats(ctx context.Context, productID string) (domain.ReviewStats, error)
}

// BackendDeps are the services behind the commerce backend API.
type BackendDeps struct {
	CustomerSvc customerService
	ProductSvc  productService
	CartSvc     cartService
	ReviewSvc   reviewService
	Ready       []ReadyCheck
}

// BuildBackendRouter wires the commerce backend routes under /api/shopify.
func BuildBackendRouter(logger *zap.Logger, deps BackendDeps) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := newEngine(logger)
	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Ready))

	h := &backendHandlers{deps: deps, logger: logger}
	api := router.Group("/api/shopify")
	api.GET("/products", h.listProducts)
	api.GET("/products/:handle", h.getProduct)
	api.POST("/checkout/create", h.createCart)
	api.POST("/checkout/add-items", h.addCartLines)
	api.POST("/checkout/update-items", h.updateCartLines)
	api.POST("/login", h.login)
	api.POST("/create-account", h.createAccount)
	api.POST("/customer/me", h.me)
	api.POST("/customer/logout", h.logout)
	api.PUT("/customer/update", h.updateCustomer)

	api.GET("/reviews/:productId", h.listReviews)
	api.POST("/reviews/:productId", h.submitReview)
	api.GET("/reviews/:productId/stats", h.reviewStats)
	api.POST("/reviews/:productId/:reviewId/helpful", h.markReviewHelpful)
	api.POST("/reviews/:productId/:reviewId/report", h.reportReview)
	return router
}

type backendHandlers struct {
	deps   BackendDeps
	logger *zap.Logger
}

type lineItemsRequest struct {
	CheckoutID string             `json:"checkoutId"`
	LineItems  []domain.LineInput `json:"lineItems"`
}

type updateLinesRequest struct {
	CartID string             `json:"cartId"`
	Lines  []domain.LineInput `json:"lines"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenBody struct {
	Token string `json:"token"`
}

type cartResponse struct {
	ID          string            `json:"id"`
	CheckoutURL string            `json:"checkoutUrl"`
	State       string            `json:"state"`
	TotalPrice  domain.Money      `json:"totalPrice"`
	Lines       []cartLineSummary `json:"lines"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type cartLineSummary struct {
	ID         string       `json:"id"`
	VariantID  string       `json:"variantId"`
	Quantity   int          `json:"quantity"`
	TotalPrice domain.Money `json:"totalPrice"`
}

func toCartResponse(c *domain.Cart) cartResponse {
	lines := make([]cartLineSummary, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, cartLineSummary{
			ID:         l.ID,
			VariantID:  l.VariantID,
			Quantity:   l.Quantity,
			TotalPrice: domain.MoneyFromCents(l.TotalCents, c.Currency),
		})
	}
	return cartResponse{
		ID:          c.ID,
		CheckoutURL: c.CheckoutURL,
		State:       c.State,
		TotalPrice:  domain.MoneyFromCents(c.TotalCents, c.Currency),
		Lines:       lines,
		CreatedAt:   c.CreatedAt,
	}
}

func (h *backendHandlers) listProducts(c *gin.Context) {
	products, err := h.deps.ProductSvc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *backendHandlers) getProduct(c *gin.Context) {
	p, err := h.deps.ProductSvc.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *backendHandlers) createCart(c *gin.Context) {
	var req lineItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	cart, err := h.deps.CartSvc.Create(c.Request.Context(), req.LineItems)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": toCartResponse(cart)})
}

func (h *backendHandlers) addCartLines(c *gin.Context) {
	var req lineItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	cart, err := h.deps.CartSvc.AddLines(c.Request.Context(), req.CheckoutID, req.LineItems)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": toCartResponse(cart)})
}

func (h *backendHandlers) updateCartLines(c *gin.Context) {
	var req updateLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	cart, err := h.deps.CartSvc.UpdateLines(c.Request.Context(), req.CartID, req.Lines)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": toCartResponse(cart)})
}

func (h *backendHandlers) listReviews(c *gin.Context) {
	q := domain.ReviewQuery{Sort: c.Query("sort")}
	q.Page, _ = strconv.Atoi(c.Query("page"))
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	page, err := h.deps.ReviewSvc.List(c.Request.Context(), c.Param("productId"), q)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": page})
}

func (h *backendHandlers) submitReview(c *gin.Context) {
	var in domain.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	rv, err := h.deps.ReviewSvc.Submit(c.Request.Context(), c.Param("productId"), in)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": rv})
}

func (h *backendHandlers) reviewStats(c *gin.Context) {
	stats, err := h.deps.ReviewSvc.Stats(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

func (h *backendHandlers) markReviewHelpful(c *gin.Context) {
	rv, err := h.deps.ReviewSvc.MarkHelpful(c.Request.Context(), c.Param("productId"), c.Param("reviewId"))
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rv})
}

func (h *backendHandlers) reportReview(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	rv, err := h.deps.ReviewSvc.Report(c.Request.Context(), c.Param("productId"), c.Param("reviewId"), req.Reason)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rv})
}

func (h *backendHandlers) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	cust, tok, err := h.deps.CustomerSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken": tok.Token,
		"expiresAt":   tok.ExpiresAt.UTC().Format(time.RFC3339),
		"customer":    cust,
	})
}

func (h *backendHandlers) createAccount(c *gin.Context) {
	var req customersvc.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	cust, tok, err := h.deps.CustomerSvc.Signup(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, false)
		return
	}
	if tok == nil {
		c.JSON(http.StatusCreated, gin.H{"success": true, "requiresLogin": true, "customer": cust})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"accessToken": tok.Token,
		"expiresAt":   tok.ExpiresAt.UTC().Format(time.RFC3339),
		"customer":    cust,
	})
}

func (h *backendHandlers) me(c *gin.Context) {
	var req tokenBody
	_ = c.ShouldBindJSON(&req)
	token := req.Token
	if token == "" {
		token = bearerToken(c)
	}
	cust, err := h.deps.CustomerSvc.LookupByToken(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err, true)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "customer": cust})
}

func (h *backendHandlers) logout(c *gin.Context) {
	var req tokenBody
	_ = c.ShouldBindJSON(&req)
	token := req.Token
	if token == "" {
		token = bearerToken(c)
	}
	if err := h.deps.CustomerSvc.Logout(c.Request.Context(), token); err != nil {
		h.fail(c, err, true)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *backendHandlers) updateCustomer(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	var patch domain.CustomerPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	cust, err := h.deps.CustomerSvc.UpdateProfile(c.Request.Context(), token, patch)
	if err != nil {
		h.fail(c, err, true)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "customer": cust})
}

// fail renders service errors in the backend's {error} / {userErrors} shapes.
func (h *backendHandlers) fail(c *gin.Context, err error, tokenRoute bool) {
	var lineErrs cartsvc.LineErrors
	var de *domain.Error
	switch {
	case errors.As(err, &lineErrs):
		userErrors := make([]gin.H, 0, len(lineErrs))
		for _, msg := range lineErrs {
			userErrors = append(userErrors, gin.H{"message": msg})
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"userErrors": userErrors})
	case errors.Is(err, customersvc.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, customersvc.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	case errors.Is(err, domain.ErrValidation) && errors.As(err, &de):
		c.JSON(http.StatusBadRequest, gin.H{"error": de.Message})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		h.logger.Error("backend request failed", zap.String("path", c.FullPath()), zap.Bool("token_route", tokenRoute), zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
