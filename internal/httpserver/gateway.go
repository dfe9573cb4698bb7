package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/commerce"
	"storefront/internal/domain"
	"storefront/internal/session"
	"storefront/internal/session/auth"
)

type sessionOpener interface {
	Open(ctx context.Context, id string) (*session.Session, error)
}

type productLookup interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, handle string) (*domain.Product, error)
}

// GatewayDeps are the collaborators of the storefront gateway.
type GatewayDeps struct {
	Sessions    sessionOpener
	Products    productLookup
	Reviews     commerce.Reviews
	Issuer      *SessionIssuer
	CORSOrigins []string
	Ready       []ReadyCheck
}

const sessionCtxKey = "storefront.session"

// BuildGatewayRouter wires the browser-facing routes under /api/storefront.
func BuildGatewayRouter(logger *zap.Logger, deps GatewayDeps) (*gin.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Sessions == nil || deps.Products == nil || deps.Reviews == nil || deps.Issuer == nil {
		return nil, errors.New("gateway requires sessions, products, reviews and a session issuer")
	}
	router := newEngine(logger)
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Ready))

	h := &gatewayHandlers{deps: deps, logger: logger}
	api := router.Group("/api/storefront")
	api.POST("/sessions", h.openSession)
	api.GET("/products", h.listProducts)
	api.GET("/products/:handle", h.getProduct)
	api.GET("/products/:handle/reviews", h.listReviews)
	api.POST("/products/:handle/reviews", h.submitReview)
	api.GET("/products/:handle/reviews/stats", h.reviewStats)
	api.POST("/products/:handle/reviews/:reviewId/helpful", h.markReviewHelpful)
	api.POST("/products/:handle/reviews/:reviewId/report", h.reportReview)

	scoped := api.Group("")
	scoped.Use(h.sessionMiddleware)
	scoped.GET("/cart", h.getCart)
	scoped.DELETE("/cart", h.clearCart)
	scoped.POST("/cart/items", h.addItem)
	scoped.PATCH("/cart/items/:variantId", h.updateItem)
	scoped.DELETE("/cart/items/:variantId", h.removeItem)
	scoped.POST("/cart/sync", h.syncCart)
	scoped.POST("/cart/checkout", h.checkout)

	scoped.GET("/auth", h.authState)
	scoped.POST("/auth/refresh", h.refreshAuth)
	scoped.POST("/auth/login", h.login)
	scoped.POST("/auth/accounts", h.createAccount)
	scoped.POST("/auth/logout", h.logout)
	scoped.PATCH("/auth/customer", h.updateCustomer)
	return router, nil
}

type gatewayHandlers struct {
	deps   GatewayDeps
	logger *zap.Logger
}

func (h *gatewayHandlers) openSession(c *gin.Context) {
	sid := session.NewID()
	s, err := h.deps.Sessions.Open(c.Request.Context(), sid)
	if err != nil {
		respondError(c, err)
		return
	}
	token, exp, err := h.deps.Issuer.Issue(sid)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{
		"sessionToken": token,
		"expiresAt":    exp.UTC().Format(time.RFC3339),
		"cart":         s.Cart.Snapshot(),
		"auth":         s.Auth.State(),
	})
}

func (h *gatewayHandlers) sessionMiddleware(c *gin.Context) {
	raw := bearerToken(c)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "errorKind": "SessionRequired", "error": "session token required"})
		return
	}
	sid, err := h.deps.Issuer.Parse(raw)
	if err != nil {
		h.logger.Debug("rejected session token", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "errorKind": "SessionRequired", "error": "invalid or expired session token"})
		return
	}
	s, err := h.deps.Sessions.Open(c.Request.Context(), sid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(sessionCtxKey, s)
	c.Next()
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionCtxKey).(*session.Session)
}

type addItemRequest struct {
	ProductHandle string `json:"productHandle"`
	VariantID     string `json:"variantId"`
	Quantity      *int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *gatewayHandlers) getCart(c *gin.Context) {
	respondOK(c, http.StatusOK, currentSession(c).Cart.Snapshot())
}

func (h *gatewayHandlers) clearCart(c *gin.Context) {
	s := currentSession(c)
	s.Cart.Clear(c.Request.Context())
	respondOK(c, http.StatusOK, s.Cart.Snapshot())
}

func (h *gatewayHandlers) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.ProductHandle) == "" || strings.TrimSpace(req.VariantID) == "" {
		respondError(c, domain.NewError(domain.ErrValidation, "productHandle and variantId are required"))
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	ctx := c.Request.Context()
	product, err := h.deps.Products.GetProduct(ctx, req.ProductHandle)
	if err != nil {
		respondError(c, err)
		return
	}
	variant, ok := product.Variant(req.VariantID)
	if !ok {
		respondError(c, domain.NewError(domain.ErrValidation, "Variant %s is not part of %s", req.VariantID, product.Title))
		return
	}
	s := currentSession(c)
	if err := s.Cart.AddItem(ctx, *product, variant, qty); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, s.Cart.Snapshot())
}

func (h *gatewayHandlers) updateItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		respondError(c, domain.NewError(domain.ErrValidation, "quantity is required"))
		return
	}
	s := currentSession(c)
	if err := s.Cart.UpdateQuantity(c.Request.Context(), c.Param("variantId"), *req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, s.Cart.Snapshot())
}

func (h *gatewayHandlers) removeItem(c *gin.Context) {
	s := currentSession(c)
	s.Cart.RemoveItem(c.Request.Context(), c.Param("variantId"))
	respondOK(c, http.StatusOK, s.Cart.Snapshot())
}

func (h *gatewayHandlers) syncCart(c *gin.Context) {
	s := currentSession(c)
	if _, err := s.Cart.Sync(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, s.Cart.Snapshot())
}

func (h *gatewayHandlers) checkout(c *gin.Context) {
	s := currentSession(c)
	url, err := s.Cart.GoToCheckout(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"checkoutUrl": url})
}

type authStateResponse struct {
	State     auth.State `json:"state"`
	LastEmail string     `json:"lastEmail,omitempty"`
}

func (h *gatewayHandlers) authState(c *gin.Context) {
	s := currentSession(c)
	respondOK(c, http.StatusOK, authStateResponse{
		State:     s.Auth.State(),
		LastEmail: s.Auth.LastEmail(c.Request.Context()),
	})
}

func (h *gatewayHandlers) refreshAuth(c *gin.Context) {
	respondOK(c, http.StatusOK, currentSession(c).Auth.Refresh(c.Request.Context()))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *gatewayHandlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid JSON body"))
		return
	}
	s := currentSession(c)
	if _, err := s.Auth.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, s.Auth.State())
}

func (h *gatewayHandlers) createAccount(c *gin.Context) {
	var req commerce.AccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid JSON body"))
		return
	}
	s := currentSession(c)
	res, err := s.Auth.CreateAccount(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{
		"requiresLogin": res.RequiresLogin,
		"state":         s.Auth.State(),
	})
}

func (h *gatewayHandlers) logout(c *gin.Context) {
	s := currentSession(c)
	s.Auth.Logout(c.Request.Context())
	respondOK(c, http.StatusOK, s.Auth.State())
}

func (h *gatewayHandlers) updateCustomer(c *gin.Context) {
	var patch domain.CustomerPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid JSON body"))
		return
	}
	s := currentSession(c)
	if _, err := s.Auth.UpdateProfile(c.Request.Context(), patch); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, s.Auth.State())
}
