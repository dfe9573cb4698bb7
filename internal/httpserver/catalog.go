package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

// Catalogue and review routes need no session; reviews are addressed by
// product handle and resolved to the product id the backend keys them by.

func (h *gatewayHandlers) listProducts(c *gin.Context) {
	products, err := h.deps.Products.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, products)
}

func (h *gatewayHandlers) getProduct(c *gin.Context) {
	p, err := h.deps.Products.GetProduct(c.Request.Context(), c.Param("handle"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

// productID resolves the :handle parameter, writing the failure envelope
// when it cannot.
func (h *gatewayHandlers) productID(c *gin.Context) (string, bool) {
	p, err := h.deps.Products.GetProduct(c.Request.Context(), c.Param("handle"))
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return p.ID, true
}

func (h *gatewayHandlers) listReviews(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	q := domain.ReviewQuery{Sort: c.Query("sort")}
	q.Page, _ = strconv.Atoi(c.Query("page"))
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	page, err := h.deps.Reviews.GetReviews(c.Request.Context(), id, q)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

func (h *gatewayHandlers) submitReview(c *gin.Context) {
	var in domain.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid JSON body"))
		return
	}
	id, ok := h.productID(c)
	if !ok {
		return
	}
	rv, err := h.deps.Reviews.SubmitReview(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, rv)
}

func (h *gatewayHandlers) reviewStats(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	stats, err := h.deps.Reviews.GetReviewStats(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}

func (h *gatewayHandlers) markReviewHelpful(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	rv, err := h.deps.Reviews.MarkReviewHelpful(c.Request.Context(), id, c.Param("reviewId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rv)
}

func (h *gatewayHandlers) reportReview(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid JSON body"))
		return
	}
	id, ok := h.productID(c)
	if !ok {
		return
	}
	rv, err := h.deps.Reviews.ReportReview(c.Request.Context(), id, c.Param("reviewId"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rv)
}
