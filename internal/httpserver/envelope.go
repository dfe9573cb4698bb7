package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError writes the failure envelope with the error kind and a
// message safe to show the shopper.
func respondError(c *gin.Context, err error) {
	status := statusForKind(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"errorKind": domain.KindName(err),
		"error":     domain.UserMessage(err),
	})
}

func statusForKind(err error) int {
	switch domain.KindName(err) {
	case "ValidationError":
		return http.StatusBadRequest
	case "AuthExpired":
		return http.StatusUnauthorized
	case "EmptyCartError":
		return http.StatusConflict
	case "RemoteRejection":
		return http.StatusUnprocessableEntity
	case "ServerError":
		return http.StatusBadGateway
	case "NetworkError":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
