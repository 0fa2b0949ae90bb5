package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intern-bli-api/internal/middleware"
	"github.com/noah-isme/intern-bli-api/internal/models"
)

// claimsFromContext returns the authenticated user's claims, or nil
// when the route runs outside the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, exists := c.Get(middleware.ContextUserKey); exists {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}

// requestMeta captures the caller details recorded on audit rows.
func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
