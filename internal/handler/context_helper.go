package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/studiodl/archivio-api/internal/middleware"
	"github.com/studiodl/archivio-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.OperatorClaims {
	value, exists := c.Get(middleware.ContextOperatorKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.OperatorClaims)
	if !ok {
		return nil
	}
	return claims
}
