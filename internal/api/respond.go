package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
)

// respondError writes err as {"error": "..."} with the status errs assigns
// it. Only server-side failures are logged; the rest are user mistakes.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": errs.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func scopeParam(c *gin.Context) (models.Scope, bool) {
	scope, err := models.ParseScope(c.Param("scope"))
	if err != nil {
		badRequest(c, "invalid scope")
		return models.Scope{}, false
	}
	return scope, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
