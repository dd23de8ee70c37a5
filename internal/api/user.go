package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/session"
)

type UserHandler struct {
	users    repository.UserRepository
	provider session.IdentityProvider
	logger   *zap.Logger
}

func NewUserHandler(users repository.UserRepository, provider session.IdentityProvider, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, provider: provider, logger: logger}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "get user", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateMeRequest struct {
	DisplayName string `json:"display_name"`
}

// UpdateMe renames the caller. Messages already sent keep the old name.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		respondError(c, h.logger, "update user", errs.Validation("display_name", "empty_display_name"))
		return
	}

	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	if err := h.users.UpdateDisplayName(ctx, userID, name); err != nil {
		respondError(c, h.logger, "update user", err)
		return
	}
	if err := h.provider.SetDisplayName(ctx, userID, name); err != nil {
		h.logger.Warn("failed to set provider display name",
			zap.String("user_id", userID.String()), zap.Error(err))
	}

	h.GetMe(c)
}
