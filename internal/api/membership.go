package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/channels"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
)

// MembershipHandler serves join, leave, promote and member listing.
type MembershipHandler struct {
	membership *channels.Membership
	logger     *zap.Logger
}

func NewMembershipHandler(membership *channels.Membership, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{membership: membership, logger: logger}
}

// Join handles POST /v1/channels/:id/join. The id is taken as typed by the
// user, so a malformed one reads as "not found".
func (h *MembershipHandler) Join(c *gin.Context) {
	if err := h.membership.JoinChannel(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "join channel", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type leaveResponse struct {
	Selection models.Scope `json:"selection"`
}

// Leave handles POST /v1/channels/:id/leave and tells the client which
// scope to show next.
func (h *MembershipHandler) Leave(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	next, err := h.membership.LeaveChannel(c.Request.Context(), channelID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "leave channel", err)
		return
	}
	c.JSON(http.StatusOK, leaveResponse{Selection: next})
}

type promoteRequest struct {
	UserID string `json:"user_id"`
}

// Promote handles POST /v1/channels/:id/admins. Only an admin may promote,
// and only a current member can be promoted.
func (h *MembershipHandler) Promote(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req promoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	target, err := uuid.Parse(req.UserID)
	if err != nil {
		badRequest(c, "invalid user_id")
		return
	}

	if err := h.membership.PromoteToAdmin(c.Request.Context(), channelID, middleware.GetUserID(c), target); err != nil {
		respondError(c, h.logger, "promote admin", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Members handles GET /v1/channels/:id/members.
func (h *MembershipHandler) Members(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	profiles, err := h.membership.ListMembers(c.Request.Context(), channelID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list members", err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}
