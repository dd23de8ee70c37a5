package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/channels"
	"github.com/lalith-99/huddle/internal/middleware"
)

// ChannelHandler serves channel listing, lookup and creation.
type ChannelHandler struct {
	directory  *channels.Directory
	membership *channels.Membership
	logger     *zap.Logger
}

func NewChannelHandler(directory *channels.Directory, membership *channels.Membership, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{directory: directory, membership: membership, logger: logger}
}

type createChannelRequest struct {
	Name string `json:"name"`
}

// Create handles POST /v1/channels. The caller becomes the channel's first
// member and admin.
func (h *ChannelHandler) Create(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ch, err := h.membership.CreateChannel(c.Request.Context(), req.Name, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "create channel", err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// List handles GET /v1/channels: the channels the caller is a member of,
// newest first. Never null.
func (h *ChannelHandler) List(c *gin.Context) {
	list, err := h.directory.MemberChannels(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list channels", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListAdmin handles GET /v1/channels/admin.
func (h *ChannelHandler) ListAdmin(c *gin.Context) {
	list, err := h.directory.AdminChannels(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list admin channels", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetByID handles GET /v1/channels/:id. Any signed-in user may look a
// channel up; ids are how invitations are shared.
func (h *ChannelHandler) GetByID(c *gin.Context) {
	id, err := channels.ParseChannelID(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get channel", err)
		return
	}
	ch, err := h.directory.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get channel", err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
