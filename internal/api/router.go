package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/blob"
	"github.com/lalith-99/huddle/internal/channels"
	"github.com/lalith-99/huddle/internal/messages"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/transfer"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Provider   *auth.Provider
	Users      repository.UserRepository
	Directory  *channels.Directory
	Membership *channels.Membership
	Stream     *messages.Stream
	Transfer   *transfer.Adapter
	Hub        *Hub

	// Files is set when blobs live on the local filesystem.
	Files *blob.FileSystemStore

	// Limiter may be nil, which disables send rate limiting.
	Limiter       *middleware.Limiter
	SendRateLimit int

	AllowedOrigins []string
	MaxUploadBytes int64

	// Health reports whether backing services are reachable.
	Health func(ctx context.Context) error
}

// NewRouter builds the HTTP surface.
//
// Route groups:
//   - /v1/health, /v1/auth/{signup,login} and /files/* are public.
//   - Everything else under /v1 goes through AuthMiddleware, which accepts
//     the token as a Bearer header or, for /v1/ws where browsers cannot set
//     headers, as a ?token= query parameter.
//   - Sending (text and files) is additionally rate limited per user when a
//     Limiter is configured.
//
// Why gin.New instead of gin.Default?
//   - gin.Default installs gin's own text logger. RequestLogger writes the
//     same fields through zap so request lines land in the same stream as
//     everything else.
func NewRouter(d Deps, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), gin.Recovery())
	if d.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = d.MaxUploadBytes
	}

	r.GET("/v1/health", health(d.Health))

	authH := NewAuthHandler(d.Provider, d.Users, d.Hub, logger)
	r.POST("/v1/auth/signup", authH.Signup)
	r.POST("/v1/auth/login", authH.Login)

	if d.Files != nil {
		r.GET("/files/*key", NewFileHandler(d.Files).Get)
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(d.Provider))

	v1.POST("/auth/logout", authH.Logout)

	userH := NewUserHandler(d.Users, d.Provider, logger)
	v1.GET("/users/me", userH.GetMe)
	v1.PATCH("/users/me", userH.UpdateMe)

	channelH := NewChannelHandler(d.Directory, d.Membership, logger)
	memberH := NewMembershipHandler(d.Membership, logger)
	v1.GET("/channels", channelH.List)
	v1.GET("/channels/admin", channelH.ListAdmin)
	v1.POST("/channels", channelH.Create)
	v1.GET("/channels/:id", channelH.GetByID)
	v1.POST("/channels/:id/join", memberH.Join)
	v1.POST("/channels/:id/leave", memberH.Leave)
	v1.POST("/channels/:id/admins", memberH.Promote)
	v1.GET("/channels/:id/members", memberH.Members)

	sendLimit := middleware.RateLimit(d.Limiter, "send", d.SendRateLimit, time.Minute, logger)
	msgH := NewMessageHandler(d.Stream, d.Transfer, d.Users, d.Hub, logger)
	v1.GET("/scopes/:scope/messages", msgH.List)
	v1.POST("/scopes/:scope/messages", sendLimit, msgH.Create)
	v1.DELETE("/scopes/:scope/messages/:mid", msgH.Delete)
	v1.POST("/scopes/:scope/files", sendLimit, msgH.Upload)

	wsH := NewWSHandler(d.Hub, d.Provider, d.Users, d.Directory, d.Stream, d.AllowedOrigins, logger)
	v1.GET("/ws", wsH.Serve)

	return r
}

func health(check func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
