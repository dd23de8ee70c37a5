package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/session"
)

// AuthHandler serves sign-up, login and logout. Each request runs through a
// short-lived session.Manager so HTTP clients get the same profile and
// display-name handling as WebSocket clients.
type AuthHandler struct {
	provider session.IdentityProvider
	users    repository.UserRepository
	hub      *Hub
	logger   *zap.Logger
}

func NewAuthHandler(provider session.IdentityProvider, users repository.UserRepository, hub *Hub, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{provider: provider, users: users, hub: hub, logger: logger}
}

// signupRequest leaves email and password rules to the identity provider so
// its error codes reach the client unchanged.
type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string        `json:"token"`
	User  session.State `json:"user"`
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	m := session.NewManager(h.provider, h.users, h.logger)
	defer m.Close()

	state, err := m.Register(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		respondError(c, h.logger, "signup", err)
		return
	}

	h.logger.Info("user registered", zap.String("user_id", state.UserID.String()))
	c.JSON(http.StatusCreated, authResponse{Token: state.Token, User: state})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	m := session.NewManager(h.provider, h.users, h.logger)
	defer m.Close()

	state, err := m.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: state.Token, User: state})
}

// Logout revokes the bearer token used for this request and signs out every
// WebSocket opened with it.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	token := middleware.GetToken(c)
	if err := h.provider.SignOut(ctx, token); err != nil {
		respondError(c, h.logger, "logout", err)
		return
	}
	if h.hub != nil {
		h.hub.SignOut(middleware.GetUserID(c), token)
	}
	c.Status(http.StatusNoContent)
}
