package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/channels"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/messages"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/session"
	"github.com/lalith-99/huddle/internal/workspace"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 8 * 1024
	sendBuffer     = 256
)

// command is what a client may send over the socket.
type command struct {
	Op    string `json:"op"`
	Scope string `json:"scope"`
}

// WSHandler upgrades authenticated requests and runs one workspace per
// connection.
type WSHandler struct {
	hub       *Hub
	provider  session.IdentityProvider
	users     repository.UserRepository
	directory *channels.Directory
	stream    *messages.Stream
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func NewWSHandler(
	hub *Hub,
	provider session.IdentityProvider,
	users repository.UserRepository,
	directory *channels.Directory,
	stream *messages.Stream,
	allowedOrigins []string,
	logger *zap.Logger,
) *WSHandler {
	return &WSHandler{
		hub:       hub,
		provider:  provider,
		users:     users,
		directory: directory,
		stream:    stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Serve handles GET /v1/ws. The session is restored from the token the
// auth middleware already verified.
func (h *WSHandler) Serve(c *gin.Context) {
	mgr := session.NewManager(h.provider, h.users, h.logger)
	state, err := mgr.Restore(c.Request.Context(), middleware.GetToken(c))
	if err != nil {
		mgr.Close()
		respondError(c, h.logger, "restore session", err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		mgr.Close()
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:       h.hub,
		conn:      conn,
		userID:    state.UserID,
		token:     state.Token,
		session:   mgr,
		workspace: workspace.New(mgr, h.directory, h.stream, h.logger),
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		logger:    h.logger.With(zap.String("user_id", state.UserID.String())),
	}
	h.hub.add(client)
	client.logger.Info("websocket connected")

	go client.forward()
	go client.writePump()
	go client.readPump()
}

// Client is one WebSocket connection. Only forward writes to send, and it
// closes send once the workspace's event stream ends or the session signs
// out.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    uuid.UUID
	token     string
	session   *session.Manager
	workspace *workspace.Workspace
	send      chan []byte
	done      chan struct{}
	once      sync.Once
	logger    *zap.Logger
}

func (c *Client) forward() {
	defer close(c.send)
	for ev := range c.workspace.Events() {
		b, err := json.Marshal(ev)
		if err != nil {
			c.logger.Error("failed to encode event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		select {
		case c.send <- b:
		case <-c.done:
			return
		}
		if ev.Type == workspace.EventSession && !ev.Session.Authenticated {
			c.logger.Info("session signed out, closing websocket")
			return
		}
	}
}

func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxCommandSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.workspace.ReportError(errs.Validation("command", "malformed"))
		return
	}
	switch cmd.Op {
	case "select":
		scope, err := models.ParseScope(cmd.Scope)
		if err != nil {
			c.workspace.ReportError(errs.Validation("scope", "malformed"))
			return
		}
		c.workspace.Select(scope)
	default:
		c.workspace.ReportError(errs.Validation("command", fmt.Sprintf("unknown op %q", cmd.Op)))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close releases the workspace and the session and drops the connection.
// Safe to call more than once.
func (c *Client) close() {
	c.once.Do(func() {
		c.hub.remove(c)
		close(c.done)
		c.workspace.Close()
		c.session.Close()
		_ = c.conn.Close()
		c.logger.Info("websocket disconnected")
	})
}
