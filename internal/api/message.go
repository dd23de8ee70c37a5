package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/messages"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/session"
	"github.com/lalith-99/huddle/internal/transfer"
)

// MessageHandler serves a scope's message stream: history, text sends,
// file uploads and deletion.
type MessageHandler struct {
	stream   *messages.Stream
	transfer *transfer.Adapter
	users    repository.UserRepository
	hub      *Hub
	logger   *zap.Logger
}

func NewMessageHandler(
	stream *messages.Stream,
	adapter *transfer.Adapter,
	users repository.UserRepository,
	hub *Hub,
	logger *zap.Logger,
) *MessageHandler {
	return &MessageHandler{stream: stream, transfer: adapter, users: users, hub: hub, logger: logger}
}

// List handles GET /v1/scopes/:scope/messages, oldest first.
func (h *MessageHandler) List(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	list, err := h.stream.List(c.Request.Context(), scope, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type createMessageRequest struct {
	Body string `json:"body"`
}

// Create handles POST /v1/scopes/:scope/messages. A blank body sends
// nothing and answers 204.
func (h *MessageHandler) Create(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	msg, err := h.stream.SendText(ctx, scope, userID, h.senderName(c), req.Body)
	if err != nil {
		respondError(c, h.logger, "send message", err)
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Delete handles DELETE /v1/scopes/:scope/messages/:mid. The client must
// pass confirm=true; only the sender may delete.
func (h *MessageHandler) Delete(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "mid")
	if !ok {
		return
	}
	if c.Query("confirm") != "true" {
		badRequest(c, "deleting a message needs confirm=true")
		return
	}

	if err := h.stream.DeleteMessage(c.Request.Context(), scope, messageID, middleware.GetUserID(c), nil); err != nil {
		respondError(c, h.logger, "delete message", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Upload handles POST /v1/scopes/:scope/files. Progress goes to the
// caller's WebSocket connections; the response is the file message.
func (h *MessageHandler) Upload(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	if err := h.stream.Authorize(ctx, scope, userID); err != nil {
		respondError(c, h.logger, "upload file", err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "no file provided")
		return
	}
	defer file.Close()

	sub := h.transfer.Upload(ctx, scope, userID, transfer.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	defer sub.Close()

	var last transfer.Progress
	for p := range sub.Updates() {
		last = p
		h.hub.ReportUpload(userID, p)
	}
	if err := sub.Err(); err != nil {
		h.uploadFailed(c, err)
		return
	}
	if last.Ref == nil {
		h.uploadFailed(c, errors.New("upload ended without a file reference"))
		return
	}

	msg, err := h.stream.SendFileReference(ctx, scope, userID, h.senderName(c), *last.Ref)
	if err != nil {
		h.transfer.DeleteBlob(ctx, *last.Ref)
		respondError(c, h.logger, "send file message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) uploadFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, transfer.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds the upload limit."})
	case errors.Is(err, transfer.ErrEmptyFile):
		badRequest(c, "File is empty.")
	default:
		respondError(c, h.logger, "upload file", err)
	}
}

// senderName is the caller's display name as it will be stamped on the
// message.
func (h *MessageHandler) senderName(c *gin.Context) string {
	return session.ResolveDisplayName(c.Request.Context(), h.users, auth.Identity{
		UserID: middleware.GetUserID(c),
		Email:  middleware.GetEmail(c),
	}, h.logger)
}
