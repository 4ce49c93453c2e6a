// Package api exposes the chat operations over REST. Every route except the
// health check requires a verified bearer token, and the sender identity is
// always the token's, never a request field.
package api

import (
	"errors"
	"net/http"

	"github.com/creatorhub/messaging/internal/auth"
	"github.com/creatorhub/messaging/internal/chat"
	"github.com/creatorhub/messaging/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler wires the chat service into gin routes.
type Handler struct {
	svc    *chat.Service
	logger *zap.Logger
}

// NewHandler creates the REST handler.
func NewHandler(svc *chat.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the routes on the engine.
func (h *Handler) Register(r *gin.Engine, verifier *auth.Verifier) {
	r.GET("/health", h.health)

	authed := r.Group("/api", requireAuth(verifier))
	{
		chatGroup := authed.Group("/chat")
		chatGroup.POST("/send", h.send)
		chatGroup.GET("/history/:userId", h.history)
		chatGroup.GET("/conversations", h.conversations)
		chatGroup.PUT("/mark-read/:userId", h.markRead)
		chatGroup.PUT("/mark-all-read", h.markAllRead)

		authed.POST("/users", h.syncUser)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) send(c *gin.Context) {
	var req chat.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	m, err := h.svc.Send(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": m})
}

func (h *Handler) history(c *gin.Context) {
	other := c.Param("userId")
	msgs, err := h.svc.History(c.Request.Context(), currentUser(c), other)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) conversations(c *gin.Context) {
	convs, err := h.svc.Conversations(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *Handler) markRead(c *gin.Context) {
	counterpart := c.Param("userId")
	unread, err := h.svc.MarkSeen(c.Request.Context(), currentUser(c), counterpart)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": unread})
}

func (h *Handler) markAllRead(c *gin.Context) {
	n, err := h.svc.MarkAllSeen(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func (h *Handler) syncUser(c *gin.Context) {
	var u store.User
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if err := h.svc.SyncUser(c.Request.Context(), &u); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// writeError maps service errors to HTTP status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ve *chat.ValidationError
	var nf *chat.NotFoundError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
