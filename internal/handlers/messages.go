package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// MessageHandler manages private messaging endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		audit:       audit,
	}
}

// SendMessage handles POST /api/messages. The sender is always the
// authenticated caller, never taken from the payload.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		ReceiverID int    `json:"receiver_id" binding:"required"`
		Content    string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver_id and content are required"})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	observability.IncMessageSent("direct")
	h.emitAudit(c, "message_sent", "direct message sent")
	c.JSON(http.StatusCreated, msg)
}

// GetConversation handles GET /api/messages/conversation?user_id=N. Serving
// the read marks every unread message addressed to the caller from the other
// user as read.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query param required"})
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.messageRepo.ListConversation(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// UnreadCounts handles GET /api/messages/unread_counts. Senders with no
// unread messages are absent from the map.
func (h *MessageHandler) UnreadCounts(c *gin.Context) {
	userID := c.GetInt("userID")
	counts, err := h.messageRepo.UnreadCountsBySender(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread counts"})
		return
	}

	c.JSON(http.StatusOK, counts)
}

func (h *MessageHandler) emitAudit(c *gin.Context, action, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), action, text, requestIDFromContext(c), userIDFromContext(c))
}
