package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
	"chat-backend/internal/storage"
	"chat-backend/internal/telemetry"
)

// UserHandler serves the user directory and avatar updates.
type UserHandler struct {
	userRepo repositories.UserRepository
	avatars  storage.AvatarStore
	audit    *telemetry.AuditEmitter
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(userRepo repositories.UserRepository, avatars storage.AvatarStore, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{
		userRepo: userRepo,
		avatars:  avatars,
		audit:    audit,
	}
}

// ListUsers returns every registered user with their avatar URL.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userRepo.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	avatarKeys, err := h.userRepo.AvatarKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, models.UserView{
			ID:       u.ID,
			Username: u.Username,
			Avatar:   h.avatars.URL(avatarKeys[u.ID]),
		})
	}

	c.JSON(http.StatusOK, views)
}

// UpdateAvatar handles PUT /api/profile/avatar. The profile row is created
// lazily on first upload; later uploads overwrite the stored key.
func (h *UserHandler) UpdateAvatar(c *gin.Context) {
	userID := c.GetInt("userID")

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	key, err := h.avatars.Save(c.Request.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store avatar"})
		return
	}

	if err := h.userRepo.SetAvatarKey(c.Request.Context(), userID, key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store avatar"})
		return
	}

	observability.IncAvatarUpload()
	h.emitAudit(c, "avatar_updated", "avatar updated")
	c.JSON(http.StatusOK, gin.H{"avatar": h.avatars.URL(key)})
}

func (h *UserHandler) emitAudit(c *gin.Context, action, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), action, text, requestIDFromContext(c), userIDFromContext(c))
}
