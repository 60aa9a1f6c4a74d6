package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/repositories"
	"chat-backend/internal/storage"
	"chat-backend/internal/telemetry"
)

// AuthHandler manages registration and login.
type AuthHandler struct {
	userRepo  repositories.UserRepository
	tokenRepo repositories.TokenRepository
	avatars   storage.AvatarStore
	audit     *telemetry.AuditEmitter
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(userRepo repositories.UserRepository, tokenRepo repositories.TokenRepository, avatars storage.AvatarStore, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		avatars:   avatars,
		audit:     audit,
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	user, err := h.userRepo.CreateUser(c.Request.Context(), req.Username, string(hash))
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateUsername) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	token, err := h.issueToken(c, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	h.emitAudit(c, "user_registered", "user registered: "+user.Username)
	c.JSON(http.StatusCreated, gin.H{"username": user.Username, "token": token})
}

// Login handles POST /api/login. Unknown usernames and wrong passwords are
// indistinguishable in the response.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			h.emitAudit(c, "login_failed", "login failed for "+req.Username)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.emitAudit(c, "login_failed", "login failed for "+req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.issueToken(c, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	avatarKey, err := h.userRepo.AvatarKey(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"token":    token,
		"avatar":   h.avatars.URL(avatarKey),
	})
}

// issueToken is idempotent per user: a fresh candidate is generated but the
// stored token wins when one already exists.
func (h *AuthHandler) issueToken(c *gin.Context, userID int) (string, error) {
	candidate, err := newToken()
	if err != nil {
		return "", err
	}
	return h.tokenRepo.GetOrCreate(c.Request.Context(), userID, candidate)
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (h *AuthHandler) emitAudit(c *gin.Context, action, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), action, text, requestIDFromContext(c), userIDFromContext(c))
}
