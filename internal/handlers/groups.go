package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
	"chat-backend/internal/storage"
	"chat-backend/internal/telemetry"
)

// GroupHandler manages group membership and group messaging endpoints.
type GroupHandler struct {
	groupRepo   repositories.GroupRepository
	messageRepo repositories.GroupMessageRepository
	userRepo    repositories.UserRepository
	avatars     storage.AvatarStore
	audit       *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, messageRepo repositories.GroupMessageRepository, userRepo repositories.UserRepository, avatars storage.AvatarStore, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		avatars:     avatars,
		audit:       audit,
	}
}

// CreateGroup handles POST /api/groups. The creator always joins; usernames
// that resolve to nobody are skipped without error.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name            string   `json:"name" binding:"required"`
		MemberUsernames []string `json:"member_usernames"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	memberIDs, err := h.userRepo.IDsByUsernames(c.Request.Context(), req.MemberUsernames)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve members"})
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, req.Name, memberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	summaries, err := h.summarize(c, []models.Group{group})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load group members"})
		return
	}

	h.emitAudit(c, "group_created", "group created: "+group.Name)
	c.JSON(http.StatusCreated, summaries[0])
}

// ListGroups returns only the groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetInt("userID")
	groups, err := h.groupRepo.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}

	summaries, err := h.summarize(c, groups)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load group members"})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// AddMember handles POST /api/groups/:group_id/add_member. Creator only;
// adding an existing member succeeds without effect.
func (h *GroupHandler) AddMember(c *gin.Context) {
	h.mutateMembership(c, true)
}

// RemoveMember handles POST /api/groups/:group_id/remove_member. Creator
// only; removing a non-member succeeds without effect.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	h.mutateMembership(c, false)
}

func (h *GroupHandler) mutateMembership(c *gin.Context, add bool) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	callerID := c.GetInt("userID")
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "group not found"})
		return
	}
	if group.CreatorID == nil || *group.CreatorID != callerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can manage members"})
		return
	}

	if _, err := h.userRepo.GetUserByID(c.Request.Context(), req.UserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	if add {
		err = h.groupRepo.AddMember(c.Request.Context(), groupID, req.UserID)
	} else {
		err = h.groupRepo.RemoveMember(c.Request.Context(), groupID, req.UserID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update membership"})
		return
	}

	if add {
		h.emitAudit(c, "member_added", "member added to group")
		c.JSON(http.StatusOK, gin.H{"message": "member added"})
		return
	}
	h.emitAudit(c, "member_removed", "member removed from group")
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

// Leave handles POST /api/groups/:group_id/leave. A leaving creator takes
// the group down with them; anyone else just drops out of the member set.
func (h *GroupHandler) Leave(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	callerID := c.GetInt("userID")
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "group not found"})
		return
	}

	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, callerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a member"})
		return
	}

	if group.CreatorID != nil && *group.CreatorID == callerID {
		if err := h.groupRepo.DeleteGroup(c.Request.Context(), groupID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
			return
		}
		h.emitAudit(c, "group_deleted", "group deleted by creator: "+group.Name)
		c.JSON(http.StatusOK, gin.H{"message": "group deleted"})
		return
	}

	if err := h.groupRepo.RemoveMember(c.Request.Context(), groupID, callerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}
	h.emitAudit(c, "member_removed", "member left group")
	c.JSON(http.StatusOK, gin.H{"message": "left group"})
}

// PostGroupMessage handles POST /api/groups/:group_id/messages. Posting is
// member-only.
func (h *GroupHandler) PostGroupMessage(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg, err := h.messageRepo.CreateGroupMessage(c.Request.Context(), groupID, userID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	observability.IncMessageSent("group")
	h.emitAudit(c, "message_sent", "group message sent")
	c.JSON(http.StatusCreated, msg)
}

// GetGroupMessages handles GET /api/groups/:group_id/messages. Serving the
// read adds the caller to the read-by set of every message they did not send.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	msgs, err := h.messageRepo.ListGroupMessages(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// GroupUnreadCounts handles GET /api/group-messages/unread_counts. Every
// membership group appears, including those with zero unread.
func (h *GroupHandler) GroupUnreadCounts(c *gin.Context) {
	userID := c.GetInt("userID")
	counts, err := h.messageRepo.UnreadCountsByGroup(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread counts"})
		return
	}

	c.JSON(http.StatusOK, counts)
}

func (h *GroupHandler) summarize(c *gin.Context, groups []models.Group) ([]models.GroupSummary, error) {
	ids := make([]int, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}

	membersByGroup, err := h.groupRepo.MembersByGroups(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}

	avatarKeys, err := h.userRepo.AvatarKeys(c.Request.Context())
	if err != nil {
		return nil, err
	}

	summaries := make([]models.GroupSummary, 0, len(groups))
	for _, g := range groups {
		members := membersByGroup[g.ID]
		views := make([]models.UserView, 0, len(members))
		for _, m := range members {
			views = append(views, models.UserView{
				ID:       m.ID,
				Username: m.Username,
				Avatar:   h.avatars.URL(avatarKeys[m.ID]),
			})
		}
		summaries = append(summaries, models.GroupSummary{Group: g, Members: views})
	}
	return summaries, nil
}

func (h *GroupHandler) emitAudit(c *gin.Context, action, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), action, text, requestIDFromContext(c), userIDFromContext(c))
}

func parseGroupID(c *gin.Context) (int, bool) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, false
	}
	return groupID, true
}
