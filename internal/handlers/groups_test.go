package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/api/groups", handler.CreateGroup)
	r.GET("/api/groups", handler.ListGroups)
	r.POST("/api/groups/:group_id/add_member", handler.AddMember)
	r.POST("/api/groups/:group_id/remove_member", handler.RemoveMember)
	r.POST("/api/groups/:group_id/leave", handler.Leave)
	r.POST("/api/groups/:group_id/messages", handler.PostGroupMessage)
	r.GET("/api/groups/:group_id/messages", handler.GetGroupMessages)
	r.GET("/api/group-messages/unread_counts", handler.GroupUnreadCounts)
	return r
}

func intPtr(v int) *int { return &v }

func TestCreateGroupSkipsUnknownUsernames(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	avatars := new(mocks.AvatarStoreMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), userRepo, avatars, nil)
	router := setupGroupRouter(handler)

	// "ghost" resolves to nobody and is dropped without error.
	userRepo.On("IDsByUsernames", mock.Anything, []string{"bob", "ghost"}).Return([]int{2}, nil).Once()
	groupRepo.On("CreateGroup", mock.Anything, 1, "team", []int{2}).Return(models.Group{ID: 5, Name: "team", CreatorID: intPtr(1)}, nil).Once()
	groupRepo.On("MembersByGroups", mock.Anything, []int{5}).Return(map[int][]models.User{
		5: {{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}},
	}, nil).Once()
	userRepo.On("AvatarKeys", mock.Anything).Return(map[int]string{}, nil).Once()
	avatars.On("URL", "").Return("").Times(2)

	req := httptest.NewRequest(http.MethodPost, "/api/groups", bytes.NewBufferString(`{"name":"team","member_usernames":["bob","ghost"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var summary models.GroupSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Len(t, summary.Members, 2)
	require.Equal(t, "alice", summary.Members[0].Username)
	groupRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestCreateGroupMissingName(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/groups", bytes.NewBufferString(`{"member_usernames":["bob"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListGroupsOnlyCallerMemberships(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	avatars := new(mocks.AvatarStoreMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), userRepo, avatars, nil)
	router := setupGroupRouter(handler)

	groupRepo.On("ListGroupsForUser", mock.Anything, 1).Return([]models.Group{{ID: 7, Name: "g"}}, nil).Once()
	groupRepo.On("MembersByGroups", mock.Anything, []int{7}).Return(map[int][]models.User{7: {{ID: 1, Username: "alice"}}}, nil).Once()
	userRepo.On("AvatarKeys", mock.Anything).Return(map[int]string{}, nil).Once()
	avatars.On("URL", "").Return("").Once()

	req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []models.GroupSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	groupRepo.AssertExpectations(t)
}

func TestListGroupsResolvesMemberAvatars(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	avatars := new(mocks.AvatarStoreMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), userRepo, avatars, nil)
	router := setupGroupRouter(handler)

	groupRepo.On("ListGroupsForUser", mock.Anything, 1).Return([]models.Group{{ID: 7, Name: "g"}}, nil).Once()
	groupRepo.On("MembersByGroups", mock.Anything, []int{7}).Return(map[int][]models.User{
		7: {{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}},
	}, nil).Once()
	userRepo.On("AvatarKeys", mock.Anything).Return(map[int]string{2: "avatars/b.png"}, nil).Once()
	avatars.On("URL", "").Return("").Once()
	avatars.On("URL", "avatars/b.png").Return("http://blob/avatars/b.png").Once()

	req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []models.GroupSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	require.Equal(t, "", summaries[0].Members[0].Avatar)
	require.Equal(t, "http://blob/avatars/b.png", summaries[0].Members[1].Avatar)
	avatars.AssertExpectations(t)
}

func TestAddMemberForbiddenForNonCreator(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, CreatorID: intPtr(99)}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/add_member", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestAddMemberMissingUserID(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/add_member", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddMemberUnknownUser(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), userRepo, new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, CreatorID: intPtr(1)}, nil).Once()
	userRepo.On("GetUserByID", mock.Anything, 42).Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/add_member", bytes.NewBufferString(`{"user_id":42}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestAddMemberSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), userRepo, new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, CreatorID: intPtr(1)}, nil).Once()
	userRepo.On("GetUserByID", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	groupRepo.On("AddMember", mock.Anything, 9, 2).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/add_member", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestRemoveMemberSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), userRepo, new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, CreatorID: intPtr(1)}, nil).Once()
	userRepo.On("GetUserByID", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, 9, 2).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/remove_member", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestLeaveByCreatorDeletesGroup(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, Name: "g", CreatorID: intPtr(1)}, nil).Once()
	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	groupRepo.On("DeleteGroup", mock.Anything, 9).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestLeaveByMemberRemovesMembership(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, Name: "g", CreatorID: intPtr(99)}, nil).Once()
	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, 9, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestLeaveByNonMember(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, Name: "g", CreatorID: intPtr(99)}, nil).Once()
	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestPostGroupMessageRequiresMembership(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/messages", bytes.NewBufferString(`{"content":"hey"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestPostGroupMessageSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.GroupMessageRepositoryMock)
	handler := NewGroupHandler(groupRepo, messageRepo, new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	messageRepo.On("CreateGroupMessage", mock.Anything, 9, 1, "hey").Return(models.GroupMessage{ID: 3, GroupID: 9, SenderID: 1, Content: "hey"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/groups/9/messages", bytes.NewBufferString(`{"content":"hey"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGetGroupMessagesMarksReadByForCaller(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.GroupMessageRepositoryMock)
	handler := NewGroupHandler(groupRepo, messageRepo, new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	// read-by marking is tied to the reader identity in the repo contract
	messageRepo.On("ListGroupMessages", mock.Anything, 9, 1).Return([]models.GroupMessage{{ID: 1, GroupID: 9, SenderID: 2, Content: "hi"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/groups/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGetGroupMessagesInvalidID(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.GroupMessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/groups/bad/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// Unlike the direct-message variant, zero-unread groups stay in the payload.
func TestGroupUnreadCountsIncludesZeroGroups(t *testing.T) {
	messageRepo := new(mocks.GroupMessageRepositoryMock)
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), messageRepo, new(mocks.UserRepositoryMock), new(mocks.AvatarStoreMock), nil)
	router := setupGroupRouter(handler)

	messageRepo.On("UnreadCountsByGroup", mock.Anything, 1).Return(map[int]int{5: 0, 7: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/group-messages/unread_counts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var counts map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&counts))
	require.Equal(t, map[string]int{"5": 0, "7": 2}, counts)
	messageRepo.AssertExpectations(t)
}
