package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyforge.io/server/internal/auth"
	"storyforge.io/server/internal/core"
	"storyforge.io/server/internal/store"
	"storyforge.io/server/internal/world"
)

const testSecret = "test-secret"

type mockStories struct{ mock.Mock }

func (m *mockStories) Genres() []world.Genre { return world.Genres() }

func (m *mockStories) CreateWorld(ctx context.Context, userID int64, genreTag, prompt string) (*store.StorySettings, error) {
	args := m.Called(ctx, userID, genreTag, prompt)
	out, _ := args.Get(0).(*store.StorySettings)
	return out, args.Error(1)
}

func (m *mockStories) GetStory(ctx context.Context, userID, storyID int64) (*store.StorySettings, error) {
	args := m.Called(ctx, userID, storyID)
	out, _ := args.Get(0).(*store.StorySettings)
	return out, args.Error(1)
}

func (m *mockStories) ListStories(ctx context.Context, userID int64) ([]store.Story, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]store.Story)
	return out, args.Error(1)
}

func (m *mockStories) DeleteStory(ctx context.Context, userID, storyID int64) error {
	return m.Called(ctx, userID, storyID).Error(0)
}

type mockChat struct{ mock.Mock }

func (m *mockChat) StartSession(ctx context.Context, storyID, userID int64) (*store.ChatMessage, error) {
	args := m.Called(ctx, storyID, userID)
	out, _ := args.Get(0).(*store.ChatMessage)
	return out, args.Error(1)
}

func (m *mockChat) SendMessage(ctx context.Context, msg store.ChatMessage) (*store.ChatMessage, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).(*store.ChatMessage)
	return out, args.Error(1)
}

func (m *mockChat) GetSession(ctx context.Context, userID int64, sessionID string) (*store.ChatSession, error) {
	args := m.Called(ctx, userID, sessionID)
	out, _ := args.Get(0).(*store.ChatSession)
	return out, args.Error(1)
}

func (m *mockChat) GetSessionHistory(ctx context.Context, userID int64, sessionID string, limit, skip int, desc bool) ([]store.ChatMessage, error) {
	args := m.Called(ctx, userID, sessionID, limit, skip, desc)
	out, _ := args.Get(0).([]store.ChatMessage)
	return out, args.Error(1)
}

func newTestServer(t *testing.T) (http.Handler, *mockStories, *mockChat) {
	t.Helper()
	stories, chat := new(mockStories), new(mockChat)
	return NewRouter(NewAPIHandler(stories, chat, testSecret, zap.NewNop())), stories, chat
}

func do(t *testing.T, h http.Handler, method, path, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if userID > 0 {
		token, err := auth.GenerateJWT(testSecret, userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicRoutes(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/health", "", 0)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/genres", "", 0)
	require.Equal(t, http.StatusOK, rec.Code)
	var genres []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &genres))
	assert.Equal(t, []string{"Fantasy", "Romance", "Mystery"}, genres)

	rec = do(t, h, http.MethodGet, "/metrics", "", 0)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RequiresToken(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/stories", "", 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stories", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateStoryHandler(t *testing.T) {
	h, stories, _ := newTestServer(t)
	stories.On("CreateWorld", mock.Anything, int64(7), "Mystery", "fog").
		Return(&store.StorySettings{ID: 3, UserID: 7, Title: "Harrow#x", Genre: world.Mystery}, nil).Once()

	rec := do(t, h, http.MethodPost, "/api/stories", `{"genre":"Mystery","prompt":"fog"}`, 7)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got store.StorySettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.ID)
	stories.AssertExpectations(t)
}

func TestCreateStoryHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: prompt is required", core.ErrInvalidInput), http.StatusBadRequest},
		{&core.GenerationError{Stage: world.StageCharacters, Err: world.ErrInvalidContent}, http.StatusUnprocessableEntity},
		{&core.GenerationError{Stage: world.StageWorld, Err: fmt.Errorf("quota")}, http.StatusBadGateway},
		{fmt.Errorf("%w: disk full", core.ErrPersistence), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h, stories, _ := newTestServer(t)
		stories.On("CreateWorld", mock.Anything, int64(1), "Fantasy", "x").Return(nil, tc.err).Once()

		rec := do(t, h, http.MethodPost, "/api/stories", `{"genre":"Fantasy","prompt":"x"}`, 1)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.NotContains(t, rec.Body.String(), tc.err.Error())
	}
}

func TestCreateStoryHandler_HidesErrorDetail(t *testing.T) {
	h, stories, _ := newTestServer(t)
	genErr := &core.GenerationError{Stage: world.StageCharacters, Err: fmt.Errorf("%w: no suspect with both motive and alibi", world.ErrInvalidContent)}
	stories.On("CreateWorld", mock.Anything, int64(1), "Mystery", "fog").Return(nil, genErr).Once()

	rec := do(t, h, http.MethodPost, "/api/stories", `{"genre":"Mystery","prompt":"fog"}`, 1)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotContains(t, rec.Body.String(), "characters")
	assert.NotContains(t, rec.Body.String(), "suspect")
}

func TestCreateStoryHandler_ValidatesBody(t *testing.T) {
	h, stories, _ := newTestServer(t)

	for _, body := range []string{
		`{"genre":"Fantasy"}`,
		`{"genre":"Fantasy","prompt":"` + strings.Repeat("x", 121) + `"}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/stories", body, 1)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	stories.AssertNumberOfCalls(t, "CreateWorld", 0)
}

func TestDeleteStoryHandler(t *testing.T) {
	h, stories, _ := newTestServer(t)
	stories.On("DeleteStory", mock.Anything, int64(1), int64(4)).Return(nil).Once()
	stories.On("DeleteStory", mock.Anything, int64(1), int64(5)).Return(fmt.Errorf("%w: story 5", core.ErrNotFound)).Once()

	rec := do(t, h, http.MethodDelete, "/api/stories/4", "", 1)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/stories/5", "", 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	stories.AssertExpectations(t)
}

func TestGetStoryHandler(t *testing.T) {
	h, stories, _ := newTestServer(t)
	stories.On("GetStory", mock.Anything, int64(1), int64(9)).Return(nil, fmt.Errorf("%w: story 9", core.ErrNotFound)).Once()

	rec := do(t, h, http.MethodGet, "/api/stories/9", "", 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/stories/abc", "", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartSessionHandler(t *testing.T) {
	h, _, chat := newTestServer(t)
	chat.On("StartSession", mock.Anything, int64(4), int64(1)).
		Return(&store.ChatMessage{ID: "m1", SessionID: "s1", Role: store.RoleAI, Content: "Welcome."}, nil).Once()

	rec := do(t, h, http.MethodPost, "/api/stories/4/sessions", "", 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got store.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, store.RoleAI, got.Role)
}

func TestPostMessageHandler(t *testing.T) {
	h, _, chat := newTestServer(t)
	chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(m store.ChatMessage) bool {
		return m.UserID == 5 && m.SessionID == "s1" && m.Content == "I open the door." && m.Role == store.RoleHuman
	})).Return(&store.ChatMessage{ID: "m2", SessionID: "s1", Role: store.RoleAI, Content: "It creaks."}, nil).Once()

	rec := do(t, h, http.MethodPost, "/api/sessions/s1/messages", `{"content":"I open the door."}`, 5)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "It creaks.")
	chat.AssertExpectations(t)

	rec = do(t, h, http.MethodPost, "/api/sessions/s1/messages", `{`, 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/sessions/s1/messages", `{"content":""}`, 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	chat.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestListMessagesHandler_Query(t *testing.T) {
	h, _, chat := newTestServer(t)
	chat.On("GetSessionHistory", mock.Anything, int64(1), "s1", 20, 40, true).Return([]store.ChatMessage(nil), nil).Once()

	rec := do(t, h, http.MethodGet, "/api/sessions/s1/messages?limit=20&skip=40&order=desc", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	chat.AssertExpectations(t)

	rec = do(t, h, http.MethodGet, "/api/sessions/s1/messages?order=sideways", "", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/sessions/s1/messages?limit=ten", "", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
