package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storyforge.io/server/internal/auth"
	"storyforge.io/server/internal/core"
	"storyforge.io/server/internal/store"
	"storyforge.io/server/internal/validation"
	"storyforge.io/server/internal/world"
)

type StoryService interface {
	Genres() []world.Genre
	CreateWorld(ctx context.Context, userID int64, genreTag, prompt string) (*store.StorySettings, error)
	GetStory(ctx context.Context, userID, storyID int64) (*store.StorySettings, error)
	ListStories(ctx context.Context, userID int64) ([]store.Story, error)
	DeleteStory(ctx context.Context, userID, storyID int64) error
}

type ChatService interface {
	StartSession(ctx context.Context, storyID, userID int64) (*store.ChatMessage, error)
	SendMessage(ctx context.Context, msg store.ChatMessage) (*store.ChatMessage, error)
	GetSession(ctx context.Context, userID int64, sessionID string) (*store.ChatSession, error)
	GetSessionHistory(ctx context.Context, userID int64, sessionID string, limit, skip int, desc bool) ([]store.ChatMessage, error)
}

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	stories   StoryService
	chat      ChatService
	jwtSecret string
	logger    *zap.Logger
}

func NewAPIHandler(stories StoryService, chat ChatService, jwtSecret string, logger *zap.Logger) *APIHandler {
	return &APIHandler{stories: stories, chat: chat, jwtSecret: jwtSecret, logger: logger}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			h.logger.Debug("rejected token", zap.Error(err))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps core errors to HTTP status codes. Clients get a fixed
// message per status; the wrapped error is only logged.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		msg    string
	)
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, "Not found"
	case errors.Is(err, world.ErrInvalidContent), errors.Is(err, core.ErrEmptyResponse):
		status, msg = http.StatusUnprocessableEntity, "Generated content was rejected, please try again"
	case errors.Is(err, core.ErrGenerationFailed):
		status, msg = http.StatusBadGateway, "Story generation is unavailable, please try again"
	default:
		status, msg = http.StatusInternalServerError, "Internal server error"
	}

	fields := []zap.Field{zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}
	http.Error(w, msg, status)
}

// decodeRequest reads a JSON body into dst and runs its validate tags.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(dst); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *APIHandler) ListGenresHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stories.Genres())
}

type CreateStoryRequest struct {
	Genre  string `json:"genre" validate:"max=32"`
	Prompt string `json:"prompt" validate:"required,max=120"`
}

func (h *APIHandler) CreateStoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req CreateStoryRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	settings, err := h.stories.CreateWorld(r.Context(), userID, req.Genre, req.Prompt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, settings)
}

func (h *APIHandler) ListStoriesHandler(w http.ResponseWriter, r *http.Request) {
	stories, err := h.stories.ListStories(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if stories == nil {
		stories = []store.Story{}
	}
	writeJSON(w, http.StatusOK, stories)
}

func (h *APIHandler) GetStoryHandler(w http.ResponseWriter, r *http.Request) {
	storyID, ok := storyIDParam(w, r)
	if !ok {
		return
	}
	settings, err := h.stories.GetStory(r.Context(), userIDFrom(r.Context()), storyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *APIHandler) DeleteStoryHandler(w http.ResponseWriter, r *http.Request) {
	storyID, ok := storyIDParam(w, r)
	if !ok {
		return
	}
	if err := h.stories.DeleteStory(r.Context(), userIDFrom(r.Context()), storyID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	storyID, ok := storyIDParam(w, r)
	if !ok {
		return
	}
	msg, err := h.chat.StartSession(r.Context(), storyID, userIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.chat.GetSession(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ListMessagesHandler serves ?limit=&skip=&order=asc|desc.
func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intQuery(q.Get("limit"), 0)
	if err != nil {
		http.Error(w, "limit must be an integer", http.StatusBadRequest)
		return
	}
	skip, err := intQuery(q.Get("skip"), 0)
	if err != nil {
		http.Error(w, "skip must be an integer", http.StatusBadRequest)
		return
	}
	var desc bool
	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		http.Error(w, "order must be asc or desc", http.StatusBadRequest)
		return
	}

	messages, err := h.chat.GetSessionHistory(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "sessionID"), limit, skip, desc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type PostMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	reply, err := h.chat.SendMessage(r.Context(), store.ChatMessage{
		UserID:    userIDFrom(r.Context()),
		SessionID: chi.URLParam(r, "sessionID"),
		Role:      store.RoleHuman,
		Content:   req.Content,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func storyIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "storyID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid story id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func intQuery(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
