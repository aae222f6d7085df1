package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"storyforge.io/server/internal/store"
)

const (
	SettingsCollection    = "story_settings"
	ChatHistoryCollection = "chat_history"
)

type Index interface {
	Upsert(ctx context.Context, entry store.IndexEntry) error
	Query(ctx context.Context, collection string, embedding []float32, k int, filter map[string]string) ([]store.ScoredEntry, error)
	Delete(ctx context.Context, collection string, filter map[string]string) (int, error)
}

// RAGService is the similarity index as seen by the core: text in, embedded
// and keyed entries out.
type RAGService struct {
	index    Index
	embedder Embedder
	logger   *zap.Logger
}

func NewRAGService(index Index, embedder Embedder, logger *zap.Logger) *RAGService {
	return &RAGService{index: index, embedder: embedder, logger: logger}
}

// Add embeds text and writes it under id. Re-adding an id overwrites it.
func (s *RAGService) Add(ctx context.Context, collection, id, text string, metadata map[string]string) error {
	embedding, err := s.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed %s/%s: %w", collection, id, err)
	}
	return s.index.Upsert(ctx, store.IndexEntry{
		Collection: collection,
		ID:         id,
		Content:    text,
		Metadata:   metadata,
		Embedding:  embedding,
	})
}

func (s *RAGService) IndexStorySettings(ctx context.Context, settings *store.StorySettings) error {
	text, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal story settings: %w", err)
	}
	storyID := strconv.FormatInt(settings.ID, 10)
	return s.Add(ctx, SettingsCollection, storyID, string(text), map[string]string{
		"story_id":   storyID,
		"user_id":    strconv.FormatInt(settings.UserID, 10),
		"title":      settings.Title,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *RAGService) IndexMessage(ctx context.Context, msg store.ChatMessage) error {
	return s.Add(ctx, ChatHistoryCollection, msg.ID, msg.Content, map[string]string{
		"story_id":   strconv.FormatInt(msg.StoryID, 10),
		"role":       string(msg.Role),
		"session_id": msg.SessionID,
		"created_at": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// ForgetStory removes the story's settings and archived chat history.
func (s *RAGService) ForgetStory(ctx context.Context, storyID int64) error {
	filter := map[string]string{"story_id": strconv.FormatInt(storyID, 10)}
	for _, collection := range []string{SettingsCollection, ChatHistoryCollection} {
		n, err := s.index.Delete(ctx, collection, filter)
		if err != nil {
			return fmt.Errorf("failed to clear %s for story %d: %w", collection, storyID, err)
		}
		s.logger.Debug("cleared index entries", zap.String("collection", collection), zap.Int64("story_id", storyID), zap.Int("removed", n))
	}
	return nil
}

// RetrievedContext holds the passages found for one chat turn.
type RetrievedContext struct {
	Settings []string
	History  []string
}

// RetrieveContext embeds query once and searches the settings partition of the
// story and the chat history partition of the session.
func (s *RAGService) RetrieveContext(ctx context.Context, storyID int64, sessionID, query string, settingsK, historyK int) (*RetrievedContext, error) {
	embedding, err := s.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", ErrRetrieval, err)
	}
	sid := strconv.FormatInt(storyID, 10)

	settings, err := s.index.Query(ctx, SettingsCollection, embedding, settingsK, map[string]string{"story_id": sid})
	if err != nil {
		return nil, fmt.Errorf("%w: settings: %w", ErrRetrieval, err)
	}
	history, err := s.index.Query(ctx, ChatHistoryCollection, embedding, historyK, map[string]string{"story_id": sid, "session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("%w: chat history: %w", ErrRetrieval, err)
	}

	out := &RetrievedContext{}
	for _, e := range settings {
		out.Settings = append(out.Settings, e.Content)
	}
	for _, e := range history {
		out.History = append(out.History, e.Content)
	}
	s.logger.Debug("retrieved context",
		zap.Int64("story_id", storyID), zap.String("session_id", sessionID),
		zap.Int("settings", len(out.Settings)), zap.Int("history", len(out.History)))
	return out, nil
}
