package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storyforge.io/server/internal/store"
)

const (
	maxSettingsResults = 2
	defaultHistoryPage = 50
	maxHistoryPage     = 200
)

type ChatStore interface {
	MessageReader
	GetStory(ctx context.Context, storyID int64) (*store.StorySettings, error)
	CreateSession(ctx context.Context, storyID, userID int64) (*store.ChatSession, error)
	GetSession(ctx context.Context, sessionID string) (*store.ChatSession, error)
	SaveOpeningMessage(ctx context.Context, msg *store.ChatMessage) error
	CreateMessage(ctx context.Context, msg *store.ChatMessage) error
	CountMessages(ctx context.Context, sessionID string) (int, error)
}

type ChatConfig struct {
	// HistorySize is the short-term window: the most recent messages always sent.
	HistorySize     int
	HistoryResults  int
	SettingsResults int
}

// ChatService drives chat sessions: opening narration and conversational turns.
type ChatService struct {
	store    ChatStore
	llm      Generator
	memory   *RAGService
	archiver *MemoryArchiver
	cfg      ChatConfig
	logger   *zap.Logger
}

func NewChatService(s ChatStore, llm Generator, memory *RAGService, archiver *MemoryArchiver, cfg ChatConfig, logger *zap.Logger) *ChatService {
	if cfg.SettingsResults <= 0 || cfg.SettingsResults > maxSettingsResults {
		cfg.SettingsResults = maxSettingsResults
	}
	return &ChatService{
		store:    s,
		llm:      llm,
		memory:   memory,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
	}
}

// StartSession creates a new session on the story and persists the opening
// narration as its first message. Every call creates a new session.
func (s *ChatService) StartSession(ctx context.Context, storyID, userID int64) (*store.ChatMessage, error) {
	settings, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: story %d", ErrNotFound, storyID)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if settings.UserID != userID {
		return nil, fmt.Errorf("%w: story %d", ErrNotFound, storyID)
	}

	session, err := s.store.CreateSession(ctx, storyID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	intro, err := s.llm.GenerateText(ctx, gameMasterSystemPrompt, introductionPrompt(settings.World.Summary()))
	if err != nil {
		return nil, fmt.Errorf("%w: opening narration: %w", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(intro) == "" {
		return nil, fmt.Errorf("%w: opening narration: %w", ErrGenerationFailed, ErrEmptyResponse)
	}

	msg := &store.ChatMessage{
		StoryID:   storyID,
		UserID:    userID,
		SessionID: session.ID,
		Role:      store.RoleAI,
		Content:   intro,
	}
	if err := s.store.SaveOpeningMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.logger.Info("chat session started", zap.String("session_id", session.ID), zap.Int64("story_id", storyID))
	return msg, nil
}

// SendMessage runs one conversational turn for msg.SessionID on behalf of
// msg.UserID and returns the persisted reply.
func (s *ChatService) SendMessage(ctx context.Context, msg store.ChatMessage) (*store.ChatMessage, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", ErrInvalidInput)
	}
	session, err := s.ownedSession(ctx, msg.UserID, msg.SessionID)
	if err != nil {
		return nil, err
	}

	userMsg := &store.ChatMessage{
		StoryID:   session.StoryID,
		UserID:    session.UserID,
		SessionID: session.ID,
		Role:      store.RoleHuman,
		Content:   msg.Content,
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	count, err := s.store.CountMessages(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.archiver.MaybeArchive(session.ID, count)

	retrieved, err := s.memory.RetrieveContext(ctx, session.StoryID, session.ID, userMsg.Content, s.cfg.SettingsResults, s.cfg.HistoryResults)
	if err != nil {
		// Degrade to the short-term window only.
		retrievalFailuresTotal.Inc()
		s.logger.Warn("context retrieval failed, continuing without it", zap.String("session_id", session.ID), zap.Error(err))
		retrieved = &RetrievedContext{}
	}

	recent, err := s.store.GetMessages(ctx, session.ID, s.cfg.HistorySize, 0, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	reply, err := s.llm.GenerateText(ctx, gameMasterSystemPrompt, turnPrompt(retrieved, recent, userMsg.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: chat turn: %w", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("%w: chat turn: %w", ErrGenerationFailed, ErrEmptyResponse)
	}

	aiMsg := &store.ChatMessage{
		StoryID:   session.StoryID,
		UserID:    session.UserID,
		SessionID: session.ID,
		Role:      store.RoleAI,
		Content:   reply,
	}
	if err := s.store.CreateMessage(ctx, aiMsg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return aiMsg, nil
}

// GetSessionHistory pages through a session's messages by creation time.
func (s *ChatService) GetSessionHistory(ctx context.Context, userID int64, sessionID string, limit, skip int, desc bool) ([]store.ChatMessage, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryPage
	}
	if limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	if skip < 0 {
		skip = 0
	}
	msgs, err := s.store.GetMessages(ctx, sessionID, limit, skip, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return msgs, nil
}

func (s *ChatService) GetSession(ctx context.Context, userID int64, sessionID string) (*store.ChatSession, error) {
	return s.ownedSession(ctx, userID, sessionID)
}

func (s *ChatService) ownedSession(ctx context.Context, userID int64, sessionID string) (*store.ChatSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return session, nil
}
