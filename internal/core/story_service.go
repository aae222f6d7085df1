package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"storyforge.io/server/internal/store"
	"storyforge.io/server/internal/world"
)

const maxPromptLength = 120

type StoryService struct {
	pipeline  *GenerationPipeline
	assembler *WorldAssembler
	store     StoryStore
	memory    *RAGService
	logger    *zap.Logger
}

func NewStoryService(pipeline *GenerationPipeline, assembler *WorldAssembler, s StoryStore, memory *RAGService, logger *zap.Logger) *StoryService {
	return &StoryService{
		pipeline:  pipeline,
		assembler: assembler,
		store:     s,
		memory:    memory,
		logger:    logger,
	}
}

func (s *StoryService) Genres() []world.Genre {
	return world.Genres()
}

// CreateWorld generates a world for genreTag and prompt, persists it with a new
// story owned by userID and indexes the story settings for chat retrieval.
// Unknown genre tags are generated as Fantasy.
func (s *StoryService) CreateWorld(ctx context.Context, userID int64, genreTag, prompt string) (*store.StorySettings, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		return nil, fmt.Errorf("%w: prompt is longer than %d characters", ErrInvalidInput, maxPromptLength)
	}

	genre, known := world.LookupGenre(genreTag)
	if !known {
		s.logger.Info("unknown genre tag, using default", zap.String("tag", genreTag), zap.String("genre", string(genre)))
	}

	bundle, err := s.pipeline.Run(ctx, genre, prompt)
	if err != nil {
		worldsGeneratedTotal.WithLabelValues(string(genre), "generation_failed").Inc()
		return nil, err
	}
	settings, err := s.assembler.Assemble(ctx, userID, prompt, bundle)
	if err != nil {
		worldsGeneratedTotal.WithLabelValues(string(genre), "assembly_failed").Inc()
		return nil, err
	}
	worldsGeneratedTotal.WithLabelValues(string(genre), "success").Inc()

	// The index is a derived cache; a failure here leaves a usable story that a
	// reindex can repair.
	if err := s.memory.IndexStorySettings(ctx, settings); err != nil {
		s.logger.Warn("failed to index story settings", zap.Int64("story_id", settings.ID), zap.Error(err))
	}
	return settings, nil
}

// GetStory returns the settings of a story owned by userID.
func (s *StoryService) GetStory(ctx context.Context, userID, storyID int64) (*store.StorySettings, error) {
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
	return settings, nil
}

func (s *StoryService) ListStories(ctx context.Context, userID int64) ([]store.Story, error) {
	stories, err := s.store.ListStoriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return stories, nil
}

// DeleteStory removes a story owned by userID together with its world, sessions
// and messages, then drops its index entries.
func (s *StoryService) DeleteStory(ctx context.Context, userID, storyID int64) error {
	if _, err := s.GetStory(ctx, userID, storyID); err != nil {
		return err
	}
	if err := s.store.DeleteStory(ctx, storyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: story %d", ErrNotFound, storyID)
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := s.memory.ForgetStory(ctx, storyID); err != nil {
		s.logger.Warn("failed to clear index entries of deleted story", zap.Int64("story_id", storyID), zap.Error(err))
	}
	s.logger.Info("story deleted", zap.Int64("story_id", storyID))
	return nil
}
