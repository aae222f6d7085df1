package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyforge.io/server/internal/store"
	"storyforge.io/server/internal/world"
)

type StoryStore interface {
	CreateStoryWithWorld(ctx context.Context, story *store.Story, w *world.World) error
	GetStory(ctx context.Context, storyID int64) (*store.StorySettings, error)
	ListStoriesByUser(ctx context.Context, userID int64) ([]store.Story, error)
	DeleteStory(ctx context.Context, storyID int64) error
}

// WorldAssembler turns a pipeline bundle into a World and persists it together
// with its Story. Nothing is committed unless both rows are written.
type WorldAssembler struct {
	store  StoryStore
	logger *zap.Logger
}

func NewWorldAssembler(s StoryStore, logger *zap.Logger) *WorldAssembler {
	return &WorldAssembler{store: s, logger: logger}
}

func (a *WorldAssembler) Assemble(ctx context.Context, userID int64, prompt string, bundle *Bundle) (*store.StorySettings, error) {
	w := &world.World{
		Genre:      bundle.Genre,
		Setting:    bundle.Setting,
		Locations:  bundle.Locations,
		Characters: bundle.Characters,
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: assembled world: %w", ErrGenerationFailed, err)
	}

	story := &store.Story{
		UserID: userID,
		Title:  fmt.Sprintf("%s#%s", w.Name(), uuid.NewString()),
		Genre:  w.Genre,
		Prompt: prompt,
	}
	if err := a.store.CreateStoryWithWorld(ctx, story, w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	a.logger.Info("world assembled",
		zap.Int64("story_id", story.ID), zap.Int64("world_id", w.ID), zap.String("genre", string(w.Genre)))

	return &store.StorySettings{
		ID:     story.ID,
		UserID: story.UserID,
		Title:  story.Title,
		Genre:  story.Genre,
		World:  w,
	}, nil
}
