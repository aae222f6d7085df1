package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"storyforge.io/server/internal/store"
)

// The genai client dependency starts an opencensus worker at init.
var ignoreOpenCensus = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

func seedMessages(t *testing.T, env *testEnv, story *store.Story, n int) *store.ChatSession {
	t.Helper()
	ctx := context.Background()
	session, err := env.store.CreateSession(ctx, story.ID, story.UserID)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		role := store.RoleHuman
		if i%2 == 1 {
			role = store.RoleAI
		}
		require.NoError(t, env.store.CreateMessage(ctx, &store.ChatMessage{
			StoryID: story.ID, UserID: story.UserID, SessionID: session.ID, Role: role, Content: "line",
		}))
	}
	return session
}

func TestMaybeArchive_TriggersAtMultiples(t *testing.T) {
	env := newTestEnv(t, letterEmbedder{})
	scheduler := &syncScheduler{}
	archiver := NewMemoryArchiver(env.store, env.memory, scheduler, 50, zap.NewNop())

	for _, count := range []int{0, 1, 49, 51, 99} {
		assert.False(t, archiver.MaybeArchive("s1", count), count)
	}
	assert.True(t, archiver.MaybeArchive("s1", 50))
	assert.True(t, archiver.MaybeArchive("s1", 100))
	assert.Equal(t, []string{"archive:s1:0", "archive:s1:50"}, scheduler.scheduled())
}

func TestArchiveWindow_IndexesOnceAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t, letterEmbedder{})
	session := seedMessages(t, env, seedStory(t, env, 1), 5)
	archiver := NewMemoryArchiver(env.store, env.memory, &syncScheduler{}, 4, zap.NewNop())
	ctx := context.Background()

	n, err := archiver.ArchiveWindow(ctx, session.ID, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = archiver.ArchiveWindow(ctx, session.ID, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	count, err := env.index.Count(ctx, ChatHistoryCollection)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestArchiveWindow_DistinctWindows(t *testing.T) {
	env := newTestEnv(t, letterEmbedder{})
	session := seedMessages(t, env, seedStory(t, env, 1), 6)
	archiver := NewMemoryArchiver(env.store, env.memory, &syncScheduler{}, 3, zap.NewNop())
	ctx := context.Background()

	require.True(t, archiver.MaybeArchive(session.ID, 3))
	require.True(t, archiver.MaybeArchive(session.ID, 6))

	count, err := env.index.Count(ctx, ChatHistoryCollection)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestArchiveWindow_EmbeddingFailure(t *testing.T) {
	env := newTestEnv(t, failingEmbedder{})
	session := seedMessages(t, env, seedStory(t, env, 1), 2)
	archiver := NewMemoryArchiver(env.store, env.memory, &syncScheduler{}, 2, zap.NewNop())

	n, err := archiver.ArchiveWindow(context.Background(), session.ID, 0, 2)
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestBackgroundScheduler_RunsAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)
	s := NewBackgroundScheduler(2, 1, zap.NewNop())
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		s.Schedule("unit", func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		})
	}
	s.Close()
	assert.Equal(t, int32(10), ran.Load())
}

func TestBackgroundScheduler_SurvivesPanics(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)
	s := NewBackgroundScheduler(1, 4, zap.NewNop())
	var ran atomic.Int32
	s.Schedule("boom", func(ctx context.Context) { panic("boom") })
	s.Schedule("after", func(ctx context.Context) { ran.Add(1) })
	s.Close()
	assert.Equal(t, int32(1), ran.Load())
}

func TestBackgroundScheduler_DropsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)
	s := NewBackgroundScheduler(1, 1, zap.NewNop())
	s.Close()
	var ran atomic.Int32
	s.Schedule("late", func(ctx context.Context) { ran.Add(1) })
	s.Close()
	assert.Zero(t, ran.Load())
}
