package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyforge.io/server/internal/store"
	"storyforge.io/server/internal/world"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) GenerateStructured(ctx context.Context, systemPrompt, prompt string, schema *genai.Schema) ([]byte, error) {
	args := m.Called(ctx, systemPrompt, prompt, schema)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

// letterEmbedder maps text to letter frequencies plus a constant component so
// no vector is zero.
type letterEmbedder struct{}

func (letterEmbedder) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 27)
	v[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v, nil
}

type failingEmbedder struct{}

func (failingEmbedder) GetEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend unavailable")
}

// syncScheduler runs units inline and remembers their names.
type syncScheduler struct {
	mu    sync.Mutex
	names []string
}

func (s *syncScheduler) Schedule(name string, unit func(ctx context.Context)) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	unit(context.Background())
}

func (s *syncScheduler) scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

type testEnv struct {
	store  *store.SQLiteStore
	index  *store.VectorIndex
	memory *RAGService
}

func newTestEnv(t *testing.T, embedder Embedder) *testEnv {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "core.db") + "?_foreign_keys=on&_busy_timeout=5000"
	s, err := store.NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	index := store.NewVectorIndex(s, zap.NewNop())
	return &testEnv{
		store:  s,
		index:  index,
		memory: NewRAGService(index, embedder, zap.NewNop()),
	}
}

const (
	romanceSettingJSON    = `{"name":"Bath","description":"Regency spa town.","time_period":"1811","location":"Bath","tone":"Wistful","societal_norms":"Strict courtship"}`
	romanceCharactersJSON = `{"characters":[{"name":"Anne","occupation":"Gentlewoman","is_protagonist":true},{"name":"Frederick","is_love_interest":true},{"name":"Lady Russell"}]}`

	mysterySettingJSON    = `{"name":"Harrow House","description":"A manor wrapped in fog.","type":"murder","time_period":"1920s","location":"Yorkshire","crime":"Lord Harrow was poisoned at dinner.","events":["dinner party","storm cuts the phone line"]}`
	mysteryLocationsJSON  = `{"locations":[{"name":"Library","description":"Dusty shelves.","type":"room","clues":["torn letter"]},{"name":"Greenhouse","description":"Humid.","type":"garden","clues":["foxglove cuttings"]}]}`
	mysteryCharactersJSON = `{"characters":[{"name":"Inspector Vale","occupation":"Detective","is_protagonist":true},{"name":"Lady Harrow","alibi":"In the garden","motive":"Inheritance"},{"name":"Butler Finch"}]}`
)

func romanceWorld() *world.World {
	setting, err := world.SchemaFor(world.Romance).ParseSetting([]byte(romanceSettingJSON))
	if err != nil {
		panic(err)
	}
	characters, err := world.SchemaFor(world.Romance).ParseCharacters([]byte(romanceCharactersJSON))
	if err != nil {
		panic(err)
	}
	return &world.World{Genre: world.Romance, Setting: setting, Characters: characters}
}

// seedStory persists a romance story owned by userID directly through the store.
func seedStory(t *testing.T, env *testEnv, userID int64) *store.Story {
	t.Helper()
	story := &store.Story{UserID: userID, Title: "Bath#seed", Genre: world.Romance, Prompt: "regency longing"}
	require.NoError(t, env.store.CreateStoryWithWorld(context.Background(), story, romanceWorld()))
	return story
}

func schemaArg(g world.Genre, stage world.Stage) *genai.Schema {
	s := world.SchemaFor(g)
	switch stage {
	case world.StageLocations:
		return s.Location
	case world.StageCharacters:
		return s.Character
	default:
		return s.World
	}
}

func expectStage(m *mockGenerator, g world.Genre, stage world.Stage, out string, err error) *mock.Call {
	var payload any
	if out != "" {
		payload = []byte(out)
	}
	return m.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything, schemaArg(g, stage)).Return(payload, err)
}
