package store

import (
	"time"

	"storyforge.io/server/internal/world"
)

type Story struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Title     string      `json:"title"`
	Genre     world.Genre `json:"genre"`
	Prompt    string      `json:"prompt"`
	WorldID   int64       `json:"world_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// StorySettings is a story joined with its assembled world.
type StorySettings struct {
	ID     int64        `json:"id"`
	UserID int64        `json:"user_id"`
	Title  string       `json:"title"`
	Genre  world.Genre  `json:"genre"`
	World  *world.World `json:"world"`
}

type ChatSession struct {
	ID         string    `json:"id"` // UUID
	StoryID    int64     `json:"story_id"`
	UserID     int64     `json:"user_id"`
	HasStarted bool      `json:"has_started"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

type ChatMessage struct {
	ID        string    `json:"id"` // UUID
	StoryID   int64     `json:"story_id"`
	UserID    int64     `json:"user_id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// IndexEntry is one passage in the similarity index. Entries are keyed by
// (collection, id); writing the same key again replaces the entry.
type IndexEntry struct {
	Collection string            `json:"collection"`
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Embedding  []float32         `json:"-"`
}

type ScoredEntry struct {
	IndexEntry
	Score float32 `json:"score"`
}
