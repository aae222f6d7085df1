package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"storyforge.io/server/internal/world"
)

var ErrNotFound = errors.New("record not found")

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dataSourceName with foreign key enforcement on every
// connection. A DSN that turns it off is rejected.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	var enabled int
	if err = db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if enabled != 1 {
		db.Close()
		return nil, errors.New("foreign key enforcement is disabled by the database URL")
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// withForeignKeys adds _foreign_keys=on to dsn unless it already sets the option.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS worlds (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        world_json TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS stories (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        title TEXT NOT NULL,
        genre TEXT NOT NULL CHECK (genre IN ('Fantasy', 'Romance', 'Mystery')),
        prompt TEXT NOT NULL,
        world_id INTEGER NOT NULL UNIQUE,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (world_id) REFERENCES worlds (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS chat_sessions (
        id TEXT PRIMARY KEY, -- UUID
        story_id INTEGER NOT NULL,
        user_id INTEGER NOT NULL,
        has_started BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (story_id) REFERENCES stories (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS chat_messages (
        id TEXT PRIMARY KEY, -- UUID
        story_id INTEGER NOT NULL,
        user_id INTEGER NOT NULL,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('human', 'ai')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (session_id) REFERENCES chat_sessions (id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, created_at);

    CREATE TABLE IF NOT EXISTS index_entries (
        collection TEXT NOT NULL,
        id TEXT NOT NULL,
        content TEXT NOT NULL,
        metadata_json TEXT NOT NULL,
        embedding_json TEXT NOT NULL, -- JSON array of float32
        PRIMARY KEY (collection, id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// CreateStoryWithWorld inserts the world and then the story referencing it in
// one transaction. On success w.ID and story.ID/WorldID are filled in.
func (s *SQLiteStore) CreateStoryWithWorld(ctx context.Context, story *Story, w *world.World) (err error) {
	w.ID = 0
	worldJSON, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal world: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "INSERT INTO worlds (world_json) VALUES (?)", string(worldJSON))
	if err != nil {
		return fmt.Errorf("failed to insert world: %w", err)
	}
	worldID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read world id: %w", err)
	}

	createdAt := time.Now().UTC()
	res, err = tx.ExecContext(ctx,
		"INSERT INTO stories (user_id, title, genre, prompt, world_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		story.UserID, story.Title, string(story.Genre), story.Prompt, worldID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert story: %w", err)
	}
	storyID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read story id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit story: %w", err)
	}

	w.ID = worldID
	story.ID = storyID
	story.WorldID = worldID
	story.CreatedAt = createdAt
	return nil
}

func (s *SQLiteStore) GetStory(ctx context.Context, storyID int64) (*StorySettings, error) {
	var (
		settings  StorySettings
		genre     string
		worldID   int64
		worldJSON string
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT s.id, s.user_id, s.title, s.genre, s.world_id, w.world_json
        FROM stories s
        JOIN worlds w ON w.id = s.world_id
        WHERE s.id = ?`, storyID).Scan(&settings.ID, &settings.UserID, &settings.Title, &genre, &worldID, &worldJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("story %d: %w", storyID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get story: %w", err)
	}

	var w world.World
	if err := json.Unmarshal([]byte(worldJSON), &w); err != nil {
		return nil, fmt.Errorf("failed to decode world %d: %w", worldID, err)
	}
	w.ID = worldID
	settings.Genre = world.Genre(genre)
	settings.World = &w
	return &settings, nil
}

func (s *SQLiteStore) ListStoriesByUser(ctx context.Context, userID int64) ([]Story, error) {
	return s.queryStories(ctx, "SELECT id, user_id, title, genre, prompt, world_id, created_at FROM stories WHERE user_id = ? ORDER BY created_at DESC", userID)
}

func (s *SQLiteStore) ListStories(ctx context.Context) ([]Story, error) {
	return s.queryStories(ctx, "SELECT id, user_id, title, genre, prompt, world_id, created_at FROM stories ORDER BY id ASC")
}

func (s *SQLiteStore) queryStories(ctx context.Context, query string, args ...any) ([]Story, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stories: %w", err)
	}
	defer rows.Close()

	var stories []Story
	for rows.Next() {
		var story Story
		var genre string
		if err := rows.Scan(&story.ID, &story.UserID, &story.Title, &genre, &story.Prompt, &story.WorldID, &story.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		story.Genre = world.Genre(genre)
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// DeleteStory removes a story, its world and, by cascade, its sessions and messages.
func (s *SQLiteStore) DeleteStory(ctx context.Context, storyID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM worlds WHERE id = (SELECT world_id FROM stories WHERE id = ?)", storyID)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("story %d: %w", storyID, ErrNotFound)
	}
	return nil
}

// Session methods
func (s *SQLiteStore) CreateSession(ctx context.Context, storyID, userID int64) (*ChatSession, error) {
	now := time.Now().UTC()
	session := &ChatSession{
		ID:        uuid.NewString(),
		StoryID:   storyID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_sessions (id, story_id, user_id, has_started, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		session.ID, session.StoryID, session.UserID, session.HasStarted, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	var session ChatSession
	err := s.db.QueryRowContext(ctx,
		"SELECT id, story_id, user_id, has_started, created_at, updated_at FROM chat_sessions WHERE id = ?", sessionID).
		Scan(&session.ID, &session.StoryID, &session.UserID, &session.HasStarted, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *SQLiteStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chat_sessions ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveOpeningMessage persists the first ai message of a session and marks the
// session started in the same transaction. A session can only be started once.
func (s *SQLiteStore) SaveOpeningMessage(ctx context.Context, msg *ChatMessage) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE chat_sessions SET has_started = TRUE, updated_at = ? WHERE id = ? AND has_started = FALSE", now, msg.SessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session started: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("session %s is missing or already started", msg.SessionID)
	}
	if err = insertMessage(ctx, tx, msg, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit opening message: %w", err)
	}
	return nil
}

// Message methods
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, msg *ChatMessage, now time.Time) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = now

	_, err := db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, story_id, user_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.StoryID, msg.UserID, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *ChatMessage) error {
	return insertMessage(ctx, s.db, msg, time.Now().UTC())
}

// GetMessages pages through a session's messages ordered by creation time.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit, skip int, desc bool) ([]ChatMessage, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	query := fmt.Sprintf(`
        SELECT id, story_id, user_id, session_id, role, content, created_at
        FROM chat_messages
        WHERE session_id = ?
        ORDER BY created_at %[1]s, rowid %[1]s
        LIMIT ? OFFSET ?`, order)

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var role string
		if err := rows.Scan(&msg.ID, &msg.StoryID, &msg.UserID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Role = Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages WHERE session_id = ?", sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
