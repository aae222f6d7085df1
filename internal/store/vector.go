package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"storyforge.io/server/internal/utils"
)

var metadataKeyPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// VectorIndex is the similarity index backed by the index_entries table. It is
// a derived cache of relational data and can be rebuilt at any time.
type VectorIndex struct {
	db     *SQLiteStore
	logger *zap.Logger
}

func NewVectorIndex(db *SQLiteStore, logger *zap.Logger) *VectorIndex {
	return &VectorIndex{db: db, logger: logger}
}

// Upsert writes entry keyed by (collection, id), replacing any previous entry.
func (v *VectorIndex) Upsert(ctx context.Context, entry IndexEntry) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("entry %s/%s has no embedding", entry.Collection, entry.ID)
	}
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	embeddingJSON, err := json.Marshal(entry.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = v.db.db.ExecContext(ctx, `
        INSERT INTO index_entries (collection, id, content, metadata_json, embedding_json)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (collection, id) DO UPDATE SET
            content = excluded.content,
            metadata_json = excluded.metadata_json,
            embedding_json = excluded.embedding_json`,
		entry.Collection, entry.ID, entry.Content, string(metaJSON), string(embeddingJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert index entry: %w", err)
	}
	return nil
}

// Query returns up to k entries of collection whose metadata matches every
// key in filter, ranked by cosine similarity to embedding.
func (v *VectorIndex) Query(ctx context.Context, collection string, embedding []float32, k int, filter map[string]string) ([]ScoredEntry, error) {
	if k <= 0 {
		return nil, nil
	}

	where, args, err := whereMetadata(collection, filter)
	if err != nil {
		return nil, err
	}
	rows, err := v.db.db.QueryContext(ctx,
		"SELECT id, content, metadata_json, embedding_json FROM index_entries WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index entries: %w", err)
	}
	defer rows.Close()

	var scored []ScoredEntry
	for rows.Next() {
		entry := IndexEntry{Collection: collection}
		var metaJSON, embeddingJSON string
		if err := rows.Scan(&entry.ID, &entry.Content, &metaJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &entry.Metadata); err != nil {
			v.logger.Warn("skipping index entry with bad metadata", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &entry.Embedding); err != nil {
			v.logger.Warn("skipping index entry with bad embedding", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		similarity, err := utils.CosineSimilarity(embedding, entry.Embedding)
		if err != nil {
			v.logger.Warn("skipping index entry", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		scored = append(scored, ScoredEntry{IndexEntry: entry, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index entries: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Delete removes every entry of collection whose metadata matches filter and
// returns how many were removed. An empty filter is rejected.
func (v *VectorIndex) Delete(ctx context.Context, collection string, filter map[string]string) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("refusing to delete all of %s without a filter", collection)
	}
	where, args, err := whereMetadata(collection, filter)
	if err != nil {
		return 0, err
	}
	res, err := v.db.db.ExecContext(ctx, "DELETE FROM index_entries WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete index entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// whereMetadata builds the WHERE clause matching collection and every key of filter.
func whereMetadata(collection string, filter map[string]string) (string, []any, error) {
	var (
		clauses = []string{"collection = ?"}
		args    = []any{collection}
	)
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !metadataKeyPattern.MatchString(key) {
			return "", nil, fmt.Errorf("invalid metadata key %q", key)
		}
		clauses = append(clauses, fmt.Sprintf("json_extract(metadata_json, '$.%s') = ?", key))
		args = append(args, filter[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (v *VectorIndex) Count(ctx context.Context, collection string) (int, error) {
	var count int
	if err := v.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_entries WHERE collection = ?", collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count index entries: %w", err)
	}
	return count, nil
}
