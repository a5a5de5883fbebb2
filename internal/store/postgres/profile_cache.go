package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/deface/internal/detect"
)

// ProfileCacheRepository persists reference embeddings keyed by the SHA-256
// of the source image, so repeat runs over the same reference images skip
// the extractor.
type ProfileCacheRepository struct {
	pool *Pool
}

// NewProfileCacheRepository creates a new PostgreSQL profile cache.
func NewProfileCacheRepository(pool *Pool) *ProfileCacheRepository {
	return &ProfileCacheRepository{pool: pool}
}

// Embeddings returns the cached embeddings for an image hash in extraction
// order, or nil when the image has not been cached.
func (r *ProfileCacheRepository) Embeddings(ctx context.Context, imageHash string) ([]detect.Embedding, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT embedding FROM profile_embeddings WHERE image_hash = $1 ORDER BY position",
		imageHash,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embeddings []detect.Embedding
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan cached embedding: %w", err)
		}
		embeddings = append(embeddings, detect.Embedding(vec.Slice()))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached embeddings: %w", err)
	}
	return embeddings, nil
}

// Store replaces the cached embeddings for an image hash.
func (r *ProfileCacheRepository) Store(ctx context.Context, imageHash string, embeddings []detect.Embedding) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM profile_embeddings WHERE image_hash = $1", imageHash,
	); err != nil {
		return fmt.Errorf("clear cached embeddings: %w", err)
	}

	for i, emb := range embeddings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO profile_embeddings (image_hash, position, embedding) VALUES ($1, $2, $3)",
			imageHash, i, pgvector.NewVector([]float32(emb)),
		); err != nil {
			return fmt.Errorf("insert cached embedding: %w", err)
		}
	}

	return tx.Commit()
}
