package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"studypal/internal/models"
)

func (r *Postgres) SaveEmbedding(ctx context.Context, userID uuid.UUID, content string, embedding []float32) error {
	q := r.psql.Insert("chat_embeddings").
		Columns("id", "user_id", "content", "embedding").
		Values(uuid.New(), userID, content, pgvector.NewVector(embedding))
	if _, err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// NearestEmbeddings orders the user's stored snippets by cosine distance to embedding.
func (r *Postgres) NearestEmbeddings(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]models.ContextSnippet, error) {
	out := []models.ContextSnippet{}
	vec := pgvector.NewVector(embedding)
	q := r.psql.Select("id", "content").
		Column(squirrel.Expr("embedding <=> ? AS distance", vec)).
		From("chat_embeddings").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("distance").
		Limit(uint64(limit))
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("nearest embeddings: %w", err)
	}
	return out, nil
}
