package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

// PostgresRatingRepository implements lifecycle.RatingCollaborator using pgx
type PostgresRatingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRatingRepository creates a new PostgreSQL rating repository
func NewPostgresRatingRepository(pool *pgxpool.Pool) *PostgresRatingRepository {
	return &PostgresRatingRepository{pool: pool}
}

// SubmitRating stores one rating per (project, rated user, rater)
func (r *PostgresRatingRepository) SubmitRating(ctx context.Context, rating lifecycle.Rating) error {
	query := `
		INSERT INTO ratings (project_id, rated_user_id, rater_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, rated_user_id, rater_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		rating.ProjectID,
		rating.RatedUserID,
		rating.RaterID,
		rating.Score,
		rating.Comment,
		rating.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rating: %w", err)
	}
	if result.RowsAffected() == 0 {
		return lifecycle.ErrAlreadyRated
	}
	return nil
}

// AverageScore returns the mean score and rating count of a user
func (r *PostgresRatingRepository) AverageScore(ctx context.Context, ratedUserID uuid.UUID) (float64, int64, error) {
	query := `
		SELECT COALESCE(AVG(score), 0)::float8, COUNT(*)
		FROM ratings
		WHERE rated_user_id = $1
	`
	var avg float64
	var count int64
	if err := r.pool.QueryRow(ctx, query, ratedUserID).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to compute rating average: %w", err)
	}
	return avg, count, nil
}
