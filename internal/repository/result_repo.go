package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"duckly-edu/internal/domain"
)

// ResultRepository persiste resultados de tests (solo inserciones).
type ResultRepository interface {
	Insert(ctx context.Context, result domain.TestResult) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.TestResult, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// PgResultRepository implementa ResultRepository usando pgxpool.
type PgResultRepository struct {
	pool *pgxpool.Pool
}

func NewPgResultRepository(pool *pgxpool.Pool) *PgResultRepository {
	return &PgResultRepository{pool: pool}
}

func (r *PgResultRepository) Insert(ctx context.Context, result domain.TestResult) error {
	const query = `
		INSERT INTO test_results (id, user_id, subject, topic_id, topic_title, total_questions, correct_answers, score, completed_at, review_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		result.ID,
		result.UserID,
		result.Subject,
		result.TopicID,
		result.TopicTitle,
		result.TotalQuestions,
		result.CorrectAnswers,
		result.Score,
		result.CompletedAt,
		result.ReviewData,
	)
	return err
}

func (r *PgResultRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.TestResult, error) {
	const query = `
		SELECT id, user_id, subject, topic_id, topic_title, total_questions, correct_answers, score, completed_at, review_data
		FROM test_results
		WHERE user_id = $1
		ORDER BY completed_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.TestResult
	for rows.Next() {
		var res domain.TestResult
		if err := rows.Scan(
			&res.ID, &res.UserID, &res.Subject, &res.TopicID, &res.TopicTitle,
			&res.TotalQuestions, &res.CorrectAnswers, &res.Score, &res.CompletedAt, &res.ReviewData,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *PgResultRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM test_results WHERE user_id = $1`
	var count int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}
