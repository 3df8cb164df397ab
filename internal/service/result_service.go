package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"duckly-edu/internal/domain"
	"duckly-edu/internal/repository"
)

var ErrInvalidResult = errors.New("invalid test result")

const resultPageSize = 10

// ResultService guarda y pagina resultados de tests. El score se fija al
// escribir como round(correct/total*100) y nunca se recalcula.
type ResultService struct {
	logger  *zap.Logger
	results repository.ResultRepository
}

func NewResultService(logger *zap.Logger, results repository.ResultRepository) *ResultService {
	return &ResultService{logger: logger, results: results}
}

// SubmitInput son los datos crudos de un test terminado.
type SubmitInput struct {
	Subject        string
	TopicID        string
	TopicTitle     string
	TotalQuestions int
	CorrectAnswers int
	ReviewData     *string
}

// Pagination acompana cada pagina del historial.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Submit valida y persiste un resultado nuevo.
func (s *ResultService) Submit(ctx context.Context, userID string, in SubmitInput) (domain.TestResult, error) {
	if strings.TrimSpace(in.Subject) == "" ||
		strings.TrimSpace(in.TopicID) == "" ||
		strings.TrimSpace(in.TopicTitle) == "" {
		return domain.TestResult{}, ErrInvalidResult
	}
	if in.TotalQuestions <= 0 || in.CorrectAnswers < 0 || in.CorrectAnswers > in.TotalQuestions {
		return domain.TestResult{}, ErrInvalidResult
	}

	score := int(math.Round(float64(in.CorrectAnswers) / float64(in.TotalQuestions) * 100))
	result := domain.TestResult{
		ID:             uuid.NewString(),
		UserID:         userID,
		Subject:        in.Subject,
		TopicID:        in.TopicID,
		TopicTitle:     in.TopicTitle,
		TotalQuestions: in.TotalQuestions,
		CorrectAnswers: in.CorrectAnswers,
		Score:          score,
		CompletedAt:    time.Now().UTC(),
		ReviewData:     in.ReviewData,
	}
	if err := s.results.Insert(ctx, result); err != nil {
		return domain.TestResult{}, err
	}
	s.logger.Info("test result stored",
		zap.String("user_id", userID),
		zap.String("subject", in.Subject),
		zap.Int("score", score),
	)
	return result, nil
}

// List devuelve una pagina del historial, del mas reciente al mas viejo.
// Paginas fuera de rango devuelven lista vacia, no error.
func (s *ResultService) List(ctx context.Context, userID string, page int) ([]domain.TestResult, Pagination, error) {
	if page < 1 {
		page = 1
	}
	total, err := s.results.CountByUser(ctx, userID)
	if err != nil {
		return nil, Pagination{}, err
	}
	offset := (page - 1) * resultPageSize
	results, err := s.results.ListByUser(ctx, userID, resultPageSize, offset)
	if err != nil {
		return nil, Pagination{}, err
	}
	totalPages := (total + resultPageSize - 1) / resultPageSize
	return results, Pagination{
		Page:       page,
		Limit:      resultPageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}
