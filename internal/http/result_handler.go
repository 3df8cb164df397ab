package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duckly-edu/internal/domain"
	"duckly-edu/internal/service"
)

// ResultHandler expone el envio y el historial de resultados de tests.
type ResultHandler struct {
	logger  *zap.Logger
	results *service.ResultService
}

func NewResultHandler(logger *zap.Logger, results *service.ResultService) *ResultHandler {
	return &ResultHandler{logger: logger, results: results}
}

type submitResultRequest struct {
	Subject        string          `json:"subject"`
	TopicID        string          `json:"topicId"`
	TopicTitle     string          `json:"topicTitle"`
	TotalQuestions int             `json:"totalQuestions"`
	CorrectAnswers int             `json:"correctAnswers"`
	ReviewData     json.RawMessage `json:"reviewData"`
}

type resultResponse struct {
	domain.TestResult
	Review json.RawMessage `json:"review,omitempty"`
}

func toResultResponse(r domain.TestResult) resultResponse {
	return resultResponse{TestResult: r, Review: r.Review()}
}

// Submit maneja POST /api/test/submit.
func (h *ResultHandler) Submit(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	var req submitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var review *string
	if len(req.ReviewData) > 0 && string(req.ReviewData) != "null" {
		s := string(req.ReviewData)
		review = &s
	}
	result, err := h.results.Submit(c.Request.Context(), userID, service.SubmitInput{
		Subject:        req.Subject,
		TopicID:        req.TopicID,
		TopicTitle:     req.TopicTitle,
		TotalQuestions: req.TotalQuestions,
		CorrectAnswers: req.CorrectAnswers,
		ReviewData:     review,
	})
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"result": toResultResponse(result)})
}

// List maneja GET /api/test/results con paginacion via ?page=N.
func (h *ResultHandler) List(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	results, pg, err := h.results.List(c.Request.Context(), userID, page)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, toResultResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "pagination": pg})
}
