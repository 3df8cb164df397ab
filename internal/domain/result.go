package domain

import (
	"encoding/json"
	"time"
)

// TestResult es un resultado de test; solo se inserta, nunca se modifica.
// Score se calcula al escribir y no se recalcula despues.
type TestResult struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Subject        string    `json:"subject"`
	TopicID        string    `json:"topicId"`
	TopicTitle     string    `json:"topicTitle"`
	TotalQuestions int       `json:"totalQuestions"`
	CorrectAnswers int       `json:"correctAnswers"`
	Score          int       `json:"score"`
	CompletedAt    time.Time `json:"completedAt"`
	ReviewData     *string   `json:"-"`
}

// Review decodifica el blob opaco de revision; null si falta o esta corrupto.
func (r TestResult) Review() json.RawMessage {
	if r.ReviewData == nil {
		return nil
	}
	if !json.Valid([]byte(*r.ReviewData)) {
		return nil
	}
	return json.RawMessage(*r.ReviewData)
}
