package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duckly-edu/internal/domain"
	"duckly-edu/internal/service"
)

// SubscriptionHandler expone el listado y la baja de suscripciones.
type SubscriptionHandler struct {
	logger *zap.Logger
	subs   *service.SubscriptionService
}

func NewSubscriptionHandler(logger *zap.Logger, subs *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{logger: logger, subs: subs}
}

// List maneja GET /api/subscriptions.
func (h *SubscriptionHandler) List(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	subs, err := h.subs.List(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

type cancelSubscriptionRequest struct {
	Subject string `json:"subject"`
}

// Cancel maneja POST /api/cancel-subscription.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.subs.Cancel(c.Request.Context(), userID, req.Subject); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
