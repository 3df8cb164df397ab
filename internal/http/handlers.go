package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duckly-edu/internal/service"
	"duckly-edu/internal/telegram"
)

// writeServiceError mapea errores de servicio a estados HTTP. Los sentinels
// conocidos producen 4xx; cualquier otra cosa es 500 con log.
func writeServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var rlErr *service.RateLimitError
	if errors.As(err, &rlErr) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":         "too frequent requests",
			"remainingTime": rlErr.Remaining,
			"unit":          rlErr.Unit,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, telegram.ErrAlreadyLinked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSendRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCodeNotFound),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeMismatch),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrPasswordLength),
		errors.Is(err, service.ErrNoFields),
		errors.Is(err, service.ErrUnknownSubject),
		errors.Is(err, service.ErrInvalidResult),
		errors.Is(err, telegram.ErrNotLinked):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
