package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duckly-edu/internal/service"
)

// AdminHandler expone el panel de administracion.
type AdminHandler struct {
	logger *zap.Logger
	users  *service.UserService
	subs   *service.SubscriptionService
}

func NewAdminHandler(logger *zap.Logger, users *service.UserService, subs *service.SubscriptionService) *AdminHandler {
	return &AdminHandler{logger: logger, users: users, subs: subs}
}

// ListUsers maneja GET /api/admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type adminSubscriptionRequest struct {
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
	Plan    string `json:"plan"`
	// ExpiryDays acepta un numero de dias o el string "infinity".
	ExpiryDays json.RawMessage `json:"expiryDays"`
}

// parseExpiryDays interpreta numero o "infinity"; -1 significa sin vencimiento.
func parseExpiryDays(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "infinity") {
			return -1, true
		}
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	return 0, false
}

// Subscription maneja POST /api/admin/subscription: otorga cuando viene plan
// con vencimiento, revoca en caso contrario.
func (h *AdminHandler) Subscription(c *gin.Context) {
	var req adminSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	days, hasDays := parseExpiryDays(req.ExpiryDays)
	if req.Plan != "" && hasDays {
		sub, err := h.subs.Grant(c.Request.Context(), req.UserID, req.Subject, req.Plan, days)
		if err != nil {
			writeServiceError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"subscription": sub})
		return
	}

	if err := h.subs.AdminRevoke(c.Request.Context(), req.UserID, req.Subject); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type adminUpdateUserRequest struct {
	DisplayName *string `json:"displayName"`
	Username    *string `json:"username"`
	Email       *string `json:"email"`
}

// UpdateUser maneja PUT /api/admin/user/:userId.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req adminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.users.AdminUpdateUser(c.Request.Context(), c.Param("userId"), service.AdminUpdateInput{
		DisplayName: req.DisplayName,
		Username:    req.Username,
		Email:       req.Email,
	})
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type adminSetPasswordRequest struct {
	Password string `json:"password"`
}

// SetPassword maneja PUT /api/admin/user/:userId/password.
func (h *AdminHandler) SetPassword(c *gin.Context) {
	var req adminSetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.users.AdminSetPassword(c.Request.Context(), c.Param("userId"), req.Password); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
