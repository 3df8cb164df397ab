package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duckly-edu/internal/service"
)

// AuthHandler expone registro, login y recuperacion de contrasena.
type AuthHandler struct {
	logger *zap.Logger
	users  *service.UserService
	jwt    *service.JWTService
}

func NewAuthHandler(logger *zap.Logger, users *service.UserService, jwt *service.JWTService) *AuthHandler {
	return &AuthHandler{logger: logger, users: users, jwt: jwt}
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

// SendCode maneja POST /api/send-code.
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.users.RequestRegistrationCode(c.Request.Context(), req.Email); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type registerRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	RememberMe  bool   `json:"rememberMe"`
}

// Register maneja POST /api/verify-and-register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Code:        req.Code,
		Password:    req.Password,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	pair, err := h.jwt.GeneratePair(user.ID, req.RememberMe)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "tokens": pair})
}

type loginRequest struct {
	Login      string `json:"login"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Login maneja POST /api/login. El identificador puede venir en login o email.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	identifier := strings.TrimSpace(req.Login)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	user, err := h.users.Login(c.Request.Context(), identifier, req.Password)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	pair, err := h.jwt.GeneratePair(user.ID, req.RememberMe)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh maneja POST /api/auth/refresh rotando el par de tokens.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	pair, err := h.jwt.RefreshPair(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

// Logout maneja POST /api/auth/logout revocando el refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.jwt.RevokeRefresh(req.RefreshToken); err != nil {
		h.logger.Warn("revoke refresh failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RequestPasswordReset maneja POST /api/request-password-reset. La respuesta
// es la misma exista o no la cuenta.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.users.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type verifyResetRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyResetCode maneja POST /api/verify-reset-code.
func (h *AuthHandler) VerifyResetCode(c *gin.Context) {
	var req verifyResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.users.VerifyPasswordResetCode(c.Request.Context(), req.Email, req.Code); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword maneja POST /api/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.users.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
