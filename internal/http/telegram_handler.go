package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duckly-edu/internal/service"
	"duckly-edu/internal/telegram"
)

// TelegramHandler expone la vinculacion de cuentas de Telegram y el webhook.
type TelegramHandler struct {
	logger  *zap.Logger
	users   *service.UserService
	linker  *telegram.LinkService
	botName string
}

func NewTelegramHandler(logger *zap.Logger, users *service.UserService, linker *telegram.LinkService, botName string) *TelegramHandler {
	return &TelegramHandler{
		logger:  logger,
		users:   users,
		linker:  linker,
		botName: botName,
	}
}

// Status maneja GET /api/telegram-status.
func (h *TelegramHandler) Status(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	resp := gin.H{"connected": user.TelegramUserID != nil}
	if user.TelegramUsername != nil {
		resp["username"] = *user.TelegramUsername
	}
	c.JSON(http.StatusOK, resp)
}

// Connect maneja POST /api/telegram-connect emitiendo un codigo de conexion
// y el deep link del bot.
func (h *TelegramHandler) Connect(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	code, err := h.linker.IssueCode(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	resp := gin.H{"code": code}
	if h.botName != "" {
		resp["link"] = fmt.Sprintf("https://t.me/%s?start=connect_%s", h.botName, code)
	}
	c.JSON(http.StatusOK, resp)
}

// Disconnect maneja POST /api/disconnect-telegram.
func (h *TelegramHandler) Disconnect(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if err := h.linker.Unlink(c.Request.Context(), userID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Webhook maneja POST /api/telegram-webhook. Siempre responde 200: Telegram
// reintenta ante cualquier otro estado y las actualizaciones no son criticas.
func (h *TelegramHandler) Webhook(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("malformed telegram update", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	h.linker.HandleUpdate(c.Request.Context(), update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
