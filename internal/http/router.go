package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duckly-edu/internal/service"
)

// NewRouter configura el router de Gin con middlewares y todas las rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	userSvc *service.UserService,
	authH *AuthHandler,
	profileH *ProfileHandler,
	subsH *SubscriptionHandler,
	telegramH *TelegramHandler,
	resultH *ResultHandler,
	adminH *AdminHandler,
	frontendURL string,
	authLogoURL string,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery, CORS y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware(frontendURL), jsonContentTypeMiddleware())

	api := r.Group("/api")

	// Rutas publicas.
	api.POST("/send-code", authH.SendCode)
	api.POST("/verify-and-register", authH.Register)
	api.POST("/login", authH.Login)
	api.POST("/request-password-reset", authH.RequestPasswordReset)
	api.POST("/verify-reset-code", authH.VerifyResetCode)
	api.POST("/reset-password", authH.ResetPassword)
	api.POST("/auth/refresh", authH.Refresh)
	api.POST("/auth/logout", authH.Logout)
	api.POST("/telegram-webhook", telegramH.Webhook)
	api.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authLogoUrl": authLogoURL})
	})

	// Rutas autenticadas.
	authed := api.Group("", JWTAuthMiddleware(jwtSvc))
	authed.GET("/me", profileH.Me)
	authed.PUT("/profile", profileH.UpdateProfile)
	authed.PUT("/avatar", profileH.UpdateAvatar)
	authed.POST("/send-email-verification", profileH.SendEmailVerification)
	authed.PUT("/update-email", profileH.UpdateEmail)
	authed.PUT("/change-password", profileH.ChangePassword)
	authed.GET("/subscriptions", subsH.List)
	authed.POST("/cancel-subscription", subsH.Cancel)
	authed.GET("/telegram-status", telegramH.Status)
	authed.POST("/telegram-connect", telegramH.Connect)
	authed.POST("/disconnect-telegram", telegramH.Disconnect)
	authed.POST("/test/submit", resultH.Submit)
	authed.GET("/test/results", resultH.List)

	// Panel de administracion.
	admin := authed.Group("/admin", AdminMiddleware(userSvc))
	admin.GET("/users", adminH.ListUsers)
	admin.POST("/subscription", adminH.Subscription)
	admin.PUT("/user/:userId", adminH.UpdateUser)
	admin.PUT("/user/:userId/password", adminH.SetPassword)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware habilita CORS para el frontend configurado. Sin frontend
// configurado se permite cualquier origen.
func corsMiddleware(frontendURL string) gin.HandlerFunc {
	origin := frontendURL
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
