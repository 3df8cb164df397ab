package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"duckly-edu/internal/config"
	"duckly-edu/internal/db"
	"duckly-edu/internal/email"
	apihttp "duckly-edu/internal/http"
	"duckly-edu/internal/repository"
	"duckly-edu/internal/service"
	"duckly-edu/internal/telegram"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	codeRepo := repository.NewPgCodeRepository(pool)
	resultRepo := repository.NewPgResultRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	codeLimiter := service.NewMemoryRateLimiter(10*time.Minute, 3)
	tokenStore := service.NewMemoryRefreshTokenStore()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			codeLimiter = service.NewRedisRateLimiter(redisClient, 10*time.Minute, 3)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		cfg.JWTAccessTTL,
		cfg.JWTRefreshTTL,
		cfg.JWTRememberTTL,
		tokenStore,
	)

	codeSvc := service.NewCodeService(logger, codeRepo, codeLimiter)
	userSvc := service.NewUserService(logger, userRepo, codeSvc, emailSender)
	subSvc := service.NewSubscriptionService(logger, userRepo)
	resultSvc := service.NewResultService(logger, resultRepo)

	botAPI := telegram.NewClient(cfg.TelegramBotToken)
	linker := telegram.NewLinkService(logger, botAPI, userRepo)
	if cfg.TelegramBotToken != "" && cfg.TelegramWebhookURL != "" {
		if err := botAPI.SetWebhook(ctx, cfg.TelegramWebhookURL); err != nil {
			logger.Warn("telegram webhook registration failed", zap.Error(err))
		}
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramPolling {
		poller := telegram.NewPoller(logger, botAPI, linker)
		go poller.Run(ctx)
	}

	authHandler := apihttp.NewAuthHandler(logger, userSvc, jwtSvc)
	profileHandler := apihttp.NewProfileHandler(logger, userSvc)
	subHandler := apihttp.NewSubscriptionHandler(logger, subSvc)
	telegramHandler := apihttp.NewTelegramHandler(logger, userSvc, linker, cfg.TelegramBotName)
	resultHandler := apihttp.NewResultHandler(logger, resultSvc)
	adminHandler := apihttp.NewAdminHandler(logger, userSvc, subSvc)

	router := apihttp.NewRouter(
		logger,
		jwtSvc,
		userSvc,
		authHandler,
		profileHandler,
		subHandler,
		telegramHandler,
		resultHandler,
		adminHandler,
		cfg.FrontendURL,
		cfg.AuthLogoURL,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
