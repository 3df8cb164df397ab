package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret      string        `env:"JWT_SECRET,required"`
	JWTAccessTTL   time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL  time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	JWTRememberTTL time.Duration `env:"JWT_REMEMBER_TTL" envDefault:"720h"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	TelegramBotToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramBotName    string `env:"TELEGRAM_BOT_NAME"`
	TelegramWebhookURL string `env:"TELEGRAM_WEBHOOK_URL"`
	TelegramPolling    bool   `env:"TELEGRAM_POLLING" envDefault:"false"`

	FrontendURL string `env:"FRONTEND_URL"`
	AuthLogoURL string `env:"AUTH_LOGO_URL"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
