package telegram

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"duckly-edu/internal/repository"
)

var (
	ErrNotLinked     = errors.New("telegram not linked")
	ErrAlreadyLinked = errors.New("telegram already linked")
)

const (
	connectCodeTTL   = 10 * time.Minute
	connectCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	connectCodeLen   = 6

	startPrefix = "/start connect_"
)

const (
	msgLinked  = "Аккаунт успешно привязан! Теперь уведомления будут приходить сюда."
	msgBadCode = "Код недействителен или истёк. Сгенерируйте новый код в личном кабинете."
	msgStart   = "Привет! Чтобы привязать аккаунт, сгенерируйте код подключения в личном кабинете и перейдите по ссылке."
)

const sendTimeout = 15 * time.Second

type linkEntry struct {
	userID    string
	expiresAt time.Time
}

// LinkService vincula cuentas de la plataforma con usuarios de Telegram via
// codigos de conexion de un solo uso. Los codigos viven solo en memoria:
// reiniciar el proceso los invalida y el usuario genera otro.
type LinkService struct {
	logger *zap.Logger
	api    BotAPI
	users  repository.UserRepository

	mu    sync.Mutex
	codes map[string]linkEntry
}

func NewLinkService(logger *zap.Logger, api BotAPI, users repository.UserRepository) *LinkService {
	return &LinkService{
		logger: logger,
		api:    api,
		users:  users,
		codes:  make(map[string]linkEntry),
	}
}

func generateConnectCode() (string, error) {
	buf := make([]byte, connectCodeLen)
	max := big.NewInt(int64(len(connectCodeChars)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = connectCodeChars[n.Int64()]
	}
	return string(buf), nil
}

// IssueCode genera un codigo de conexion para el usuario. Emitir otro codigo
// no invalida los anteriores; todos vencen solos a los 10 minutos.
func (s *LinkService) IssueCode(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("user not found")
		}
		return "", err
	}
	if user.TelegramUserID != nil {
		return "", ErrAlreadyLinked
	}

	code, err := generateConnectCode()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.codes[code] = linkEntry{
		userID:    userID,
		expiresAt: time.Now().UTC().Add(connectCodeTTL),
	}
	s.mu.Unlock()
	return code, nil
}

// consume valida y borra el codigo en una sola seccion critica. Un codigo
// vencido falla pero queda en el mapa; el mapa es chico y el proceso corto.
func (s *LinkService) consume(code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[code]
	if !ok {
		return "", false
	}
	if time.Now().UTC().After(entry.expiresAt) {
		return "", false
	}
	delete(s.codes, code)
	return entry.userID, true
}

// HandleUpdate procesa una actualizacion entrante del bot. Toda respuesta al
// chat es fire-and-forget: un fallo de envio solo deja log.
func (s *LinkService) HandleUpdate(ctx context.Context, update Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, startPrefix):
		code := strings.TrimSpace(strings.TrimPrefix(text, startPrefix))
		userID, ok := s.consume(code)
		if !ok {
			s.reply(msg.Chat.ID, msgBadCode)
			return
		}
		var username *string
		if msg.From.Username != "" {
			u := msg.From.Username
			username = &u
		}
		if err := s.users.LinkTelegram(ctx, userID, msg.From.ID, username); err != nil {
			s.logger.Error("link telegram failed",
				zap.String("user_id", userID),
				zap.Int64("tg_user_id", msg.From.ID),
				zap.Error(err),
			)
			s.reply(msg.Chat.ID, msgBadCode)
			return
		}
		s.logger.Info("telegram linked",
			zap.String("user_id", userID),
			zap.Int64("tg_user_id", msg.From.ID),
		)
		s.reply(msg.Chat.ID, msgLinked)

	case strings.HasPrefix(text, "/start"):
		s.reply(msg.Chat.ID, msgStart)
	}
}

// Unlink desvincula la cuenta de Telegram del usuario.
func (s *LinkService) Unlink(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TelegramUserID == nil {
		return ErrNotLinked
	}
	return s.users.UnlinkTelegram(ctx, userID)
}

// Notify envia un mensaje al chat vinculado del usuario en segundo plano.
// Usuarios sin vinculo se ignoran en silencio.
func (s *LinkService) Notify(ctx context.Context, userID, text string) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil || user.TelegramUserID == nil {
		return
	}
	s.reply(*user.TelegramUserID, text)
}

func (s *LinkService) reply(chatID int64, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.api.SendMessage(ctx, chatID, text); err != nil {
			s.logger.Warn("telegram send failed",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
		}
	}()
}
