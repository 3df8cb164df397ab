package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"duckly-edu/internal/domain"
)

type mockBot struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func newMockBot() *mockBot {
	return &mockBot{done: make(chan struct{}, 16)}
}

func (m *mockBot) SendMessage(_ context.Context, _ int64, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, text)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *mockBot) GetUpdates(_ context.Context, _ int64, _ int) ([]Update, error) {
	return nil, nil
}

func (m *mockBot) SetWebhook(_ context.Context, _ string) error {
	return nil
}

func (m *mockBot) waitSent(t *testing.T) string {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatalf("no message sent")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type mockLinkUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMockLinkUserRepo() *mockLinkUserRepo {
	return &mockLinkUserRepo{users: make(map[string]domain.User)}
}

func (m *mockLinkUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *mockLinkUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockLinkUserRepo) GetByEmail(_ context.Context, _ string) (domain.User, error) {
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockLinkUserRepo) GetByUsername(_ context.Context, _ string) (domain.User, error) {
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockLinkUserRepo) List(_ context.Context) ([]domain.User, error) { return nil, nil }

func (m *mockLinkUserRepo) EmailTaken(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (m *mockLinkUserRepo) UsernameTaken(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (m *mockLinkUserRepo) UpdateAvatar(_ context.Context, _, _ string, _, _ int64) (bool, error) {
	return false, nil
}

func (m *mockLinkUserRepo) UpdateDisplayName(_ context.Context, _ string, _, _ *string, _ bool, _, _ int64) (bool, error) {
	return false, nil
}

func (m *mockLinkUserRepo) UpdateAbout(_ context.Context, _ string, _ *string) error { return nil }

func (m *mockLinkUserRepo) UpdateEmail(_ context.Context, _, _ string, _, _ int64) (bool, error) {
	return false, nil
}

func (m *mockLinkUserRepo) ResetPasswordByEmail(_ context.Context, _, _ string, _, _ int64) (bool, error) {
	return false, nil
}

func (m *mockLinkUserRepo) SetEmailVerification(_ context.Context, _, _ string, _ int64) error {
	return nil
}

func (m *mockLinkUserRepo) SetPasswordHash(_ context.Context, _, _ string) error { return nil }

func (m *mockLinkUserRepo) SetDisplayName(_ context.Context, _ string, _ *string) error { return nil }

func (m *mockLinkUserRepo) SetUsername(_ context.Context, _ string, _ *string) error { return nil }

func (m *mockLinkUserRepo) SetEmail(_ context.Context, _ string, _ *string) error { return nil }

func (m *mockLinkUserRepo) SetEntitlement(_ context.Context, _ string, _ domain.Subject, _ *string, _ *int64, _ *string) error {
	return nil
}

func (m *mockLinkUserRepo) LinkTelegram(_ context.Context, id string, tgUserID int64, tgUsername *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.TelegramUserID = &tgUserID
	user.TelegramUsername = tgUsername
	m.users[id] = user
	return nil
}

func (m *mockLinkUserRepo) UnlinkTelegram(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.TelegramUserID = nil
	user.TelegramUsername = nil
	m.users[id] = user
	return nil
}

func newTestLinkService() (*LinkService, *mockLinkUserRepo, *mockBot) {
	users := newMockLinkUserRepo()
	bot := newMockBot()
	return NewLinkService(zap.NewNop(), bot, users), users, bot
}

func seedLinkUser(users *mockLinkUserRepo, id string) {
	email := id + "@example.com"
	users.users[id] = domain.User{ID: id, Email: &email, Plan: domain.PlanFree}
}

func connectUpdate(code string, tgUserID int64) Update {
	return Update{
		UpdateID: 1,
		Message: &Message{
			Chat: Chat{ID: tgUserID},
			From: &From{ID: tgUserID, Username: "tester"},
			Text: "/start connect_" + code,
		},
	}
}

func TestIssueCodeFormat(t *testing.T) {
	svc, users, _ := newTestLinkService()
	seedLinkUser(users, "u1")

	code, err := svc.IssueCode(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue code failed: %v", err)
	}
	if len(code) != connectCodeLen {
		t.Fatalf("expected %d-char code, got %q", connectCodeLen, code)
	}
	for _, r := range code {
		if !strings.ContainsRune(connectCodeChars, r) {
			t.Fatalf("unexpected character %q in code %q", r, code)
		}
	}
}

func TestIssueCodeAlreadyLinked(t *testing.T) {
	svc, users, _ := newTestLinkService()
	seedLinkUser(users, "u1")
	tgID := int64(42)
	user := users.users["u1"]
	user.TelegramUserID = &tgID
	users.users["u1"] = user

	if _, err := svc.IssueCode(context.Background(), "u1"); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
}

func TestHandleUpdateLinksAccount(t *testing.T) {
	svc, users, bot := newTestLinkService()
	seedLinkUser(users, "u1")
	ctx := context.Background()

	code, err := svc.IssueCode(ctx, "u1")
	if err != nil {
		t.Fatalf("issue code failed: %v", err)
	}

	svc.HandleUpdate(ctx, connectUpdate(code, 777))
	if msg := bot.waitSent(t); msg != msgLinked {
		t.Fatalf("expected linked message, got %q", msg)
	}

	user, _ := users.GetByID(ctx, "u1")
	if user.TelegramUserID == nil || *user.TelegramUserID != 777 {
		t.Fatalf("telegram id not linked: %v", user.TelegramUserID)
	}
	if user.TelegramUsername == nil || *user.TelegramUsername != "tester" {
		t.Fatalf("telegram username not linked: %v", user.TelegramUsername)
	}

	// El codigo es de un solo uso.
	svc.HandleUpdate(ctx, connectUpdate(code, 888))
	if msg := bot.waitSent(t); msg != msgBadCode {
		t.Fatalf("expected bad code message on reuse, got %q", msg)
	}
}

func TestHandleUpdateExpiredCode(t *testing.T) {
	svc, users, bot := newTestLinkService()
	seedLinkUser(users, "u1")
	ctx := context.Background()

	code, err := svc.IssueCode(ctx, "u1")
	if err != nil {
		t.Fatalf("issue code failed: %v", err)
	}
	svc.mu.Lock()
	entry := svc.codes[code]
	entry.expiresAt = time.Now().UTC().Add(-time.Minute)
	svc.codes[code] = entry
	svc.mu.Unlock()

	svc.HandleUpdate(ctx, connectUpdate(code, 777))
	if msg := bot.waitSent(t); msg != msgBadCode {
		t.Fatalf("expected bad code message, got %q", msg)
	}

	// El codigo vencido queda en el mapa; vencer no es consumir.
	svc.mu.Lock()
	_, still := svc.codes[code]
	svc.mu.Unlock()
	if !still {
		t.Fatalf("expired code must not be deleted")
	}
}

func TestHandleUpdatePlainStart(t *testing.T) {
	svc, _, bot := newTestLinkService()
	svc.HandleUpdate(context.Background(), Update{
		UpdateID: 1,
		Message: &Message{
			Chat: Chat{ID: 5},
			From: &From{ID: 5},
			Text: "/start",
		},
	})
	if msg := bot.waitSent(t); msg != msgStart {
		t.Fatalf("expected start message, got %q", msg)
	}
}

func TestConsumeExactlyOnce(t *testing.T) {
	svc, users, _ := newTestLinkService()
	seedLinkUser(users, "u1")

	code, err := svc.IssueCode(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue code failed: %v", err)
	}

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if userID, ok := svc.consume(code); ok {
				wins <- userID
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for userID := range wins {
		count++
		if userID != "u1" {
			t.Fatalf("unexpected winner user: %q", userID)
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", count)
	}
}

func TestUnlink(t *testing.T) {
	svc, users, _ := newTestLinkService()
	seedLinkUser(users, "u1")
	ctx := context.Background()

	if err := svc.Unlink(ctx, "u1"); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}

	tgID := int64(42)
	user := users.users["u1"]
	user.TelegramUserID = &tgID
	users.users["u1"] = user

	if err := svc.Unlink(ctx, "u1"); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}
	fresh, _ := users.GetByID(ctx, "u1")
	if fresh.TelegramUserID != nil {
		t.Fatalf("expected telegram id cleared")
	}
}
