package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"duckly-edu/internal/domain"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email != nil && *user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username != nil && *user.Username == username {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) List(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.users))
	for _, user := range m.users {
		out = append(out, user)
	}
	return out, nil
}

func (m *mockUserRepo) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID != excludeID && user.Email != nil && *user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) UsernameTaken(_ context.Context, username, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID != excludeID && user.Username != nil && *user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) UpdateAvatar(_ context.Context, id, avatarURL string, nowMs, nextLimitMs int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.AvatarChangeLimit > nowMs {
		return false, nil
	}
	user.AvatarURL = &avatarURL
	user.AvatarChangeLimit = nextLimitMs
	m.users[id] = user
	return true, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id string, displayName, about *string, setAbout bool, nowMs, nextLimitMs int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.DisplayNameChangeLimit > nowMs {
		return false, nil
	}
	user.DisplayName = displayName
	if setAbout {
		user.About = about
	}
	user.DisplayNameChangeLimit = nextLimitMs
	m.users[id] = user
	return true, nil
}

func (m *mockUserRepo) UpdateAbout(_ context.Context, id string, about *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.About = about
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) UpdateEmail(_ context.Context, id, email string, nowMs, nextLimitMs int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.EmailChangeLimit > nowMs {
		return false, nil
	}
	user.Email = &email
	user.EmailVerificationCode = nil
	user.EmailVerificationExpiry = nil
	user.EmailChangeLimit = nextLimitMs
	m.users[id] = user
	return true, nil
}

func (m *mockUserRepo) ResetPasswordByEmail(_ context.Context, email, passwordHash string, nowMs, nextLimitMs int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, user := range m.users {
		if user.Email == nil || *user.Email != email {
			continue
		}
		if user.PasswordChangeLimit > nowMs {
			return false, nil
		}
		user.PasswordHash = passwordHash
		user.PasswordChangeLimit = nextLimitMs
		m.users[id] = user
		return true, nil
	}
	return false, nil
}

func (m *mockUserRepo) SetEmailVerification(_ context.Context, id, code string, expiresAtMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerificationCode = &code
	user.EmailVerificationExpiry = &expiresAtMs
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) SetPasswordHash(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) SetDisplayName(_ context.Context, id string, displayName *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.DisplayName = displayName
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) SetUsername(_ context.Context, id string, username *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Username = username
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) SetEmail(_ context.Context, id string, email *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Email = email
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) SetEntitlement(_ context.Context, id string, subject domain.Subject, plan *string, expiry *int64, status *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ent := user.EntitlementFor(subject)
	if ent == nil {
		return errors.New("unknown subject")
	}
	ent.Plan = plan
	ent.Expiry = expiry
	ent.Status = status
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) LinkTelegram(_ context.Context, id string, tgUserID int64, tgUsername *string) error {
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

func (m *mockUserRepo) UnlinkTelegram(_ context.Context, id string) error {
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

type mockCodeRepo struct {
	mu        sync.Mutex
	nextID    int64
	verify    []domain.VerifyCode
	reset     []domain.ResetCode
	deleteErr error
	markErr   error
}

func newMockCodeRepo() *mockCodeRepo {
	return &mockCodeRepo{}
}

func (m *mockCodeRepo) InsertVerifyCode(_ context.Context, c domain.VerifyCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.verify = append(m.verify, c)
	return nil
}

func (m *mockCodeRepo) LatestVerifyCode(_ context.Context, contact, purpose string) (domain.VerifyCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.verify) - 1; i >= 0; i-- {
		if m.verify[i].Contact == contact && m.verify[i].Purpose == purpose {
			return m.verify[i], nil
		}
	}
	return domain.VerifyCode{}, pgx.ErrNoRows
}

func (m *mockCodeRepo) IncrementVerifyAttempts(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.verify {
		if m.verify[i].ID == id {
			m.verify[i].Attempts++
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *mockCodeRepo) DeleteVerifyCodes(_ context.Context, contact, purpose string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.verify[:0]
	for _, c := range m.verify {
		if c.Contact != contact || c.Purpose != purpose {
			kept = append(kept, c)
		}
	}
	m.verify = kept
	return nil
}

func (m *mockCodeRepo) InsertResetCode(_ context.Context, c domain.ResetCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.reset = append(m.reset, c)
	return nil
}

func (m *mockCodeRepo) LatestResetCode(_ context.Context, email, code string) (domain.ResetCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.reset) - 1; i >= 0; i-- {
		c := m.reset[i]
		if c.Email == email && c.Code == code && !c.Used {
			return c, nil
		}
	}
	return domain.ResetCode{}, pgx.ErrNoRows
}

func (m *mockCodeRepo) MarkResetCodeUsed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	for i := range m.reset {
		if m.reset[i].ID == id {
			m.reset[i].Used = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

type mockSender struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockSender) record(kind, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind+":"+to)
}

func (m *mockSender) SendRegistrationCode(_ context.Context, to string, _ string, _ time.Time) error {
	m.record("register", to)
	return nil
}

func (m *mockSender) SendEmailChangeCode(_ context.Context, to string, _ string, _ time.Time) error {
	m.record("email_change", to)
	return nil
}

func (m *mockSender) SendPasswordResetCode(_ context.Context, to string, _ string, _ time.Time) error {
	m.record("reset", to)
	return nil
}

func newTestUserService() (*UserService, *mockUserRepo, *mockCodeRepo) {
	users := newMockUserRepo()
	codes := newMockCodeRepo()
	codeSvc := NewCodeService(zap.NewNop(), codes, nil)
	svc := NewUserService(zap.NewNop(), users, codeSvc, &mockSender{})
	return svc, users, codes
}

func seedUser(t *testing.T, users *mockUserRepo, id, emailAddr, username, password string) domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	user := domain.User{
		ID:           id,
		Email:        &emailAddr,
		Username:     &username,
		DisplayName:  &username,
		PasswordHash: string(hash),
		Plan:         domain.PlanFree,
		CreatedAt:    time.Now().UTC(),
	}
	users.users[id] = user
	return user
}

func TestRegisterFlow(t *testing.T) {
	svc, users, codes := newTestUserService()
	ctx := context.Background()

	if err := svc.RequestRegistrationCode(ctx, "New@Example.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	row, err := codes.LatestVerifyCode(ctx, "new@example.com", domain.PurposeRegister)
	if err != nil {
		t.Fatalf("expected stored code: %v", err)
	}
	if len(row.Code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", row.Code)
	}

	_, err = svc.Register(ctx, RegisterInput{
		Email:    "new@example.com",
		Code:     "000000",
		Password: "secret12",
		Username: "newbie",
	})
	if !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	row, _ = codes.LatestVerifyCode(ctx, "new@example.com", domain.PurposeRegister)
	if row.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", row.Attempts)
	}

	user, err := svc.Register(ctx, RegisterInput{
		Email:    "NEW@example.com",
		Code:     row.Code,
		Password: "secret12",
		Username: "newbie",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Plan != domain.PlanFree {
		t.Fatalf("expected plan free, got %q", user.Plan)
	}
	if user.DisplayName == nil || *user.DisplayName != "newbie" {
		t.Fatalf("expected displayName fallback to username, got %v", user.DisplayName)
	}
	if _, err := users.GetByEmail(ctx, "new@example.com"); err != nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if _, err := codes.LatestVerifyCode(ctx, "new@example.com", domain.PurposeRegister); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected codes consumed, got %v", err)
	}
}

func TestRequestRegistrationCodeRejectsExisting(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "taken@example.com", "taken", "secret12")

	err := svc.RequestRegistrationCode(context.Background(), "taken@example.com")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := svc.RequestRegistrationCode(context.Background(), "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestLoginByEmailAndUsername(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	ctx := context.Background()

	if _, err := svc.Login(ctx, "ada@example.com", "secret12"); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
	if _, err := svc.Login(ctx, "ada", "secret12"); err != nil {
		t.Fatalf("login by username failed: %v", err)
	}
	if _, err := svc.Login(ctx, "ada", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "ghost@example.com", "secret12"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestUpdateAvatarCooldown(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	ctx := context.Background()

	user, err := svc.UpdateAvatar(ctx, "u1", "https://cdn/a.png")
	if err != nil {
		t.Fatalf("first avatar change failed: %v", err)
	}
	if user.AvatarURL == nil || *user.AvatarURL != "https://cdn/a.png" {
		t.Fatalf("avatar not written: %v", user.AvatarURL)
	}

	_, err = svc.UpdateAvatar(ctx, "u1", "https://cdn/b.png")
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rlErr.Unit != "seconds" {
		t.Fatalf("expected seconds unit, got %q", rlErr.Unit)
	}
	if rlErr.Remaining < 1 || rlErr.Remaining > 30 {
		t.Fatalf("unexpected remaining seconds: %d", rlErr.Remaining)
	}
}

func TestUpdateProfileCooldownAndAbout(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	ctx := context.Background()

	name := "Ada L."
	about := "math person"
	user, err := svc.UpdateProfile(ctx, "u1", UpdateProfileInput{DisplayName: &name, About: &about})
	if err != nil {
		t.Fatalf("profile update failed: %v", err)
	}
	if user.DisplayName == nil || *user.DisplayName != name {
		t.Fatalf("displayName not written")
	}
	if user.About == nil || *user.About != about {
		t.Fatalf("about not written")
	}

	other := "Ada II"
	_, err = svc.UpdateProfile(ctx, "u1", UpdateProfileInput{DisplayName: &other})
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rlErr.Unit != "hours" {
		t.Fatalf("expected hours unit, got %q", rlErr.Unit)
	}
	if rlErr.Remaining < 1 || rlErr.Remaining > 24 {
		t.Fatalf("unexpected remaining hours: %d", rlErr.Remaining)
	}

	// About solo no pasa por el cooldown.
	about2 := "still here"
	if _, err := svc.UpdateProfile(ctx, "u1", UpdateProfileInput{About: &about2}); err != nil {
		t.Fatalf("about-only update should bypass cooldown: %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, "u1", UpdateProfileInput{}); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}
}

func TestChangeEmailFlow(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "old@example.com", "ada", "secret12")
	seedUser(t, users, "u2", "busy@example.com", "busy", "secret12")
	ctx := context.Background()

	if _, err := svc.ChangeEmail(ctx, "u1", "new@example.com", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound without pending code, got %v", err)
	}

	if err := svc.RequestEmailChangeCode(ctx, "u1", "busy@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if err := svc.RequestEmailChangeCode(ctx, "u1", "new@example.com"); err != nil {
		t.Fatalf("request change code failed: %v", err)
	}
	stored, _ := users.GetByID(ctx, "u1")
	if stored.EmailVerificationCode == nil {
		t.Fatalf("expected pending code on user row")
	}
	code := *stored.EmailVerificationCode

	if _, err := svc.ChangeEmail(ctx, "u1", "new@example.com", "999999"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	user, err := svc.ChangeEmail(ctx, "u1", "new@example.com", code)
	if err != nil {
		t.Fatalf("change email failed: %v", err)
	}
	if user.Email == nil || *user.Email != "new@example.com" {
		t.Fatalf("email not written: %v", user.Email)
	}
	if user.EmailVerificationCode != nil {
		t.Fatalf("expected pending code cleared")
	}
	if user.EmailChangeLimit == 0 {
		t.Fatalf("expected email cooldown armed")
	}
}

func TestChangeEmailExpiredCode(t *testing.T) {
	svc, users, _ := newTestUserService()
	user := seedUser(t, users, "u1", "old@example.com", "ada", "secret12")
	code := "123456"
	expired := time.Now().UTC().Add(-time.Minute).UnixMilli()
	user.EmailVerificationCode = &code
	user.EmailVerificationExpiry = &expired
	users.users["u1"] = user

	if _, err := svc.ChangeEmail(context.Background(), "u1", "new@example.com", code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, "u1", "wrong", "another12"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, "u1", "secret12", ""); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields for empty password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, "u1", "secret12", "another12"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, err := svc.Login(ctx, "ada", "another12"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, users, codes := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	ctx := context.Background()

	// Cuenta inexistente: misma respuesta, ningun codigo emitido.
	if err := svc.RequestPasswordReset(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("reset request for unknown email should succeed: %v", err)
	}
	if len(codes.reset) != 0 {
		t.Fatalf("expected no code for unknown email")
	}

	if err := svc.RequestPasswordReset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	if len(codes.reset) != 1 {
		t.Fatalf("expected one reset code, got %d", len(codes.reset))
	}
	code := codes.reset[0].Code

	if err := svc.VerifyPasswordResetCode(ctx, "ada@example.com", "000000"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for wrong code, got %v", err)
	}
	if err := svc.VerifyPasswordResetCode(ctx, "ada@example.com", code); err != nil {
		t.Fatalf("verify reset code failed: %v", err)
	}

	if err := svc.ResetPassword(ctx, "ada@example.com", code, "x"); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength, got %v", err)
	}
	if err := svc.ResetPassword(ctx, "ada@example.com", code, "brandnew1"); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}
	if !codes.reset[0].Used {
		t.Fatalf("expected winning code marked used")
	}
	if _, err := svc.Login(ctx, "ada", "brandnew1"); err != nil {
		t.Fatalf("login with reset password failed: %v", err)
	}

	// El codigo usado nunca vuelve a validar.
	if err := svc.VerifyPasswordResetCode(ctx, "ada@example.com", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected used code rejected, got %v", err)
	}
}

func TestResetPasswordCooldown(t *testing.T) {
	svc, users, codes := newTestUserService()
	user := seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	user.PasswordChangeLimit = time.Now().UTC().Add(6 * time.Hour).UnixMilli()
	users.users["u1"] = user
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	code := codes.reset[0].Code

	err := svc.ResetPassword(ctx, "ada@example.com", code, "brandnew1")
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rlErr.Unit != "hours" {
		t.Fatalf("expected hours unit, got %q", rlErr.Unit)
	}
	if codes.reset[0].Used {
		t.Fatalf("losing attempt must not consume the code")
	}
}

func TestAdminUpdateUser(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	seedUser(t, users, "u2", "bob@example.com", "bob", "secret12")
	ctx := context.Background()

	email := "bob@example.com"
	if _, err := svc.AdminUpdateUser(ctx, "u1", AdminUpdateInput{Email: &email}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	username := "bob"
	if _, err := svc.AdminUpdateUser(ctx, "u1", AdminUpdateInput{Username: &username}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := svc.AdminUpdateUser(ctx, "u1", AdminUpdateInput{}); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}

	newEmail := "Ada2@Example.com"
	newName := "Ada the Second"
	user, err := svc.AdminUpdateUser(ctx, "u1", AdminUpdateInput{Email: &newEmail, DisplayName: &newName})
	if err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
	if user.Email == nil || *user.Email != "ada2@example.com" {
		t.Fatalf("expected normalized email, got %v", user.Email)
	}
	if user.DisplayName == nil || *user.DisplayName != newName {
		t.Fatalf("displayName not written")
	}

	if _, err := svc.AdminUpdateUser(ctx, "missing", AdminUpdateInput{DisplayName: &newName}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminSetPassword(t *testing.T) {
	svc, users, _ := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	ctx := context.Background()

	if err := svc.AdminSetPassword(ctx, "u1", "short"); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength, got %v", err)
	}
	if err := svc.AdminSetPassword(ctx, "u1", "forced123"); err != nil {
		t.Fatalf("admin set password failed: %v", err)
	}
	if _, err := svc.Login(ctx, "ada", "forced123"); err != nil {
		t.Fatalf("login with forced password failed: %v", err)
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"a@b.c":         true,
		"user@mail.com": true,
		"no-at.com":     false,
		"@mail.com":     false,
		"user@":         false,
		"user@nodot":    false,
	}
	for in, want := range cases {
		if got := validEmail(in); got != want {
			t.Fatalf("validEmail(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestUserService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "bad", Password: "secret12", Username: "x"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.c", Username: "x"}); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields for missing password, got %v", err)
	}
}

func TestRegisterWithoutUsername(t *testing.T) {
	svc, users, codes := newTestUserService()
	ctx := context.Background()

	if err := svc.RequestRegistrationCode(ctx, "solo@example.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	row, err := codes.LatestVerifyCode(ctx, "solo@example.com", domain.PurposeRegister)
	if err != nil {
		t.Fatalf("expected stored code: %v", err)
	}

	user, err := svc.Register(ctx, RegisterInput{
		Email:    "solo@example.com",
		Code:     row.Code,
		Password: "secret12",
	})
	if err != nil {
		t.Fatalf("register without username failed: %v", err)
	}
	if user.Username != nil {
		t.Fatalf("expected nil username, got %q", *user.Username)
	}
	if user.DisplayName != nil {
		t.Fatalf("expected nil displayName without username, got %q", *user.DisplayName)
	}
	if _, err := svc.Login(ctx, "solo@example.com", "secret12"); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
	if _, err := users.GetByUsername(ctx, ""); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("empty username must not resolve a user, got %v", err)
	}
}

func TestRegisterConsumeFailureSurfaces(t *testing.T) {
	svc, _, codes := newTestUserService()
	ctx := context.Background()

	if err := svc.RequestRegistrationCode(ctx, "new@example.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	row, err := codes.LatestVerifyCode(ctx, "new@example.com", domain.PurposeRegister)
	if err != nil {
		t.Fatalf("expected stored code: %v", err)
	}

	codes.deleteErr = errors.New("storage down")
	if _, err := svc.Register(ctx, RegisterInput{
		Email:    "new@example.com",
		Code:     row.Code,
		Password: "secret12",
		Username: "newbie",
	}); err == nil {
		t.Fatalf("expected error when codes cannot be consumed")
	}
}

func TestResetPasswordConsumeFailureSurfaces(t *testing.T) {
	svc, users, codes := newTestUserService()
	seedUser(t, users, "u1", "ada@example.com", "ada", "secret12")
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	code := codes.reset[0].Code

	codes.markErr = errors.New("storage down")
	if err := svc.ResetPassword(ctx, "ada@example.com", code, "brandnew1"); err == nil {
		t.Fatalf("expected error when code cannot be marked used")
	}
	if codes.reset[0].Used {
		t.Fatalf("code must stay unused when the mark fails")
	}
}
