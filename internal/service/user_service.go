package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"duckly-edu/internal/domain"
	"duckly-edu/internal/email"
	"duckly-edu/internal/repository"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrAlreadyRegistered  = errors.New("email already registered")
	ErrEmailTaken         = errors.New("email already in use")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrPasswordLength     = errors.New("password length out of range")
	ErrNoFields           = errors.New("no fields to update")
)

const sendTimeout = 15 * time.Second

// UserService cubre registro, login, perfil y credenciales.
// Los cooldowns por campo se verifican y escriben en un solo UPDATE
// condicional; el error 429 se arma releyendo la fila tras perder la carrera.
type UserService struct {
	logger *zap.Logger
	users  repository.UserRepository
	codes  *CodeService
	sender email.Sender
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, codes *CodeService, sender email.Sender) *UserService {
	return &UserService{
		logger: logger,
		users:  users,
		codes:  codes,
		sender: sender,
	}
}

// RegisterInput son los datos del alta de cuenta, codigo incluido.
type RegisterInput struct {
	Email       string
	Code        string
	Password    string
	Username    string
	DisplayName string
	AvatarURL   string
}

// UpdateProfileInput lleva los campos editables del perfil. Los punteros nil
// significan "no tocar"; About distingue vacio de ausente via SetAbout.
type UpdateProfileInput struct {
	DisplayName *string
	About       *string
}

// AdminUpdateInput son las ediciones directas del panel de administracion.
type AdminUpdateInput struct {
	DisplayName *string
	Username    *string
	Email       *string
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}

func validPassword(password string) bool {
	n := len(password)
	return n >= 6 && n <= 32
}

// sendAsync envia correo en segundo plano: el flujo que lo dispara nunca
// espera ni falla por un problema de entrega, solo queda el log.
func (s *UserService) sendAsync(kind, to string, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("email send failed",
				zap.String("kind", kind),
				zap.String("to", to),
				zap.Error(err),
			)
		}
	}()
}

// RequestRegistrationCode emite un codigo de registro y lo envia por correo.
func (s *UserService) RequestRegistrationCode(ctx context.Context, rawEmail string) error {
	addr := normalizeEmail(rawEmail)
	if !validEmail(addr) {
		return ErrInvalidEmail
	}
	taken, err := s.users.EmailTaken(ctx, addr, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrAlreadyRegistered
	}
	row, err := s.codes.IssueRegisterCode(ctx, addr)
	if err != nil {
		return err
	}
	expires := time.UnixMilli(row.ExpiresAt).UTC()
	s.sendAsync("registration", addr, func(ctx context.Context) error {
		return s.sender.SendRegistrationCode(ctx, addr, row.Code, expires)
	})
	return nil
}

// Register crea la cuenta una vez validado el codigo. Todos los codigos del
// contacto se borran al final para impedir replay.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	addr := normalizeEmail(in.Email)
	if !validEmail(addr) {
		return domain.User{}, ErrInvalidEmail
	}
	if in.Password == "" {
		return domain.User{}, ErrNoFields
	}

	if err := s.codes.VerifyRegisterCode(ctx, addr, in.Code); err != nil {
		return domain.User{}, err
	}

	taken, err := s.users.EmailTaken(ctx, addr, "")
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, ErrAlreadyRegistered
	}
	username := strings.TrimSpace(in.Username)
	if username != "" {
		taken, err = s.users.UsernameTaken(ctx, username, "")
		if err != nil {
			return domain.User{}, err
		}
		if taken {
			return domain.User{}, ErrUsernameTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        &addr,
		PasswordHash: string(hash),
		Plan:         domain.PlanFree,
		CreatedAt:    time.Now().UTC(),
	}
	if username != "" {
		user.Username = &username
	}
	// El nombre visible cae al username; una cuenta sin ambos queda sin nombre.
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if displayName != "" {
		user.DisplayName = &displayName
	}
	if avatar := strings.TrimSpace(in.AvatarURL); avatar != "" {
		user.AvatarURL = &avatar
	}

	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	if err := s.codes.ConsumeRegisterCodes(ctx, addr); err != nil {
		return domain.User{}, fmt.Errorf("consume register codes: %w", err)
	}
	return user, nil
}

// Login acepta email o username como identificador: la presencia de '@'
// decide la columna de busqueda.
func (s *UserService) Login(ctx context.Context, login, password string) (domain.User, error) {
	login = strings.TrimSpace(login)
	var (
		user domain.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.users.GetByEmail(ctx, normalizeEmail(login))
	} else {
		user, err = s.users.GetByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// UpdateProfile edita displayName y/o about. Cambiar displayName arma el
// cooldown de 24h; about solo nunca se limita.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (domain.User, error) {
	if in.DisplayName == nil && in.About == nil {
		return domain.User{}, ErrNoFields
	}

	if in.DisplayName != nil {
		now := time.Now().UTC().UnixMilli()
		next := now + displayNameCooldown.Milliseconds()
		ok, err := s.users.UpdateDisplayName(ctx, id, in.DisplayName, in.About, in.About != nil, now, next)
		if err != nil {
			return domain.User{}, err
		}
		if !ok {
			user, err := s.GetUser(ctx, id)
			if err != nil {
				return domain.User{}, err
			}
			return domain.User{}, newRateLimitError(user.DisplayNameChangeLimit, now, time.Hour)
		}
	} else {
		if err := s.users.UpdateAbout(ctx, id, in.About); err != nil {
			return domain.User{}, err
		}
	}
	return s.GetUser(ctx, id)
}

// UpdateAvatar cambia la foto con cooldown de 30 segundos.
func (s *UserService) UpdateAvatar(ctx context.Context, id, avatarURL string) (domain.User, error) {
	now := time.Now().UTC().UnixMilli()
	next := now + avatarCooldown.Milliseconds()
	ok, err := s.users.UpdateAvatar(ctx, id, avatarURL, now, next)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		user, err := s.GetUser(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		return domain.User{}, newRateLimitError(user.AvatarChangeLimit, now, time.Second)
	}
	return s.GetUser(ctx, id)
}

// RequestEmailChangeCode guarda un codigo contra la fila del usuario y lo
// envia a la direccion nueva. Emitir otro codigo pisa el anterior.
func (s *UserService) RequestEmailChangeCode(ctx context.Context, id, rawEmail string) error {
	addr := normalizeEmail(rawEmail)
	if !validEmail(addr) {
		return ErrInvalidEmail
	}
	taken, err := s.users.EmailTaken(ctx, addr, id)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	expires := time.Now().UTC().Add(codeTTL)
	if err := s.users.SetEmailVerification(ctx, id, code, expires.UnixMilli()); err != nil {
		return err
	}
	s.sendAsync("email_change", addr, func(ctx context.Context) error {
		return s.sender.SendEmailChangeCode(ctx, addr, code, expires)
	})
	return nil
}

// ChangeEmail confirma la direccion nueva con el codigo pendiente y escribe
// el cambio con cooldown de 24h; el UPDATE tambien limpia el codigo.
func (s *UserService) ChangeEmail(ctx context.Context, id, rawEmail, code string) (domain.User, error) {
	addr := normalizeEmail(rawEmail)
	if !validEmail(addr) {
		return domain.User{}, ErrInvalidEmail
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if user.EmailVerificationCode == nil || user.EmailVerificationExpiry == nil {
		return domain.User{}, ErrCodeNotFound
	}
	now := time.Now().UTC().UnixMilli()
	if *user.EmailVerificationExpiry < now {
		return domain.User{}, ErrCodeExpired
	}
	if *user.EmailVerificationCode != code {
		return domain.User{}, ErrCodeMismatch
	}
	taken, err := s.users.EmailTaken(ctx, addr, id)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}

	next := now + emailCooldown.Milliseconds()
	ok, err := s.users.UpdateEmail(ctx, id, addr, now, next)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		fresh, err := s.GetUser(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		return domain.User{}, newRateLimitError(fresh.EmailChangeLimit, now, time.Hour)
	}
	return s.GetUser(ctx, id)
}

// ChangePassword valida la contrasena vigente y fija la nueva. Sin cooldown:
// el usuario autenticado puede rotar su clave cuando quiera.
func (s *UserService) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return ErrNoFields
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.SetPasswordHash(ctx, id, string(hash))
}

// RequestPasswordReset emite y envia un codigo si la cuenta existe. La
// respuesta es identica exista o no, para no filtrar direcciones.
func (s *UserService) RequestPasswordReset(ctx context.Context, rawEmail string) error {
	addr := normalizeEmail(rawEmail)
	if !validEmail(addr) {
		return ErrInvalidEmail
	}
	if _, err := s.users.GetByEmail(ctx, addr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	row, err := s.codes.IssueResetCode(ctx, addr)
	if err != nil {
		return err
	}
	expires := time.UnixMilli(row.ExpiresAt).UTC()
	s.sendAsync("password_reset", addr, func(ctx context.Context) error {
		return s.sender.SendPasswordResetCode(ctx, addr, row.Code, expires)
	})
	return nil
}

// VerifyPasswordResetCode chequea el codigo sin consumirlo, para que el
// frontend valide antes de pedir la contrasena nueva.
func (s *UserService) VerifyPasswordResetCode(ctx context.Context, rawEmail, code string) error {
	_, err := s.codes.VerifyResetCode(ctx, normalizeEmail(rawEmail), code)
	return err
}

// ResetPassword fija la contrasena nueva tras validar el codigo. La fila
// ganadora se marca usada recien despues de escribir el hash.
func (s *UserService) ResetPassword(ctx context.Context, rawEmail, code, newPassword string) error {
	addr := normalizeEmail(rawEmail)
	if !validPassword(newPassword) {
		return ErrPasswordLength
	}
	row, err := s.codes.VerifyResetCode(ctx, addr, code)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixMilli()
	next := now + passwordResetCooldown.Milliseconds()
	ok, err := s.users.ResetPasswordByEmail(ctx, addr, string(hash), now, next)
	if err != nil {
		return err
	}
	if !ok {
		user, err := s.users.GetByEmail(ctx, addr)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		return newRateLimitError(user.PasswordChangeLimit, now, time.Hour)
	}
	if err := s.codes.ConsumeResetCode(ctx, row.ID); err != nil {
		return fmt.Errorf("mark reset code used: %w", err)
	}
	return nil
}

// AdminUpdateUser edita campos directos sin cooldowns ni codigos; solo se
// conservan los chequeos de unicidad.
func (s *UserService) AdminUpdateUser(ctx context.Context, id string, in AdminUpdateInput) (domain.User, error) {
	if in.DisplayName == nil && in.Username == nil && in.Email == nil {
		return domain.User{}, ErrNoFields
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return domain.User{}, err
	}

	if in.Email != nil {
		addr := normalizeEmail(*in.Email)
		if !validEmail(addr) {
			return domain.User{}, ErrInvalidEmail
		}
		taken, err := s.users.EmailTaken(ctx, addr, id)
		if err != nil {
			return domain.User{}, err
		}
		if taken {
			return domain.User{}, ErrEmailTaken
		}
		if err := s.users.SetEmail(ctx, id, &addr); err != nil {
			return domain.User{}, err
		}
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		taken, err := s.users.UsernameTaken(ctx, username, id)
		if err != nil {
			return domain.User{}, err
		}
		if taken {
			return domain.User{}, ErrUsernameTaken
		}
		if err := s.users.SetUsername(ctx, id, &username); err != nil {
			return domain.User{}, err
		}
	}
	if in.DisplayName != nil {
		if err := s.users.SetDisplayName(ctx, id, in.DisplayName); err != nil {
			return domain.User{}, err
		}
	}
	return s.GetUser(ctx, id)
}

// AdminSetPassword fija una contrasena sin pedir la anterior.
func (s *UserService) AdminSetPassword(ctx context.Context, id, password string) error {
	if len(password) < 6 {
		return ErrPasswordLength
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.SetPasswordHash(ctx, id, string(hash))
}
