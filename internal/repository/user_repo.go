package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duckly-edu/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
//
// Los metodos Update* con retorno bool aplican la escritura y el re-armado del
// cooldown en un solo UPDATE condicional; false significa que el cooldown
// todavia no vencio y nada fue modificado.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)

	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)

	UpdateAvatar(ctx context.Context, id, avatarURL string, nowMs, nextLimitMs int64) (bool, error)
	UpdateDisplayName(ctx context.Context, id string, displayName, about *string, setAbout bool, nowMs, nextLimitMs int64) (bool, error)
	UpdateAbout(ctx context.Context, id string, about *string) error
	UpdateEmail(ctx context.Context, id, email string, nowMs, nextLimitMs int64) (bool, error)
	ResetPasswordByEmail(ctx context.Context, email, passwordHash string, nowMs, nextLimitMs int64) (bool, error)

	SetEmailVerification(ctx context.Context, id, code string, expiresAtMs int64) error
	SetPasswordHash(ctx context.Context, id, passwordHash string) error
	SetDisplayName(ctx context.Context, id string, displayName *string) error
	SetUsername(ctx context.Context, id string, username *string) error
	SetEmail(ctx context.Context, id string, email *string) error

	SetEntitlement(ctx context.Context, id string, subject domain.Subject, plan *string, expiry *int64, status *string) error

	LinkTelegram(ctx context.Context, id string, tgUserID int64, tgUsername *string) error
	UnlinkTelegram(ctx context.Context, id string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, email, phone, username, display_name, about, avatar_url,
	password_hash, plan,
	history_kz_plan, history_kz_expiry, history_kz_status,
	world_history_plan, world_history_expiry, world_history_status,
	law_basics_plan, law_basics_expiry, law_basics_status,
	chinese_plan, chinese_expiry, chinese_status,
	avatar_change_limit, display_name_change_limit, email_change_limit, password_change_limit,
	email_verification_code, email_verification_expiry,
	telegram_user_id, telegram_username,
	created_at
`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Phone, &u.Username, &u.DisplayName, &u.About, &u.AvatarURL,
		&u.PasswordHash, &u.Plan,
		&u.HistoryKZ.Plan, &u.HistoryKZ.Expiry, &u.HistoryKZ.Status,
		&u.WorldHistory.Plan, &u.WorldHistory.Expiry, &u.WorldHistory.Status,
		&u.LawBasics.Plan, &u.LawBasics.Expiry, &u.LawBasics.Status,
		&u.Chinese.Plan, &u.Chinese.Expiry, &u.Chinese.Status,
		&u.AvatarChangeLimit, &u.DisplayNameChangeLimit, &u.EmailChangeLimit, &u.PasswordChangeLimit,
		&u.EmailVerificationCode, &u.EmailVerificationExpiry,
		&u.TelegramUserID, &u.TelegramUsername,
		&u.CreatedAt,
	)
	return u, err
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, phone, username, display_name, about, avatar_url, password_hash, plan, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Phone,
		user.Username,
		user.DisplayName,
		user.About,
		user.AvatarURL,
		user.PasswordHash,
		user.Plan,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *PgUserRepository) List(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PgUserRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`
	var taken bool
	err := r.pool.QueryRow(ctx, query, email, excludeID).Scan(&taken)
	return taken, err
}

func (r *PgUserRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> $2)`
	var taken bool
	err := r.pool.QueryRow(ctx, query, username, excludeID).Scan(&taken)
	return taken, err
}

func (r *PgUserRepository) UpdateAvatar(ctx context.Context, id, avatarURL string, nowMs, nextLimitMs int64) (bool, error) {
	const query = `
		UPDATE users SET avatar_url = $2, avatar_change_limit = $3
		WHERE id = $1 AND avatar_change_limit <= $4
	`
	tag, err := r.pool.Exec(ctx, query, id, avatarURL, nextLimitMs, nowMs)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgUserRepository) UpdateDisplayName(ctx context.Context, id string, displayName, about *string, setAbout bool, nowMs, nextLimitMs int64) (bool, error) {
	if setAbout {
		const query = `
			UPDATE users SET display_name = $2, about = $3, display_name_change_limit = $4
			WHERE id = $1 AND display_name_change_limit <= $5
		`
		tag, err := r.pool.Exec(ctx, query, id, displayName, about, nextLimitMs, nowMs)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	}
	const query = `
		UPDATE users SET display_name = $2, display_name_change_limit = $3
		WHERE id = $1 AND display_name_change_limit <= $4
	`
	tag, err := r.pool.Exec(ctx, query, id, displayName, nextLimitMs, nowMs)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgUserRepository) UpdateAbout(ctx context.Context, id string, about *string) error {
	const query = `UPDATE users SET about = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, about)
	return err
}

func (r *PgUserRepository) UpdateEmail(ctx context.Context, id, email string, nowMs, nextLimitMs int64) (bool, error) {
	const query = `
		UPDATE users SET email = $2, email_verification_code = NULL,
			email_verification_expiry = NULL, email_change_limit = $3
		WHERE id = $1 AND email_change_limit <= $4
	`
	tag, err := r.pool.Exec(ctx, query, id, email, nextLimitMs, nowMs)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgUserRepository) ResetPasswordByEmail(ctx context.Context, email, passwordHash string, nowMs, nextLimitMs int64) (bool, error) {
	const query = `
		UPDATE users SET password_hash = $2, password_change_limit = $3
		WHERE email = $1 AND password_change_limit <= $4
	`
	tag, err := r.pool.Exec(ctx, query, email, passwordHash, nextLimitMs, nowMs)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgUserRepository) SetEmailVerification(ctx context.Context, id, code string, expiresAtMs int64) error {
	const query = `
		UPDATE users SET email_verification_code = $2, email_verification_expiry = $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, code, expiresAtMs)
	return err
}

func (r *PgUserRepository) SetPasswordHash(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, passwordHash)
	return err
}

func (r *PgUserRepository) SetDisplayName(ctx context.Context, id string, displayName *string) error {
	const query = `UPDATE users SET display_name = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, displayName)
	return err
}

func (r *PgUserRepository) SetUsername(ctx context.Context, id string, username *string) error {
	const query = `UPDATE users SET username = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, username)
	return err
}

func (r *PgUserRepository) SetEmail(ctx context.Context, id string, email *string) error {
	const query = `UPDATE users SET email = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, email)
	return err
}

// SetEntitlement escribe la tripleta de una materia. El despacho por materia
// es un switch cerrado con queries constantes, nunca SQL armado por string.
func (r *PgUserRepository) SetEntitlement(ctx context.Context, id string, subject domain.Subject, plan *string, expiry *int64, status *string) error {
	var query string
	switch subject {
	case domain.SubjectHistoryKZ:
		query = `UPDATE users SET history_kz_plan = $2, history_kz_expiry = $3, history_kz_status = $4 WHERE id = $1`
	case domain.SubjectWorldHistory:
		query = `UPDATE users SET world_history_plan = $2, world_history_expiry = $3, world_history_status = $4 WHERE id = $1`
	case domain.SubjectLawBasics:
		query = `UPDATE users SET law_basics_plan = $2, law_basics_expiry = $3, law_basics_status = $4 WHERE id = $1`
	case domain.SubjectChinese:
		query = `UPDATE users SET chinese_plan = $2, chinese_expiry = $3, chinese_status = $4 WHERE id = $1`
	default:
		return fmt.Errorf("unknown subject: %s", subject)
	}
	_, err := r.pool.Exec(ctx, query, id, plan, expiry, status)
	return err
}

func (r *PgUserRepository) LinkTelegram(ctx context.Context, id string, tgUserID int64, tgUsername *string) error {
	const query = `UPDATE users SET telegram_user_id = $2, telegram_username = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, tgUserID, tgUsername)
	return err
}

func (r *PgUserRepository) UnlinkTelegram(ctx context.Context, id string) error {
	const query = `UPDATE users SET telegram_user_id = NULL, telegram_username = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
