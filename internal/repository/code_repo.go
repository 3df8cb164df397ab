package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"duckly-edu/internal/domain"
)

// CodeRepository persiste los dos ledgers de codigos: verificacion
// (borrado al consumir) y restablecimiento (marcado como usado).
type CodeRepository interface {
	InsertVerifyCode(ctx context.Context, c domain.VerifyCode) error
	LatestVerifyCode(ctx context.Context, contact, purpose string) (domain.VerifyCode, error)
	IncrementVerifyAttempts(ctx context.Context, id int64) error
	DeleteVerifyCodes(ctx context.Context, contact, purpose string) error

	InsertResetCode(ctx context.Context, c domain.ResetCode) error
	LatestResetCode(ctx context.Context, email, code string) (domain.ResetCode, error)
	MarkResetCodeUsed(ctx context.Context, id int64) error
}

// PgCodeRepository implementa CodeRepository usando pgxpool.
type PgCodeRepository struct {
	pool *pgxpool.Pool
}

func NewPgCodeRepository(pool *pgxpool.Pool) *PgCodeRepository {
	return &PgCodeRepository{pool: pool}
}

func (r *PgCodeRepository) InsertVerifyCode(ctx context.Context, c domain.VerifyCode) error {
	const query = `
		INSERT INTO verify_codes (contact, code, purpose, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, c.Contact, c.Code, c.Purpose, c.ExpiresAt, c.Attempts, c.CreatedAt)
	return err
}

// LatestVerifyCode devuelve la fila mas reciente para (contact, purpose);
// solo esa fila es autoritativa aunque existan codigos anteriores vigentes.
func (r *PgCodeRepository) LatestVerifyCode(ctx context.Context, contact, purpose string) (domain.VerifyCode, error) {
	const query = `
		SELECT id, contact, code, purpose, expires_at, attempts, created_at
		FROM verify_codes
		WHERE contact = $1 AND purpose = $2
		ORDER BY id DESC
		LIMIT 1
	`
	var c domain.VerifyCode
	err := r.pool.QueryRow(ctx, query, contact, purpose).Scan(
		&c.ID, &c.Contact, &c.Code, &c.Purpose, &c.ExpiresAt, &c.Attempts, &c.CreatedAt,
	)
	return c, err
}

func (r *PgCodeRepository) IncrementVerifyAttempts(ctx context.Context, id int64) error {
	const query = `UPDATE verify_codes SET attempts = attempts + 1 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgCodeRepository) DeleteVerifyCodes(ctx context.Context, contact, purpose string) error {
	const query = `DELETE FROM verify_codes WHERE contact = $1 AND purpose = $2`
	_, err := r.pool.Exec(ctx, query, contact, purpose)
	return err
}

func (r *PgCodeRepository) InsertResetCode(ctx context.Context, c domain.ResetCode) error {
	const query = `
		INSERT INTO password_reset_codes (email, code, expires_at, created_at, used)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, c.Email, c.Code, c.ExpiresAt, c.CreatedAt, c.Used)
	return err
}

// LatestResetCode devuelve la fila no usada mas reciente para (email, code).
func (r *PgCodeRepository) LatestResetCode(ctx context.Context, email, code string) (domain.ResetCode, error) {
	const query = `
		SELECT id, email, code, expires_at, created_at, used
		FROM password_reset_codes
		WHERE email = $1 AND code = $2 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	var c domain.ResetCode
	err := r.pool.QueryRow(ctx, query, email, code).Scan(
		&c.ID, &c.Email, &c.Code, &c.ExpiresAt, &c.CreatedAt, &c.Used,
	)
	return c, err
}

// MarkResetCodeUsed es permanente: una fila usada nunca vuelve a validar.
func (r *PgCodeRepository) MarkResetCodeUsed(ctx context.Context, id int64) error {
	const query = `UPDATE password_reset_codes SET used = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
