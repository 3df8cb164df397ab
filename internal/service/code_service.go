package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"duckly-edu/internal/domain"
	"duckly-edu/internal/repository"
)

// CodeService administra los dos ledgers de codigos de un solo uso.
// Emitir no invalida codigos anteriores; solo el mas reciente se consulta.
type CodeService struct {
	logger  *zap.Logger
	codes   repository.CodeRepository
	limiter RateLimiter
}

func NewCodeService(logger *zap.Logger, codes repository.CodeRepository, limiter RateLimiter) *CodeService {
	return &CodeService{
		logger:  logger,
		codes:   codes,
		limiter: limiter,
	}
}

var (
	ErrCodeNotFound    = errors.New("verification code not found")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrCodeMismatch    = errors.New("verification code mismatch")
	ErrSendRateLimited = errors.New("too many code requests")
)

const codeTTL = 10 * time.Minute

// generateCode produce un codigo uniforme de 6 digitos (100000-999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// IssueRegisterCode inserta un codigo de registro nuevo para el contacto.
func (s *CodeService) IssueRegisterCode(ctx context.Context, contact string) (domain.VerifyCode, error) {
	if s.limiter != nil && !s.limiter.Allow(contact) {
		return domain.VerifyCode{}, ErrSendRateLimited
	}
	code, err := generateCode()
	if err != nil {
		return domain.VerifyCode{}, err
	}
	now := time.Now().UTC()
	row := domain.VerifyCode{
		Contact:   contact,
		Code:      code,
		Purpose:   domain.PurposeRegister,
		ExpiresAt: now.Add(codeTTL).UnixMilli(),
		CreatedAt: now.UnixMilli(),
	}
	if err := s.codes.InsertVerifyCode(ctx, row); err != nil {
		return domain.VerifyCode{}, err
	}
	return row, nil
}

// VerifyRegisterCode valida el codigo contra la fila mas reciente del contacto.
// Un codigo errado incrementa attempts pero no invalida la fila.
func (s *CodeService) VerifyRegisterCode(ctx context.Context, contact, code string) error {
	row, err := s.codes.LatestVerifyCode(ctx, contact, domain.PurposeRegister)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCodeNotFound
		}
		return err
	}
	if row.ExpiresAt < time.Now().UTC().UnixMilli() {
		return ErrCodeExpired
	}
	if row.Code != code {
		if err := s.codes.IncrementVerifyAttempts(ctx, row.ID); err != nil {
			s.logger.Warn("increment verify attempts failed", zap.Error(err))
		}
		return ErrCodeMismatch
	}
	return nil
}

// ConsumeRegisterCodes borra todas las filas del contacto para evitar replay.
func (s *CodeService) ConsumeRegisterCodes(ctx context.Context, contact string) error {
	return s.codes.DeleteVerifyCodes(ctx, contact, domain.PurposeRegister)
}

// IssueResetCode inserta un codigo de restablecimiento para el email.
func (s *CodeService) IssueResetCode(ctx context.Context, email string) (domain.ResetCode, error) {
	code, err := generateCode()
	if err != nil {
		return domain.ResetCode{}, err
	}
	now := time.Now().UTC()
	row := domain.ResetCode{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(codeTTL).UnixMilli(),
		CreatedAt: now.UnixMilli(),
	}
	if err := s.codes.InsertResetCode(ctx, row); err != nil {
		return domain.ResetCode{}, err
	}
	return row, nil
}

// VerifyResetCode busca la fila no usada mas reciente para (email, code).
// Las filas usadas nunca vuelven a validar.
func (s *CodeService) VerifyResetCode(ctx context.Context, email, code string) (domain.ResetCode, error) {
	row, err := s.codes.LatestResetCode(ctx, email, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResetCode{}, ErrCodeNotFound
		}
		return domain.ResetCode{}, err
	}
	if row.ExpiresAt < time.Now().UTC().UnixMilli() {
		return domain.ResetCode{}, ErrCodeExpired
	}
	return row, nil
}

// ConsumeResetCode marca la fila ganadora como usada (permanente).
func (s *CodeService) ConsumeResetCode(ctx context.Context, id int64) error {
	return s.codes.MarkResetCodeUsed(ctx, id)
}
