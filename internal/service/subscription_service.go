package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"duckly-edu/internal/domain"
	"duckly-edu/internal/repository"
)

var (
	ErrUnknownSubject       = errors.New("unknown subject")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

const msPerDay = 24 * 60 * 60 * 1000

// SubscriptionService administra las suscripciones por materia. El listado
// combina las tripletas estructuradas con lo que declare el campo plan
// heredado; cancelar limpia la tripleta en vez de borrar historial.
type SubscriptionService struct {
	logger *zap.Logger
	users  repository.UserRepository
}

func NewSubscriptionService(logger *zap.Logger, users repository.UserRepository) *SubscriptionService {
	return &SubscriptionService{logger: logger, users: users}
}

// List devuelve las suscripciones visibles del usuario: primero las
// heredadas del plan, luego las estructuradas en orden estable de materias.
func (s *SubscriptionService) List(ctx context.Context, userID string) ([]domain.Subscription, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	subs := domain.LegacyPlanSubscriptions(user.Plan)
	for _, subject := range domain.Subjects {
		ent := user.EntitlementFor(subject)
		if ent == nil || !ent.Visible() {
			continue
		}
		status := domain.StatusActive
		if ent.Status != nil {
			status = *ent.Status
		}
		subs = append(subs, domain.Subscription{
			Subject:       subject,
			Name:          subject.DisplayName(),
			Plan:          *ent.Plan,
			Expiry:        ent.Expiry,
			DaysRemaining: domain.DaysRemainingAt(ent.Expiry, now),
			Status:        status,
		})
	}
	return subs, nil
}

// Grant asigna un plan a la materia. Solo expiryDays == -1 significa sin
// vencimiento; cualquier otro valor fija now + dias.
func (s *SubscriptionService) Grant(ctx context.Context, userID, rawSubject, plan string, expiryDays int64) (domain.Subscription, error) {
	subject, ok := domain.ParseSubject(rawSubject)
	if !ok {
		return domain.Subscription{}, ErrUnknownSubject
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrUserNotFound
		}
		return domain.Subscription{}, err
	}

	now := time.Now().UTC()
	expiry := domain.ExpiryNever
	if expiryDays != domain.ExpiryNever {
		expiry = now.UnixMilli() + expiryDays*msPerDay
	}
	status := domain.StatusActive
	if err := s.users.SetEntitlement(ctx, userID, subject, &plan, &expiry, &status); err != nil {
		return domain.Subscription{}, err
	}

	s.logger.Info("subscription granted",
		zap.String("user_id", userID),
		zap.String("subject", string(subject)),
		zap.String("plan", plan),
		zap.Int64("expiry", expiry),
	)
	return domain.Subscription{
		Subject:       subject,
		Name:          subject.DisplayName(),
		Plan:          plan,
		Expiry:        &expiry,
		DaysRemaining: domain.DaysRemainingAt(&expiry, now),
		Status:        status,
	}, nil
}

// Cancel da de baja la suscripcion activa de una materia. Fallar si no hay
// plan o ya estaba cancelada evita bajas fantasma.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, rawSubject string) error {
	subject, ok := domain.ParseSubject(rawSubject)
	if !ok {
		return ErrUnknownSubject
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	ent := user.EntitlementFor(subject)
	if ent == nil || ent.Plan == nil || (ent.Status != nil && *ent.Status == domain.StatusCancelled) {
		return ErrSubscriptionNotFound
	}

	status := domain.StatusCancelled
	if err := s.users.SetEntitlement(ctx, userID, subject, nil, nil, &status); err != nil {
		return err
	}
	s.logger.Info("subscription cancelled",
		zap.String("user_id", userID),
		zap.String("subject", string(subject)),
	)
	return nil
}

// AdminRevoke limpia la tripleta sin precondiciones, para uso del panel.
func (s *SubscriptionService) AdminRevoke(ctx context.Context, userID, rawSubject string) error {
	subject, ok := domain.ParseSubject(rawSubject)
	if !ok {
		return ErrUnknownSubject
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	status := domain.StatusCancelled
	return s.users.SetEntitlement(ctx, userID, subject, nil, nil, &status)
}
