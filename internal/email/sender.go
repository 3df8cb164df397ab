package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para envio de correos con codigos de un solo uso.
type Sender interface {
	SendRegistrationCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
	SendEmailChangeCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
	SendPasswordResetCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendRegistrationCode(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendEmailChangeCode(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendPasswordResetCode(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}
