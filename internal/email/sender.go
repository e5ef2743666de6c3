package email

import (
	"context"
	"errors"
	"time"
)

// Sender entrega fuera de banda los tokens de verificacion y de reseteo.
type Sender interface {
	SendVerification(ctx context.Context, toEmail, token string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, toEmail, token string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerification(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
