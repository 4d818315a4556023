// Package mailer is the outbound email side-channel: a pure
// preference-gating decision table, pluggable transports, and a
// dispatcher that renders and sends one email per notification.
package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Email is the payload every transport accepts.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a single email. Implementations: SinkSender (HTTP),
// SESSender (AWS SES), LogSender (development).
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// LogSender logs emails instead of delivering them (development mode).
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, email Email) error {
	s.logger.Info("email logged (development mode)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)
	return nil
}
