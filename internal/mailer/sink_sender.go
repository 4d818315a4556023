package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SinkSender POSTs {to, subject, html} to an external send-email
// endpoint. A 2xx response is success; anything else is a failure
// carrying a preview of the response body.
type SinkSender struct {
	client   *http.Client
	endpoint string
	logger   *zap.Logger
}

type SinkConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// NewSinkSender creates a sender for the configured email endpoint.
func NewSinkSender(cfg SinkConfig, logger *zap.Logger) *SinkSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &SinkSender{
		client:   &http.Client{Timeout: timeout},
		endpoint: cfg.Endpoint,
		logger:   logger,
	}
}

func (s *SinkSender) Send(ctx context.Context, email Email) error {
	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lokal-notify/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email sink returned status %d: %s", resp.StatusCode, string(preview))
	}

	s.logger.Info("email delivered",
		zap.String("to", email.To),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}
