package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const mailTimeout = 10 * time.Second

// LogNotifier writes notifications to the structured logger. Used when
// no mail provider is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a logging notifier stub.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify writes the message to the structured logger.
func (n *LogNotifier) Notify(_ context.Context, toEmail, subject, body string) error {
	n.logger.Info("notification", "to", toEmail, "subject", subject, "body", body)
	return nil
}

// HTTPNotifier delivers email through a mail service API.
type HTTPNotifier struct {
	logger    *slog.Logger
	apiKey    string
	apiURL    string
	fromEmail string
	client    *http.Client
}

// NewHTTPNotifier creates a mail API notifier.
func NewHTTPNotifier(logger *slog.Logger, apiURL, apiKey, fromEmail string) *HTTPNotifier {
	return &HTTPNotifier{
		logger:    logger,
		apiKey:    apiKey,
		apiURL:    apiURL,
		fromEmail: fromEmail,
		client:    &http.Client{Timeout: mailTimeout},
	}
}

type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notify posts the message to the mail service.
func (n *HTTPNotifier) Notify(ctx context.Context, toEmail, subject, body string) error {
	payload, err := json.Marshal(mailRequest{
		From:    n.fromEmail,
		To:      toEmail,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("mail service returned status %d", resp.StatusCode)
	}

	n.logger.Debug("notification sent", "to", toEmail, "subject", subject)

	return nil
}
