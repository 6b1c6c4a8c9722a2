// Package email sends transactional mail through the provider's HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"time"

	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Validate checks the message before it is handed to the provider.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return errors.New(errors.ErrCodeEmailAddressInvalid, "invalid recipient address").WithDetail(m.To)
	}
	if m.Subject == "" {
		return errors.InvalidParam("email subject is required")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.InvalidParam("email body is required")
	}
	return nil
}

// Sender delivers email. Satisfied by Client and by test fakes.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Client sends mail through the configured HTTP provider.
type Client struct {
	cfg        config.EmailConfig
	httpClient *http.Client
	logger     logging.Logger
	metrics    *metrics.Metrics
}

// NewClient builds an email client from config. m may be nil in tests.
func NewClient(cfg config.EmailConfig, log logging.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		metrics:    m,
	}
}

// Send delivers one message. Provider failures come back as
// ErrCodeEmailSendFailed so callers can count them without parsing text.
func (c *Client) Send(ctx context.Context, msg Message) error {
	err := c.send(ctx, msg)
	if c.metrics != nil {
		outcome := "sent"
		if err != nil {
			outcome = "failed"
		}
		c.metrics.EmailsSentTotal.WithLabelValues(outcome).Inc()
	}
	return err
}

func (c *Client) send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	from := c.cfg.FromAddress
	if c.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", c.cfg.FromName, c.cfg.FromAddress)
	}
	body, err := json.Marshal(sendRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal email request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/emails", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build email request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEmailSendFailed, "email provider unreachable")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEmailSendFailed, "failed to read email response")
	}
	if resp.StatusCode >= 400 {
		return errors.New(errors.ErrCodeEmailSendFailed,
			fmt.Sprintf("email provider returned %d", resp.StatusCode)).WithDetail(string(respBody))
	}

	var result sendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to parse email response")
	}

	c.logger.Debug("email sent",
		logging.String("to", msg.To),
		logging.String("provider_id", result.ID),
	)
	return nil
}
