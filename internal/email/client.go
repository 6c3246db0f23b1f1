package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.sendgrid.com/v3"
	defaultTimeout = 30 * time.Second
)

// Doer abstracts *http.Client so tests can stub the transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config carries the settings needed to reach the email provider.
type Config struct {
	APIToken   string
	Sender     string
	SenderName string
	BaseURL    string
}

// Client sends provider-composed template emails. The token and sender are
// read-only after construction; a Client is safe for concurrent use.
type Client struct {
	token      string
	sender     string
	senderName string
	baseURL    string
	httpClient Doer
	logger     *zap.Logger
}

// NewClient constructs an email client from configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return nil, errors.New("email: api token is required")
	}
	sender := strings.TrimSpace(cfg.Sender)
	if sender == "" {
		return nil, errors.New("email: sender address is required")
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:      token,
		sender:     sender,
		senderName: strings.TrimSpace(cfg.SenderName),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}, nil
}

// WithHTTPClient replaces the underlying transport, primarily for tests.
func (c *Client) WithHTTPClient(doer Doer) *Client {
	if doer != nil {
		c.httpClient = doer
	}
	return c
}

// TemplateMessage describes one templated send: the recipient, the provider
// template, and the data the template is rendered with.
type TemplateMessage struct {
	To         string
	ToName     string
	TemplateID string
	Data       map[string]any
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To           []address      `json:"to"`
	TemplateData map[string]any `json:"dynamic_template_data,omitempty"`
}

type sendRequest struct {
	From             address           `json:"from"`
	Personalizations []personalization `json:"personalizations"`
	TemplateID       string            `json:"template_id"`
}

// SendTemplate delivers a single templated email. The provider composes the
// message; this call only supplies the template id and its data payload.
func (c *Client) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("email: recipient address is required")
	}
	templateID := strings.TrimSpace(msg.TemplateID)
	if templateID == "" {
		return errors.New("email: template id is required")
	}

	payload := sendRequest{
		From: address{Email: c.sender, Name: c.senderName},
		Personalizations: []personalization{
			{
				To:           []address{{Email: to, Name: strings.TrimSpace(msg.ToName)}},
				TemplateData: msg.Data,
			},
		},
		TemplateID: templateID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("email: marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("email: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("email send rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("template", templateID),
		)
		return fmt.Errorf("email: provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	c.logger.Info("email dispatched",
		zap.String("template", templateID),
	)
	return nil
}
