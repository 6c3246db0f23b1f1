package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/cart"
)

const (
	defaultBaseURL = "https://api.paystack.co"
	defaultTimeout = 30 * time.Second

	// SignatureHeader carries the gateway's HMAC-SHA512 of the raw webhook body.
	SignatureHeader = "x-paystack-signature"

	// EventChargeSuccess is the only webhook event that triggers a receipt.
	EventChargeSuccess = "charge.success"

	// StatusSuccess is the transaction status reported for settled charges.
	StatusSuccess = "success"
)

// Doer abstracts *http.Client so tests can stub the transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config carries the settings needed to reach the Paystack API.
type Config struct {
	SecretKey string
	BaseURL   string
}

// Client talks to the Paystack transaction API. The secret key is read-only
// after construction; a Client is safe for concurrent use.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient Doer
	logger     *zap.Logger
}

// NewClient constructs a Paystack client from configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("paystack: secret key is required")
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		secretKey:  secret,
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

// CustomField is a labelled metadata entry surfaced on the Paystack dashboard.
type CustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

// Metadata is attached to a transaction at initialization and echoed back on
// webhook events and verify calls. It must be sufficient to rebuild the cart:
// Cart carries the structured items and CartSummary the textual fallback. Cart
// stays raw JSON so a malformed echo never fails the whole event decode.
type Metadata struct {
	Cart           json.RawMessage `json:"cart,omitempty"`
	CartSummary    string          `json:"cart_summary,omitempty"`
	FullName       string          `json:"full_name,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	DeliveryMethod string          `json:"delivery_method,omitempty"`
	CustomFields   []CustomField   `json:"custom_fields,omitempty"`
}

// UnmarshalJSON tolerates the gateway echoing metadata as a JSON-encoded
// string, which happens when a transaction was initialized with string
// metadata.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return err
		}
		if strings.TrimSpace(encoded) == "" {
			return nil
		}
		trimmed = []byte(encoded)
	}

	type plain Metadata
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*m = Metadata(decoded)
	return nil
}

// SetCart stores the structured item sequence in the metadata.
func (m *Metadata) SetCart(items []cart.Item) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("paystack: encode cart metadata: %w", err)
	}
	m.Cart = encoded
	return nil
}

// CartItems decodes the structured cart into raw values suitable for
// re-normalization. A missing or malformed cart yields nil rather than an
// error; callers fall back to parsing CartSummary.
func (m Metadata) CartItems() []any {
	if len(m.Cart) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(m.Cart, &items); err != nil {
		return nil
	}
	return items
}

// InitializeRequest is the payload for POST /transaction/initialize. Amount is
// expressed in the currency's minor unit.
type InitializeRequest struct {
	Email    string   `json:"email"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// InitializeData is the payload of a successful initialize call.
type InitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeResponse is the decoded initialize envelope. Raw preserves the
// exact upstream body so handlers can relay it verbatim.
type InitializeResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    InitializeData  `json:"data"`
	Raw     json.RawMessage `json:"-"`
}

// Customer mirrors the customer block echoed on verify and webhook payloads.
type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// TransactionData is the transaction detail shared by verify responses and
// charge webhook events. Amount is in the currency's minor unit.
type TransactionData struct {
	Status    string   `json:"status"`
	Reference string   `json:"reference"`
	Amount    int64    `json:"amount"`
	Currency  string   `json:"currency"`
	Customer  Customer `json:"customer"`
	Metadata  Metadata `json:"metadata"`
	PaidAt    string   `json:"paid_at"`
}

// VerifyResponse is the decoded envelope of GET /transaction/verify/{reference}.
type VerifyResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    TransactionData `json:"data"`
	Raw     json.RawMessage `json:"-"`
}

// Event is the webhook envelope posted by the gateway.
type Event struct {
	Event string          `json:"event"`
	Data  TransactionData `json:"data"`
}

// APIError carries a gateway failure through to the caller with the upstream
// payload intact for diagnosability.
type APIError struct {
	StatusCode int
	Message    string
	Body       json.RawMessage
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("paystack: request failed with status %d", e.StatusCode)
}

// InitializeTransaction creates a hosted-payment transaction for the customer.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (InitializeResponse, error) {
	var resp InitializeResponse
	raw, err := c.post(ctx, "/transaction/initialize", req)
	if err != nil {
		return InitializeResponse{}, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return InitializeResponse{}, fmt.Errorf("paystack: decode initialize response: %w", err)
	}
	resp.Raw = raw

	c.logger.Info("paystack transaction initialized",
		zap.String("reference", resp.Data.Reference),
	)
	return resp, nil
}

// VerifyTransaction fetches the current status of a transaction by reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (VerifyResponse, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return VerifyResponse{}, errors.New("paystack: transaction reference is required")
	}

	raw, err := c.get(ctx, "/transaction/verify/"+url.PathEscape(reference))
	if err != nil {
		return VerifyResponse{}, err
	}

	var resp VerifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return VerifyResponse{}, fmt.Errorf("paystack: decode verify response: %w", err)
	}
	resp.Raw = raw
	return resp, nil
}

// ValidateSignature reports whether the signature header matches the
// HMAC-SHA512 of the raw body under the shared secret. The comparison is
// constant-time.
func (c *Client) ValidateSignature(body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("paystack: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("paystack: build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack: execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("paystack: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: raw}
		var envelope struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil {
			apiErr.Message = envelope.Message
		}
		c.logger.Warn("paystack request failed",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}

	return raw, nil
}
