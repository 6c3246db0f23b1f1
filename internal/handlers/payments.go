package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/paystack"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/platform/httpx"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/services"
)

const maxPaymentRequestBody = 256 * 1024

var errBodyTooLarge = errors.New("request body too large")

// paymentService abstracts the service layer for testing.
type paymentService interface {
	Initiate(ctx context.Context, cmd services.InitiatePaymentCommand) (paystack.InitializeResponse, error)
	Verify(ctx context.Context, cmd services.VerifyPaymentCommand) (paystack.VerifyResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (services.WebhookResult, error)
}

// PaymentHandlers exposes the checkout, verification, and webhook endpoints.
type PaymentHandlers struct {
	service paymentService
	logger  *zap.Logger
}

// NewPaymentHandlers constructs the handlers.
func NewPaymentHandlers(service paymentService, logger *zap.Logger) *PaymentHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandlers{service: service, logger: logger}
}

// Routes registers payment endpoints under the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/pay", h.pay)
	r.Post("/paystack/verify", h.verify)
	r.Post("/paystack-webhook", h.webhook)
}

type payRequest struct {
	Amount         any    `json:"amount"`
	Items          []any  `json:"items"`
	DeliveryMethod string `json:"deliveryMethod"`
	PhoneValue     string `json:"phoneValue"`
	EmailValue     string `json:"emailValue"`
	FullNameValue  string `json:"fullNameValue"`
}

func (h *PaymentHandlers) pay(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(r, maxPaymentRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(w, status, "Invalid request body.")
		return
	}

	var req payRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Request body must be valid JSON.")
		return
	}

	resp, err := h.service.Initiate(r.Context(), services.InitiatePaymentCommand{
		Amount:         req.Amount,
		Items:          req.Items,
		DeliveryMethod: req.DeliveryMethod,
		Phone:          req.PhoneValue,
		Email:          req.EmailValue,
		FullName:       req.FullNameValue,
	})
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	// Relay the gateway's initialize response verbatim.
	httpx.WriteRaw(w, http.StatusOK, resp.Raw)
}

type verifyRequest struct {
	Reference      string `json:"reference"`
	EmailValue     string `json:"emailValue"`
	FullNameValue  string `json:"fullNameValue"`
	PhoneValue     string `json:"phoneValue"`
	DeliveryMethod string `json:"deliveryMethod"`
	Items          []any  `json:"items"`
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(r, maxPaymentRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(w, status, "Invalid request body.")
		return
	}

	var req verifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Request body must be valid JSON.")
		return
	}

	resp, err := h.service.Verify(r.Context(), services.VerifyPaymentCommand{
		Reference:      req.Reference,
		Email:          req.EmailValue,
		FullName:       req.FullNameValue,
		Phone:          req.PhoneValue,
		DeliveryMethod: req.DeliveryMethod,
		Items:          req.Items,
	})
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    resp.Data,
	})
}

func (h *PaymentHandlers) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(r, maxPaymentRequestBody)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	signature := r.Header.Get(paystack.SignatureHeader)
	result, err := h.service.HandleWebhook(r.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSignatureMismatch):
			httpx.WriteError(w, http.StatusBadRequest, "Invalid webhook signature.")
		default:
			var vErr *services.ValidationError
			if errors.As(err, &vErr) {
				httpx.WriteError(w, http.StatusBadRequest, vErr.Message)
				return
			}
			h.logger.Error("webhook handling failed", zap.Error(err))
			httpx.WriteError(w, http.StatusInternalServerError, "Failed to process webhook event.")
		}
		return
	}

	// Always acknowledge authenticated events promptly; receipt delivery runs
	// independently and its failures never surface here.
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"received":   true,
		"event":      result.Event,
		"dispatched": result.Dispatched,
	})
}

// writePaymentError maps service failures onto the wire taxonomy: validation
// problems are 400s with user-safe text, gateway failures are 500s carrying
// the upstream payload for diagnosability.
func (h *PaymentHandlers) writePaymentError(w http.ResponseWriter, err error) {
	var vErr *services.ValidationError
	if errors.As(err, &vErr) {
		httpx.WriteError(w, http.StatusBadRequest, vErr.Message)
		return
	}
	if errors.Is(err, services.ErrPaymentNotSuccessful) {
		httpx.WriteError(w, http.StatusBadRequest, "Payment was not successful.")
		return
	}

	var apiErr *paystack.APIError
	if errors.As(err, &apiErr) {
		h.logger.Error("gateway request failed", zap.Int("status", apiErr.StatusCode), zap.Error(err))
		if len(apiErr.Body) > 0 {
			httpx.WriteRaw(w, http.StatusInternalServerError, apiErr.Body)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, apiErr.Message)
		return
	}

	h.logger.Error("payment request failed", zap.Error(err))
	httpx.WriteError(w, http.StatusInternalServerError, "Failed to process payment request.")
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errors.New("empty request body")
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("empty request body")
	}
	return data, nil
}
