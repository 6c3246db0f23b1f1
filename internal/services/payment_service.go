package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/cart"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/paystack"
)

const defaultCurrency = "ZAR"

var (
	// ErrSignatureMismatch indicates the webhook body was not signed with the
	// shared secret. Logged as a security-relevant event; no side effects.
	ErrSignatureMismatch = errors.New("payments: webhook signature mismatch")
	// ErrPaymentNotSuccessful indicates a verified transaction did not settle.
	ErrPaymentNotSuccessful = errors.New("payments: transaction not successful")
	// ErrMissingCustomerEmail indicates no address could be recovered for the
	// receipt. Terminal for the event; logged, never retried.
	ErrMissingCustomerEmail = errors.New("payments: no customer email on event")
)

// ValidationError reports a user-correctable request problem. Message is safe
// to return to the storefront verbatim.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// gatewayAPI abstracts the Paystack client for testing.
type gatewayAPI interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (paystack.VerifyResponse, error)
	ValidateSignature(body []byte, signature string) bool
}

// receiptSink abstracts the dispatcher so tests can capture commands
// synchronously.
type receiptSink interface {
	DispatchAsync(cmd ReceiptCommand)
}

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Gateway  gatewayAPI
	Receipts receiptSink
	Currency string
	Logger   *zap.Logger
}

// PaymentService relays checkout carts to the payment gateway and turns
// confirmed charges into receipts. It holds no state of its own; the gateway
// is the source of truth for payment status.
type PaymentService struct {
	gateway  gatewayAPI
	receipts receiptSink
	currency string
	logger   *zap.Logger
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (*PaymentService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway client is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("payment service: receipt dispatcher is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		gateway:  deps.Gateway,
		receipts: deps.Receipts,
		currency: currency,
		logger:   logger,
	}, nil
}

// InitiatePaymentCommand is the checkout payload received from the storefront.
// Amount and Items arrive loosely typed; normalization owns their shape.
type InitiatePaymentCommand struct {
	Amount         any
	Items          []any
	DeliveryMethod string
	Phone          string
	Email          string
	FullName       string
}

// Initiate validates the request, summarizes the cart, and creates a gateway
// transaction whose metadata is sufficient to rebuild the cart later.
func (s *PaymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (paystack.InitializeResponse, error) {
	email := strings.TrimSpace(cmd.Email)
	phone := strings.TrimSpace(cmd.Phone)
	fullName := strings.TrimSpace(cmd.FullName)
	if email == "" || phone == "" || fullName == "" {
		return paystack.InitializeResponse{}, &ValidationError{Message: "Full name, email and phone number are required."}
	}
	if len(cmd.Items) == 0 {
		return paystack.InitializeResponse{}, &ValidationError{Message: "Cart is empty or invalid."}
	}

	summary := cart.Summarize(cmd.Items, cmd.Amount)
	lines := cart.EncodeLines(summary.Items)
	deliveryMethod := strings.TrimSpace(cmd.DeliveryMethod)

	metadata := paystack.Metadata{
		CartSummary:    lines,
		FullName:       fullName,
		Phone:          phone,
		Email:          email,
		DeliveryMethod: deliveryMethod,
		CustomFields: []paystack.CustomField{
			{DisplayName: "Full Name", VariableName: "full_name", Value: fullName},
			{DisplayName: "Phone", VariableName: "phone", Value: phone},
			{DisplayName: "Delivery Method", VariableName: "delivery_method", Value: deliveryMethod},
			{DisplayName: "Cart Items", VariableName: "cart_items", Value: lines},
		},
	}
	if err := metadata.SetCart(summary.Items); err != nil {
		return paystack.InitializeResponse{}, err
	}

	req := paystack.InitializeRequest{
		Email:    email,
		Amount:   toSubunits(summary.TotalAmount),
		Currency: s.currency,
		Metadata: metadata,
	}

	resp, err := s.gateway.InitializeTransaction(ctx, req)
	if err != nil {
		s.logger.Error("transaction initialize failed", zap.Error(err))
		return paystack.InitializeResponse{}, err
	}

	s.logger.Info("payment initiated",
		zap.String("reference", resp.Data.Reference),
		zap.Int64("amountSubunits", req.Amount),
		zap.Int("items", len(summary.Items)),
	)
	return resp, nil
}

// VerifyPaymentCommand is the client-triggered confirmation payload: the
// gateway reference plus the checkout fields the storefront still holds.
type VerifyPaymentCommand struct {
	Reference      string
	Email          string
	FullName       string
	Phone          string
	DeliveryMethod string
	Items          []any
}

// Verify confirms a transaction by reference and, when it settled, dispatches
// the receipt asynchronously. The verify payload is returned for the caller.
func (s *PaymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (paystack.VerifyResponse, error) {
	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		return paystack.VerifyResponse{}, &ValidationError{Message: "Transaction reference is required."}
	}

	resp, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		s.logger.Error("transaction verify failed", zap.String("reference", reference), zap.Error(err))
		return paystack.VerifyResponse{}, err
	}
	if resp.Data.Status != paystack.StatusSuccess {
		s.logger.Warn("verified transaction not successful",
			zap.String("reference", reference),
			zap.String("status", resp.Data.Status),
		)
		return paystack.VerifyResponse{}, ErrPaymentNotSuccessful
	}

	items := s.itemsFromMetadata(resp.Data.Metadata)
	if len(items) == 0 && len(cmd.Items) > 0 {
		items = cart.Summarize(cmd.Items, nil).Items
	}

	receipt := ReceiptCommand{
		Reference:      resp.Data.Reference,
		FullName:       firstNonEmpty(cmd.FullName, resp.Data.Metadata.FullName, customerName(resp.Data.Customer)),
		Phone:          firstNonEmpty(cmd.Phone, resp.Data.Metadata.Phone, resp.Data.Customer.Phone),
		Email:          firstNonEmpty(cmd.Email, resp.Data.Metadata.Email, resp.Data.Customer.Email),
		DeliveryMethod: firstNonEmpty(cmd.DeliveryMethod, resp.Data.Metadata.DeliveryMethod),
		AmountSubunits: resp.Data.Amount,
		Items:          items,
	}

	if receipt.Email == "" {
		s.logger.Error("receipt not dispatched", zap.String("reference", reference), zap.Error(ErrMissingCustomerEmail))
		return resp, nil
	}

	s.receipts.DispatchAsync(receipt)
	return resp, nil
}

// WebhookResult reports how an authenticated webhook event was handled.
type WebhookResult struct {
	Event      string
	Reference  string
	Dispatched bool
}

// HandleWebhook authenticates a gateway event against the raw body signature,
// reconstructs the cart from metadata, and triggers the receipt for settled
// charges. Events other than charge.success are acknowledged without side
// effects. The receipt is dispatched asynchronously so the gateway is never
// kept waiting on the email provider.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	if !s.gateway.ValidateSignature(body, signature) {
		s.logger.Warn("webhook signature mismatch")
		return WebhookResult{}, ErrSignatureMismatch
	}

	var event paystack.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookResult{}, &ValidationError{Message: "Invalid webhook payload."}
	}

	result := WebhookResult{Event: event.Event, Reference: event.Data.Reference}

	if event.Event != paystack.EventChargeSuccess {
		s.logger.Info("webhook event ignored", zap.String("event", event.Event))
		return result, nil
	}

	metadata := event.Data.Metadata
	receipt := ReceiptCommand{
		Reference:      event.Data.Reference,
		FullName:       firstNonEmpty(metadata.FullName, customerName(event.Data.Customer)),
		Phone:          firstNonEmpty(metadata.Phone, event.Data.Customer.Phone),
		Email:          firstNonEmpty(metadata.Email, event.Data.Customer.Email),
		DeliveryMethod: metadata.DeliveryMethod,
		AmountSubunits: event.Data.Amount,
		Items:          s.itemsFromMetadata(metadata),
	}

	if receipt.Email == "" {
		s.logger.Error("receipt not dispatched",
			zap.String("reference", event.Data.Reference),
			zap.Error(ErrMissingCustomerEmail),
		)
		return result, nil
	}

	s.receipts.DispatchAsync(receipt)
	result.Dispatched = true
	return result, nil
}

// itemsFromMetadata prefers the structured cart (re-normalized for
// consistency) and only falls back to the lossy summary-string parse when the
// structured form is absent.
func (s *PaymentService) itemsFromMetadata(metadata paystack.Metadata) []cart.Item {
	if raw := metadata.CartItems(); len(raw) > 0 {
		return cart.Summarize(raw, nil).Items
	}
	return cart.DecodeLines(metadata.CartSummary)
}

// toSubunits converts a major-unit amount to the gateway's minor currency
// unit, rounding to the nearest integer.
func toSubunits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func customerName(c paystack.Customer) string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
