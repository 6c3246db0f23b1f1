package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/cart"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/paystack"
)

type stubGateway struct {
	initializeFunc func(ctx context.Context, req paystack.InitializeRequest) (paystack.InitializeResponse, error)
	verifyFunc     func(ctx context.Context, reference string) (paystack.VerifyResponse, error)
	signatureValid bool
}

func (s *stubGateway) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (paystack.InitializeResponse, error) {
	if s.initializeFunc != nil {
		return s.initializeFunc(ctx, req)
	}
	return paystack.InitializeResponse{}, errors.New("not implemented")
}

func (s *stubGateway) VerifyTransaction(ctx context.Context, reference string) (paystack.VerifyResponse, error) {
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, reference)
	}
	return paystack.VerifyResponse{}, errors.New("not implemented")
}

func (s *stubGateway) ValidateSignature([]byte, string) bool {
	return s.signatureValid
}

type recordingReceipts struct {
	commands []ReceiptCommand
}

func (r *recordingReceipts) DispatchAsync(cmd ReceiptCommand) {
	r.commands = append(r.commands, cmd)
}

func newTestService(t *testing.T, gateway *stubGateway, receipts *recordingReceipts) *PaymentService {
	t.Helper()
	service, err := NewPaymentService(PaymentServiceDeps{
		Gateway:  gateway,
		Receipts: receipts,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return service
}

func TestInitiateValidatesCustomerFields(t *testing.T) {
	service := newTestService(t, &stubGateway{}, &recordingReceipts{})

	cases := []InitiatePaymentCommand{
		{Phone: "0821234567", FullName: "Thandi Buyer", Items: []any{"mug"}},
		{Email: "buyer@example.com", FullName: "Thandi Buyer", Items: []any{"mug"}},
		{Email: "buyer@example.com", Phone: "0821234567", Items: []any{"mug"}},
	}

	for _, cmd := range cases {
		_, err := service.Initiate(context.Background(), cmd)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
}

func TestInitiateRejectsEmptyCart(t *testing.T) {
	service := newTestService(t, &stubGateway{}, &recordingReceipts{})

	_, err := service.Initiate(context.Background(), InitiatePaymentCommand{
		Email:    "buyer@example.com",
		Phone:    "0821234567",
		FullName: "Thandi Buyer",
		Items:    []any{},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if vErr.Message != "Cart is empty or invalid." {
		t.Fatalf("unexpected message %q", vErr.Message)
	}
}

func TestInitiateBuildsGatewayRequest(t *testing.T) {
	var captured paystack.InitializeRequest
	gateway := &stubGateway{
		initializeFunc: func(_ context.Context, req paystack.InitializeRequest) (paystack.InitializeResponse, error) {
			captured = req
			return paystack.InitializeResponse{
				Status: true,
				Data:   paystack.InitializeData{Reference: "ref-1"},
				Raw:    json.RawMessage(`{"status":true}`),
			}, nil
		},
	}
	service := newTestService(t, gateway, &recordingReceipts{})

	resp, err := service.Initiate(context.Background(), InitiatePaymentCommand{
		Items: []any{
			map[string]any{"size": "L", "price": float64(50), "quantity": float64(2)},
			map[string]any{"size": "S", "price": float64(30), "quantity": float64(1)},
		},
		DeliveryMethod: "Courier",
		Phone:          "0821234567",
		Email:          "buyer@example.com",
		FullName:       "Thandi Buyer",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if resp.Data.Reference != "ref-1" {
		t.Fatalf("unexpected reference %q", resp.Data.Reference)
	}

	if captured.Amount != 13000 {
		t.Fatalf("amount = %d subunits, want 13000", captured.Amount)
	}
	if captured.Email != "buyer@example.com" {
		t.Fatalf("unexpected email %q", captured.Email)
	}
	if captured.Currency != "ZAR" {
		t.Fatalf("unexpected currency %q", captured.Currency)
	}

	items := captured.Metadata.CartItems()
	if len(items) != 2 {
		t.Fatalf("expected structured cart in metadata, got %#v", items)
	}
	if captured.Metadata.CartSummary == "" {
		t.Fatal("expected cart summary string in metadata")
	}
	if len(captured.Metadata.CustomFields) != 4 {
		t.Fatalf("expected 4 custom fields, got %d", len(captured.Metadata.CustomFields))
	}
}

func TestInitiateDeclaredAmountWins(t *testing.T) {
	var captured paystack.InitializeRequest
	gateway := &stubGateway{
		initializeFunc: func(_ context.Context, req paystack.InitializeRequest) (paystack.InitializeResponse, error) {
			captured = req
			return paystack.InitializeResponse{Status: true}, nil
		},
	}
	service := newTestService(t, gateway, &recordingReceipts{})

	_, err := service.Initiate(context.Background(), InitiatePaymentCommand{
		Amount:   float64(999),
		Items:    []any{map[string]any{"size": "L", "price": float64(50), "quantity": float64(2)}},
		Phone:    "0821234567",
		Email:    "buyer@example.com",
		FullName: "Thandi Buyer",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if captured.Amount != 99900 {
		t.Fatalf("amount = %d subunits, want declared 99900", captured.Amount)
	}
}

func TestInitiateSurfacesGatewayError(t *testing.T) {
	gateway := &stubGateway{
		initializeFunc: func(context.Context, paystack.InitializeRequest) (paystack.InitializeResponse, error) {
			return paystack.InitializeResponse{}, &paystack.APIError{StatusCode: 401, Message: "Invalid key"}
		},
	}
	service := newTestService(t, gateway, &recordingReceipts{})

	_, err := service.Initiate(context.Background(), InitiatePaymentCommand{
		Items:    []any{"mug"},
		Phone:    "0821234567",
		Email:    "buyer@example.com",
		FullName: "Thandi Buyer",
	})

	var apiErr *paystack.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected gateway error passthrough, got %v", err)
	}
}

func successfulVerifyResponse() paystack.VerifyResponse {
	metadata := paystack.Metadata{
		CartSummary:    "Item 1: Plain tankard (x1) @ R150",
		FullName:       "Thandi Buyer",
		Phone:          "0821234567",
		Email:          "buyer@example.com",
		DeliveryMethod: "Courier",
	}
	_ = metadata.SetCart([]cart.Item{{Description: "Plain tankard", Quantity: 1, Price: 150, LineIndex: 1}})
	return paystack.VerifyResponse{
		Status: true,
		Data: paystack.TransactionData{
			Status:    paystack.StatusSuccess,
			Reference: "ref-42",
			Amount:    15000,
			Customer:  paystack.Customer{Email: "buyer@example.com"},
			Metadata:  metadata,
		},
	}
}

func TestVerifyDispatchesReceipt(t *testing.T) {
	gateway := &stubGateway{
		verifyFunc: func(_ context.Context, reference string) (paystack.VerifyResponse, error) {
			if reference != "ref-42" {
				t.Fatalf("unexpected reference %q", reference)
			}
			return successfulVerifyResponse(), nil
		},
	}
	receipts := &recordingReceipts{}
	service := newTestService(t, gateway, receipts)

	_, err := service.Verify(context.Background(), VerifyPaymentCommand{Reference: "ref-42"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if len(receipts.commands) != 1 {
		t.Fatalf("expected one receipt dispatch, got %d", len(receipts.commands))
	}
	receipt := receipts.commands[0]
	if receipt.Email != "buyer@example.com" {
		t.Fatalf("unexpected recipient %q", receipt.Email)
	}
	if receipt.AmountSubunits != 15000 {
		t.Fatalf("amount = %d, want 15000", receipt.AmountSubunits)
	}
	if len(receipt.Items) != 1 || receipt.Items[0].Description != "Plain tankard" {
		t.Fatalf("unexpected items %#v", receipt.Items)
	}
}

func TestVerifyFailsWhenNotSuccessful(t *testing.T) {
	resp := successfulVerifyResponse()
	resp.Data.Status = "abandoned"
	gateway := &stubGateway{
		verifyFunc: func(context.Context, string) (paystack.VerifyResponse, error) {
			return resp, nil
		},
	}
	receipts := &recordingReceipts{}
	service := newTestService(t, gateway, receipts)

	_, err := service.Verify(context.Background(), VerifyPaymentCommand{Reference: "ref-42"})
	if !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Fatalf("expected ErrPaymentNotSuccessful, got %v", err)
	}
	if len(receipts.commands) != 0 {
		t.Fatal("no receipt should be dispatched for unsuccessful payment")
	}
}

func webhookBody(t *testing.T, event string, metadata paystack.Metadata) []byte {
	t.Helper()
	payload := paystack.Event{
		Event: event,
		Data: paystack.TransactionData{
			Status:    paystack.StatusSuccess,
			Reference: "ref-42",
			Amount:    15000,
			Customer:  paystack.Customer{Email: "buyer@example.com", FirstName: "Thandi", LastName: "Buyer"},
			Metadata:  metadata,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	receipts := &recordingReceipts{}
	service := newTestService(t, &stubGateway{signatureValid: false}, receipts)

	_, err := service.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if len(receipts.commands) != 0 {
		t.Fatal("no receipt should be dispatched on signature mismatch")
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	receipts := &recordingReceipts{}
	service := newTestService(t, &stubGateway{signatureValid: true}, receipts)

	result, err := service.HandleWebhook(context.Background(), webhookBody(t, "charge.dispute.create", paystack.Metadata{}), "sig")
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if result.Dispatched {
		t.Fatal("ignored event must not dispatch a receipt")
	}
	if len(receipts.commands) != 0 {
		t.Fatal("no receipt should be dispatched for ignored events")
	}
}

func TestHandleWebhookDispatchesFromStructuredCart(t *testing.T) {
	metadata := paystack.Metadata{
		CartSummary: "Item 1: stale summary (x9) @ R1",
		FullName:    "Thandi Buyer",
		Phone:       "0821234567",
	}
	_ = metadata.SetCart([]cart.Item{{Description: "Plain tankard", Quantity: 2, Price: 75, LineIndex: 1}})

	receipts := &recordingReceipts{}
	service := newTestService(t, &stubGateway{signatureValid: true}, receipts)

	result, err := service.HandleWebhook(context.Background(), webhookBody(t, paystack.EventChargeSuccess, metadata), "sig")
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if !result.Dispatched {
		t.Fatal("expected receipt dispatch")
	}

	if len(receipts.commands) != 1 {
		t.Fatalf("expected one receipt, got %d", len(receipts.commands))
	}
	receipt := receipts.commands[0]
	if len(receipt.Items) != 1 || receipt.Items[0].Description != "Plain tankard" || receipt.Items[0].Quantity != 2 {
		t.Fatalf("structured cart not preferred: %#v", receipt.Items)
	}
	if receipt.Email != "buyer@example.com" {
		t.Fatalf("expected customer email recovered, got %q", receipt.Email)
	}
	if receipt.FullName != "Thandi Buyer" {
		t.Fatalf("expected metadata name preferred, got %q", receipt.FullName)
	}
}

func TestHandleWebhookFallsBackToSummaryString(t *testing.T) {
	metadata := paystack.Metadata{
		CartSummary: "Item 1: Preset: Viking Mug (x2) @ R350 | Item 2: Plain tankard (x1) @ R90.5",
	}

	receipts := &recordingReceipts{}
	service := newTestService(t, &stubGateway{signatureValid: true}, receipts)

	_, err := service.HandleWebhook(context.Background(), webhookBody(t, paystack.EventChargeSuccess, metadata), "sig")
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	if len(receipts.commands) != 1 {
		t.Fatalf("expected one receipt, got %d", len(receipts.commands))
	}
	items := receipts.commands[0].Items
	if len(items) != 2 {
		t.Fatalf("expected two decoded items, got %#v", items)
	}
	if items[0].Description != "Preset: Viking Mug" || items[0].Quantity != 2 || items[0].Price != 350 {
		t.Fatalf("unexpected first item %#v", items[0])
	}
}

func TestHandleWebhookMissingEmailAcknowledged(t *testing.T) {
	receipts := &recordingReceipts{}
	service := newTestService(t, &stubGateway{signatureValid: true}, receipts)

	payload := paystack.Event{
		Event: paystack.EventChargeSuccess,
		Data: paystack.TransactionData{
			Status:    paystack.StatusSuccess,
			Reference: "ref-42",
			Amount:    15000,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	result, err := service.HandleWebhook(context.Background(), body, "sig")
	if err != nil {
		t.Fatalf("missing email must still acknowledge, got %v", err)
	}
	if result.Dispatched {
		t.Fatal("no receipt should be dispatched without an address")
	}
	if len(receipts.commands) != 0 {
		t.Fatal("no receipt command expected")
	}
}

func TestHandleWebhookMalformedBody(t *testing.T) {
	service := newTestService(t, &stubGateway{signatureValid: true}, &recordingReceipts{})

	_, err := service.HandleWebhook(context.Background(), []byte("not json"), "sig")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for malformed body, got %v", err)
	}
}
