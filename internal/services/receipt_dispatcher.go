package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/cart"
	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/email"
)

const defaultDispatchTimeout = 45 * time.Second

// ErrEmailDispatch marks receipt delivery failures. It is logged at the
// dispatch boundary and never turns a successful payment into an error
// response.
var ErrEmailDispatch = errors.New("receipts: email dispatch failed")

// templateSender abstracts the email client for testing.
type templateSender interface {
	SendTemplate(ctx context.Context, msg email.TemplateMessage) error
}

// ReceiptCommand carries everything needed to send one receipt. AmountSubunits
// is the gateway's minor-unit amount; the template payload converts it back to
// major units.
type ReceiptCommand struct {
	Reference      string
	FullName       string
	Phone          string
	Email          string
	DeliveryMethod string
	AmountSubunits int64
	Items          []cart.Item
}

// ReceiptDispatcherDeps wires the dependencies required by the dispatcher.
type ReceiptDispatcherDeps struct {
	Sender     templateSender
	TemplateID string
	OpsMailbox string
	Logger     *zap.Logger
	Timeout    time.Duration
	NewID      func() string
}

// ReceiptDispatcher builds the receipt template payload and sends it through
// the transactional email provider, optionally copying an operations mailbox.
type ReceiptDispatcher struct {
	sender     templateSender
	templateID string
	opsMailbox string
	logger     *zap.Logger
	timeout    time.Duration
	newID      func() string
}

// NewReceiptDispatcher constructs a dispatcher validating required dependencies.
func NewReceiptDispatcher(deps ReceiptDispatcherDeps) (*ReceiptDispatcher, error) {
	if deps.Sender == nil {
		return nil, errors.New("receipt dispatcher: email sender is required")
	}
	templateID := strings.TrimSpace(deps.TemplateID)
	if templateID == "" {
		return nil, errors.New("receipt dispatcher: template id is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &ReceiptDispatcher{
		sender:     deps.Sender,
		templateID: templateID,
		opsMailbox: strings.TrimSpace(deps.OpsMailbox),
		logger:     logger,
		timeout:    timeout,
		newID:      newID,
	}, nil
}

// Dispatch sends the customer receipt and, when an operations mailbox is
// configured, an internal copy. The ops copy is best-effort: its failure does
// not fail the dispatch.
func (d *ReceiptDispatcher) Dispatch(ctx context.Context, cmd ReceiptCommand) error {
	dispatchID := d.newID()
	logger := d.logger.With(
		zap.String("dispatchId", dispatchID),
		zap.String("reference", cmd.Reference),
	)

	to := strings.TrimSpace(cmd.Email)
	if to == "" {
		logger.Error("receipt dropped: no customer email")
		return fmt.Errorf("%w: no recipient address", ErrEmailDispatch)
	}

	data := templateData(cmd)

	msg := email.TemplateMessage{
		To:         to,
		ToName:     strings.TrimSpace(cmd.FullName),
		TemplateID: d.templateID,
		Data:       data,
	}
	if err := d.sender.SendTemplate(ctx, msg); err != nil {
		logger.Error("customer receipt send failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrEmailDispatch, err)
	}
	logger.Info("customer receipt sent", zap.String("to", to))

	if d.opsMailbox != "" {
		opsMsg := email.TemplateMessage{
			To:         d.opsMailbox,
			TemplateID: d.templateID,
			Data:       data,
		}
		if err := d.sender.SendTemplate(ctx, opsMsg); err != nil {
			logger.Warn("ops receipt copy failed", zap.Error(err))
		}
	}

	return nil
}

// DispatchAsync runs Dispatch on a detached context so the caller can
// acknowledge the gateway before email delivery completes. Failures are
// logged inside Dispatch; there is no retry.
func (d *ReceiptDispatcher) DispatchAsync(cmd ReceiptCommand) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		_ = d.Dispatch(ctx, cmd)
	}()
}

// templateData shapes the payload consumed by the receipt template. Amount is
// converted from the gateway's minor unit back to major units.
func templateData(cmd ReceiptCommand) map[string]any {
	items := make([]map[string]any, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		items = append(items, map[string]any{
			"name":     item.Description,
			"quantity": item.Quantity,
			"price":    item.Price,
		})
	}

	return map[string]any{
		"fullName":       cmd.FullName,
		"phone":          cmd.Phone,
		"email":          cmd.Email,
		"deliveryMethod": cmd.DeliveryMethod,
		"amount":         float64(cmd.AmountSubunits) / 100,
		"reference":      cmd.Reference,
		"items":          items,
	}
}
