// Package settlement pays bills through the orchestrator and debits the
// wallet once the provider confirms. A durable pending-settlement record
// bridges provider success and the debit so a crash in between is finished
// by the sweeper instead of being lost.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/settlement"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/ledger"
	"github.com/ppob-wallet-ledger/internal/notification"
	"github.com/ppob-wallet-ledger/internal/orchestrator"
	"github.com/ppob-wallet-ledger/internal/platform/messaging/producers"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
	"github.com/ppob-wallet-ledger/internal/platform/telemetry"
)

// Router quotes and pays bills through a provider.
type Router interface {
	Quote(ctx context.Context, req provider.InquiryRequest) (*orchestrator.Quote, error)
	Pay(ctx context.Context, preferred string, req provider.PaymentRequest) (*orchestrator.PayOutcome, error)
}

// PayRequest is a user's order to pay one bill.
type PayRequest struct {
	UserID         uuid.UUID
	Category       string
	ProductCode    string
	CustomerNumber string
}

func (r PayRequest) inquiry() provider.InquiryRequest {
	return provider.InquiryRequest{Category: r.Category, ProductCode: r.ProductCode, CustomerNumber: r.CustomerNumber}
}

func (r PayRequest) validate() error {
	if strings.TrimSpace(r.Category) == "" || strings.TrimSpace(r.CustomerNumber) == "" {
		return fmt.Errorf("category and customer number are required: %w", shared.ErrInvalidRequest)
	}
	return nil
}

// Service settles bill payments.
type Service struct {
	db          persistence.TxRunner
	users       wallet.UserRepository
	bills       bill.Repository
	settlements settlement.Repository
	ledger      *ledger.Engine
	router      Router
	alerts      producers.AlertPublisher
	notifier    notification.Dispatcher
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

type Options struct {
	DB          persistence.TxRunner
	Users       wallet.UserRepository
	Bills       bill.Repository
	Settlements settlement.Repository
	Ledger      *ledger.Engine
	Router      Router
	Alerts      producers.AlertPublisher // optional
	Notifier    notification.Dispatcher
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

func NewService(opts Options) *Service {
	if opts.Notifier == nil {
		opts.Notifier = notification.NoopDispatcher{}
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NoopMetrics()
	}
	return &Service{
		db:          opts.DB,
		users:       opts.Users,
		bills:       opts.Bills,
		settlements: opts.Settlements,
		ledger:      opts.Ledger,
		router:      opts.Router,
		alerts:      opts.Alerts,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "settlement"),
	}
}

// Inquiry prices a bill for userID without writing anything.
func (s *Service) Inquiry(ctx context.Context, userID uuid.UUID, category, productCode, customerNumber string) (*orchestrator.Quote, error) {
	req := PayRequest{UserID: userID, Category: category, ProductCode: productCode, CustomerNumber: customerNumber}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.router.Quote(ctx, req.inquiry())
}

// Pay quotes, records a pending bill and asks a provider to pay it. The
// wallet is only debited after the provider reports success.
func (s *Service) Pay(ctx context.Context, req PayRequest) (*bill.Payment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	quote, err := s.router.Quote(ctx, req.inquiry())
	if err != nil {
		return nil, err
	}
	if user.Balance.LessThan(quote.Total) {
		return nil, shared.ErrInsufficientBalance
	}

	payment := &bill.Payment{
		ID:             uuid.New(),
		Code:           shared.NewCode(shared.PrefixBill),
		UserID:         req.UserID,
		Provider:       quote.Provider,
		Category:       req.Category,
		ProductCode:    req.ProductCode,
		CustomerNumber: req.CustomerNumber,
		CustomerName:   quote.Bill.CustomerName,
		BaseAmount:     quote.BasePrice,
		MarginAmount:   quote.Margin,
		AdminFee:       quote.AdminFee,
		TotalAmount:    quote.Total,
		Status:         bill.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.bills.Create(ctx, payment); err != nil {
		return nil, err
	}
	logger := s.logger.With("bill_code", payment.Code)
	logger.Info("Bill payment created",
		"user_id", req.UserID.String(),
		"provider", quote.Provider,
		"total", quote.Total.String())

	outcome, err := s.router.Pay(ctx, quote.Provider, provider.PaymentRequest{
		Category:       req.Category,
		ProductCode:    req.ProductCode,
		CustomerNumber: req.CustomerNumber,
		RefID:          payment.Code,
		Amount:         quote.BasePrice.Add(quote.AdminFee),
	})

	// From here on the provider may have moved money; finish regardless of
	// the caller going away.
	ctx = context.WithoutCancel(ctx)

	if err != nil {
		logger.Warn("Provider payment failed", "error", err)
		if _, ferr := s.FailPayment(ctx, payment.Code, err.Error()); ferr != nil {
			logger.Error("Failed to mark bill failed", "error", ferr)
		}
		return nil, err
	}

	switch outcome.Result.Status {
	case provider.PaymentFailed:
		reason := outcome.Result.Message
		if reason == "" {
			reason = "provider declined the payment"
		}
		return s.FailPayment(ctx, payment.Code, reason)

	case provider.PaymentPending:
		payment.Provider = outcome.Provider
		payment.ProviderReference = outcome.Result.ProviderRef
		if err := s.bills.Update(ctx, payment); err != nil {
			return nil, err
		}
		logger.Info("Provider accepted payment, awaiting confirmation", "provider", outcome.Provider, "provider_ref", outcome.Result.ProviderRef)
		return payment, nil

	default:
		return s.ConfirmProviderSuccess(ctx, payment.Code, outcome.Provider, outcome.Result.ProviderRef)
	}
}

// ConfirmProviderSuccess makes a provider success durable and settles it.
// It is the entry point for both synchronous success and success webhooks.
func (s *Service) ConfirmProviderSuccess(ctx context.Context, code, providerName, providerRef string) (*bill.Payment, error) {
	payment, err := s.bills.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case bill.StatusSuccess:
		return payment, nil
	case bill.StatusFailed:
		return nil, fmt.Errorf("bill %s is failed: %w", code, shared.ErrAlreadyTerminal)
	}
	if providerName == "" {
		providerName = payment.Provider
	}

	rec := settlement.NewRecord(code, providerName, providerRef, payment.TotalAmount)
	if err := s.settlements.Create(ctx, rec); err != nil {
		s.logger.Error("Failed to record pending settlement", "bill_code", code, "error", err)
		return nil, err
	}
	return s.Complete(ctx, code)
}

// Complete debits the wallet for a bill whose provider already succeeded. It
// is the only path that debits for bills and is safe to repeat.
func (s *Service) Complete(ctx context.Context, code string) (*bill.Payment, error) {
	var (
		result  *bill.Payment
		changed bool
	)
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		bills := s.bills.WithTx(tx)
		settlements := s.settlements.WithTx(tx)

		payment, err := bills.LockByCode(ctx, code)
		if err != nil {
			return err
		}
		switch payment.Status {
		case bill.StatusSuccess:
			result = payment
			return settlements.MarkSettled(ctx, code)
		case bill.StatusFailed:
			return fmt.Errorf("bill %s is failed: %w", code, shared.ErrAlreadyTerminal)
		}

		providerRef, providerName := payment.ProviderReference, payment.Provider
		if rec, err := settlements.GetByBillCode(ctx, code); err == nil {
			if rec.ProviderReference != "" {
				providerRef = rec.ProviderReference
			}
			if rec.Provider != "" {
				providerName = rec.Provider
			}
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		txn, err := s.ledger.ApplyInTx(ctx, tx, ledger.ApplyRequest{
			UserID:      payment.UserID,
			Type:        wallet.TxBillPayment,
			Amount:      payment.TotalAmount,
			Description: fmt.Sprintf("Bill payment %s %s", payment.Category, payment.CustomerNumber),
			ReferenceID: payment.Code,
			Metadata: map[string]interface{}{
				"provider":     providerName,
				"provider_ref": providerRef,
				"product_code": payment.ProductCode,
			},
		})
		if err != nil {
			return err
		}

		payment.Provider = providerName
		payment.MarkSuccess(providerRef, txn.ID)
		if err := bills.Update(ctx, payment); err != nil {
			return err
		}
		if err := settlements.MarkSettled(ctx, code); err != nil {
			return err
		}
		result, changed = payment, true
		return nil
	})

	if errors.Is(err, shared.ErrInsufficientBalance) {
		return nil, s.flagInsufficientBalance(ctx, code)
	}
	if err != nil {
		s.logger.Warn("Bill settlement not completed", "bill_code", code, "error", err)
		return nil, err
	}

	if changed {
		s.logger.Info("Bill settled", "bill_code", code, "provider", result.Provider, "total", result.TotalAmount.String())
		s.notify(ctx, result, notification.EventBillPaid, "Bill paid")
	}
	return result, nil
}

// flagInsufficientBalance handles a provider success the wallet can no
// longer cover: the bill fails and the record goes to manual review.
func (s *Service) flagInsufficientBalance(ctx context.Context, code string) error {
	const reason = "insufficient balance after provider success"

	var payment *bill.Payment
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		bills := s.bills.WithTx(tx)
		p, err := bills.LockByCode(ctx, code)
		if err != nil {
			return err
		}
		if p.Status == bill.StatusPending {
			p.MarkFailed(reason)
			if err := bills.Update(ctx, p); err != nil {
				return err
			}
		}
		payment = p
		if err := s.settlements.WithTx(tx).MarkManualReview(ctx, code, reason); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to flag bill for manual review", "bill_code", code, "error", err)
		return errors.Join(shared.ErrInsufficientBalance, err)
	}

	s.raiseManualReview(ctx, payment.Code, payment.Provider, payment.TotalAmount, reason)
	s.notify(ctx, payment, notification.EventBillFailed, "Bill payment failed")
	return shared.ErrInsufficientBalance
}

// raiseManualReview logs, counts and publishes a settlement that needs an
// operator.
func (s *Service) raiseManualReview(ctx context.Context, code, providerName string, amount decimal.Decimal, reason string) {
	alert := producers.Alert{
		Kind:      producers.AlertManualReview,
		BillCode:  code,
		Provider:  providerName,
		Amount:    amount,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}

	s.logger.Error("Settlement requires manual review", "bill_code", code, "provider", providerName, "reason", reason)
	s.metrics.SettlementManualReview.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", providerName)))

	if s.alerts == nil {
		return
	}
	if err := s.alerts.PublishAlert(ctx, alert); err != nil {
		s.logger.Error("Failed to publish settlement alert", "bill_code", code, "error", err)
	}
}

// FailPayment closes a pending bill without debiting. Failing a failed bill
// is a no-op; failing a paid bill is ErrAlreadyTerminal.
func (s *Service) FailPayment(ctx context.Context, code, reason string) (*bill.Payment, error) {
	var (
		result  *bill.Payment
		changed bool
	)
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		bills := s.bills.WithTx(tx)
		payment, err := bills.LockByCode(ctx, code)
		if err != nil {
			return err
		}
		switch payment.Status {
		case bill.StatusFailed:
			result = payment
			return nil
		case bill.StatusSuccess:
			return fmt.Errorf("bill %s is paid: %w", code, shared.ErrAlreadyTerminal)
		}

		payment.MarkFailed(reason)
		if err := bills.Update(ctx, payment); err != nil {
			return err
		}
		result, changed = payment, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("Bill payment failed", "bill_code", code, "reason", reason)
		s.notify(ctx, result, notification.EventBillFailed, "Bill payment failed")
	}
	return result, nil
}

// GetBill returns a bill. A non-nil owner hides other users' bills.
func (s *Service) GetBill(ctx context.Context, code string, owner *uuid.UUID) (*bill.Payment, error) {
	payment, err := s.bills.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if owner != nil && payment.UserID != *owner {
		return nil, bill.ErrPaymentNotFound{Code: code}
	}
	return payment, nil
}

func (s *Service) notify(ctx context.Context, p *bill.Payment, event, title string) {
	s.notifier.Dispatch(ctx, notification.Notification{
		UserID:  p.UserID.String(),
		Title:   title,
		Message: fmt.Sprintf("%s %s for %s: Rp %s", strings.ToUpper(p.Category), p.Code, p.CustomerNumber, p.TotalAmount.StringFixed(2)),
		Event:   event,
		Data:    map[string]interface{}{"bill_code": p.Code, "status": string(p.Status)},
	})
}
