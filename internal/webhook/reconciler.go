// Package webhook turns verified gateway and provider callbacks into the same
// transitions the synchronous paths use. Every delivery is stored before it is
// looked at.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/webhook"
	"github.com/ppob-wallet-ledger/internal/paymentgateway"
	"github.com/ppob-wallet-ledger/internal/platform/telemetry"
	"github.com/ppob-wallet-ledger/internal/settlement"
	topupflow "github.com/ppob-wallet-ledger/internal/topup"
)

// ErrLogUnavailable means the delivery could not be stored; the sender should
// retry.
var ErrLogUnavailable = errors.New("webhook log unavailable")

// VerifierSource resolves the webhook verifier of a named provider.
type VerifierSource interface {
	Verifier(name string) (provider.WebhookVerifier, error)
}

// Delivery is one inbound HTTP callback.
type Delivery struct {
	Method  string
	Headers http.Header
	Body    []byte
}

// Result is what happened to a stored delivery.
type Result struct {
	LogID   string          `json:"log_id"`
	Outcome webhook.Outcome `json:"outcome"`
	Detail  string          `json:"detail,omitempty"`
}

// Acknowledged reports whether the sender should stop retrying.
func (r *Result) Acknowledged() bool {
	return r.Outcome.Acknowledged()
}

type Reconciler struct {
	logs      webhook.LogRepository
	gateway   paymentgateway.Client
	topups    *topupflow.Workflow
	bills     *settlement.Service
	verifiers VerifierSource
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

type Options struct {
	Logs      webhook.LogRepository
	Gateway   paymentgateway.Client
	TopUps    *topupflow.Workflow
	Bills     *settlement.Service
	Verifiers VerifierSource
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

func NewReconciler(opts Options) *Reconciler {
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NoopMetrics()
	}
	return &Reconciler{
		logs:      opts.Logs,
		gateway:   opts.Gateway,
		topups:    opts.TopUps,
		bills:     opts.Bills,
		verifiers: opts.Verifiers,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "webhook_reconciler"),
	}
}

// HandleGateway reconciles a payment gateway callback.
func (r *Reconciler) HandleGateway(ctx context.Context, d Delivery) (*Result, error) {
	entry, err := r.store(ctx, webhook.SourceGateway, "", d)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	outcome, detail := r.reconcileGateway(ctx, d.Body)
	return r.finish(ctx, entry, outcome, detail), nil
}

func (r *Reconciler) reconcileGateway(ctx context.Context, body []byte) (webhook.Outcome, string) {
	cb, err := r.gateway.VerifyCallback(body)
	if err != nil {
		return webhook.OutcomeRejected, err.Error()
	}

	rec, err := r.topups.ReconcileGatewayCallback(ctx, cb.OrderID, cb.Status)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return webhook.OutcomeNotFound, "order " + cb.OrderID
	case errors.Is(err, shared.ErrInvalidRequest):
		return webhook.OutcomeRejected, err.Error()
	case err != nil:
		return webhook.OutcomeFailed, err.Error()
	case rec.Duplicate:
		return webhook.OutcomeDuplicate, fmt.Sprintf("order %s already %s", cb.OrderID, rec.Request.Status)
	}
	return webhook.OutcomeProcessed, fmt.Sprintf("order %s %s", cb.OrderID, rec.Request.Status)
}

// HandleProvider reconciles a bill provider callback.
func (r *Reconciler) HandleProvider(ctx context.Context, name string, d Delivery) (*Result, error) {
	entry, err := r.store(ctx, webhook.SourceProvider, name, d)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	outcome, detail := r.reconcileProvider(ctx, name, d)
	return r.finish(ctx, entry, outcome, detail), nil
}

func (r *Reconciler) reconcileProvider(ctx context.Context, name string, d Delivery) (webhook.Outcome, string) {
	verifier, err := r.verifiers.Verifier(name)
	if err != nil {
		return webhook.OutcomeRejected, err.Error()
	}
	n, err := verifier.VerifyWebhook(d.Headers, d.Body)
	if err != nil {
		return webhook.OutcomeRejected, err.Error()
	}

	payment, err := r.bills.GetBill(ctx, n.RefID, nil)
	if errors.Is(err, shared.ErrNotFound) {
		return webhook.OutcomeNotFound, "bill " + n.RefID
	}
	if err != nil {
		return webhook.OutcomeFailed, err.Error()
	}
	if payment.Provider != name {
		return webhook.OutcomeRejected, fmt.Sprintf("bill %s is routed to %s", n.RefID, payment.Provider)
	}
	if payment.Status.IsTerminal() {
		return webhook.OutcomeDuplicate, fmt.Sprintf("bill %s already %s", n.RefID, payment.Status)
	}

	switch n.Status {
	case provider.PaymentPending:
		return webhook.OutcomeProcessed, "bill " + n.RefID + " still pending"
	case provider.PaymentSuccess:
		_, err = r.bills.ConfirmProviderSuccess(ctx, n.RefID, name, n.ProviderRef)
	case provider.PaymentFailed:
		reason := n.Message
		if reason == "" {
			reason = "provider reported failure"
		}
		_, err = r.bills.FailPayment(ctx, n.RefID, reason)
	}

	switch {
	case errors.Is(err, shared.ErrAlreadyTerminal):
		return webhook.OutcomeDuplicate, err.Error()
	case err != nil:
		return webhook.OutcomeFailed, err.Error()
	}
	return webhook.OutcomeProcessed, fmt.Sprintf("bill %s %s", n.RefID, n.Status)
}

func (r *Reconciler) store(ctx context.Context, source webhook.Source, name string, d Delivery) (*webhook.Log, error) {
	entry := &webhook.Log{
		Source:   source,
		Provider: name,
		Method:   d.Method,
		Headers:  flatten(d.Headers),
		Body:     string(d.Body),
		Outcome:  webhook.OutcomeReceived,
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		r.logger.Error("Failed to store webhook delivery", "source", string(source), "provider", name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLogUnavailable, err)
	}
	return entry, nil
}

func (r *Reconciler) finish(ctx context.Context, entry *webhook.Log, outcome webhook.Outcome, detail string) *Result {
	if err := r.logs.UpdateOutcome(ctx, entry.ID, outcome, detail); err != nil {
		r.logger.Error("Failed to record webhook outcome", "log_id", entry.ID, "error", err)
	}
	r.metrics.WebhookNotifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", string(entry.Source)),
		attribute.String("outcome", string(outcome)),
	))

	logger := r.logger.With("log_id", entry.ID, "source", string(entry.Source), "outcome", string(outcome), "detail", detail)
	if entry.Provider != "" {
		logger = logger.With("provider", entry.Provider)
	}
	switch outcome {
	case webhook.OutcomeProcessed, webhook.OutcomeDuplicate:
		logger.Info("Webhook reconciled")
	case webhook.OutcomeFailed:
		logger.Error("Webhook processing failed")
	default:
		logger.Warn("Webhook not applied")
	}
	return &Result{LogID: entry.ID, Outcome: outcome, Detail: detail}
}

// flatten keeps the first value of each header; signature headers are single
// valued.
func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}
