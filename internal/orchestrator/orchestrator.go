// Package orchestrator routes bill inquiries and payments to a healthy
// provider, fails over once on error and prices quotes with margin rules.
// Provider health state lives here and nowhere else.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/platform/telemetry"
)

const tracerName = "github.com/ppob-wallet-ledger/internal/orchestrator"

type member struct {
	reg     provider.Registration
	handler provider.Handler
}

// Orchestrator owns provider registrations and the active margin table.
type Orchestrator struct {
	mu       sync.RWMutex
	members  map[string]*member
	margins  map[string]margin.Rule
	strategy Strategy
	timeout  time.Duration
	store    provider.RegistrationStore
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Options configures an Orchestrator.
type Options struct {
	Entries        []Entry
	Strategy       string
	AttemptTimeout time.Duration
	Store          provider.RegistrationStore
	Metrics        *telemetry.Metrics
	Logger         *slog.Logger
}

func New(opts Options) (*Orchestrator, error) {
	strategy, err := NewStrategy(opts.Strategy)
	if err != nil {
		return nil, err
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.Store == nil {
		opts.Store = provider.NoopRegistrationStore{}
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NoopMetrics()
	}

	members := make(map[string]*member, len(opts.Entries))
	for _, e := range opts.Entries {
		if _, dup := members[e.Registration.Name]; dup {
			return nil, fmt.Errorf("provider %q is registered twice", e.Registration.Name)
		}
		members[e.Registration.Name] = &member{reg: e.Registration, handler: e.Handler}
	}

	return &Orchestrator{
		members:  members,
		margins:  make(map[string]margin.Rule),
		strategy: strategy,
		timeout:  opts.AttemptTimeout,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "orchestrator"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Restore overlays persisted admin overrides (priority, activation, max
// errors) onto the configured providers. Unknown names are ignored.
func (o *Orchestrator) Restore(ctx context.Context) error {
	saved, err := o.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore provider registrations: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range saved {
		m, ok := o.members[s.Name]
		if !ok {
			continue
		}
		m.reg.Priority = s.Priority
		m.reg.Active = s.Active
		if s.MaxErrors > 0 {
			m.reg.MaxErrors = s.MaxErrors
		}
		if !s.Active {
			m.reg.Status = provider.StateDisabled
		} else if m.reg.Status == provider.StateDisabled {
			m.reg.Status = provider.StateHealthy
		}
		o.logger.Info("Restored provider override", "provider", s.Name, "priority", s.Priority, "active", s.Active)
	}
	return nil
}

// Registrations returns a snapshot ordered by priority then name.
func (o *Orchestrator) Registrations() []provider.Registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]provider.Registration, 0, len(o.members))
	for _, m := range o.members {
		out = append(out, m.reg)
	}
	sortByPriority(out)
	return out
}

// Registration returns one provider's current state.
func (o *Orchestrator) Registration(name string) (provider.Registration, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.members[name]
	if !ok {
		return provider.Registration{}, false
	}
	return m.reg, true
}

// Verifier returns the webhook verifier of a named provider.
func (o *Orchestrator) Verifier(name string) (provider.WebhookVerifier, error) {
	o.mu.RLock()
	m, ok := o.members[name]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, shared.ErrNotFound)
	}
	v, ok := m.handler.(provider.WebhookVerifier)
	if !ok {
		return nil, fmt.Errorf("provider %q does not accept webhooks: %w", name, shared.ErrNotFound)
	}
	return v, nil
}

// ApplyChange applies an approved configuration change to the live state.
func (o *Orchestrator) ApplyChange(change provider.ConfigChange) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.members[change.ProviderName]
	if !ok {
		return fmt.Errorf("provider %q: %w", change.ProviderName, shared.ErrNotFound)
	}
	change.Apply(&m.reg)
	return nil
}

// Persist writes the current registration snapshot to the store.
func (o *Orchestrator) Persist(ctx context.Context) error {
	if err := o.store.Upsert(ctx, o.Registrations()); err != nil {
		return fmt.Errorf("failed to persist provider registrations: %w", err)
	}
	return nil
}

// Quote asks an eligible provider for the bill and prices it.
func (o *Orchestrator) Quote(ctx context.Context, req provider.InquiryRequest) (*Quote, error) {
	name, info, err := execute(ctx, o, "inquiry", req.Category, "",
		func(ctx context.Context, h provider.Handler) (*provider.BillInfo, error) {
			info, err := h.Inquiry(ctx, req)
			if err == nil && info == nil {
				err = errors.New("empty inquiry response")
			}
			return info, err
		})
	if err != nil {
		return nil, err
	}
	return o.price(name, req, *info), nil
}

// PayOutcome names the provider that answered and what it said.
type PayOutcome struct {
	Provider string
	Result   provider.PaymentResult
}

// Pay sends the payment to preferred when it is still eligible, otherwise to
// the strategy's choice. A failed result is final and does not fail over.
func (o *Orchestrator) Pay(ctx context.Context, preferred string, req provider.PaymentRequest) (*PayOutcome, error) {
	name, result, err := execute(ctx, o, "pay", req.Category, preferred,
		func(ctx context.Context, h provider.Handler) (*provider.PaymentResult, error) {
			res, err := h.Pay(ctx, req)
			if err == nil && res == nil {
				err = errors.New("empty payment response")
			}
			return res, err
		})
	if err != nil {
		return nil, err
	}
	return &PayOutcome{Provider: name, Result: *result}, nil
}

// execute runs call on a selected provider and retries once on a different
// one. Every failure counts toward the provider's max errors.
func execute[T any](ctx context.Context, o *Orchestrator, op, category, preferred string, call func(context.Context, provider.Handler) (T, error)) (string, T, error) {
	var zero T

	first, handler, ok := o.pick(category, preferred, "")
	if !ok {
		return "", zero, fmt.Errorf("category %q: %w", category, shared.ErrNoProviderAvailable)
	}

	out, err := attempt(ctx, o, op, category, first, handler, call)
	if err == nil {
		return first, out, nil
	}
	if ctx.Err() != nil {
		return "", zero, &shared.ProviderError{Provider: first, Err: err}
	}

	second, handler, ok := o.pick(category, "", first)
	if !ok {
		return "", zero, &shared.ProviderError{Provider: first, Err: err}
	}

	o.logger.Warn("Failing over to next provider", "operation", op, "category", category, "from", first, "to", second, "error", err)
	o.metrics.ProviderFailovers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", first),
		attribute.String("to", second),
		attribute.String("operation", op),
	))

	out, err = attempt(ctx, o, op, category, second, handler, call)
	if err != nil {
		return "", zero, &shared.ProviderError{Provider: second, Err: err}
	}
	return second, out, nil
}

func (o *Orchestrator) pick(category, preferred, exclude string) (string, provider.Handler, bool) {
	o.mu.RLock()
	candidates := make([]provider.Registration, 0, len(o.members))
	for name, m := range o.members {
		if name == exclude || !m.reg.Eligible() || !m.reg.Supports(category) {
			continue
		}
		if name == preferred {
			o.mu.RUnlock()
			return name, m.handler, true
		}
		candidates = append(candidates, m.reg)
	}
	o.mu.RUnlock()

	if len(candidates) == 0 {
		return "", nil, false
	}
	sortByPriority(candidates)
	chosen := o.strategy.Select(category, candidates)

	o.mu.RLock()
	defer o.mu.RUnlock()
	return chosen.Name, o.members[chosen.Name].handler, true
}

type callResult[T any] struct {
	out T
	err error
}

// attempt bounds one provider call by the attempt timeout even when the
// handler ignores its context.
func attempt[T any](ctx context.Context, o *Orchestrator, op, category, name string, h provider.Handler, call func(context.Context, provider.Handler) (T, error)) (T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "provider."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.name", name),
			attribute.String("provider.category", category),
		),
	)
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult[T]{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		out, err := call(attemptCtx, h)
		done <- callResult[T]{out: out, err: err}
	}()

	var res callResult[T]
	select {
	case res = <-done:
	case <-attemptCtx.Done():
		res.err = fmt.Errorf("attempt timed out: %w", attemptCtx.Err())
	}

	outcome := "success"
	if res.err != nil {
		outcome = "error"
		if errors.Is(res.err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		o.recordFailure(name, res.err)
	} else {
		o.recordSuccess(name)
	}

	o.metrics.ProviderAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", name),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
	return res.out, res.err
}

func (o *Orchestrator) recordFailure(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.members[name]
	if !ok {
		return
	}
	m.reg.ErrorCount++
	m.reg.LastError = err.Error()
	if m.reg.ErrorCount >= m.reg.MaxErrors && m.reg.Status == provider.StateHealthy {
		m.reg.Status = provider.StateUnhealthy
		o.logger.Warn("Provider marked unhealthy", "provider", name, "error_count", m.reg.ErrorCount, "error", err)
	}
}

func (o *Orchestrator) recordSuccess(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.members[name]; ok {
		m.reg.ErrorCount = 0
		m.reg.LastError = ""
	}
}

// recordHealth stores a health check result. A passing check brings an
// unhealthy provider back; disabled providers are left alone.
func (o *Orchestrator) recordHealth(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.members[name]
	if !ok || m.reg.Status == provider.StateDisabled {
		return
	}
	now := o.now()
	m.reg.LastCheckedAt = &now

	if err == nil {
		if m.reg.Status == provider.StateUnhealthy {
			o.logger.Info("Provider recovered", "provider", name)
		}
		m.reg.Status = provider.StateHealthy
		m.reg.ErrorCount = 0
		m.reg.LastError = ""
		return
	}

	m.reg.ErrorCount++
	m.reg.LastError = err.Error()
	if m.reg.ErrorCount >= m.reg.MaxErrors && m.reg.Status == provider.StateHealthy {
		m.reg.Status = provider.StateUnhealthy
		o.logger.Warn("Provider failed health checks", "provider", name, "error_count", m.reg.ErrorCount, "error", err)
	}
}

// checkTargets returns the providers a health sweep should probe.
func (o *Orchestrator) checkTargets() map[string]provider.Handler {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]provider.Handler, len(o.members))
	for name, m := range o.members {
		if m.reg.Active {
			out[name] = m.handler
		}
	}
	return out
}
