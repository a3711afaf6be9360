package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHandler answers with fixed values and counts calls.
type fakeHandler struct {
	price     decimal.Decimal
	fee       decimal.Decimal
	payStatus provider.PaymentStatus
	err       error
	healthErr error
	delay     time.Duration
	calls     atomic.Int32
}

func (f *fakeHandler) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeHandler) Inquiry(ctx context.Context, req provider.InquiryRequest) (*provider.BillInfo, error) {
	f.calls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.BillInfo{CustomerName: "BUDI", BasePrice: f.price, AdminFee: f.fee}, nil
}

func (f *fakeHandler) Pay(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	f.calls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	status := f.payStatus
	if status == "" {
		status = provider.PaymentSuccess
	}
	return &provider.PaymentResult{Status: status, ProviderRef: "REF-" + req.RefID}, nil
}

func (f *fakeHandler) SupportedCategories() []string { return []string{"pln"} }

func (f *fakeHandler) HealthCheck(context.Context) error { return f.healthErr }

func entry(name string, priority, maxErrors int, h provider.Handler) Entry {
	return Entry{
		Registration: provider.Registration{
			Name:       name,
			Kind:       "fake",
			Priority:   priority,
			Active:     true,
			Status:     provider.StateHealthy,
			MaxErrors:  maxErrors,
			Categories: []string{"pln"},
		},
		Handler: h,
	}
}

func newTestOrchestrator(t *testing.T, strategy string, entries ...Entry) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Entries:        entries,
		Strategy:       strategy,
		AttemptTimeout: 200 * time.Millisecond,
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	return o
}

func payReq() provider.PaymentRequest {
	return provider.PaymentRequest{Category: "pln", ProductCode: "PLN50", CustomerNumber: "5123", RefID: "BILL-1", Amount: decimal.NewFromInt(55000)}
}

func TestQuote_AppliesGlobalMargin(t *testing.T) {
	alpha := &fakeHandler{price: decimal.NewFromInt(50000)}
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, alpha))
	o.ApplyMargin(margin.Rule{Scope: margin.ScopeGlobal, Type: margin.TypePercentage, Value: decimal.NewFromInt(10)})

	q, err := o.Quote(context.Background(), provider.InquiryRequest{Category: "pln", ProductCode: "PLN50", CustomerNumber: "5123"})
	require.NoError(t, err)

	assert.Equal(t, "alpha", q.Provider)
	assert.Equal(t, "50000", q.BasePrice.String())
	assert.Equal(t, "5000", q.Margin.String())
	assert.Equal(t, "55000", q.Total.String())
}

func TestQuote_RoundsProviderPricesToCents(t *testing.T) {
	h := &fakeHandler{price: decimal.RequireFromString("10000.555"), fee: decimal.RequireFromString("2500.004")}
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, h))

	q, err := o.Quote(context.Background(), provider.InquiryRequest{Category: "pln", ProductCode: "PLN10"})
	require.NoError(t, err)

	assert.Equal(t, "10000.56", q.BasePrice.String())
	assert.Equal(t, "2500", q.AdminFee.String())
	assert.Equal(t, "12500.56", q.Total.String())
	assert.NoError(t, shared.CheckAmount(q.Total))
}

func TestQuote_MarginPrecedence(t *testing.T) {
	h := &fakeHandler{price: decimal.NewFromInt(20000), fee: decimal.NewFromInt(2500)}
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, h))
	o.ApplyMargin(margin.Rule{Scope: margin.ScopeGlobal, Type: margin.TypePercentage, Value: decimal.NewFromInt(10)})
	o.ApplyMargin(margin.Rule{Scope: margin.ScopeCategory, ScopeValue: "pln", Type: margin.TypeFixed, Value: decimal.NewFromInt(1500)})
	o.ApplyMargin(margin.Rule{Scope: margin.ScopeProduct, ScopeValue: "PLN20", Type: margin.TypeFixed, Value: decimal.NewFromInt(700)})

	ctx := context.Background()

	q, err := o.Quote(ctx, provider.InquiryRequest{Category: "pln", ProductCode: "PLN20"})
	require.NoError(t, err)
	assert.Equal(t, "700", q.Margin.String())
	assert.Equal(t, "23200", q.Total.String())

	q, err = o.Quote(ctx, provider.InquiryRequest{Category: "pln", ProductCode: "PLN100"})
	require.NoError(t, err)
	assert.Equal(t, "1500", q.Margin.String(), "category rule beats global")

	o.ApplyMargin(margin.Rule{Scope: margin.ScopeCategory, ScopeValue: "pln", Type: margin.TypeFixed, Value: decimal.NewFromInt(900)})
	q, err = o.Quote(ctx, provider.InquiryRequest{Category: "pln", ProductCode: "PLN100"})
	require.NoError(t, err)
	assert.Equal(t, "900", q.Margin.String(), "newer rule replaces the same slot")
}

func TestQuote_NoMargin(t *testing.T) {
	h := &fakeHandler{price: decimal.NewFromInt(10000), fee: decimal.NewFromInt(500)}
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, h))

	q, err := o.Quote(context.Background(), provider.InquiryRequest{Category: "pln"})
	require.NoError(t, err)
	assert.True(t, q.Margin.IsZero())
	assert.Equal(t, "10500", q.Total.String())
}

func TestPay_FailsOverAcrossThreeProviders(t *testing.T) {
	alpha := &fakeHandler{err: errors.New("connection refused")}
	beta := &fakeHandler{}
	gamma := &fakeHandler{}
	o := newTestOrchestrator(t, StrategyPriority,
		entry("alpha", 1, 1, alpha),
		entry("beta", 2, 3, beta),
		entry("gamma", 3, 3, gamma),
	)
	ctx := context.Background()

	out, err := o.Pay(ctx, "", payReq())
	require.NoError(t, err)
	assert.Equal(t, "beta", out.Provider)
	assert.Equal(t, provider.PaymentSuccess, out.Result.Status)
	assert.Equal(t, int32(1), alpha.calls.Load())
	assert.Equal(t, int32(0), gamma.calls.Load())

	reg, _ := o.Registration("alpha")
	assert.Equal(t, provider.StateUnhealthy, reg.Status)
	assert.Equal(t, 1, reg.ErrorCount)
	assert.Equal(t, "connection refused", reg.LastError)

	// alpha is out of rotation now, so beta is tried first
	out, err = o.Pay(ctx, "", payReq())
	require.NoError(t, err)
	assert.Equal(t, "beta", out.Provider)
	assert.Equal(t, int32(1), alpha.calls.Load())
}

func TestPay_OnlyOneFallbackHop(t *testing.T) {
	alpha := &fakeHandler{err: errors.New("alpha down")}
	beta := &fakeHandler{err: errors.New("beta down")}
	gamma := &fakeHandler{}
	o := newTestOrchestrator(t, StrategyPriority,
		entry("alpha", 1, 3, alpha),
		entry("beta", 2, 3, beta),
		entry("gamma", 3, 3, gamma),
	)

	_, err := o.Pay(context.Background(), "", payReq())
	require.Error(t, err)

	var perr *shared.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "beta", perr.Provider)
	assert.EqualError(t, perr.Err, "beta down")
	assert.Equal(t, int32(0), gamma.calls.Load())

	reg, _ := o.Registration("alpha")
	assert.Equal(t, provider.StateHealthy, reg.Status, "below max errors stays healthy")
	assert.Equal(t, 1, reg.ErrorCount)
}

func TestPay_SuccessResetsErrorCount(t *testing.T) {
	alpha := &fakeHandler{err: errors.New("flaky")}
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 5, alpha))
	ctx := context.Background()

	_, err := o.Pay(ctx, "", payReq())
	require.Error(t, err)
	reg, _ := o.Registration("alpha")
	assert.Equal(t, 1, reg.ErrorCount)

	alpha.err = nil
	_, err = o.Pay(ctx, "", payReq())
	require.NoError(t, err)
	reg, _ = o.Registration("alpha")
	assert.Equal(t, 0, reg.ErrorCount)
}

func TestPay_FailedResultDoesNotFailOver(t *testing.T) {
	alpha := &fakeHandler{payStatus: provider.PaymentFailed}
	beta := &fakeHandler{}
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, alpha), entry("beta", 2, 3, beta))

	out, err := o.Pay(context.Background(), "", payReq())
	require.NoError(t, err)
	assert.Equal(t, "alpha", out.Provider)
	assert.Equal(t, provider.PaymentFailed, out.Result.Status)
	assert.Equal(t, int32(0), beta.calls.Load())
}

func TestPay_TimeoutFailsOver(t *testing.T) {
	slow := &fakeHandler{delay: 2 * time.Second}
	fast := &fakeHandler{}
	o := newTestOrchestrator(t, StrategyPriority, entry("slow", 1, 3, slow), entry("fast", 2, 3, fast))

	start := time.Now()
	out, err := o.Pay(context.Background(), "", payReq())
	require.NoError(t, err)
	assert.Equal(t, "fast", out.Provider)
	assert.Less(t, time.Since(start), time.Second)

	reg, _ := o.Registration("slow")
	assert.Equal(t, 1, reg.ErrorCount)
}

func TestPay_PreferredProvider(t *testing.T) {
	alpha := &fakeHandler{}
	beta := &fakeHandler{}
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, alpha), entry("beta", 2, 3, beta))

	out, err := o.Pay(context.Background(), "beta", payReq())
	require.NoError(t, err)
	assert.Equal(t, "beta", out.Provider)
	assert.Equal(t, int32(0), alpha.calls.Load())
}

func TestPay_NoProviderAvailable(t *testing.T) {
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, &fakeHandler{}))

	_, err := o.Pay(context.Background(), "", provider.PaymentRequest{Category: "bpjs"})
	assert.ErrorIs(t, err, shared.ErrNoProviderAvailable)

	off := false
	require.NoError(t, o.ApplyChange(provider.ConfigChange{ProviderName: "alpha", Active: &off}))
	_, err = o.Pay(context.Background(), "", payReq())
	assert.ErrorIs(t, err, shared.ErrNoProviderAvailable)
}

func TestStrategies(t *testing.T) {
	t.Run("priority ties broken by name", func(t *testing.T) {
		o := newTestOrchestrator(t, StrategyPriority,
			entry("zeta", 1, 3, &fakeHandler{}),
			entry("alpha", 1, 3, &fakeHandler{}),
		)
		out, err := o.Pay(context.Background(), "", payReq())
		require.NoError(t, err)
		assert.Equal(t, "alpha", out.Provider)
	})

	t.Run("round robin rotates", func(t *testing.T) {
		o := newTestOrchestrator(t, StrategyRoundRobin,
			entry("alpha", 1, 3, &fakeHandler{}),
			entry("beta", 2, 3, &fakeHandler{}),
		)
		var got []string
		for i := 0; i < 4; i++ {
			out, err := o.Pay(context.Background(), "", payReq())
			require.NoError(t, err)
			got = append(got, out.Provider)
		}
		assert.Equal(t, []string{"alpha", "beta", "alpha", "beta"}, got)
	})

	t.Run("least errors", func(t *testing.T) {
		flaky := &fakeHandler{err: errors.New("boom")}
		steady := &fakeHandler{}
		o := newTestOrchestrator(t, StrategyLeastErrors,
			entry("alpha", 1, 10, flaky),
			entry("beta", 2, 10, steady),
		)
		out, err := o.Pay(context.Background(), "", payReq())
		require.NoError(t, err)
		assert.Equal(t, "beta", out.Provider, "alpha fails, beta takes the fallback")

		flaky.err = nil
		out, err = o.Pay(context.Background(), "", payReq())
		require.NoError(t, err)
		assert.Equal(t, "beta", out.Provider, "alpha still carries an error")
	})

	_, err := NewStrategy("random")
	assert.Error(t, err)
}

func TestRegistry_Build(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("fake", func(cfg config.ProviderConfig, _ *slog.Logger) (provider.Handler, error) {
		return &fakeHandler{}, nil
	}))

	entries, err := reg.Build([]config.ProviderConfig{
		{Name: "alpha", Kind: "fake", Priority: 2, Categories: []string{"pln"}, Active: true},
		{Name: "beta", Kind: "fake", Priority: 1, Categories: []string{"pln"}, MaxErrors: 7, Active: false},
	}, 3, testLogger())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Registration.MaxErrors)
	assert.Equal(t, provider.StateHealthy, entries[0].Registration.Status)
	assert.Equal(t, 7, entries[1].Registration.MaxErrors)
	assert.Equal(t, provider.StateDisabled, entries[1].Registration.Status)

	_, err = reg.Build([]config.ProviderConfig{
		{Name: "alpha", Kind: "ftp", Categories: []string{"pln"}},
		{Name: "beta", Kind: "fake"},
		{Name: "gamma", Kind: "fake", Categories: []string{"pln"}, MaxErrors: -1},
		{Name: "delta", Kind: "fake", Categories: []string{"pln"}},
		{Name: "delta", Kind: "fake", Categories: []string{"pln"}},
	}, 3, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown kind "ftp"`)
	assert.Contains(t, err.Error(), `"beta" declares no categories`)
	assert.Contains(t, err.Error(), `"gamma" needs a positive max errors`)
	assert.Contains(t, err.Error(), `"delta" is declared twice`)

	assert.Error(t, reg.Register("fake", nil))
}

func TestVerifier(t *testing.T) {
	o := newTestOrchestrator(t, StrategyPriority, entry("alpha", 1, 3, &fakeHandler{}))

	_, err := o.Verifier("alpha")
	assert.ErrorIs(t, err, shared.ErrNotFound, "fake handler accepts no webhooks")

	_, err = o.Verifier("nobody")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
