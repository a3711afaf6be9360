package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ppob-wallet-ledger/internal/api_gateway/middleware"
	"github.com/ppob-wallet-ledger/internal/auth"
	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
	"github.com/ppob-wallet-ledger/internal/domain/transfer"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/domain/webhook"
	"github.com/ppob-wallet-ledger/internal/ledger"
	"github.com/ppob-wallet-ledger/internal/orchestrator"
	"github.com/ppob-wallet-ledger/internal/settlement"
	inbound "github.com/ppob-wallet-ledger/internal/webhook"
)

// result unpacks a pointer return the way every mock below needs it.
func result[T any](args mock.Arguments) (*T, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*T), args.Error(1)
}

type MockWalletService struct{ mock.Mock }

func (m *MockWalletService) Balance(ctx context.Context, userID uuid.UUID) (*wallet.User, error) {
	return result[wallet.User](m.Called(ctx, userID))
}

func (m *MockWalletService) History(ctx context.Context, filter wallet.TransactionFilter) ([]*wallet.Transaction, int64, error) {
	args := m.Called(ctx, filter)
	txns, _ := args.Get(0).([]*wallet.Transaction)
	return txns, args.Get(1).(int64), args.Error(2)
}

func (m *MockWalletService) Summary(ctx context.Context, filter wallet.TransactionFilter) (*wallet.Summary, error) {
	return result[wallet.Summary](m.Called(ctx, filter))
}

func (m *MockWalletService) Audit(ctx context.Context, userID uuid.UUID) (*ledger.AuditReport, error) {
	return result[ledger.AuditReport](m.Called(ctx, userID))
}

func (m *MockWalletService) OpenWallet(ctx context.Context, username, role string) (*wallet.User, error) {
	return result[wallet.User](m.Called(ctx, username, role))
}

func (m *MockWalletService) Confirm(ctx context.Context, code string) (*wallet.Transaction, error) {
	return result[wallet.Transaction](m.Called(ctx, code))
}

func (m *MockWalletService) Fail(ctx context.Context, code, reason string) (*wallet.Transaction, error) {
	return result[wallet.Transaction](m.Called(ctx, code, reason))
}

func (m *MockWalletService) Transfer(ctx context.Context, senderID uuid.UUID, receiverUsername string, amount decimal.Decimal, description string) (*transfer.Transfer, error) {
	return result[transfer.Transfer](m.Called(ctx, senderID, receiverUsername, amount, description))
}

type MockTopUpService struct{ mock.Mock }

func (m *MockTopUpService) CreateManualRequest(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method topup.Method, bankDetails map[string]string) (*topup.Request, error) {
	return result[topup.Request](m.Called(ctx, userID, amount, method, bankDetails))
}

func (m *MockTopUpService) CreateGatewayRequest(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*topup.Request, string, error) {
	args := m.Called(ctx, userID, amount)
	req, _ := args.Get(0).(*topup.Request)
	return req, args.String(1), args.Error(2)
}

func (m *MockTopUpService) Approve(ctx context.Context, requestID, adminID uuid.UUID, notes string) (*topup.Request, error) {
	return result[topup.Request](m.Called(ctx, requestID, adminID, notes))
}

func (m *MockTopUpService) Reject(ctx context.Context, requestID, adminID uuid.UUID, notes string) (*topup.Request, error) {
	return result[topup.Request](m.Called(ctx, requestID, adminID, notes))
}

func (m *MockTopUpService) Get(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*topup.Request, error) {
	return result[topup.Request](m.Called(ctx, id, owner))
}

func (m *MockTopUpService) List(ctx context.Context, status topup.Status, limit, offset int) ([]*topup.Request, int64, error) {
	args := m.Called(ctx, status, limit, offset)
	reqs, _ := args.Get(0).([]*topup.Request)
	return reqs, args.Get(1).(int64), args.Error(2)
}

type MockBillService struct{ mock.Mock }

func (m *MockBillService) Inquiry(ctx context.Context, userID uuid.UUID, category, productCode, customerNumber string) (*orchestrator.Quote, error) {
	return result[orchestrator.Quote](m.Called(ctx, userID, category, productCode, customerNumber))
}

func (m *MockBillService) Pay(ctx context.Context, req settlement.PayRequest) (*bill.Payment, error) {
	return result[bill.Payment](m.Called(ctx, req))
}

func (m *MockBillService) GetBill(ctx context.Context, code string, owner *uuid.UUID) (*bill.Payment, error) {
	return result[bill.Payment](m.Called(ctx, code, owner))
}

type MockProviderService struct{ mock.Mock }

func (m *MockProviderService) Registrations() []provider.Registration {
	return m.Called().Get(0).([]provider.Registration)
}

func (m *MockProviderService) CheckAll(ctx context.Context) []provider.Registration {
	return m.Called(ctx).Get(0).([]provider.Registration)
}

func (m *MockProviderService) ProposeProviderChange(ctx context.Context, change provider.ConfigChange, requestedBy uuid.UUID) (*provider.ConfigChange, error) {
	return result[provider.ConfigChange](m.Called(ctx, change, requestedBy))
}

func (m *MockProviderService) ReviewProviderChange(ctx context.Context, id, reviewer uuid.UUID, decision shared.ReviewStatus) (*provider.ConfigChange, error) {
	return result[provider.ConfigChange](m.Called(ctx, id, reviewer, decision))
}

func (m *MockProviderService) ListProviderChanges(ctx context.Context, status shared.ReviewStatus) ([]*provider.ConfigChange, error) {
	args := m.Called(ctx, status)
	changes, _ := args.Get(0).([]*provider.ConfigChange)
	return changes, args.Error(1)
}

func (m *MockProviderService) ProposeMargin(ctx context.Context, rule margin.Rule, requestedBy uuid.UUID) (*margin.Rule, error) {
	return result[margin.Rule](m.Called(ctx, rule, requestedBy))
}

func (m *MockProviderService) ReviewMargin(ctx context.Context, id, reviewer uuid.UUID, decision shared.ReviewStatus) (*margin.Rule, error) {
	return result[margin.Rule](m.Called(ctx, id, reviewer, decision))
}

func (m *MockProviderService) ListMargins(ctx context.Context, status shared.ReviewStatus) ([]*margin.Rule, error) {
	args := m.Called(ctx, status)
	rules, _ := args.Get(0).([]*margin.Rule)
	return rules, args.Error(1)
}

type MockWebhookService struct{ mock.Mock }

func (m *MockWebhookService) HandleGateway(ctx context.Context, d inbound.Delivery) (*inbound.Result, error) {
	return result[inbound.Result](m.Called(ctx, d))
}

func (m *MockWebhookService) HandleProvider(ctx context.Context, name string, d inbound.Delivery) (*inbound.Result, error) {
	return result[inbound.Result](m.Called(ctx, name, d))
}

type MockWebhookLogService struct{ mock.Mock }

func (m *MockWebhookLogService) List(ctx context.Context, filter webhook.LogFilter) ([]*webhook.Log, int64, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]*webhook.Log)
	return logs, args.Get(1).(int64), args.Error(2)
}

// fixedVerifier accepts any bearer token as the configured identity.
type fixedVerifier struct{ id auth.Identity }

func (v fixedVerifier) Verify(string) (auth.Identity, error) { return v.id, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestRouter authenticates every request as id.
func setupTestRouter(id auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Authenticate(fixedVerifier{id: id}))
	return r
}

func userIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Role: wallet.RoleUser}
}

func adminIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Role: wallet.RoleAdmin}
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// decode parses the envelope and returns its data and error parts.
func decode(t *testing.T, rr *httptest.ResponseRecorder) (map[string]interface{}, map[string]interface{}) {
	t.Helper()
	var body struct {
		Data  json.RawMessage        `json:"data"`
		Error map[string]interface{} `json:"error"`
		Meta  map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	var data map[string]interface{}
	if len(body.Data) > 0 && body.Data[0] == '{' {
		require.NoError(t, json.Unmarshal(body.Data, &data))
	}
	return data, body.Error
}
