package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

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

// WalletService is the ledger read and write surface. Implemented by
// *ledger.Engine.
type WalletService interface {
	Balance(ctx context.Context, userID uuid.UUID) (*wallet.User, error)
	History(ctx context.Context, filter wallet.TransactionFilter) ([]*wallet.Transaction, int64, error)
	Summary(ctx context.Context, filter wallet.TransactionFilter) (*wallet.Summary, error)
	Audit(ctx context.Context, userID uuid.UUID) (*ledger.AuditReport, error)
	OpenWallet(ctx context.Context, username, role string) (*wallet.User, error)

	// Confirm and Fail settle a pending wallet transaction by code.
	Confirm(ctx context.Context, code string) (*wallet.Transaction, error)
	Fail(ctx context.Context, code, reason string) (*wallet.Transaction, error)

	Transfer(ctx context.Context, senderID uuid.UUID, receiverUsername string, amount decimal.Decimal, description string) (*transfer.Transfer, error)
}

// TopUpService is implemented by the top-up workflow.
type TopUpService interface {
	CreateManualRequest(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method topup.Method, bankDetails map[string]string) (*topup.Request, error)
	CreateGatewayRequest(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*topup.Request, string, error)
	Approve(ctx context.Context, requestID, adminID uuid.UUID, notes string) (*topup.Request, error)
	Reject(ctx context.Context, requestID, adminID uuid.UUID, notes string) (*topup.Request, error)
	// Get hides requests of other users when owner is set.
	Get(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*topup.Request, error)
	List(ctx context.Context, status topup.Status, limit, offset int) ([]*topup.Request, int64, error)
}

// BillService is implemented by *settlement.Service.
type BillService interface {
	Inquiry(ctx context.Context, userID uuid.UUID, category, productCode, customerNumber string) (*orchestrator.Quote, error)
	Pay(ctx context.Context, req settlement.PayRequest) (*bill.Payment, error)
	GetBill(ctx context.Context, code string, owner *uuid.UUID) (*bill.Payment, error)
}

// ProviderService covers provider operations and the approval queue for
// provider and margin changes.
type ProviderService interface {
	Registrations() []provider.Registration
	CheckAll(ctx context.Context) []provider.Registration

	ProposeProviderChange(ctx context.Context, change provider.ConfigChange, requestedBy uuid.UUID) (*provider.ConfigChange, error)
	ReviewProviderChange(ctx context.Context, id, reviewer uuid.UUID, decision shared.ReviewStatus) (*provider.ConfigChange, error)
	ListProviderChanges(ctx context.Context, status shared.ReviewStatus) ([]*provider.ConfigChange, error)

	ProposeMargin(ctx context.Context, rule margin.Rule, requestedBy uuid.UUID) (*margin.Rule, error)
	ReviewMargin(ctx context.Context, id, reviewer uuid.UUID, decision shared.ReviewStatus) (*margin.Rule, error)
	ListMargins(ctx context.Context, status shared.ReviewStatus) ([]*margin.Rule, error)
}

// WebhookService is implemented by the webhook reconciler.
type WebhookService interface {
	HandleGateway(ctx context.Context, d inbound.Delivery) (*inbound.Result, error)
	HandleProvider(ctx context.Context, name string, d inbound.Delivery) (*inbound.Result, error)
}

// WebhookLogService lists stored deliveries for audit.
type WebhookLogService interface {
	List(ctx context.Context, filter webhook.LogFilter) ([]*webhook.Log, int64, error)
}
