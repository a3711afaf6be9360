// Package topup runs the deposit state machine. Manual requests are settled by
// an admin; gateway requests are settled by the gateway's callback. A request
// leaves pending exactly once.
package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/ledger"
	"github.com/ppob-wallet-ledger/internal/notification"
	"github.com/ppob-wallet-ledger/internal/paymentgateway"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

// Workflow owns top-up request transitions.
type Workflow struct {
	db       persistence.TxRunner
	requests topup.Repository
	users    wallet.UserRepository
	ledger   *ledger.Engine
	gateway  paymentgateway.Client
	limits   config.LimitsConfig
	notifier notification.Dispatcher
	logger   *slog.Logger
}

type Options struct {
	DB       persistence.TxRunner
	Requests topup.Repository
	Users    wallet.UserRepository
	Ledger   *ledger.Engine
	Gateway  paymentgateway.Client
	Limits   config.LimitsConfig
	Notifier notification.Dispatcher
	Logger   *slog.Logger
}

func NewWorkflow(opts Options) *Workflow {
	if opts.Gateway == nil {
		opts.Gateway = paymentgateway.Disabled{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notification.NoopDispatcher{}
	}
	return &Workflow{
		db:       opts.DB,
		requests: opts.Requests,
		users:    opts.Users,
		ledger:   opts.Ledger,
		gateway:  opts.Gateway,
		limits:   opts.Limits,
		notifier: opts.Notifier,
		logger:   opts.Logger.With("component", "topup"),
	}
}

func (w *Workflow) checkAmount(amount decimal.Decimal) error {
	if err := shared.CheckAmount(amount); err != nil {
		return err
	}
	if w.limits.TopUpMin.IsPositive() && amount.LessThan(w.limits.TopUpMin) {
		return fmt.Errorf("top-up below the minimum of %s: %w", w.limits.TopUpMin.StringFixed(2), shared.ErrInvalidAmount)
	}
	if w.limits.TopUpMax.IsPositive() && amount.GreaterThan(w.limits.TopUpMax) {
		return fmt.Errorf("top-up above the maximum of %s: %w", w.limits.TopUpMax.StringFixed(2), shared.ErrInvalidAmount)
	}
	return nil
}

func newRequest(userID uuid.UUID, amount decimal.Decimal, method topup.Method) *topup.Request {
	now := time.Now().UTC()
	return &topup.Request{
		ID:        uuid.New(),
		Code:      shared.NewCode(shared.PrefixTopUp),
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Status:    topup.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateManualRequest records a deposit the user claims to have made by bank
// transfer, e-wallet or virtual account. It waits for an admin decision.
func (w *Workflow) CreateManualRequest(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method topup.Method, bankDetails map[string]string) (*topup.Request, error) {
	if !method.IsManual() {
		return nil, fmt.Errorf("payment method %q is not a manual method: %w", method, shared.ErrInvalidRequest)
	}
	if err := w.checkAmount(amount); err != nil {
		return nil, err
	}
	if _, err := w.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	req := newRequest(userID, amount, method)
	req.BankDetails = bankDetails
	if err := w.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	w.logger.Info("Manual top-up requested", "request_code", req.Code, "user_id", userID.String(), "amount", amount.String(), "method", string(method))
	return req, nil
}

// CreateGatewayRequest persists a pending request and opens a hosted payment
// page for it. If the gateway refuses, the request is marked failed.
func (w *Workflow) CreateGatewayRequest(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*topup.Request, string, error) {
	if err := w.checkAmount(amount); err != nil {
		return nil, "", err
	}
	user, err := w.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	req := newRequest(userID, amount, topup.MethodGateway)
	req.GatewayOrderID = shared.NewCode(shared.PrefixOrder)
	if err := w.requests.Create(ctx, req); err != nil {
		return nil, "", err
	}
	logger := w.logger.With("request_code", req.Code, "order_id", req.GatewayOrderID)

	session, err := w.gateway.CreatePaymentSession(ctx, req.GatewayOrderID, amount, paymentgateway.Customer{
		UserID:   userID.String(),
		Username: user.Username,
	})
	if err != nil {
		logger.Error("Payment session failed, marking top-up failed", "error", err)
		req.Settle(topup.StatusFailed, nil, "payment session failed: "+err.Error())
		if uerr := w.requests.Update(context.WithoutCancel(ctx), req); uerr != nil {
			logger.Error("Failed to mark top-up failed", "error", uerr)
		}
		return nil, "", fmt.Errorf("failed to create payment session: %w", err)
	}

	req.PaymentToken = session.Token
	req.PaymentURL = session.RedirectURL
	req.UpdatedAt = time.Now().UTC()
	if err := w.requests.Update(ctx, req); err != nil {
		return nil, "", err
	}

	logger.Info("Gateway top-up created", "user_id", userID.String(), "amount", amount.String())
	return req, session.RedirectURL, nil
}

// Approve credits a pending manual request. Approving an approved request
// returns it unchanged.
func (w *Workflow) Approve(ctx context.Context, requestID, adminID uuid.UUID, notes string) (*topup.Request, error) {
	var (
		result  *topup.Request
		changed bool
	)
	err := w.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		requests := w.requests.WithTx(tx)
		req, err := requests.LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.IsTerminal() {
			if req.Status != topup.StatusApproved {
				return fmt.Errorf("top-up %s is %s: %w", req.Code, req.Status, shared.ErrAlreadyTerminal)
			}
			result = req
			return nil
		}
		if !req.Method.IsManual() {
			return fmt.Errorf("gateway top-ups are settled by the gateway: %w", shared.ErrInvalidRequest)
		}

		txn, err := w.ledger.ApplyInTx(ctx, tx, ledger.ApplyRequest{
			UserID:      req.UserID,
			Type:        wallet.TxTopUpManual,
			Amount:      req.Amount,
			Description: "Top-up " + req.Code,
			ReferenceID: req.Code,
			Metadata:    map[string]interface{}{"payment_method": string(req.Method)},
		})
		if err != nil {
			return err
		}

		req.WalletTransactionID = &txn.ID
		req.Settle(topup.StatusApproved, &adminID, notes)
		if err := requests.Update(ctx, req); err != nil {
			return err
		}
		result, changed = req, true
		return nil
	})
	if err != nil {
		w.logger.Warn("Top-up approval failed", "request_id", requestID.String(), "error", err)
		return nil, err
	}

	if changed {
		w.logger.Info("Top-up approved", "request_code", result.Code, "admin_id", adminID.String(), "amount", result.Amount.String())
		w.notify(ctx, result, notification.EventTopUpSucceeded, "Top-up approved")
	}
	return result, nil
}

// Reject closes a pending manual request without touching the wallet.
func (w *Workflow) Reject(ctx context.Context, requestID, adminID uuid.UUID, notes string) (*topup.Request, error) {
	var (
		result  *topup.Request
		changed bool
	)
	err := w.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		requests := w.requests.WithTx(tx)
		req, err := requests.LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.IsTerminal() {
			if req.Status != topup.StatusRejected {
				return fmt.Errorf("top-up %s is %s: %w", req.Code, req.Status, shared.ErrAlreadyTerminal)
			}
			result = req
			return nil
		}
		if !req.Method.IsManual() {
			return fmt.Errorf("gateway top-ups are settled by the gateway: %w", shared.ErrInvalidRequest)
		}

		req.Settle(topup.StatusRejected, &adminID, notes)
		if err := requests.Update(ctx, req); err != nil {
			return err
		}
		result, changed = req, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		w.logger.Info("Top-up rejected", "request_code", result.Code, "admin_id", adminID.String())
		w.notify(ctx, result, notification.EventTopUpRejected, "Top-up rejected")
	}
	return result, nil
}

// Reconciliation reports what a gateway callback did to its request.
type Reconciliation struct {
	Request   *topup.Request
	Duplicate bool
}

// ReconcileGatewayCallback applies a verified gateway outcome. Callbacks for
// a request that already left pending are duplicates and change nothing.
func (w *Workflow) ReconcileGatewayCallback(ctx context.Context, orderID string, status topup.GatewayStatus) (*Reconciliation, error) {
	switch status {
	case topup.GatewaySuccess, topup.GatewayFailed, topup.GatewayPending:
	default:
		return nil, fmt.Errorf("unknown gateway status %q: %w", status, shared.ErrInvalidRequest)
	}

	var rec Reconciliation
	err := w.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		requests := w.requests.WithTx(tx)
		req, err := requests.LockByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		rec.Request = req

		if req.Status.IsTerminal() {
			rec.Duplicate = true
			if string(req.Status) != string(status) {
				w.logger.Warn("Gateway callback conflicts with settled top-up",
					"order_id", orderID, "status", string(req.Status), "callback_status", string(status))
			}
			return nil
		}

		switch status {
		case topup.GatewayPending:
			return nil
		case topup.GatewayFailed:
			req.Settle(topup.StatusFailed, nil, "gateway reported failure")
		case topup.GatewaySuccess:
			txn, err := w.ledger.ApplyInTx(ctx, tx, ledger.ApplyRequest{
				UserID:      req.UserID,
				Type:        wallet.TxTopUpGateway,
				Amount:      req.Amount,
				Description: "Top-up " + req.Code,
				ReferenceID: req.Code,
				Metadata:    map[string]interface{}{"gateway_order_id": orderID},
			})
			if err != nil {
				return err
			}
			req.WalletTransactionID = &txn.ID
			req.Settle(topup.StatusSuccess, nil, "")
		}
		return requests.Update(ctx, req)
	})
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			w.logger.Error("Gateway reconciliation failed", "order_id", orderID, "error", err)
		}
		return nil, err
	}

	if rec.Duplicate {
		w.logger.Info("Duplicate gateway callback", "order_id", orderID, "status", string(rec.Request.Status))
		return &rec, nil
	}

	switch rec.Request.Status {
	case topup.StatusSuccess:
		w.logger.Info("Gateway top-up credited", "order_id", orderID, "request_code", rec.Request.Code, "amount", rec.Request.Amount.String())
		w.notify(ctx, rec.Request, notification.EventTopUpSucceeded, "Top-up successful")
	case topup.StatusFailed:
		w.logger.Info("Gateway top-up failed", "order_id", orderID, "request_code", rec.Request.Code)
		w.notify(ctx, rec.Request, notification.EventTopUpFailed, "Top-up failed")
	}
	return &rec, nil
}

// Get returns a request. A non-nil owner hides other users' requests.
func (w *Workflow) Get(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*topup.Request, error) {
	req, err := w.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != nil && req.UserID != *owner {
		return nil, topup.ErrRequestNotFound{ID: id}
	}
	return req, nil
}

// List pages through requests in a status, oldest first.
func (w *Workflow) List(ctx context.Context, status topup.Status, limit, offset int) ([]*topup.Request, int64, error) {
	if status == "" {
		status = topup.StatusPending
	}
	return w.requests.ListByStatus(ctx, status, limit, offset)
}

func (w *Workflow) notify(ctx context.Context, req *topup.Request, event, title string) {
	w.notifier.Dispatch(ctx, notification.Notification{
		UserID:  req.UserID.String(),
		Title:   title,
		Message: fmt.Sprintf("Top-up %s of Rp %s is %s", req.Code, req.Amount.StringFixed(2), req.Status),
		Event:   event,
		Data:    map[string]interface{}{"request_code": req.Code},
	})
}
