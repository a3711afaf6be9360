package ledger

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/transfer"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/notification"
)

// Transfer moves amount from sender to the user named receiverUsername. Both
// legs and the transfer row commit together or not at all.
func (e *Engine) Transfer(ctx context.Context, senderID uuid.UUID, receiverUsername string, amount decimal.Decimal, description string) (*transfer.Transfer, error) {
	if err := shared.CheckAmount(amount); err != nil {
		return nil, err
	}
	if e.transferMax.IsPositive() && amount.GreaterThan(e.transferMax) {
		return nil, fmt.Errorf("transfer exceeds the limit of %s: %w", e.transferMax.StringFixed(2), shared.ErrInvalidAmount)
	}

	receiver, err := e.users.GetByUsername(ctx, receiverUsername)
	if err != nil {
		return nil, err
	}
	if receiver.ID == senderID {
		return nil, shared.ErrSelfTransfer
	}

	code := shared.NewCode(shared.PrefixTransfer)
	logger := e.logger.With("transfer_code", code)

	var result *transfer.Transfer
	err = e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		users := e.users.WithTx(tx)
		for _, id := range lockOrder(senderID, receiver.ID) {
			if _, err := users.LockForUpdate(ctx, id); err != nil {
				return err
			}
		}

		debit, err := e.ApplyInTx(ctx, tx, ApplyRequest{
			UserID:      senderID,
			Type:        wallet.TxTransferSend,
			Amount:      amount,
			Description: description,
			ReferenceID: code,
			Metadata:    map[string]interface{}{"counterparty": receiver.Username},
		})
		if err != nil {
			return err
		}

		credit, err := e.ApplyInTx(ctx, tx, ApplyRequest{
			UserID:      receiver.ID,
			Type:        wallet.TxTransferReceive,
			Amount:      amount,
			Description: description,
			ReferenceID: code,
			Metadata:    map[string]interface{}{"counterparty": senderID.String()},
		})
		if err != nil {
			return err
		}

		t := &transfer.Transfer{
			ID:                    uuid.New(),
			Code:                  code,
			SenderID:              senderID,
			ReceiverID:            receiver.ID,
			Amount:                amount,
			Description:           description,
			Status:                transfer.StatusSuccess,
			SenderTransactionID:   debit.ID,
			ReceiverTransactionID: credit.ID,
			CreatedAt:             time.Now().UTC(),
		}
		if err := e.transfers.WithTx(tx).Create(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		if isBusiness(err) {
			logger.Warn("Transfer rejected", "sender_id", senderID.String(), "error", err)
		} else {
			logger.Error("Transfer failed", "sender_id", senderID.String(), "error", err)
		}
		return nil, err
	}

	logger.Info("Transfer completed",
		"sender_id", senderID.String(),
		"receiver_id", receiver.ID.String(),
		"amount", amount.String())

	e.notifier.Dispatch(ctx, notification.Notification{
		UserID:  senderID.String(),
		Title:   "Transfer sent",
		Message: fmt.Sprintf("You sent Rp %s to %s", amount.StringFixed(2), receiver.Username),
		Event:   notification.EventTransferSent,
		Data:    map[string]interface{}{"transfer_code": code},
	})
	e.notifier.Dispatch(ctx, notification.Notification{
		UserID:  receiver.ID.String(),
		Title:   "Transfer received",
		Message: fmt.Sprintf("You received Rp %s", amount.StringFixed(2)),
		Event:   notification.EventTransferReceived,
		Data:    map[string]interface{}{"transfer_code": code},
	})
	return result, nil
}

// lockOrder returns the ids in ascending byte order so concurrent transfers
// between the same pair cannot deadlock.
func lockOrder(a, b uuid.UUID) []uuid.UUID {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}
