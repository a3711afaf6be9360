package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

const topupColumns = `id, request_code, user_id, amount, payment_method, status, COALESCE(gateway_order_id, ''),
		COALESCE(payment_token, ''), COALESCE(payment_url, ''), bank_details, wallet_transaction_id, admin_notes,
		processed_by, processed_at, created_at, updated_at`

// TopUpRepository implements topup.Repository for PostgreSQL
type TopUpRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTopUpRepository(logger *slog.Logger, db *persistence.PostgresDB) topup.Repository {
	return &TopUpRepository{querier: db.Pool(), logger: logger}
}

func (r *TopUpRepository) WithTx(tx pgx.Tx) topup.Repository {
	return &TopUpRepository{querier: tx, logger: r.logger}
}

func (r *TopUpRepository) Create(ctx context.Context, req *topup.Request) error {
	query := `
		INSERT INTO topup_requests (id, request_code, user_id, amount, payment_method, status, gateway_order_id,
			payment_token, payment_url, bank_details, admin_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)
	`

	bankDetails, err := marshalJSON(req.BankDetails)
	if err != nil {
		return fmt.Errorf("failed to encode bank details: %w", err)
	}

	_, err = r.querier.Exec(ctx, query,
		req.ID,
		req.Code,
		req.UserID,
		req.Amount,
		string(req.Method),
		string(req.Status),
		req.GatewayOrderID,
		req.PaymentToken,
		req.PaymentURL,
		bankDetails,
		req.AdminNotes,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create top-up request", "code", req.Code, "error", err)
		return fmt.Errorf("failed to create top-up request: %w", err)
	}
	return nil
}

func (r *TopUpRepository) GetByID(ctx context.Context, id uuid.UUID) (*topup.Request, error) {
	query := `SELECT ` + topupColumns + ` FROM topup_requests WHERE id = $1`
	return r.getOne(ctx, query, id, topup.ErrRequestNotFound{ID: id})
}

func (r *TopUpRepository) GetByOrderID(ctx context.Context, orderID string) (*topup.Request, error) {
	query := `SELECT ` + topupColumns + ` FROM topup_requests WHERE gateway_order_id = $1`
	return r.getOne(ctx, query, orderID, topup.ErrRequestNotFound{OrderID: orderID})
}

func (r *TopUpRepository) LockByID(ctx context.Context, id uuid.UUID) (*topup.Request, error) {
	query := `SELECT ` + topupColumns + ` FROM topup_requests WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id, topup.ErrRequestNotFound{ID: id})
}

func (r *TopUpRepository) LockByOrderID(ctx context.Context, orderID string) (*topup.Request, error) {
	query := `SELECT ` + topupColumns + ` FROM topup_requests WHERE gateway_order_id = $1 FOR UPDATE`
	return r.getOne(ctx, query, orderID, topup.ErrRequestNotFound{OrderID: orderID})
}

func (r *TopUpRepository) getOne(ctx context.Context, query string, key interface{}, notFound error) (*topup.Request, error) {
	req, err := scanTopUp(r.querier.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		r.logger.Error("Failed to get top-up request", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get top-up request: %w", err)
	}
	return req, nil
}

// Update persists the mutable fields of a request
func (r *TopUpRepository) Update(ctx context.Context, req *topup.Request) error {
	query := `
		UPDATE topup_requests
		SET status = $1, payment_token = NULLIF($2, ''), payment_url = NULLIF($3, ''), wallet_transaction_id = $4,
			admin_notes = $5, processed_by = $6, processed_at = $7, updated_at = $8
		WHERE id = $9
	`

	result, err := r.querier.Exec(ctx, query,
		string(req.Status),
		req.PaymentToken,
		req.PaymentURL,
		req.WalletTransactionID,
		req.AdminNotes,
		req.ProcessedBy,
		req.ProcessedAt,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update top-up request", "id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to update top-up request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return topup.ErrRequestNotFound{ID: req.ID}
	}
	return nil
}

// ListByStatus returns requests in status, oldest first, for the admin review queue.
func (r *TopUpRepository) ListByStatus(ctx context.Context, status topup.Status, limit, offset int) ([]*topup.Request, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM topup_requests WHERE status = $1`
	if err := r.querier.QueryRow(ctx, countQuery, string(status)).Scan(&total); err != nil {
		r.logger.Error("Failed to count top-up requests", "status", status, "error", err)
		return nil, 0, fmt.Errorf("failed to count top-up requests: %w", err)
	}

	query := `
		SELECT ` + topupColumns + `
		FROM topup_requests
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.querier.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		r.logger.Error("Failed to list top-up requests", "status", status, "error", err)
		return nil, 0, fmt.Errorf("failed to list top-up requests: %w", err)
	}
	defer rows.Close()

	var out []*topup.Request
	for rows.Next() {
		req, err := scanTopUp(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan top-up request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating top-up requests: %w", err)
	}
	return out, total, nil
}

func scanTopUp(row pgx.Row) (*topup.Request, error) {
	var (
		req         topup.Request
		method      string
		status      string
		bankDetails []byte
	)
	err := row.Scan(
		&req.ID,
		&req.Code,
		&req.UserID,
		&req.Amount,
		&method,
		&status,
		&req.GatewayOrderID,
		&req.PaymentToken,
		&req.PaymentURL,
		&bankDetails,
		&req.WalletTransactionID,
		&req.AdminNotes,
		&req.ProcessedBy,
		&req.ProcessedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Method = topup.Method(method)
	req.Status = topup.Status(status)
	if len(bankDetails) > 0 {
		if err := json.Unmarshal(bankDetails, &req.BankDetails); err != nil {
			return nil, fmt.Errorf("failed to decode bank details: %w", err)
		}
	}
	return &req, nil
}
