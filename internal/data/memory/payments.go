package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/domain/settlement"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
	"github.com/ppob-wallet-ledger/internal/domain/transfer"
)

type transferRepo struct {
	s *Store
}

func (r *transferRepo) WithTx(pgx.Tx) transfer.Repository { return r }

func (r *transferRepo) Create(_ context.Context, t *transfer.Transfer) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.transfers[t.Code]; ok {
			return shared.ErrDuplicateRequest
		}
		d.transfers[t.Code] = *t
		return nil
	})
}

func (r *transferRepo) GetByCode(_ context.Context, code string) (*transfer.Transfer, error) {
	var (
		t  transfer.Transfer
		ok bool
	)
	r.s.read(func(d *state) { t, ok = d.transfers[code] })
	if !ok {
		return nil, transfer.ErrTransferNotFound{Code: code}
	}
	return &t, nil
}

type topupRepo struct {
	s *Store
}

func (r *topupRepo) WithTx(pgx.Tx) topup.Repository { return r }

func (r *topupRepo) Create(_ context.Context, req *topup.Request) error {
	return r.s.write(func(d *state) error {
		for _, existing := range d.topups {
			if req.GatewayOrderID != "" && existing.GatewayOrderID == req.GatewayOrderID {
				return shared.ErrDuplicateRequest
			}
		}
		d.topups[req.ID] = *req
		return nil
	})
}

func (r *topupRepo) GetByID(_ context.Context, id uuid.UUID) (*topup.Request, error) {
	var (
		req topup.Request
		ok  bool
	)
	r.s.read(func(d *state) { req, ok = d.topups[id] })
	if !ok {
		return nil, topup.ErrRequestNotFound{ID: id}
	}
	return &req, nil
}

func (r *topupRepo) GetByOrderID(_ context.Context, orderID string) (*topup.Request, error) {
	var found *topup.Request
	r.s.read(func(d *state) {
		for _, req := range d.topups {
			if orderID != "" && req.GatewayOrderID == orderID {
				req := req
				found = &req
				return
			}
		}
	})
	if found == nil {
		return nil, topup.ErrRequestNotFound{OrderID: orderID}
	}
	return found, nil
}

func (r *topupRepo) LockByID(ctx context.Context, id uuid.UUID) (*topup.Request, error) {
	return r.GetByID(ctx, id)
}

func (r *topupRepo) LockByOrderID(ctx context.Context, orderID string) (*topup.Request, error) {
	return r.GetByOrderID(ctx, orderID)
}

func (r *topupRepo) Update(_ context.Context, req *topup.Request) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.topups[req.ID]; !ok {
			return topup.ErrRequestNotFound{ID: req.ID}
		}
		d.topups[req.ID] = *req
		return nil
	})
}

func (r *topupRepo) ListByStatus(_ context.Context, status topup.Status, limit, offset int) ([]*topup.Request, int64, error) {
	var all []topup.Request
	r.s.read(func(d *state) {
		for _, req := range d.topups {
			if req.Status == status {
				all = append(all, req)
			}
		}
	})
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	var page []*topup.Request
	for i := offset; i < len(all) && (limit <= 0 || len(page) < limit); i++ {
		req := all[i]
		page = append(page, &req)
	}
	return page, int64(len(all)), nil
}

type billRepo struct {
	s *Store
}

func (r *billRepo) WithTx(pgx.Tx) bill.Repository { return r }

func (r *billRepo) Create(_ context.Context, p *bill.Payment) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.bills[p.Code]; ok {
			return shared.ErrDuplicateRequest
		}
		d.bills[p.Code] = *p
		return nil
	})
}

func (r *billRepo) GetByCode(_ context.Context, code string) (*bill.Payment, error) {
	var (
		p  bill.Payment
		ok bool
	)
	r.s.read(func(d *state) { p, ok = d.bills[code] })
	if !ok {
		return nil, bill.ErrPaymentNotFound{Code: code}
	}
	return &p, nil
}

func (r *billRepo) LockByCode(ctx context.Context, code string) (*bill.Payment, error) {
	return r.GetByCode(ctx, code)
}

func (r *billRepo) Update(_ context.Context, p *bill.Payment) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.bills[p.Code]; !ok {
			return bill.ErrPaymentNotFound{Code: p.Code}
		}
		d.bills[p.Code] = *p
		return nil
	})
}

type settlementRepo struct {
	s *Store
}

func (r *settlementRepo) WithTx(pgx.Tx) settlement.Repository { return r }

func (r *settlementRepo) Create(_ context.Context, rec *settlement.Record) error {
	return r.s.write(func(d *state) error {
		if existing, ok := d.settlements[rec.BillCode]; ok {
			if rec.ProviderReference != "" {
				existing.ProviderReference = rec.ProviderReference
				d.settlements[rec.BillCode] = existing
			}
			rec.ID = existing.ID
			rec.Status = existing.Status
			rec.Attempts = existing.Attempts
			return nil
		}
		d.nextSettlement++
		rec.ID = d.nextSettlement
		d.settlements[rec.BillCode] = *rec
		return nil
	})
}

func (r *settlementRepo) GetPending(_ context.Context, limit int) ([]*settlement.Record, error) {
	var all []settlement.Record
	r.s.read(func(d *state) {
		for _, rec := range d.settlements {
			if rec.Status == settlement.StatusPending {
				all = append(all, rec)
			}
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	var out []*settlement.Record
	for i := 0; i < len(all) && (limit <= 0 || i < limit); i++ {
		rec := all[i]
		out = append(out, &rec)
	}
	return out, nil
}

func (r *settlementRepo) GetByBillCode(_ context.Context, billCode string) (*settlement.Record, error) {
	var (
		rec settlement.Record
		ok  bool
	)
	r.s.read(func(d *state) { rec, ok = d.settlements[billCode] })
	if !ok {
		return nil, settlement.ErrRecordNotFound{BillCode: billCode}
	}
	return &rec, nil
}

func (r *settlementRepo) MarkSettled(_ context.Context, billCode string) error {
	return r.s.write(func(d *state) error {
		if rec, ok := d.settlements[billCode]; ok {
			rec.MarkSettled()
			d.settlements[billCode] = rec
		}
		return nil
	})
}

func (r *settlementRepo) MarkManualReview(_ context.Context, billCode, reason string) error {
	return r.s.write(func(d *state) error {
		rec, ok := d.settlements[billCode]
		if !ok {
			return settlement.ErrRecordNotFound{BillCode: billCode}
		}
		rec.MarkManualReview(reason)
		d.settlements[billCode] = rec
		return nil
	})
}

func (r *settlementRepo) IncrementAttempts(_ context.Context, id int64, lastErr string) error {
	return r.s.write(func(d *state) error {
		for code, rec := range d.settlements {
			if rec.ID == id {
				rec.IncrementAttempts(lastErr)
				d.settlements[code] = rec
				return nil
			}
		}
		return nil
	})
}

// Age shifts a settlement record's creation time; sweeper tests use it to
// order records deterministically.
func (s *Store) Age(billCode string, by time.Duration) {
	_ = s.write(func(d *state) error {
		if rec, ok := d.settlements[billCode]; ok {
			rec.CreatedAt = rec.CreatedAt.Add(-by)
			d.settlements[billCode] = rec
		}
		return nil
	})
}
