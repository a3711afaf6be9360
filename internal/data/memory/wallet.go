package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
)

var errNegativeBalance = errors.New("balance would violate users_balance_check")

type userRepo struct {
	s *Store
}

func (r *userRepo) WithTx(pgx.Tx) wallet.UserRepository { return r }

func (r *userRepo) Create(_ context.Context, u *wallet.User) error {
	return r.s.write(func(d *state) error {
		for _, existing := range d.users {
			if existing.Username == u.Username {
				return wallet.ErrDuplicateUsername{Username: u.Username}
			}
		}
		d.users[u.ID] = *u
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*wallet.User, error) {
	var (
		u  wallet.User
		ok bool
	)
	r.s.read(func(d *state) { u, ok = d.users[id] })
	if !ok {
		return nil, wallet.ErrUserNotFound{UserID: id}
	}
	return &u, nil
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*wallet.User, error) {
	var found *wallet.User
	r.s.read(func(d *state) {
		for _, u := range d.users {
			if u.Username == username {
				u := u
				found = &u
				return
			}
		}
	})
	if found == nil {
		return nil, wallet.ErrUserNotFound{Username: username}
	}
	return found, nil
}

func (r *userRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) UpdateBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.s.write(func(d *state) error {
		u, ok := d.users[id]
		if !ok {
			return wallet.ErrUserNotFound{UserID: id}
		}
		if balance.IsNegative() {
			return errNegativeBalance
		}
		u.Balance = balance
		d.users[id] = u
		return nil
	})
}

type txnRepo struct {
	s *Store
}

func (r *txnRepo) WithTx(pgx.Tx) wallet.TransactionRepository { return r }

func (r *txnRepo) Create(_ context.Context, txn *wallet.Transaction) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.txns[txn.Code]; ok {
			return shared.ErrDuplicateRequest
		}
		d.txns[txn.Code] = *txn
		d.txnOrder = append(d.txnOrder, txn.Code)
		return nil
	})
}

func (r *txnRepo) GetByCode(_ context.Context, code string) (*wallet.Transaction, error) {
	var (
		txn wallet.Transaction
		ok  bool
	)
	r.s.read(func(d *state) { txn, ok = d.txns[code] })
	if !ok {
		return nil, wallet.ErrTransactionNotFound{Code: code}
	}
	return &txn, nil
}

func (r *txnRepo) LockByCode(ctx context.Context, code string) (*wallet.Transaction, error) {
	return r.GetByCode(ctx, code)
}

func (r *txnRepo) UpdateStatus(_ context.Context, txn *wallet.Transaction) error {
	return r.s.write(func(d *state) error {
		cur, ok := d.txns[txn.Code]
		if !ok || cur.Status != wallet.TxPending {
			return wallet.ErrTransactionNotFound{Code: txn.Code}
		}
		cur.Status = txn.Status
		cur.BalanceBefore = txn.BalanceBefore
		cur.BalanceAfter = txn.BalanceAfter
		cur.UpdatedAt = txn.UpdatedAt
		d.txns[txn.Code] = cur
		return nil
	})
}

func matches(t wallet.Transaction, f wallet.TransactionFilter) bool {
	if f.UserID != uuid.Nil && t.UserID != f.UserID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// filtered returns matching rows, newest first. Rows created in the same
// instant keep reverse insertion order.
func (r *txnRepo) filtered(f wallet.TransactionFilter) []wallet.Transaction {
	var out []wallet.Transaction
	r.s.read(func(d *state) {
		for i := len(d.txnOrder) - 1; i >= 0; i-- {
			t := d.txns[d.txnOrder[i]]
			if matches(t, f) {
				out = append(out, t)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *txnRepo) List(_ context.Context, f wallet.TransactionFilter) ([]*wallet.Transaction, int64, error) {
	all := r.filtered(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	var page []*wallet.Transaction
	for i := f.Offset; i < len(all) && len(page) < limit; i++ {
		t := all[i]
		page = append(page, &t)
	}
	return page, int64(len(all)), nil
}

func (r *txnRepo) Summarize(_ context.Context, f wallet.TransactionFilter) (*wallet.Summary, error) {
	s := &wallet.Summary{TotalCredit: decimal.Zero, TotalDebit: decimal.Zero}
	for _, t := range r.filtered(f) {
		s.TotalCount++
		switch t.Status {
		case wallet.TxSuccess:
			s.SuccessCount++
			if t.Type.IsCredit() {
				s.TotalCredit = s.TotalCredit.Add(t.Amount)
			} else {
				s.TotalDebit = s.TotalDebit.Add(t.Amount)
			}
		case wallet.TxPending:
			s.PendingCount++
		case wallet.TxFailed:
			s.FailedCount++
		}
	}
	s.ComputeRate()
	return s, nil
}

func (r *txnRepo) SumSuccessDeltas(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range r.filtered(wallet.TransactionFilter{UserID: userID, Status: wallet.TxSuccess}) {
		sum = sum.Add(t.Type.Delta(t.Amount))
	}
	return sum, nil
}
