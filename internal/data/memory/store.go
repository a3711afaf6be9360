// Package memory is an in-process implementation of the PostgreSQL
// repositories. ExecuteTx serializes transactions behind one mutex and
// restores a snapshot on rollback, which gives the same isolation the row
// locks give in PostgreSQL. It backs unit tests of the engines and handlers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/domain/settlement"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
	"github.com/ppob-wallet-ledger/internal/domain/transfer"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

type state struct {
	users          map[uuid.UUID]wallet.User
	txns           map[string]wallet.Transaction
	txnOrder       []string
	transfers      map[string]transfer.Transfer
	topups         map[uuid.UUID]topup.Request
	bills          map[string]bill.Payment
	settlements    map[string]settlement.Record
	nextSettlement int64
}

func newState() state {
	return state{
		users:       make(map[uuid.UUID]wallet.User),
		txns:        make(map[string]wallet.Transaction),
		transfers:   make(map[string]transfer.Transfer),
		topups:      make(map[uuid.UUID]topup.Request),
		bills:       make(map[string]bill.Payment),
		settlements: make(map[string]settlement.Record),
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	c.txnOrder = append([]string(nil), s.txnOrder...)
	for k, v := range s.transfers {
		c.transfers[k] = v
	}
	for k, v := range s.topups {
		c.topups[k] = v
	}
	for k, v := range s.bills {
		c.bills[k] = v
	}
	for k, v := range s.settlements {
		c.settlements[k] = v
	}
	c.nextSettlement = s.nextSettlement
	return c
}

// Store holds every relational table in memory.
type Store struct {
	// txMu is held for the whole of a transaction; dataMu guards the maps.
	txMu   sync.Mutex
	dataMu sync.Mutex
	data   state

	// FailCommit makes the next ExecuteTx roll back after fn succeeds.
	FailCommit error
}

var _ persistence.TxRunner = (*Store)(nil)

func NewStore() *Store {
	return &Store{data: newState()}
}

// memTx marks a repository view as running inside ExecuteTx.
type memTx struct {
	pgx.Tx
}

// ExecuteTx runs fn with exclusive access to the whole store, not per row:
// transactions on different users still run one at a time. Any error or
// panic discards fn's writes.
func (s *Store) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.dataMu.Lock()
	snapshot := s.data.clone()
	s.dataMu.Unlock()

	rollback := func() {
		s.dataMu.Lock()
		s.data = snapshot
		s.dataMu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(memTx{}); err != nil {
		rollback()
		return err
	}
	if s.FailCommit != nil {
		err = fmt.Errorf("failed to commit transaction: %w", s.FailCommit)
		s.FailCommit = nil
		rollback()
		return err
	}
	return nil
}

func (s *Store) read(fn func(d *state)) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	fn(&s.data)
}

func (s *Store) write(fn func(d *state) error) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return fn(&s.data)
}

// Users returns the user repository.
func (s *Store) Users() wallet.UserRepository { return &userRepo{s: s} }

// Transactions returns the wallet transaction repository.
func (s *Store) Transactions() wallet.TransactionRepository { return &txnRepo{s: s} }

// Transfers returns the transfer repository.
func (s *Store) Transfers() transfer.Repository { return &transferRepo{s: s} }

// TopUps returns the top-up request repository.
func (s *Store) TopUps() topup.Repository { return &topupRepo{s: s} }

// Bills returns the bill payment repository.
func (s *Store) Bills() bill.Repository { return &billRepo{s: s} }

// Settlements returns the pending settlement repository.
func (s *Store) Settlements() settlement.Repository { return &settlementRepo{s: s} }
