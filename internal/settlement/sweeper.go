package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/settlement"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// Sweeper finishes pending settlement records left behind by crashes or
// transient database errors.
type Sweeper struct {
	service     *Service
	records     settlement.Repository
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewSweeper(cfg config.SettlementConfig, service *Service, records settlement.Repository, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		service:     service,
		records:     records,
		logger:      logger.With("component", "settlement_sweeper"),
		interval:    cfg.SweepInterval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Start sweeps on every tick until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting settlement sweeper",
		"sweep_interval", s.interval.String(),
		"batch_size", s.batchSize,
		"max_attempts", s.maxAttempts,
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Settlement sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Error during settlement sweep", "error", err)
			}
		}
	}
}

// SweepOnce completes one batch of pending records and returns how many
// were settled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	records, err := s.records.GetPending(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending settlements: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	s.logger.Info("Fetched pending settlements", "count", len(records))

	settled := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		logger := s.logger.With("bill_code", rec.BillCode, "settlement_id", rec.ID)

		_, err := s.service.Complete(ctx, rec.BillCode)
		switch {
		case err == nil:
			settled++
			continue
		case errors.Is(err, shared.ErrInsufficientBalance):
			// Complete already moved it to manual review.
			continue
		case errors.Is(err, shared.ErrAlreadyTerminal), errors.Is(err, shared.ErrNotFound):
			s.flag(ctx, rec, fmt.Sprintf("cannot settle: %v", err))
			continue
		}

		logger.Warn("Settlement attempt failed", "attempts", rec.Attempts+1, "error", err)
		if errInc := s.records.IncrementAttempts(ctx, rec.ID, err.Error()); errInc != nil {
			logger.Error("Failed to increment settlement attempts", "error", errInc)
			continue
		}
		if rec.Attempts+1 >= s.maxAttempts {
			s.flag(ctx, rec, fmt.Sprintf("max attempts reached: %v", err))
		}
	}
	return settled, nil
}

func (s *Sweeper) flag(ctx context.Context, rec *settlement.Record, reason string) {
	if err := s.records.MarkManualReview(ctx, rec.BillCode, reason); err != nil {
		s.logger.Error("Failed to mark settlement for manual review", "bill_code", rec.BillCode, "error", err)
		return
	}
	s.service.raiseManualReview(ctx, rec.BillCode, rec.Provider, rec.Amount, reason)
}
