package service

import (
	"context"

	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/orchestrator"
)

// providerService joins the live orchestrator, its health monitor and the
// admin approval queue behind one handler-facing interface.
type providerService struct {
	*orchestrator.Admin
	orch   *orchestrator.Orchestrator
	health *orchestrator.HealthMonitor
}

var _ ProviderService = (*providerService)(nil)

func NewProviderService(orch *orchestrator.Orchestrator, health *orchestrator.HealthMonitor, admin *orchestrator.Admin) ProviderService {
	return &providerService{Admin: admin, orch: orch, health: health}
}

func (s *providerService) Registrations() []provider.Registration {
	return s.orch.Registrations()
}

// CheckAll probes every active provider now and returns the refreshed state.
func (s *providerService) CheckAll(ctx context.Context) []provider.Registration {
	return s.health.CheckAll(ctx)
}
