package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ppob-wallet-ledger/internal/domain/provider"
)

const (
	StrategyPriority    = "priority"
	StrategyRoundRobin  = "round_robin"
	StrategyLeastErrors = "least_errors"
)

// Strategy picks one provider among eligible candidates. Candidates arrive
// sorted by priority then name and are never empty.
type Strategy interface {
	Select(category string, candidates []provider.Registration) provider.Registration
}

func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyPriority:
		return priorityStrategy{}, nil
	case StrategyRoundRobin:
		return &roundRobinStrategy{next: make(map[string]int)}, nil
	case StrategyLeastErrors:
		return leastErrorsStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", name)
	}
}

type priorityStrategy struct{}

func (priorityStrategy) Select(_ string, c []provider.Registration) provider.Registration {
	return c[0]
}

// roundRobinStrategy rotates per category.
type roundRobinStrategy struct {
	mu   sync.Mutex
	next map[string]int
}

func (s *roundRobinStrategy) Select(category string, c []provider.Registration) provider.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.next[category] % len(c)
	s.next[category] = i + 1
	return c[i]
}

type leastErrorsStrategy struct{}

func (leastErrorsStrategy) Select(_ string, c []provider.Registration) provider.Registration {
	best := c[0]
	for _, r := range c[1:] {
		if r.ErrorCount < best.ErrorCount {
			best = r
		}
	}
	return best
}

func sortByPriority(regs []provider.Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Priority != regs[j].Priority {
			return regs[i].Priority < regs[j].Priority
		}
		return regs[i].Name < regs[j].Name
	})
}
