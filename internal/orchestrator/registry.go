package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
)

// Factory builds the handler for one configured provider.
type Factory func(cfg config.ProviderConfig, logger *slog.Logger) (provider.Handler, error)

// Registry maps a provider kind to its factory.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return errors.New("provider kind and factory are required")
	}
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("provider kind %q is already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// Kinds lists the registered kinds in name order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Entry is a built provider together with its initial registration.
type Entry struct {
	Registration provider.Registration
	Handler      provider.Handler
}

// Build instantiates every configured provider. All configuration problems
// are reported together; nothing is returned unless every provider is valid.
func (r *Registry) Build(cfgs []config.ProviderConfig, defaultMaxErrors int, logger *slog.Logger) ([]Entry, error) {
	var (
		errs    []error
		entries = make([]Entry, 0, len(cfgs))
		seen    = make(map[string]bool, len(cfgs))
	)

	for _, cfg := range cfgs {
		if cfg.Name == "" {
			errs = append(errs, errors.New("provider without a name"))
			continue
		}
		if seen[cfg.Name] {
			errs = append(errs, fmt.Errorf("provider %q is declared twice", cfg.Name))
			continue
		}
		seen[cfg.Name] = true

		factory, ok := r.factories[cfg.Kind]
		if !ok {
			errs = append(errs, fmt.Errorf("provider %q has unknown kind %q", cfg.Name, cfg.Kind))
			continue
		}
		if len(cfg.Categories) == 0 {
			errs = append(errs, fmt.Errorf("provider %q declares no categories", cfg.Name))
			continue
		}
		maxErrors := cfg.MaxErrors
		if maxErrors == 0 {
			maxErrors = defaultMaxErrors
		}
		if maxErrors <= 0 {
			errs = append(errs, fmt.Errorf("provider %q needs a positive max errors", cfg.Name))
			continue
		}

		handler, err := factory(cfg, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %q: %w", cfg.Name, err))
			continue
		}

		status := provider.StateHealthy
		if !cfg.Active {
			status = provider.StateDisabled
		}
		entries = append(entries, Entry{
			Registration: provider.Registration{
				Name:       cfg.Name,
				Kind:       cfg.Kind,
				Priority:   cfg.Priority,
				Active:     cfg.Active,
				Status:     status,
				MaxErrors:  maxErrors,
				Categories: append([]string(nil), cfg.Categories...),
			},
			Handler: handler,
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return entries, nil
}
