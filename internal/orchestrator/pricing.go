package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// Quote is a priced bill. Total = BasePrice + Margin + AdminFee.
type Quote struct {
	Provider       string            `json:"provider"`
	Category       string            `json:"category"`
	ProductCode    string            `json:"product_code"`
	CustomerNumber string            `json:"customer_number"`
	Bill           provider.BillInfo `json:"bill"`
	BasePrice      decimal.Decimal   `json:"base_price"`
	Margin         decimal.Decimal   `json:"margin"`
	AdminFee       decimal.Decimal   `json:"admin_fee"`
	Total          decimal.Decimal   `json:"total"`
}

// LoadMargins replaces the active margin table with the approved rules in repo.
func (o *Orchestrator) LoadMargins(ctx context.Context, repo margin.Repository) error {
	rules, err := repo.ListApproved(ctx)
	if err != nil {
		return fmt.Errorf("failed to load margin rules: %w", err)
	}

	table := make(map[string]margin.Rule, len(rules))
	for _, r := range rules {
		table[r.Key()] = *r
	}

	o.mu.Lock()
	o.margins = table
	o.mu.Unlock()

	o.logger.Info("Margin rules loaded", "count", len(table))
	return nil
}

// ApplyMargin activates rule, replacing any rule in the same slot.
func (o *Orchestrator) ApplyMargin(rule margin.Rule) {
	o.mu.Lock()
	o.margins[rule.Key()] = rule
	o.mu.Unlock()
}

// Margins returns the active rules.
func (o *Orchestrator) Margins() []margin.Rule {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]margin.Rule, 0, len(o.margins))
	for _, r := range o.margins {
		out = append(out, r)
	}
	return out
}

// marginFor resolves product, then category, then global.
func (o *Orchestrator) marginFor(category, productCode string) (margin.Rule, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	keys := []string{
		margin.Rule{Scope: margin.ScopeProduct, ScopeValue: productCode}.Key(),
		margin.Rule{Scope: margin.ScopeCategory, ScopeValue: category}.Key(),
		margin.Rule{Scope: margin.ScopeGlobal}.Key(),
	}
	for _, k := range keys {
		if r, ok := o.margins[k]; ok {
			return r, true
		}
	}
	return margin.Rule{}, false
}

func (o *Orchestrator) price(providerName string, req provider.InquiryRequest, info provider.BillInfo) *Quote {
	// Provider prices are cut to the ledger scale before anything is summed so
	// the quoted total is exactly what gets debited.
	info.BasePrice = info.BasePrice.Round(shared.MoneyPlaces)
	info.AdminFee = info.AdminFee.Round(shared.MoneyPlaces)

	markup := decimal.Zero
	if rule, ok := o.marginFor(req.Category, req.ProductCode); ok {
		markup = rule.Amount(info.BasePrice)
	}
	return &Quote{
		Provider:       providerName,
		Category:       req.Category,
		ProductCode:    req.ProductCode,
		CustomerNumber: req.CustomerNumber,
		Bill:           info,
		BasePrice:      info.BasePrice,
		Margin:         markup,
		AdminFee:       info.AdminFee,
		Total:          info.BasePrice.Add(markup).Add(info.AdminFee),
	}
}
