// Package plans is the static catalog of subscription plans and one-time
// credit packs.
package plans

import (
	"fmt"

	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
)

var catalog = map[domain.PlanID]domain.PlanConfig{
	domain.PlanFree: {
		ID:                domain.PlanFree,
		Name:              "Free",
		DisplayName:       "Free Tier",
		MonthlyPrice:      decimal.Zero,
		YearlyPrice:       decimal.Zero,
		Credits:           domain.Capped(16),
		StorageIncludedMB: 50,
	},
	domain.PlanBasic: {
		ID:                domain.PlanBasic,
		Name:              "Basic",
		DisplayName:       "Basic Plan",
		MonthlyPrice:      decimal.RequireFromString("7.99"),
		YearlyPrice:       decimal.RequireFromString("79.99"),
		Credits:           domain.Capped(320),
		StorageIncludedMB: 250,
	},
	domain.PlanPro: {
		ID:                domain.PlanPro,
		Name:              "Popular",
		DisplayName:       "Popular Plan",
		MonthlyPrice:      decimal.RequireFromString("13.99"),
		YearlyPrice:       decimal.RequireFromString("139.99"),
		Credits:           domain.Capped(1800),
		StorageIncludedMB: 1024,
	},
	domain.PlanUltra: {
		ID:                domain.PlanUltra,
		Name:              "Pro",
		DisplayName:       "Pro Plan",
		MonthlyPrice:      decimal.RequireFromString("29.99"),
		YearlyPrice:       decimal.RequireFromString("299.99"),
		Credits:           domain.Unlimited(),
		StorageIncludedMB: 10240,
	},
}

var order = []domain.PlanID{domain.PlanFree, domain.PlanBasic, domain.PlanPro, domain.PlanUltra}

// Get returns the plan for id. Unknown or empty ids resolve to the free plan;
// use it for display and estimates only.
func Get(id domain.PlanID) domain.PlanConfig {
	if cfg, ok := catalog[domain.NormalizePlanID(string(id))]; ok {
		return cfg
	}
	return catalog[domain.PlanFree]
}

// Lookup returns the plan for id or ErrUnknownPlan. Crediting decisions must
// go through Lookup so an unknown id is never treated as free.
func Lookup(id domain.PlanID) (domain.PlanConfig, error) {
	cfg, ok := catalog[domain.NormalizePlanID(string(id))]
	if !ok {
		return domain.PlanConfig{}, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, string(id))
	}
	return cfg, nil
}

// All lists every plan in tier order.
func All() []domain.PlanConfig {
	out := make([]domain.PlanConfig, 0, len(order))
	for _, id := range order {
		out = append(out, catalog[id])
	}
	return out
}

// Paid reports whether id can be bought through a subscription checkout.
func Paid(id domain.PlanID) bool {
	cfg, err := Lookup(id)
	return err == nil && cfg.MonthlyPrice.IsPositive()
}
