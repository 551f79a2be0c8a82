package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"creditledger/internal/creditpolicy"
	"creditledger/internal/domain"
	"creditledger/internal/plans"
)

type planDTO struct {
	ID                domain.PlanID   `json:"id"`
	Name              string          `json:"name"`
	DisplayName       string          `json:"display_name"`
	MonthlyPrice      decimal.Decimal `json:"monthly_price"`
	YearlyPrice       decimal.Decimal `json:"yearly_price"`
	CreditsPerMonth   *int64          `json:"credits_per_month"`
	Unlimited         bool            `json:"unlimited"`
	StorageIncludedMB int64           `json:"storage_included_mb"`
	StorageIncluded   string          `json:"storage_included"`
}

type packDTO struct {
	Credits int64           `json:"credits"`
	Price   decimal.Decimal `json:"price"`
}

func toPlanDTO(p domain.PlanConfig) planDTO {
	dto := planDTO{
		ID:                p.ID,
		Name:              p.Name,
		DisplayName:       p.DisplayName,
		MonthlyPrice:      p.MonthlyPrice,
		YearlyPrice:       p.YearlyPrice,
		Unlimited:         p.IsUnlimited(),
		StorageIncludedMB: p.StorageIncludedMB,
		StorageIncluded:   creditpolicy.FormatStorage(float64(p.StorageIncludedMB)),
	}
	if n, ok := p.Credits.Limit(); ok {
		dto.CreditsPerMonth = &n
	}
	return dto
}

func (a *App) ListPlans(w http.ResponseWriter, r *http.Request) {
	all := plans.All()
	items := make([]planDTO, 0, len(all))
	for _, p := range all {
		items = append(items, toPlanDTO(p))
	}
	var packs []packDTO
	for _, p := range plans.Packs() {
		packs = append(packs, packDTO{Credits: p.Credits, Price: p.Price})
	}
	a.json(w, http.StatusOK, map[string]any{"plans": items, "credit_packs": packs})
}

// BillingEstimate previews the next charge. Unknown plans fall back to free.
func (a *App) BillingEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := domain.PeriodMonthly
	if raw := q.Get("billing_period"); raw != "" {
		p, err := domain.ParseBillingPeriod(raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		period = p
	}
	usedMB, ok := parseNonNegativeFloat(q.Get("used_mb"))
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "used_mb must be a non-negative number")
		return
	}
	planID := domain.PlanID(q.Get("plan_id"))
	est := creditpolicy.CalculateNextBillingEstimate(planID, period, usedMB)
	a.json(w, http.StatusOK, map[string]any{
		"plan":            toPlanDTO(plans.Get(planID)),
		"billing_period":  period,
		"base_cost":       est.BaseCost,
		"storage_overage": est.StorageOverage,
		"total":           est.Total,
		"breakdown":       est.Breakdown,
	})
}

// StorageStatus reports overage, warning level and upgrade prompt for a
// usage snapshot.
func (a *App) StorageStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	usedMB, ok := parseNonNegativeFloat(q.Get("used_mb"))
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "used_mb must be a non-negative number")
		return
	}
	var credits int64
	if raw := strings.TrimSpace(q.Get("credits")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "credits must be a non-negative integer")
			return
		}
		credits = n
	}
	plan := plans.Get(domain.PlanID(q.Get("plan_id")))
	included := float64(plan.StorageIncludedMB)
	overage := creditpolicy.CalculateStorageOverage(usedMB, included)
	prompt := creditpolicy.ShouldPromptUpgrade(plan.ID, usedMB, credits)
	a.json(w, http.StatusOK, map[string]any{
		"plan_id":        plan.ID,
		"used":           creditpolicy.FormatStorage(usedMB),
		"included":       creditpolicy.FormatStorage(included),
		"extra_mb":       overage.ExtraMB,
		"blocks_charged": overage.BlocksCharged,
		"overage_charge": overage.OverageCharge,
		"is_over_quota":  overage.IsOverQuota,
		"warning_level":  creditpolicy.GetStorageWarningLevel(usedMB, included),
		"upgrade_prompt": prompt,
	})
}

func parseNonNegativeFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
