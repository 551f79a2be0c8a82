// Package creditpolicy holds the pure credit and storage billing rules.
package creditpolicy

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/internal/plans"
)

const (
	// UnlimitedTopUp is granted per cycle on unlimited plans.
	UnlimitedTopUp int64 = 10000
	// StorageBlockMB is the overage billing granularity.
	StorageBlockMB = 250
	// LowCreditThreshold triggers the credits upgrade prompt.
	LowCreditThreshold int64 = 20
)

// StorageBlockPrice is charged per started overage block.
var StorageBlockPrice = decimal.NewFromInt(1)

// CalculateCreditsToAdd is the subscription rule: top the balance up to the
// plan cap, never reducing it. Unlimited plans get UnlimitedTopUp.
func CalculateCreditsToAdd(currentBalance int64, planMax domain.CreditCap) int64 {
	limit, capped := planMax.Limit()
	if !capped {
		return UnlimitedTopUp
	}
	if currentBalance >= limit {
		return 0
	}
	return limit - currentBalance
}

// AddCredits is the one-time purchase rule: purchased credits stack on top of
// the current balance without any cap.
func AddCredits(currentBalance, purchased int64) int64 {
	if purchased < 0 {
		purchased = 0
	}
	return currentBalance + purchased
}

// TopUpRule adapts CalculateCreditsToAdd to a ledger rule.
func TopUpRule(planMax domain.CreditCap) domain.CreditRule {
	return func(current int64) int64 { return CalculateCreditsToAdd(current, planMax) }
}

// AdditiveRule adapts AddCredits to a ledger rule.
func AdditiveRule(purchased int64) domain.CreditRule {
	return func(current int64) int64 { return AddCredits(current, purchased) - current }
}

// StorageOverage is the billable storage beyond a plan's included quota.
type StorageOverage struct {
	ExtraMB       float64         `json:"extra_mb"`
	BlocksCharged int64           `json:"blocks_charged"`
	OverageCharge decimal.Decimal `json:"overage_charge"`
	IsOverQuota   bool            `json:"is_over_quota"`
}

// CalculateStorageOverage bills every started 250 MB block over the quota.
func CalculateStorageOverage(usedMB, includedMB float64) StorageOverage {
	extra := math.Max(0, usedMB-includedMB)
	if extra == 0 {
		return StorageOverage{OverageCharge: decimal.Zero}
	}
	blocks := int64(math.Ceil(extra / StorageBlockMB))
	return StorageOverage{
		ExtraMB:       extra,
		BlocksCharged: blocks,
		OverageCharge: StorageBlockPrice.Mul(decimal.NewFromInt(blocks)),
		IsOverQuota:   true,
	}
}

// BillingEstimate is the next charge for a plan. Breakdown is display text.
type BillingEstimate struct {
	BaseCost       decimal.Decimal `json:"base_cost"`
	StorageOverage StorageOverage  `json:"storage_overage"`
	Total          decimal.Decimal `json:"total"`
	Breakdown      string          `json:"breakdown"`
}

// CalculateNextBillingEstimate prices the next invoice. Unknown plans resolve
// to free.
func CalculateNextBillingEstimate(planID domain.PlanID, period domain.BillingPeriod, usedStorageMB float64) BillingEstimate {
	plan := plans.Get(planID)
	base := plan.Price(period)
	overage := CalculateStorageOverage(usedStorageMB, float64(plan.StorageIncludedMB))

	breakdown := fmt.Sprintf("$%s (%s)", base.StringFixed(2), plan.DisplayName)
	if overage.IsOverQuota {
		breakdown += fmt.Sprintf(" + $%s (storage overage)", overage.OverageCharge.StringFixed(2))
	}
	return BillingEstimate{
		BaseCost:       base,
		StorageOverage: overage,
		Total:          base.Add(overage.OverageCharge),
		Breakdown:      breakdown,
	}
}

// WarningLevel grades storage usage against the quota.
type WarningLevel string

const (
	LevelOK       WarningLevel = "ok"
	LevelWarning  WarningLevel = "warning"
	LevelCritical WarningLevel = "critical"
	LevelOver     WarningLevel = "over"
)

// GetStorageWarningLevel applies the 0.75/0.9/1.0 thresholds; each tier
// includes its lower bound and exactly 1.0 is still critical.
func GetStorageWarningLevel(usedMB, includedMB float64) WarningLevel {
	if includedMB <= 0 {
		if usedMB > 0 {
			return LevelOver
		}
		return LevelOK
	}
	ratio := usedMB / includedMB
	switch {
	case ratio > 1.0:
		return LevelOver
	case ratio >= 0.9:
		return LevelCritical
	case ratio >= 0.75:
		return LevelWarning
	}
	return LevelOK
}

// UpgradePrompt is returned when a user should be nudged to a larger plan.
type UpgradePrompt struct {
	Show    bool   `json:"show"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// ShouldPromptUpgrade checks storage first, then low credits on capped plans.
func ShouldPromptUpgrade(planID domain.PlanID, usedStorageMB float64, credits int64) UpgradePrompt {
	plan := plans.Get(planID)
	included := float64(plan.StorageIncludedMB)
	if included > 0 && usedStorageMB/included >= 0.9 {
		return UpgradePrompt{
			Show:    true,
			Reason:  "storage",
			Message: fmt.Sprintf("Storage almost full (%s / %s). Upgrade for more space!", FormatStorage(usedStorageMB), FormatStorage(included)),
		}
	}
	if !plan.IsUnlimited() && credits <= LowCreditThreshold {
		return UpgradePrompt{
			Show:    true,
			Reason:  "credits",
			Message: fmt.Sprintf("Only %d credits left. Upgrade for more monthly credits!", credits),
		}
	}
	return UpgradePrompt{}
}

// FormatStorage renders megabytes as "N MB" or "X.Y GB".
func FormatStorage(mb float64) string {
	if mb >= 1024 {
		return fmt.Sprintf("%.1f GB", mb/1024)
	}
	return strconv.FormatFloat(mb, 'f', -1, 64) + " MB"
}
