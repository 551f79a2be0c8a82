package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PlanID identifies a subscription tier.
type PlanID string

const (
	PlanFree  PlanID = "free"
	PlanBasic PlanID = "basic"
	PlanPro   PlanID = "pro"
	PlanUltra PlanID = "ultra"
)

// NormalizePlanID lower-cases and trims a raw plan identifier.
func NormalizePlanID(raw string) PlanID {
	return PlanID(strings.ToLower(strings.TrimSpace(raw)))
}

// BillingPeriod is the recurring interval a subscription is charged on.
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "monthly"
	PeriodYearly  BillingPeriod = "yearly"
)

// ParseBillingPeriod accepts monthly/yearly (case-insensitive).
func ParseBillingPeriod(raw string) (BillingPeriod, error) {
	switch BillingPeriod(strings.ToLower(strings.TrimSpace(raw))) {
	case PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodYearly:
		return PeriodYearly, nil
	}
	return "", fmt.Errorf("unsupported billing period %q", raw)
}

// CreditCap is the monthly credit allowance of a plan: either Capped(n) or
// Unlimited. The zero value is Capped(0).
type CreditCap struct {
	limit     int64
	unlimited bool
}

// Capped returns an allowance topped up to at most n credits.
func Capped(n int64) CreditCap {
	if n < 0 {
		n = 0
	}
	return CreditCap{limit: n}
}

// Unlimited returns the unbounded allowance.
func Unlimited() CreditCap {
	return CreditCap{unlimited: true}
}

func (c CreditCap) IsUnlimited() bool { return c.unlimited }

// Limit returns the cap and false for unlimited allowances.
func (c CreditCap) Limit() (int64, bool) {
	if c.unlimited {
		return 0, false
	}
	return c.limit, true
}

// MetadataValue encodes the cap the way checkout metadata carries it ("-1" for unlimited).
func (c CreditCap) MetadataValue() string {
	if c.unlimited {
		return "-1"
	}
	return strconv.FormatInt(c.limit, 10)
}

func (c CreditCap) String() string {
	if c.unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(c.limit, 10)
}

// ParseCreditCap decodes the metadata encoding of a cap.
func ParseCreditCap(raw string) (CreditCap, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CreditCap{}, fmt.Errorf("empty credit cap")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return CreditCap{}, fmt.Errorf("parse credit cap %q: %w", raw, err)
	}
	switch {
	case n == -1:
		return Unlimited(), nil
	case n < 0:
		return CreditCap{}, fmt.Errorf("negative credit cap %d", n)
	}
	return Capped(n), nil
}

// PlanConfig is the static pricing and quota definition of a plan.
type PlanConfig struct {
	ID                PlanID
	Name              string
	DisplayName       string
	MonthlyPrice      decimal.Decimal
	YearlyPrice       decimal.Decimal
	Credits           CreditCap
	StorageIncludedMB int64
}

// IsUnlimited reports whether the plan grants unlimited credits.
func (p PlanConfig) IsUnlimited() bool { return p.Credits.IsUnlimited() }

// Price returns the plan price for the billing period, defaulting to monthly.
func (p PlanConfig) Price(period BillingPeriod) decimal.Decimal {
	if period == PeriodYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// CreditPack is a fixed one-time credit bundle.
type CreditPack struct {
	Credits int64
	Price   decimal.Decimal
}
