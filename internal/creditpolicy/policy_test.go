package creditpolicy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"creditledger/internal/domain"
)

func TestCalculateCreditsToAdd(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		cap     domain.CreditCap
		want    int64
	}{
		{"empty balance tops up to cap", 0, domain.Capped(1800), 1800},
		{"partial balance tops up", 500, domain.Capped(1800), 1300},
		{"at cap grants nothing", 1800, domain.Capped(1800), 0},
		{"above cap never reduces", 2000, domain.Capped(1800), 0},
		{"unlimited from zero", 0, domain.Unlimited(), UnlimitedTopUp},
		{"unlimited from large balance", 999999, domain.Unlimited(), UnlimitedTopUp},
		{"zero cap", 10, domain.Capped(0), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateCreditsToAdd(tc.balance, tc.cap))
		})
	}
}

func TestTopUpReachesMaxOfBalanceAndCap(t *testing.T) {
	for _, limit := range []int64{0, 16, 320, 1800} {
		for _, balance := range []int64{0, 1, 15, 16, 319, 320, 1799, 1800, 5000} {
			got := CalculateCreditsToAdd(balance, domain.Capped(limit))
			assert.GreaterOrEqual(t, got, int64(0))
			assert.Equal(t, max(balance, limit), balance+got, "balance=%d cap=%d", balance, limit)
		}
	}
}

func TestOneTimePurchaseIsAdditive(t *testing.T) {
	assert.Equal(t, int64(1880), AddCredits(1800, 80))
	assert.Equal(t, int64(80), AdditiveRule(80)(1800))
	assert.Equal(t, int64(0), TopUpRule(domain.Capped(1800))(1800))
	assert.Equal(t, int64(1800), AddCredits(1800, -5))
}

func TestCalculateStorageOverage(t *testing.T) {
	o := CalculateStorageOverage(300, 250)
	assert.Equal(t, 50.0, o.ExtraMB)
	assert.Equal(t, int64(1), o.BlocksCharged)
	assert.True(t, o.OverageCharge.Equal(decimal.NewFromInt(1)))
	assert.True(t, o.IsOverQuota)

	o = CalculateStorageOverage(250, 250)
	assert.False(t, o.IsOverQuota)
	assert.Zero(t, o.BlocksCharged)
	assert.True(t, o.OverageCharge.IsZero())

	o = CalculateStorageOverage(100, 250)
	assert.Zero(t, o.ExtraMB)

	o = CalculateStorageOverage(751, 250)
	assert.Equal(t, int64(3), o.BlocksCharged)
	o = CalculateStorageOverage(750, 250)
	assert.Equal(t, int64(2), o.BlocksCharged)
}

func TestGetStorageWarningLevel(t *testing.T) {
	tests := []struct {
		used, included float64
		want           WarningLevel
	}{
		{0, 250, LevelOK},
		{187.4, 250, LevelOK},
		{187.5, 250, LevelWarning},
		{224, 250, LevelWarning},
		{225, 250, LevelCritical},
		{250, 250, LevelCritical},
		{252.5, 250, LevelOver},
		{0, 0, LevelOK},
		{1, 0, LevelOver},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, GetStorageWarningLevel(tc.used, tc.included), "used=%v included=%v", tc.used, tc.included)
	}
}

func TestCalculateNextBillingEstimate(t *testing.T) {
	est := CalculateNextBillingEstimate(domain.PlanBasic, domain.PeriodMonthly, 300)
	assert.True(t, est.BaseCost.Equal(decimal.RequireFromString("7.99")))
	assert.True(t, est.Total.Equal(decimal.RequireFromString("8.99")))
	assert.Equal(t, "$7.99 (Basic Plan) + $1.00 (storage overage)", est.Breakdown)

	est = CalculateNextBillingEstimate(domain.PlanPro, domain.PeriodYearly, 10)
	assert.True(t, est.Total.Equal(decimal.RequireFromString("139.99")))
	assert.Equal(t, "$139.99 (Popular Plan)", est.Breakdown)

	est = CalculateNextBillingEstimate("mystery", domain.PeriodMonthly, 0)
	assert.Equal(t, "$0.00 (Free Tier)", est.Breakdown)
}

func TestShouldPromptUpgrade(t *testing.T) {
	p := ShouldPromptUpgrade(domain.PlanBasic, 230, 500)
	assert.True(t, p.Show)
	assert.Equal(t, "storage", p.Reason)
	assert.Equal(t, "Storage almost full (230 MB / 250 MB). Upgrade for more space!", p.Message)

	p = ShouldPromptUpgrade(domain.PlanBasic, 10, 20)
	assert.Equal(t, "credits", p.Reason)
	assert.Equal(t, "Only 20 credits left. Upgrade for more monthly credits!", p.Message)

	p = ShouldPromptUpgrade(domain.PlanUltra, 10, 0)
	assert.False(t, p.Show)

	p = ShouldPromptUpgrade(domain.PlanBasic, 10, 21)
	assert.False(t, p.Show)
}

func TestFormatStorage(t *testing.T) {
	assert.Equal(t, "250 MB", FormatStorage(250))
	assert.Equal(t, "1.0 GB", FormatStorage(1024))
	assert.Equal(t, "10.0 GB", FormatStorage(10240))
	assert.Equal(t, "12.5 MB", FormatStorage(12.5))
}
