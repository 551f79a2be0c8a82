package plans

import (
	"fmt"

	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
)

var packs = []domain.CreditPack{
	{Credits: 80, Price: decimal.RequireFromString("4.99")},
	{Credits: 400, Price: decimal.RequireFromString("19.99")},
	{Credits: 1600, Price: decimal.RequireFromString("49.99")},
}

// Packs lists the one-time credit packs.
func Packs() []domain.CreditPack {
	return append([]domain.CreditPack(nil), packs...)
}

// LookupPack finds the pack matching both credits and price.
func LookupPack(credits int64, price decimal.Decimal) (domain.CreditPack, error) {
	for _, p := range packs {
		if p.Credits == credits && p.Price.Equal(price) {
			return p, nil
		}
	}
	return domain.CreditPack{}, fmt.Errorf("no credit pack for %d credits at %s", credits, price.StringFixed(2))
}
