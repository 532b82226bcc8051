package economy

import (
	"math"

	"lifesim/internal/business"
)

// BusinessFinancials are quarterly income, expenses and corporate tax.
type BusinessFinancials struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Tax      float64 `json:"tax"`
}

// RefreshFinancials recomputes a business's quarterly figures from its
// price, volume, roster and network bonus, and stores them on the business.
// Only active businesses earn or spend.
func RefreshFinancials(b *business.Business, country *CountryEconomy) BusinessFinancials {
	var f BusinessFinancials
	if b.IsActive() {
		qty := float64(max(b.Quantity, 0))
		f.Income = qty * Sanitize(b.Inventory.UnitPrice) * (1 + Sanitize(b.NetworkBonus))
		f.Expenses = qty*Sanitize(b.Inventory.PurchaseCost) + b.PayrollPerQuarter()
		f.Tax = CorporateTax(math.Max(0, f.Income-f.Expenses), country)
	}
	b.Income, b.Expenses, b.Tax = f.Income, f.Expenses, f.Tax
	return f
}

// AggregateBusinesses sums each business's quarterly figures weighted by the
// actor's share fraction.
func AggregateBusinesses(actorID string, list []*business.Business) BusinessFinancials {
	var out BusinessFinancials
	for _, b := range list {
		if b == nil || b.Closed {
			continue
		}
		frac := business.ShareFraction(b, actorID)
		out.Income += Sanitize(b.Income) * frac
		out.Expenses += Sanitize(b.Expenses) * frac
		out.Tax += Sanitize(b.Tax) * frac
	}
	return out
}
