package economy

import "strings"

// PropertyTaxQuarterlyRate is 0.5% a year charged per quarter on housing.
const PropertyTaxQuarterlyRate = 0.00125

type TaxesBreakdown struct {
	Income   int64 `json:"income" yaml:"income"`
	Business int64 `json:"business" yaml:"business"`
	Capital  int64 `json:"capital" yaml:"capital"`
	Property int64 `json:"property" yaml:"property"`
	Total    int64 `json:"total" yaml:"total"`
}

// ComputeTaxes applies the flat personal rate to income and the property
// rate to housing assets. Each component is rounded exactly once and the
// total is the sum of the rounded components. Business tax is not computed
// here; callers add it to Business and Total.
func ComputeTaxes(income float64, assets []Asset, country *CountryEconomy) TaxesBreakdown {
	var rate float64
	if country != nil {
		rate = Sanitize(country.PersonalTaxRate)
	}
	incomeTax := Sanitize(income) * (rate / 100)

	var propertyTax float64
	for _, a := range assets {
		if !strings.EqualFold(a.Type, AssetTypeHousing) {
			continue
		}
		propertyTax += Coalesce(a.CurrentValue, a.Value) * PropertyTaxQuarterlyRate
	}

	// Capital gains are not taxed yet; the field stays in the breakdown.
	capitalTax := 0.0

	out := TaxesBreakdown{
		Income:   Round(incomeTax),
		Property: Round(propertyTax),
		Capital:  Round(capitalTax),
	}
	out.Total = out.Income + out.Property + out.Capital
	return out
}

// WithBusinessTax folds an externally computed corporate tax into the breakdown.
func (t TaxesBreakdown) WithBusinessTax(tax float64) TaxesBreakdown {
	t.Business = Round(tax)
	t.Total += t.Business
	return t
}

// CorporateTax is the unrounded tax owed on a business's positive profit.
func CorporateTax(profit float64, country *CountryEconomy) float64 {
	profit = Sanitize(profit)
	if profit <= 0 || country == nil {
		return 0
	}
	return profit * Sanitize(country.CorporateTaxRate) / 100
}
