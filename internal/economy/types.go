package economy

import "lifesim/internal/business"

type PriceCategory string

const (
	CategorySalary   PriceCategory = "salary"
	CategoryServices PriceCategory = "services"
	CategoryGoods    PriceCategory = "goods"
	CategoryHousing  PriceCategory = "housing"
)

const AssetTypeHousing = "housing"

type Job struct {
	ID     string  `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	Salary float64 `json:"salary" yaml:"salary"` // per month
}

type Asset struct {
	ID           string   `json:"id" yaml:"id"`
	Type         string   `json:"type" yaml:"type"`
	Value        float64  `json:"value" yaml:"value"`
	CurrentValue *float64 `json:"current_value,omitempty" yaml:"current_value,omitempty"`
}

type Debt struct {
	ID        string  `json:"id" yaml:"id"`
	Kind      string  `json:"kind" yaml:"kind"`
	Principal float64 `json:"principal" yaml:"principal"`
	RatePct   float64 `json:"rate_pct" yaml:"rate_pct"` // annual
}

type Player struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	CountryID string `json:"country_id" yaml:"country_id"`
	Cash      int64  `json:"cash" yaml:"cash"`

	Jobs       []Job                `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	Businesses []*business.Business `json:"businesses,omitempty" yaml:"businesses,omitempty"`
	Assets     []Asset              `json:"assets,omitempty" yaml:"assets,omitempty"`
	Debts      []Debt               `json:"debts,omitempty" yaml:"debts,omitempty"`

	QuarterlyBaseSalary int64 `json:"quarterly_base_salary" yaml:"quarterly_base_salary"`
}

// CountryEconomy is the read-only economic context of one quarter.
type CountryEconomy struct {
	ID               string  `json:"id" yaml:"id"`
	Name             string  `json:"name" yaml:"name"`
	PersonalTaxRate  float64 `json:"personal_tax_rate" yaml:"personal_tax_rate"`
	CorporateTaxRate float64 `json:"corporate_tax_rate" yaml:"corporate_tax_rate"`
	CostOfLiving     float64 `json:"cost_of_living" yaml:"cost_of_living"`
	InflationRate    float64 `json:"inflation_rate" yaml:"inflation_rate"`
	// Inflation holds cumulative inflation, in percent, per price category.
	Inflation map[PriceCategory]float64 `json:"inflation,omitempty" yaml:"inflation,omitempty"`
}

func (c CountryEconomy) clone() CountryEconomy {
	if c.Inflation != nil {
		m := make(map[PriceCategory]float64, len(c.Inflation))
		for k, v := range c.Inflation {
			m[k] = v
		}
		c.Inflation = m
	}
	return c
}

// Adjust scales a base amount by the country's cumulative inflation for the
// category. A nil country or missing category leaves the amount unadjusted.
func Adjust(base float64, country *CountryEconomy, category PriceCategory) float64 {
	base = Sanitize(base)
	if country == nil || country.Inflation == nil {
		return base
	}
	return base * (1 + Sanitize(country.Inflation[category])/100)
}

// AdvanceInflation compounds one quarter of the annual inflation rate into
// every tracked category.
func (c *CountryEconomy) AdvanceInflation() {
	rate := Sanitize(c.InflationRate) / 4
	if rate == 0 {
		return
	}
	if c.Inflation == nil {
		c.Inflation = map[PriceCategory]float64{}
	}
	for _, cat := range []PriceCategory{CategorySalary, CategoryServices, CategoryGoods, CategoryHousing} {
		index := 1 + Sanitize(c.Inflation[cat])/100
		c.Inflation[cat] = (index*(1+rate/100) - 1) * 100
	}
}

// Clone deep-copies the player, including every business replica.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	out := *p
	out.Jobs = append([]Job(nil), p.Jobs...)
	out.Assets = append([]Asset(nil), p.Assets...)
	out.Debts = append([]Debt(nil), p.Debts...)
	out.Businesses = make([]*business.Business, 0, len(p.Businesses))
	for _, b := range p.Businesses {
		out.Businesses = append(out.Businesses, b.Clone())
	}
	return &out
}

// Business returns the player's replica of one business.
func (p *Player) Business(id string) *business.Business {
	for _, b := range p.Businesses {
		if b != nil && b.ID == id {
			return b
		}
	}
	return nil
}
