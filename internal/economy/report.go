package economy

import (
	"math"

	"lifesim/internal/business"
)

type Archetype string

const (
	ArchetypeEmployee      Archetype = "employee"
	ArchetypeBusinessOwner Archetype = "business_owner"
	ArchetypeMixed         Archetype = "mixed"
)

const (
	// BaseLivingCost is the monthly cost of living before country modifiers.
	BaseLivingCost   = 1000.0
	MonthsPerQuarter = 3

	NegativeProfitWarning = "net profit is negative this quarter"
)

type IncomeBreakdown struct {
	Salary          int64 `json:"salary" yaml:"salary"`
	BusinessRevenue int64 `json:"business_revenue" yaml:"business_revenue"`
	FamilyIncome    int64 `json:"family_income" yaml:"family_income"`
	AssetIncome     int64 `json:"asset_income" yaml:"asset_income"`
	CapitalGains    int64 `json:"capital_gains" yaml:"capital_gains"`
	Total           int64 `json:"total" yaml:"total"`
}

type ExpensesBreakdown struct {
	Living           int64 `json:"living" yaml:"living"`
	Food             int64 `json:"food" yaml:"food"`
	Housing          int64 `json:"housing" yaml:"housing"`
	Transport        int64 `json:"transport" yaml:"transport"`
	Credits          int64 `json:"credits" yaml:"credits"`
	Mortgage         int64 `json:"mortgage" yaml:"mortgage"`
	Other            int64 `json:"other" yaml:"other"`
	Business         int64 `json:"business" yaml:"business"`
	DebtInterest     int64 `json:"debt_interest" yaml:"debt_interest"`
	AssetMaintenance int64 `json:"asset_maintenance" yaml:"asset_maintenance"`
	Total            int64 `json:"total" yaml:"total"`
}

// Report is derived data: it is recomputed, never edited.
type Report struct {
	PlayerID      string            `json:"player_id" yaml:"player_id"`
	Turn          int               `json:"turn" yaml:"turn"`
	Archetype     Archetype         `json:"archetype" yaml:"archetype"`
	Income        IncomeBreakdown   `json:"income" yaml:"income"`
	Expenses      ExpensesBreakdown `json:"expenses" yaml:"expenses"`
	Taxes         TaxesBreakdown    `json:"taxes" yaml:"taxes"`
	TaxableIncome int64             `json:"taxable_income" yaml:"taxable_income"`
	NetProfit     int64             `json:"net_profit" yaml:"net_profit"`
	Warning       string            `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// ExpenseInputs is a caller-supplied living-expense breakdown. Living is
// optional; when absent the inflation-adjusted baseline is used.
type ExpenseInputs struct {
	Living    *float64 `json:"living,omitempty"`
	Food      float64  `json:"food"`
	Housing   float64  `json:"housing"`
	Transport float64  `json:"transport"`
	Credits   float64  `json:"credits"`
	Mortgage  float64  `json:"mortgage"`
	Other     float64  `json:"other"`
}

type ReportContext struct {
	Turn             int                 `json:"turn"`
	FamilyIncome     float64             `json:"family_income"`
	FamilyExpenses   float64             `json:"family_expenses"`
	AssetIncome      float64             `json:"asset_income"`
	AssetMaintenance float64             `json:"asset_maintenance"`
	DebtInterest     float64             `json:"debt_interest"`
	BuffIncomeMod    float64             `json:"buff_income_mod"` // percent
	Expenses         *ExpenseInputs      `json:"expenses,omitempty"`
	BusinessOverride *BusinessFinancials `json:"business_override,omitempty"`
}

// SelectArchetype picks the assembly rules for a player, in priority order
// mixed, business_owner, employee.
func SelectArchetype(p *Player) Archetype {
	hasJobs := len(p.Jobs) > 0
	hasBusinesses := len(openBusinesses(p.Businesses)) > 0
	switch {
	case hasJobs && hasBusinesses:
		return ArchetypeMixed
	case hasBusinesses:
		return ArchetypeBusinessOwner
	default:
		return ArchetypeEmployee
	}
}

// LivingBaseline is the quarterly cost-of-living floor for a country.
func LivingBaseline(country *CountryEconomy) float64 {
	mod := 1.0
	if country != nil {
		if m := Sanitize(country.CostOfLiving); m > 0 {
			mod = m
		}
	}
	return Adjust(BaseLivingCost*MonthsPerQuarter*mod, country, CategoryServices)
}

// ComputeReport assembles the quarterly report for a player. It never fails:
// malformed inputs are sanitized to zero.
func ComputeReport(p *Player, country *CountryEconomy, ctx ReportContext) Report {
	arch := SelectArchetype(p)
	buff := 1 + Sanitize(ctx.BuffIncomeMod)/100

	var workSalary float64
	if arch != ArchetypeBusinessOwner {
		var monthly float64
		for _, j := range p.Jobs {
			monthly += Adjust(j.Salary, country, CategorySalary)
		}
		workSalary = monthly * MonthsPerQuarter * buff
	}

	var revenue, bizExpenses, bizTax float64
	if arch != ArchetypeEmployee {
		owned := openBusinesses(p.Businesses)
		// The owner's wage is not scaled by equity.
		for _, b := range owned {
			workSalary += Sanitize(b.EmploymentSalary(p.ID)) * buff
		}
		fin := AggregateBusinesses(p.ID, owned)
		if ctx.BusinessOverride != nil {
			fin = *ctx.BusinessOverride
		}
		revenue = Sanitize(fin.Income) * buff
		bizExpenses = Sanitize(fin.Expenses)
		bizTax = Sanitize(fin.Tax)
	}

	businessProfit := math.Max(0, revenue-bizExpenses-bizTax)
	family := Sanitize(ctx.FamilyIncome)
	assetIncome := Sanitize(ctx.AssetIncome)

	// Gross business revenue is already taxed at the corporate level; only
	// profit enters the personal base.
	taxable := workSalary + businessProfit + family + assetIncome
	totalIncome := workSalary + revenue + family + assetIncome

	expenses := buildExpenses(country, ctx, bizExpenses)
	taxes := ComputeTaxes(taxable, p.Assets, country).WithBusinessTax(bizTax)

	income := Round(totalIncome)
	// NetProfit equals Income.Total - Expenses.Total - Taxes.Total exactly.
	net := income - expenses.Total - taxes.Total
	r := Report{
		PlayerID:  p.ID,
		Turn:      ctx.Turn,
		Archetype: arch,
		Income: IncomeBreakdown{
			Salary:          Round(workSalary),
			BusinessRevenue: Round(revenue),
			FamilyIncome:    Round(family),
			AssetIncome:     Round(assetIncome),
			Total:           income,
		},
		Expenses:      expenses,
		Taxes:         taxes,
		TaxableIncome: Round(taxable),
		NetProfit:     net,
	}
	if net < 0 {
		r.Warning = NegativeProfitWarning
	}
	return r
}

func buildExpenses(country *CountryEconomy, ctx ReportContext, bizExpenses float64) ExpensesBreakdown {
	in := ExpenseInputs{}
	if ctx.Expenses != nil {
		in = *ctx.Expenses
	}
	living := Coalesce(in.Living, LivingBaseline(country))
	other := Sanitize(in.Other) + Sanitize(ctx.FamilyExpenses)

	parts := []float64{
		living,
		Sanitize(in.Food),
		Sanitize(in.Housing),
		Sanitize(in.Transport),
		Sanitize(in.Credits),
		Sanitize(in.Mortgage),
		other,
		bizExpenses,
		Sanitize(ctx.DebtInterest),
		Sanitize(ctx.AssetMaintenance),
	}
	var raw float64
	for _, v := range parts {
		raw += v
	}
	return ExpensesBreakdown{
		Living:           Round(parts[0]),
		Food:             Round(parts[1]),
		Housing:          Round(parts[2]),
		Transport:        Round(parts[3]),
		Credits:          Round(parts[4]),
		Mortgage:         Round(parts[5]),
		Other:            Round(parts[6]),
		Business:         Round(parts[7]),
		DebtInterest:     Round(parts[8]),
		AssetMaintenance: Round(parts[9]),
		Total:            Round(raw),
	}
}

// DebtInterestPerQuarter derives quarterly interest from the player's debts.
func DebtInterestPerQuarter(debts []Debt) float64 {
	var total float64
	for _, d := range debts {
		total += Sanitize(d.Principal) * Sanitize(d.RatePct) / 100 / 4
	}
	return total
}

func openBusinesses(list []*business.Business) []*business.Business {
	out := make([]*business.Business, 0, len(list))
	for _, b := range list {
		if b != nil && !b.Closed {
			out = append(out, b)
		}
	}
	return out
}
