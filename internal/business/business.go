package business

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type State string

const (
	StateActive  State = "active"
	StateFrozen  State = "frozen"
	StateOpening State = "opening"
)

const (
	MinPrice     = 1
	MaxPrice     = 10
	NeutralPrice = 5

	// MarkupStepPct is the margin shift per price level away from NeutralPrice.
	MarkupStepPct = 15

	FullShare     = 100.0
	MajorityShare = 50.0

	shareEpsilon = 1e-9
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientRights = errors.New("insufficient rights")
	ErrShareOverflow      = errors.New("partner shares exceed 100")
	ErrInvalidShare       = errors.New("share must be within (0, 100]")
	ErrNotMainBranch      = errors.New("price can only be changed on the network main branch")
	ErrBusinessFrozen     = errors.New("business is frozen")
	ErrNotFrozen          = errors.New("business is not frozen")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrUnknownType        = errors.New("business type is required")
)

type Partner struct {
	ActorID  string  `json:"actor_id" yaml:"actor_id"`
	Share    float64 `json:"share" yaml:"share"`
	Invested int64   `json:"invested" yaml:"invested"`
}

type Employee struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Role   string  `json:"role" yaml:"role"`
	Level  int     `json:"level" yaml:"level"`
	Salary float64 `json:"salary" yaml:"salary"` // per quarter
	// ActorID is set when a player occupies the role in their own company.
	ActorID string `json:"actor_id,omitempty" yaml:"actor_id,omitempty"`
}

type Inventory struct {
	Stock                 int     `json:"stock" yaml:"stock"`
	PurchaseCost          float64 `json:"purchase_cost" yaml:"purchase_cost"`
	UnitPrice             float64 `json:"unit_price" yaml:"unit_price"`
	AutoPurchaseThreshold int     `json:"auto_purchase_threshold" yaml:"auto_purchase_threshold"`
}

// Business is a shared economic entity. Quarterly figures are kept as raw
// floats because they may arrive malformed from upstream data; calculators
// sanitize them before use.
type Business struct {
	ID       string    `json:"id" yaml:"id"`
	Type     string    `json:"type" yaml:"type"`
	Name     string    `json:"name" yaml:"name"`
	OwnerID  string    `json:"owner_id" yaml:"owner_id"`
	Partners []Partner `json:"partners,omitempty" yaml:"partners,omitempty"`

	Price    int `json:"price" yaml:"price"`
	Quantity int `json:"quantity" yaml:"quantity"`

	Income   float64 `json:"income" yaml:"income"`
	Expenses float64 `json:"expenses" yaml:"expenses"`
	Tax      float64 `json:"tax" yaml:"tax"`

	Value         float64 `json:"value" yaml:"value"`
	UpfrontCost   int64   `json:"upfront_cost" yaml:"upfront_cost"`
	WalletBalance int64   `json:"wallet_balance" yaml:"wallet_balance"`

	Employees []Employee `json:"employees,omitempty" yaml:"employees,omitempty"`
	Inventory Inventory  `json:"inventory" yaml:"inventory"`

	NetworkID    string  `json:"network_id,omitempty" yaml:"network_id,omitempty"`
	IsMainBranch bool    `json:"is_main_branch" yaml:"is_main_branch"`
	NetworkBonus float64 `json:"network_bonus" yaml:"network_bonus"`

	State      State `json:"state" yaml:"state"`
	OpenedTurn int   `json:"opened_turn" yaml:"opened_turn"`
	Closed     bool  `json:"closed,omitempty" yaml:"closed,omitempty"`
}

// Clone returns a deep copy safe to hand to another replica.
func (b *Business) Clone() *Business {
	if b == nil {
		return nil
	}
	out := *b
	out.Partners = append([]Partner(nil), b.Partners...)
	out.Employees = append([]Employee(nil), b.Employees...)
	return &out
}

func (b *Business) IsActive() bool {
	return b != nil && b.State == StateActive && !b.Closed
}

// ClampPrice bounds a price level to [MinPrice, MaxPrice].
func ClampPrice(level int) int {
	if level < MinPrice {
		return MinPrice
	}
	if level > MaxPrice {
		return MaxPrice
	}
	return level
}

// UnitPriceFor applies the fixed markup curve: level 5 sells at cost, each
// level above or below shifts margin by MarkupStepPct points.
func UnitPriceFor(purchaseCost float64, level int) float64 {
	if math.IsNaN(purchaseCost) || math.IsInf(purchaseCost, 0) {
		return 0
	}
	pct := 100 + MarkupStepPct*(level-NeutralPrice)
	return purchaseCost * float64(pct) / 100
}

// RepriceInventory recomputes the inventory unit price from the current price level.
func (b *Business) RepriceInventory() {
	b.Inventory.UnitPrice = UnitPriceFor(b.Inventory.PurchaseCost, b.Price)
}

func (b *Business) EmployeeByID(id string) (int, bool) {
	for i, e := range b.Employees {
		if e.ID == id {
			return i, true
		}
	}
	return -1, false
}

// PayrollPerQuarter sums the quarterly salaries of the whole roster.
func (b *Business) PayrollPerQuarter() float64 {
	var total float64
	for _, e := range b.Employees {
		if math.IsNaN(e.Salary) || math.IsInf(e.Salary, 0) {
			continue
		}
		total += e.Salary
	}
	return total
}

// EmploymentSalary is the wage actorID draws as an employee of this business.
func (b *Business) EmploymentSalary(actorID string) float64 {
	var total float64
	for _, e := range b.Employees {
		if e.ActorID == "" || e.ActorID != actorID {
			continue
		}
		if math.IsNaN(e.Salary) || math.IsInf(e.Salary, 0) {
			continue
		}
		total += e.Salary
	}
	return total
}

// ValidateShares enforces the ownership partition invariant.
func ValidateShares(partners []Partner) error {
	var sum float64
	seen := make(map[string]struct{}, len(partners))
	for _, p := range partners {
		if strings.TrimSpace(p.ActorID) == "" {
			return fmt.Errorf("%w: partner actor id is required", ErrInvalidShare)
		}
		if _, dup := seen[p.ActorID]; dup {
			return fmt.Errorf("%w: duplicate partner %s", ErrInvalidShare, p.ActorID)
		}
		seen[p.ActorID] = struct{}{}
		if math.IsNaN(p.Share) || p.Share < 0 || p.Share > FullShare {
			return fmt.Errorf("%w: %s holds %v", ErrInvalidShare, p.ActorID, p.Share)
		}
		sum += p.Share
	}
	if sum > FullShare+shareEpsilon {
		return fmt.Errorf("%w: total %.2f", ErrShareOverflow, sum)
	}
	return nil
}

// AddPartner admits a co-owner, carving share out of the owner's stake.
// A business with no explicit partners is first converted to an explicit
// 100% entry for its owner.
func (b *Business) AddPartner(actorID string, share float64, invested int64) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" || math.IsNaN(share) || share <= 0 || share > FullShare {
		return ErrInvalidShare
	}
	if actorID == b.OwnerID {
		return fmt.Errorf("%w: owner is already a partner", ErrInvalidShare)
	}
	partners := append([]Partner(nil), b.Partners...)
	if len(partners) == 0 {
		partners = []Partner{{ActorID: b.OwnerID, Share: FullShare, Invested: b.UpfrontCost}}
	}
	ownerIdx := -1
	for i, p := range partners {
		if p.ActorID == actorID {
			return fmt.Errorf("%w: %s is already a partner", ErrInvalidShare, actorID)
		}
		if p.ActorID == b.OwnerID {
			ownerIdx = i
		}
	}
	if ownerIdx < 0 || partners[ownerIdx].Share < share-shareEpsilon {
		return fmt.Errorf("%w: owner stake too small", ErrShareOverflow)
	}
	partners[ownerIdx].Share -= share
	partners = append(partners, Partner{ActorID: actorID, Share: share, Invested: invested})
	if err := ValidateShares(partners); err != nil {
		return err
	}
	b.Partners = partners
	return nil
}

// FreezeCost is the accrued compensation paid out to the roster on freeze.
func (b *Business) FreezeCost() int64 {
	return int64(math.Round(b.PayrollPerQuarter()))
}

// ReactivationCost is charged when a frozen business is reopened.
func (b *Business) ReactivationCost() int64 {
	return int64(math.Round(float64(b.UpfrontCost) * 0.10))
}
