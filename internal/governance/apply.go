package governance

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"

	"lifesim/internal/business"
)

// PromotionRaisePct is the salary change applied on promote and demote.
const PromotionRaisePct = 10

// Target is what one application of a change works on.
type Target struct {
	ActorID  string
	Business *business.Business
	// All is the actor's whole replica; network operations touch siblings.
	All  []*business.Business
	Turn int
	// Funds is money already collected from the actors for this change. It
	// lands in the business wallet for fund collections.
	Funds int64
}

// Effect is the outcome of one application.
type Effect struct {
	Deltas  []Delta              `json:"deltas,omitempty"`
	Created []*business.Business `json:"created,omitempty"`
}

// Applier mutates business state once a change is authorized.
type Applier struct {
	network *business.Coordinator
}

func NewApplier(network *business.Coordinator) *Applier {
	if network == nil {
		network = business.NewCoordinator(nil)
	}
	return &Applier{network: network}
}

// Apply runs c against t. Every validation happens before the first write,
// so an error leaves the target untouched.
func (a *Applier) Apply(t Target, c Change) (Effect, error) {
	b := t.Business
	if b == nil {
		return Effect{}, ErrBusinessNotFound
	}
	if b.Closed {
		return Effect{}, fmt.Errorf("%w: %s is closed", ErrBusinessNotFound, b.ID)
	}
	if b.State == business.StateFrozen {
		switch c.(type) {
		case Unfreeze, FundCollection:
		default:
			return Effect{}, fmt.Errorf("%w: %s", business.ErrBusinessFrozen, c.Type())
		}
	}

	touched := touchedBy(t, c)
	before := make(map[string]*business.Business, len(touched))
	for _, x := range touched {
		before[x.ID] = x.Clone()
	}

	var created []*business.Business
	switch ch := c.(type) {
	case PriceChange:
		if !business.CanChangePrice(b) {
			return Effect{}, business.ErrNotMainBranch
		}
		b.Price = business.ClampPrice(ch.Price)
		if _, err := a.network.SyncPriceToNetwork(t.All, b); err != nil {
			return Effect{}, err
		}
	case QuantityChange:
		b.Quantity = max(ch.Quantity, 0)
	case HireEmployee:
		e := ch.Employee
		if strings.TrimSpace(e.Role) == "" {
			return Effect{}, fmt.Errorf("%w: employee role is required", ErrInvalidChange)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		} else if _, exists := b.EmployeeByID(e.ID); exists {
			return Effect{}, fmt.Errorf("%w: employee %s already hired", ErrInvalidChange, e.ID)
		}
		if e.Level < 1 {
			e.Level = 1
		}
		e.Salary = sanitize(e.Salary)
		b.Employees = append(slices.Clone(b.Employees), e)
	case FireEmployee:
		i, ok := b.EmployeeByID(ch.EmployeeID)
		if !ok {
			return Effect{}, fmt.Errorf("%w: %s", business.ErrEmployeeNotFound, ch.EmployeeID)
		}
		b.Employees = slices.Delete(slices.Clone(b.Employees), i, i+1)
	case ChangeRole:
		roster, err := changeRole(b, t.ActorID, ch)
		if err != nil {
			return Effect{}, err
		}
		b.Employees = roster
	case PromoteEmployee:
		roster, err := adjustLevel(b, ch.EmployeeID, 1)
		if err != nil {
			return Effect{}, err
		}
		b.Employees = roster
	case DemoteEmployee:
		roster, err := adjustLevel(b, ch.EmployeeID, -1)
		if err != nil {
			return Effect{}, err
		}
		b.Employees = roster
	case Freeze:
		b.State = business.StateFrozen
		b.Employees = nil
		a.network.UpdateNetworkBonuses(t.All, b.NetworkID)
	case Unfreeze:
		if b.State != business.StateFrozen {
			return Effect{}, business.ErrNotFrozen
		}
		b.State = business.StateActive
		a.network.UpdateNetworkBonuses(t.All, b.NetworkID)
	case OpenBranch:
		if b.WalletBalance < b.UpfrontCost {
			return Effect{}, fmt.Errorf("%w: branch needs %d in the business wallet, have %d",
				business.ErrInsufficientFunds, b.UpfrontCost, b.WalletBalance)
		}
		b.WalletBalance -= b.UpfrontCost
		branch, _ := a.network.OpenBranch(t.All, b, ch.Name, t.Turn)
		created = append(created, branch)
	case FundCollection:
		if ch.Amount <= 0 {
			return Effect{}, fmt.Errorf("%w: amount must be > 0", ErrInvalidChange)
		}
		b.WalletBalance += t.Funds
	case AutoPurchase:
		if ch.Threshold < 0 {
			return Effect{}, fmt.Errorf("%w: threshold must be >= 0", ErrInvalidChange)
		}
		b.Inventory.AutoPurchaseThreshold = ch.Threshold
	default:
		return Effect{}, fmt.Errorf("%w: %T", ErrUnknownChange, c)
	}

	eff := Effect{Created: created}
	for _, x := range touched {
		if d := Diff(before[x.ID], x); !d.Empty() {
			eff.Deltas = append(eff.Deltas, d)
		}
	}
	return eff, nil
}

// touchedBy lists the businesses a change may write: the target and, for
// network-wide changes, its siblings.
func touchedBy(t Target, c Change) []*business.Business {
	out := []*business.Business{t.Business}
	switch c.(type) {
	case PriceChange, Freeze, Unfreeze, OpenBranch:
	default:
		return out
	}
	for _, x := range t.All {
		if x == nil || x == t.Business {
			continue
		}
		sameNetwork := t.Business.NetworkID != "" && x.NetworkID == t.Business.NetworkID
		sameType := x.Type == t.Business.Type && x.OwnerID == t.Business.OwnerID
		if sameNetwork || sameType {
			out = append(out, x)
		}
	}
	return out
}

func changeRole(b *business.Business, actorID string, ch ChangeRole) ([]business.Employee, error) {
	role := strings.TrimSpace(ch.Role)
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidChange)
	}
	roster := slices.Clone(b.Employees)
	if ch.IsMe {
		for i := range roster {
			if roster[i].ActorID == actorID {
				roster[i].Role = role
				return roster, nil
			}
		}
		return append(roster, business.Employee{
			ID:      uuid.NewString(),
			Name:    actorID,
			Role:    role,
			Level:   1,
			Salary:  sanitize(ch.Salary),
			ActorID: actorID,
		}), nil
	}
	i, ok := b.EmployeeByID(ch.EmployeeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", business.ErrEmployeeNotFound, ch.EmployeeID)
	}
	roster[i].Role = role
	return roster, nil
}

func adjustLevel(b *business.Business, employeeID string, step int) ([]business.Employee, error) {
	i, ok := b.EmployeeByID(employeeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", business.ErrEmployeeNotFound, employeeID)
	}
	roster := slices.Clone(b.Employees)
	e := &roster[i]
	if e.Level+step < 1 {
		return nil, fmt.Errorf("%w: %s is already at the lowest level", ErrInvalidChange, employeeID)
	}
	e.Level += step
	e.Salary = math.Round(sanitize(e.Salary)*float64(100+step*PromotionRaisePct)) / 100
	return roster, nil
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
