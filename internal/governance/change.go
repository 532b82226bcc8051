// Package governance decides how co-owners mutate a shared business: a
// strict majority applies changes directly, an even split proposes and waits
// for the counterpart, anyone below half is refused.
package governance

import (
	"encoding/json"
	"fmt"
	"strings"

	"lifesim/internal/business"
)

type ChangeType string

const (
	TypePrice          ChangeType = "price"
	TypeQuantity       ChangeType = "quantity"
	TypeHireEmployee   ChangeType = "hire_employee"
	TypeFireEmployee   ChangeType = "fire_employee"
	TypeChangeRole     ChangeType = "change_role"
	TypePromote        ChangeType = "promote_employee"
	TypeDemote         ChangeType = "demote_employee"
	TypeFreeze         ChangeType = "freeze"
	TypeUnfreeze       ChangeType = "unfreeze"
	TypeOpenBranch     ChangeType = "open_branch"
	TypeFundCollection ChangeType = "fund_collection"
	TypeAutoPurchase   ChangeType = "auto_purchase"
)

// Change is one requested mutation of a business. The set of implementations
// is closed: only this package can add a variant.
type Change interface {
	Type() ChangeType
	isChange()
}

type PriceChange struct {
	Price int `json:"price"`
}

type QuantityChange struct {
	Quantity int `json:"quantity"`
}

type HireEmployee struct {
	Employee business.Employee `json:"employee"`
}

type FireEmployee struct {
	EmployeeID string `json:"employee_id"`
}

// ChangeRole moves an employee into Role. With IsMe the initiator occupies
// the role themselves, joining the roster at Salary if not on it yet.
type ChangeRole struct {
	EmployeeID string  `json:"employee_id,omitempty"`
	Role       string  `json:"role"`
	IsMe       bool    `json:"is_me,omitempty"`
	Salary     float64 `json:"salary,omitempty"`
}

type PromoteEmployee struct {
	EmployeeID string `json:"employee_id"`
}

type DemoteEmployee struct {
	EmployeeID string `json:"employee_id"`
}

type Freeze struct{}

type Unfreeze struct{}

type OpenBranch struct {
	Name string `json:"name,omitempty"`
}

// FundCollection asks every partner for their share of Amount.
type FundCollection struct {
	Amount int64 `json:"amount"`
}

type AutoPurchase struct {
	Threshold int `json:"threshold"`
}

func (PriceChange) Type() ChangeType     { return TypePrice }
func (QuantityChange) Type() ChangeType  { return TypeQuantity }
func (HireEmployee) Type() ChangeType    { return TypeHireEmployee }
func (FireEmployee) Type() ChangeType    { return TypeFireEmployee }
func (ChangeRole) Type() ChangeType      { return TypeChangeRole }
func (PromoteEmployee) Type() ChangeType { return TypePromote }
func (DemoteEmployee) Type() ChangeType  { return TypeDemote }
func (Freeze) Type() ChangeType          { return TypeFreeze }
func (Unfreeze) Type() ChangeType        { return TypeUnfreeze }
func (OpenBranch) Type() ChangeType      { return TypeOpenBranch }
func (FundCollection) Type() ChangeType  { return TypeFundCollection }
func (AutoPurchase) Type() ChangeType    { return TypeAutoPurchase }

func (PriceChange) isChange()     {}
func (QuantityChange) isChange()  {}
func (HireEmployee) isChange()    {}
func (FireEmployee) isChange()    {}
func (ChangeRole) isChange()      {}
func (PromoteEmployee) isChange() {}
func (DemoteEmployee) isChange()  {}
func (Freeze) isChange()          {}
func (Unfreeze) isChange()        {}
func (OpenBranch) isChange()      {}
func (FundCollection) isChange()  {}
func (AutoPurchase) isChange()    {}

// ParseChangeType accepts the wire name and a few short aliases.
func ParseChangeType(raw string) (ChangeType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "price":
		return TypePrice, nil
	case "quantity", "qty":
		return TypeQuantity, nil
	case "hire_employee", "hire":
		return TypeHireEmployee, nil
	case "fire_employee", "fire":
		return TypeFireEmployee, nil
	case "change_role", "role":
		return TypeChangeRole, nil
	case "promote_employee", "promote":
		return TypePromote, nil
	case "demote_employee", "demote":
		return TypeDemote, nil
	case "freeze":
		return TypeFreeze, nil
	case "unfreeze":
		return TypeUnfreeze, nil
	case "open_branch", "branch":
		return TypeOpenBranch, nil
	case "fund_collection", "fund":
		return TypeFundCollection, nil
	case "auto_purchase", "autobuy":
		return TypeAutoPurchase, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChange, raw)
}

// DecodeChange builds the typed variant for t from its JSON payload. An empty
// payload decodes to the zero value of the variant.
func DecodeChange(t ChangeType, payload json.RawMessage) (Change, error) {
	var c Change
	switch t {
	case TypePrice:
		c = &PriceChange{}
	case TypeQuantity:
		c = &QuantityChange{}
	case TypeHireEmployee:
		c = &HireEmployee{}
	case TypeFireEmployee:
		c = &FireEmployee{}
	case TypeChangeRole:
		c = &ChangeRole{}
	case TypePromote:
		c = &PromoteEmployee{}
	case TypeDemote:
		c = &DemoteEmployee{}
	case TypeFreeze:
		return Freeze{}, nil
	case TypeUnfreeze:
		return Unfreeze{}, nil
	case TypeOpenBranch:
		c = &OpenBranch{}
	case TypeFundCollection:
		c = &FundCollection{}
	case TypeAutoPurchase:
		c = &AutoPurchase{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChange, t)
	}
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, c); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidChange, t, err)
		}
	}
	return deref(c), nil
}

func deref(c Change) Change {
	switch v := c.(type) {
	case *PriceChange:
		return *v
	case *QuantityChange:
		return *v
	case *HireEmployee:
		return *v
	case *FireEmployee:
		return *v
	case *ChangeRole:
		return *v
	case *PromoteEmployee:
		return *v
	case *DemoteEmployee:
		return *v
	case *OpenBranch:
		return *v
	case *FundCollection:
		return *v
	case *AutoPurchase:
		return *v
	}
	return c
}

// EncodeChange is the inverse of DecodeChange.
func EncodeChange(c Change) (ChangeType, json.RawMessage, error) {
	if c == nil {
		return "", nil, ErrUnknownChange
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", nil, err
	}
	return c.Type(), raw, nil
}
