package governance

import (
	"slices"

	"lifesim/internal/business"
)

// Delta carries only the fields of one business that a mutation changed.
// Absent fields are left alone when the delta is merged into a replica.
type Delta struct {
	BusinessID string `json:"business_id"`

	Price                 *int                 `json:"price,omitempty"`
	Quantity              *int                 `json:"quantity,omitempty"`
	State                 *business.State      `json:"state,omitempty"`
	Employees             *[]business.Employee `json:"employees,omitempty"`
	Partners              *[]business.Partner  `json:"partners,omitempty"`
	WalletBalance         *int64               `json:"wallet_balance,omitempty"`
	Value                 *float64             `json:"value,omitempty"`
	UnitPrice             *float64             `json:"unit_price,omitempty"`
	AutoPurchaseThreshold *int                 `json:"auto_purchase_threshold,omitempty"`
	NetworkID             *string              `json:"network_id,omitempty"`
	IsMainBranch          *bool                `json:"is_main_branch,omitempty"`
	NetworkBonus          *float64             `json:"network_bonus,omitempty"`
	Closed                *bool                `json:"closed,omitempty"`
}

// Diff compares two versions of the same business.
func Diff(before, after *business.Business) Delta {
	d := Delta{BusinessID: after.ID}
	if before == nil {
		before = &business.Business{ID: after.ID}
	}
	if before.Price != after.Price {
		d.Price = ptr(after.Price)
	}
	if before.Quantity != after.Quantity {
		d.Quantity = ptr(after.Quantity)
	}
	if before.State != after.State {
		d.State = ptr(after.State)
	}
	if !slices.Equal(before.Employees, after.Employees) {
		roster := slices.Clone(after.Employees)
		if roster == nil {
			roster = []business.Employee{}
		}
		d.Employees = &roster
	}
	if !slices.Equal(before.Partners, after.Partners) {
		partners := slices.Clone(after.Partners)
		d.Partners = &partners
	}
	if before.WalletBalance != after.WalletBalance {
		d.WalletBalance = ptr(after.WalletBalance)
	}
	if before.Value != after.Value {
		d.Value = ptr(after.Value)
	}
	if before.Inventory.UnitPrice != after.Inventory.UnitPrice {
		d.UnitPrice = ptr(after.Inventory.UnitPrice)
	}
	if before.Inventory.AutoPurchaseThreshold != after.Inventory.AutoPurchaseThreshold {
		d.AutoPurchaseThreshold = ptr(after.Inventory.AutoPurchaseThreshold)
	}
	if before.NetworkID != after.NetworkID {
		d.NetworkID = ptr(after.NetworkID)
	}
	if before.IsMainBranch != after.IsMainBranch {
		d.IsMainBranch = ptr(after.IsMainBranch)
	}
	if before.NetworkBonus != after.NetworkBonus {
		d.NetworkBonus = ptr(after.NetworkBonus)
	}
	if before.Closed != after.Closed {
		d.Closed = ptr(after.Closed)
	}
	return d
}

func (d Delta) Empty() bool {
	return d.Price == nil && d.Quantity == nil && d.State == nil && d.Employees == nil &&
		d.Partners == nil && d.WalletBalance == nil && d.Value == nil && d.UnitPrice == nil &&
		d.AutoPurchaseThreshold == nil && d.NetworkID == nil && d.IsMainBranch == nil &&
		d.NetworkBonus == nil && d.Closed == nil
}

// Apply merges the delta into b.
func (d Delta) Apply(b *business.Business) {
	if d.Price != nil {
		b.Price = *d.Price
	}
	if d.Quantity != nil {
		b.Quantity = *d.Quantity
	}
	if d.State != nil {
		b.State = *d.State
	}
	if d.Employees != nil {
		b.Employees = slices.Clone(*d.Employees)
	}
	if d.Partners != nil {
		b.Partners = slices.Clone(*d.Partners)
	}
	if d.WalletBalance != nil {
		b.WalletBalance = *d.WalletBalance
	}
	if d.Value != nil {
		b.Value = *d.Value
	}
	if d.UnitPrice != nil {
		b.Inventory.UnitPrice = *d.UnitPrice
	}
	if d.AutoPurchaseThreshold != nil {
		b.Inventory.AutoPurchaseThreshold = *d.AutoPurchaseThreshold
	}
	if d.NetworkID != nil {
		b.NetworkID = *d.NetworkID
	}
	if d.IsMainBranch != nil {
		b.IsMainBranch = *d.IsMainBranch
	}
	if d.NetworkBonus != nil {
		b.NetworkBonus = *d.NetworkBonus
	}
	if d.Closed != nil {
		b.Closed = *d.Closed
	}
}

// Merge applies deltas and inserts created businesses into list, returning
// the updated list. Deltas for businesses not in list are skipped.
func Merge(list []*business.Business, deltas []Delta, created []*business.Business) []*business.Business {
	for _, c := range created {
		if c == nil || find(list, c.ID) != nil {
			continue
		}
		list = append(list, c.Clone())
	}
	for _, d := range deltas {
		if b := find(list, d.BusinessID); b != nil {
			d.Apply(b)
		}
	}
	return list
}

func ptr[T any](v T) *T {
	return &v
}

func find(list []*business.Business, id string) *business.Business {
	for _, b := range list {
		if b != nil && b.ID == id {
			return b
		}
	}
	return nil
}
