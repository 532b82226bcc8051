package business

import (
	"math"

	"github.com/google/uuid"
)

// BonusFunc maps a network's branch count to the synergy bonus every branch
// receives, as a fraction of revenue.
type BonusFunc func(branches int) float64

// DefaultBonus grants 5% per extra branch, capped at 25%.
func DefaultBonus(branches int) float64 {
	if branches < 2 {
		return 0
	}
	return math.Min(0.05*float64(branches-1), 0.25)
}

// Coordinator groups same-type businesses of one owner into branch networks.
type Coordinator struct {
	bonus BonusFunc
	newID func() string
}

func NewCoordinator(bonus BonusFunc) *Coordinator {
	if bonus == nil {
		bonus = DefaultBonus
	}
	return &Coordinator{bonus: bonus, newID: uuid.NewString}
}

// ShouldCreateNetwork reports whether opening another business of newType
// should turn the existing stand-alone instance into a network.
func (c *Coordinator) ShouldCreateNetwork(existing []*Business, newType string) bool {
	if networkFor(existing, newType) != "" {
		return false
	}
	return firstStandalone(existing, newType) != nil
}

// CanChangePrice is true for stand-alone businesses and network main branches.
func CanChangePrice(b *Business) bool {
	return b != nil && (b.NetworkID == "" || b.IsMainBranch)
}

// Attach links a freshly opened branch into its type's network, creating the
// network when needed. It returns every business whose fields changed,
// including branch.
func (c *Coordinator) Attach(existing []*Business, branch *Business) []*Business {
	owned := ownedBy(existing, branch.OwnerID, branch.ID)
	var changed []*Business
	if c.ShouldCreateNetwork(owned, branch.Type) {
		first := firstStandalone(owned, branch.Type)
		first.NetworkID = c.newID()
		first.IsMainBranch = true
		changed = append(changed, first)
	}
	networkID := networkFor(owned, branch.Type)
	if networkID == "" {
		return []*Business{branch}
	}

	branch.NetworkID = networkID
	branch.IsMainBranch = false
	if main := MainBranch(owned, networkID); main != nil {
		branch.Price = main.Price
	}
	branch.RepriceInventory()
	changed = append(changed, branch)

	all := append(owned, branch)
	for _, b := range c.UpdateNetworkBonuses(all, networkID) {
		changed = appendUnique(changed, b)
	}
	return changed
}

// SyncPriceToNetwork copies main's price to every sibling branch and
// reprices each branch's inventory.
func (c *Coordinator) SyncPriceToNetwork(all []*Business, main *Business) ([]*Business, error) {
	if !CanChangePrice(main) {
		return nil, ErrNotMainBranch
	}
	main.RepriceInventory()
	if main.NetworkID == "" {
		return []*Business{main}, nil
	}
	changed := []*Business{main}
	for _, b := range Siblings(all, main.NetworkID) {
		if b.ID == main.ID {
			continue
		}
		b.Price = main.Price
		b.RepriceInventory()
		changed = append(changed, b)
	}
	return changed, nil
}

// UpdateNetworkBonuses recomputes the synergy bonus for every branch of a
// network, returning the branches whose bonus moved.
func (c *Coordinator) UpdateNetworkBonuses(all []*Business, networkID string) []*Business {
	if networkID == "" {
		return nil
	}
	branches := Siblings(all, networkID)
	active := 0
	for _, b := range branches {
		if b.State != StateFrozen {
			active++
		}
	}
	bonus := c.bonus(active)
	var changed []*Business
	for _, b := range branches {
		if b.NetworkBonus != bonus {
			b.NetworkBonus = bonus
			changed = append(changed, b)
		}
	}
	return changed
}

// OpenBranch clones source into a new branch of the same network, with the
// same ownership partition, and attaches it.
func (c *Coordinator) OpenBranch(all []*Business, source *Business, name string, turn int) (*Business, []*Business) {
	branch := &Business{
		ID:          c.newID(),
		Type:        source.Type,
		Name:        name,
		OwnerID:     source.OwnerID,
		Partners:    append([]Partner(nil), source.Partners...),
		Price:       source.Price,
		Quantity:    source.Quantity,
		Value:       source.Value,
		UpfrontCost: source.UpfrontCost,
		Inventory: Inventory{
			PurchaseCost:          source.Inventory.PurchaseCost,
			AutoPurchaseThreshold: source.Inventory.AutoPurchaseThreshold,
		},
		State:      StateOpening,
		OpenedTurn: turn,
	}
	if branch.Name == "" {
		branch.Name = source.Name
	}
	changed := c.Attach(all, branch)
	return branch, changed
}

// Detach removes a closed branch from its network, handing the main branch
// role to the next sibling. It returns the siblings whose fields changed.
func (c *Coordinator) Detach(all []*Business, closed *Business) []*Business {
	if closed.NetworkID == "" {
		return nil
	}
	networkID := closed.NetworkID
	var changed []*Business
	if closed.IsMainBranch {
		closed.IsMainBranch = false
		for _, b := range Siblings(all, networkID) {
			if b.ID != closed.ID {
				b.IsMainBranch = true
				changed = append(changed, b)
				break
			}
		}
	}
	for _, b := range c.UpdateNetworkBonuses(all, networkID) {
		changed = appendUnique(changed, b)
	}
	return changed
}

// Siblings returns every business in the given network.
func Siblings(all []*Business, networkID string) []*Business {
	var out []*Business
	for _, b := range all {
		if b != nil && !b.Closed && networkID != "" && b.NetworkID == networkID {
			out = append(out, b)
		}
	}
	return out
}

func MainBranch(all []*Business, networkID string) *Business {
	for _, b := range Siblings(all, networkID) {
		if b.IsMainBranch {
			return b
		}
	}
	return nil
}

func networkFor(all []*Business, businessType string) string {
	for _, b := range all {
		if b != nil && !b.Closed && b.Type == businessType && b.NetworkID != "" {
			return b.NetworkID
		}
	}
	return ""
}

func firstStandalone(all []*Business, businessType string) *Business {
	for _, b := range all {
		if b == nil || b.Closed || b.Type != businessType || b.NetworkID != "" {
			continue
		}
		if b.State == StateFrozen {
			continue
		}
		return b
	}
	return nil
}

func ownedBy(all []*Business, ownerID, skipID string) []*Business {
	out := make([]*Business, 0, len(all))
	for _, b := range all {
		if b == nil || b.ID == skipID {
			continue
		}
		if ownerID == "" || b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out
}

func appendUnique(list []*Business, b *Business) []*Business {
	for _, x := range list {
		if x == b {
			return list
		}
	}
	return append(list, b)
}
