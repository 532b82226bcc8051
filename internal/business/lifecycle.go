package business

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// LiquidationRate is the fraction of current value returned on close.
const LiquidationRate = 0.5

type OpenSpec struct {
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	UpfrontCost  int64   `json:"upfront_cost"`
	CreationCost int64   `json:"creation_cost"`
	Price        int     `json:"price"`
	Quantity     int     `json:"quantity"`
	PurchaseCost float64 `json:"purchase_cost"`
	Stock        int     `json:"stock"`
}

// Open validates the owner's cash against upfront plus creation cost and
// builds the new business in the opening state. The caller deducts the
// returned cost; nothing is mutated on error.
func Open(ownerID string, spec OpenSpec, cash int64, turn int) (*Business, int64, error) {
	spec.Type = strings.ToLower(strings.TrimSpace(spec.Type))
	if spec.Type == "" {
		return nil, 0, ErrUnknownType
	}
	if spec.UpfrontCost < 0 || spec.CreationCost < 0 {
		return nil, 0, fmt.Errorf("costs must be >= 0")
	}
	cost := spec.UpfrontCost + spec.CreationCost
	if cash < cost {
		return nil, 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, cost, cash)
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = spec.Type
	}
	price := spec.Price
	if price == 0 {
		price = NeutralPrice
	}
	b := &Business{
		ID:          uuid.NewString(),
		Type:        spec.Type,
		Name:        name,
		OwnerID:     ownerID,
		Price:       ClampPrice(price),
		Quantity:    max(spec.Quantity, 0),
		Value:       float64(spec.UpfrontCost),
		UpfrontCost: spec.UpfrontCost,
		Inventory: Inventory{
			Stock:        max(spec.Stock, 0),
			PurchaseCost: spec.PurchaseCost,
		},
		State:      StateOpening,
		OpenedTurn: turn,
	}
	b.RepriceInventory()
	return b, cost, nil
}

// LiquidationValue is what closing the business returns in total.
func (b *Business) LiquidationValue() int64 {
	v := b.Value
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return int64(math.Round(v * LiquidationRate))
}

// LiquidationPayout is actorID's proportional part of the liquidation value.
func (b *Business) LiquidationPayout(actorID string) int64 {
	return int64(math.Round(float64(b.LiquidationValue()) * ShareFraction(b, actorID)))
}

// CanClose requires a strict majority stake.
func CanClose(b *Business, actorID string) error {
	if !Resolve(b, actorID).CanApplyDirectly {
		return ErrInsufficientRights
	}
	return nil
}

// Activate promotes an opening business once at least one quarter has passed.
func (b *Business) Activate(turn int) bool {
	if b.State != StateOpening || turn <= b.OpenedTurn {
		return false
	}
	b.State = StateActive
	return true
}
