package game

import (
	"encoding/json"
	"time"

	"lifesim/internal/business"
	"lifesim/internal/economy"
	"lifesim/internal/governance"
)

type Dashboard struct {
	ActorID             string         `json:"actor_id"`
	Name                string         `json:"name"`
	CountryID           string         `json:"country_id"`
	Turn                int            `json:"turn"`
	Cash                int64          `json:"cash"`
	QuarterlyBaseSalary int64          `json:"quarterly_base_salary"`
	Businesses          []BusinessView `json:"businesses"`
	PendingProposals    int            `json:"pending_proposals"`
	Preview             economy.Report `json:"preview"`
}

type BusinessView struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Type          string              `json:"type"`
	State         business.State      `json:"state"`
	OwnerID       string              `json:"owner_id"`
	Share         float64             `json:"share"`
	Rights        business.Rights     `json:"rights"`
	Partners      []business.Partner  `json:"partners"`
	Price         int                 `json:"price"`
	Quantity      int                 `json:"quantity"`
	UnitPrice     float64             `json:"unit_price"`
	WalletBalance int64               `json:"wallet_balance"`
	Value         float64             `json:"value"`
	Employees     []business.Employee `json:"employees"`
	NetworkID     string              `json:"network_id,omitempty"`
	IsMainBranch  bool                `json:"is_main_branch"`
	NetworkBonus  float64             `json:"network_bonus"`
	Income        float64             `json:"income"`
	Expenses      float64             `json:"expenses"`
	Tax           float64             `json:"tax"`
}

func viewOf(b *business.Business, actorID string) BusinessView {
	rights := business.Resolve(b, actorID)
	return BusinessView{
		ID:            b.ID,
		Name:          b.Name,
		Type:          b.Type,
		State:         b.State,
		OwnerID:       b.OwnerID,
		Share:         rights.Share,
		Rights:        rights,
		Partners:      b.Partners,
		Price:         b.Price,
		Quantity:      b.Quantity,
		UnitPrice:     b.Inventory.UnitPrice,
		WalletBalance: b.WalletBalance,
		Value:         economy.Sanitize(b.Value),
		Employees:     b.Employees,
		NetworkID:     b.NetworkID,
		IsMainBranch:  b.IsMainBranch,
		NetworkBonus:  b.NetworkBonus,
		Income:        economy.Sanitize(b.Income),
		Expenses:      economy.Sanitize(b.Expenses),
		Tax:           economy.Sanitize(b.Tax),
	}
}

type OpenBusinessInput struct {
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	UpfrontCost  int64   `json:"upfront_cost"`
	CreationCost int64   `json:"creation_cost"`
	Price        int     `json:"price"`
	Quantity     int     `json:"quantity"`
	PurchaseCost float64 `json:"purchase_cost"`
	Stock        int     `json:"stock"`
}

func (in OpenBusinessInput) spec() business.OpenSpec {
	return business.OpenSpec{
		Type:         in.Type,
		Name:         businessDisplayName(in.Name, in.Type),
		UpfrontCost:  in.UpfrontCost,
		CreationCost: in.CreationCost,
		Price:        in.Price,
		Quantity:     in.Quantity,
		PurchaseCost: in.PurchaseCost,
		Stock:        in.Stock,
	}
}

type PartnerInput struct {
	ActorID  string  `json:"actor_id"`
	Share    float64 `json:"share"`
	Invested int64   `json:"invested"`
}

// ChangeInput is the wire form of a proposed change: a change type name
// (aliases accepted) and its JSON payload.
type ChangeInput struct {
	ChangeType string          `json:"change_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func (in ChangeInput) decode() (governance.Change, error) {
	t, err := governance.ParseChangeType(in.ChangeType)
	if err != nil {
		return nil, err
	}
	return governance.DecodeChange(t, in.Payload)
}

type RejectInput struct {
	Reason string `json:"reason"`
}

type ChangeResult struct {
	Outcome  governance.Outcome   `json:"outcome"`
	Ignored  bool                 `json:"ignored"`
	Proposal *governance.Proposal `json:"proposal,omitempty"`
	Business *BusinessView        `json:"business,omitempty"`
	Cash     int64                `json:"cash"`
}

type CloseResult struct {
	BusinessID string `json:"business_id"`
	Payout     int64  `json:"payout"`
	Cash       int64  `json:"cash"`
}

type QuarterSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Players    int       `json:"players"`
	Failed     int       `json:"failed"`
	NetProfit  int64     `json:"net_profit"`
}
