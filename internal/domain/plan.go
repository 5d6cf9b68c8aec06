package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notice is what gets printed on one tenant's increase notice.
type Notice struct {
	TenantNames   string          `json:"alltenantnames"`
	Address       string          `json:"address"`
	Unit          string          `json:"unit"`
	EffectiveDate string          `json:"increasedate"`
	NewRent       decimal.Decimal `json:"newrent"`
	Increase      decimal.Decimal `json:"increase"`
	Percentage    decimal.Decimal `json:"percentage"`
	AgiType       AgiType         `json:"agitype"`
}

// Effective parses EffectiveDate.
func (n Notice) Effective() (time.Time, error) {
	return time.Parse(DateLayout, n.EffectiveDate)
}

// Renewal is the lease renewal that follows a delivered notice.
type Renewal struct {
	LeaseType string `json:"LeaseType"`
	// TermStart is the first day of the renewed term.
	TermStart     string            `json:"LeaseToDate"`
	RentCycle     string            `json:"RentCycle"`
	Charges       []RecurringCharge `json:"Charges"`
	TenantIDs     []int64           `json:"TenantIds"`
	ChargesToStop []int64           `json:"RecurringChargesToStop,omitempty"`
}

// LeasePlan is the per-lease input of the notice phase.
type LeasePlan struct {
	LeaseID      int64   `json:"leaseid"`
	BuildingName string  `json:"buildingname"`
	Ignored      bool    `json:"ignored"`
	Reason       string  `json:"reason,omitempty"`
	Notice       Notice  `json:"increasenotice"`
	Renewal      Renewal `json:"renewal"`
}

// BuildingPlan is the per-building input of the notice phase.
type BuildingPlan struct {
	BuildingID     int64       `json:"buildingid"`
	BuildingName   string      `json:"buildingname"`
	EffectiveDate  string      `json:"effectivedate"`
	IgnoreBuilding bool        `json:"ignorebuilding"`
	Leases         []LeasePlan `json:"leases"`
}

// HasActive reports whether any lease in the building is not ignored.
func (b BuildingPlan) HasActive() bool {
	for _, l := range b.Leases {
		if !l.Ignored {
			return true
		}
	}
	return false
}
