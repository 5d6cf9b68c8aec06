package calc

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/domain"
)

// ReasonAboveMarket marks leases whose guideline rent would land at or
// near the unit's market rent.
const ReasonAboveMarket = "Above Market"

// DefaultMarketMargin is the currency margin used by the above-market test.
var DefaultMarketMargin = decimal.NewFromInt(50)

// AboveMarket reports whether guidelineRent + margin exceeds a non-zero
// market rent.
func AboveMarket(guidelineRent, marketRent, margin decimal.Decimal) bool {
	if marketRent.IsZero() {
		return false
	}
	return guidelineRent.Add(margin).GreaterThan(marketRent)
}

// Group is the set of leases of one building, in upstream order.
type Group struct {
	BuildingID   int64
	BuildingName string
	Leases       []domain.Lease
}

// Generator turns eligible leases into increase results.
type Generator struct {
	Guideline decimal.Decimal
	Effective time.Time
	Margin    decimal.Decimal
}

// Assess computes the increase for one lease. An error means the lease's
// charges are unusable and the lease must be skipped.
func (g Generator) Assess(lease domain.Lease) (domain.IncreaseResult, error) {
	margin := g.Margin
	if margin.IsZero() {
		margin = DefaultMarketMargin
	}

	comparison := lease.NoticePct
	reportedCalc := lease.CalcPct
	if lease.HasAgi && AnniversaryPassed(lease.AgiRecords, g.Effective) {
		comparison = comparison.Add(AnniversaryBump)
		reportedCalc = reportedCalc.Sub(AnniversaryBump)
	}

	guideline, err := SplitCharges(lease.Charges, g.Guideline, g.Effective, false, comparison)
	if err != nil {
		return domain.IncreaseResult{}, err
	}

	res := domain.IncreaseResult{
		LeaseID:           lease.ID,
		BuildingID:        lease.BuildingID,
		BuildingName:      lease.BuildingName,
		UnitNumber:        lease.UnitNumber,
		Address:           lease.Address,
		TenantName:        lease.TenantName,
		AllTenantNames:    lease.AllTenantNames,
		TenantIDs:         lease.TenantIDs,
		LeaseEnd:          lease.LeaseEnd,
		CurrentRent:       guideline.OriginalTotal,
		MarketRent:        lease.MarketRent,
		GuidelineRent:     guideline.NewTotal,
		GuidelineIncrease: guideline.Increase,
		NoticePct:         lease.NoticePct,
		CalcPct:           reportedCalc,
		AgiType:           lease.AgiType,
		Reason:            lease.Reason,
		UpdatedCharges:    guideline.Updated,
		ChargesToStop:     guideline.ChargesToStop,
	}

	if lease.HasAgi {
		agi, err := SplitCharges(lease.Charges, lease.CalcPct, g.Effective, true, comparison)
		if err != nil {
			return domain.IncreaseResult{}, err
		}
		// renewals keep the guideline charges; the AGI pass only reports
		res.AgiRent = &agi.NewTotal
		res.AgiIncrease = &agi.Increase
	}

	switch {
	case !lease.Eligible:
		res.Ignored = true
	case AboveMarket(guideline.NewTotal, lease.MarketRent, margin):
		res.Ignored = true
		res.Reason = ReasonAboveMarket
	}
	return res, nil
}

// GenerateIncreases assesses every lease and assembles per-building batches
// in the order given. Leases that fail assessment are logged and left out.
// Counts and totals cover every assessed lease, ignored ones included.
func (g Generator) GenerateIncreases(groups []Group) domain.Summary {
	summary := domain.Summary{
		EffectiveDate: g.Effective,
		GuidelinePct:  g.Guideline,
		TotalIncrease: decimal.Zero,
	}

	for _, group := range groups {
		batch := domain.BuildingBatch{
			BuildingID:    group.BuildingID,
			BuildingName:  group.BuildingName,
			TotalIncrease: decimal.Zero,
		}
		for _, lease := range group.Leases {
			res, err := g.Assess(lease)
			if err != nil {
				log.Error().Err(err).
					Int64("building_id", group.BuildingID).
					Int64("lease_id", lease.ID).
					Msg("Skipping lease with unusable charges")
				continue
			}
			batch.Results = append(batch.Results, res)
			batch.Count++
			batch.TotalIncrease = batch.TotalIncrease.Add(res.GuidelineIncrease)
		}
		summary.Batches = append(summary.Batches, batch)
		summary.Count += batch.Count
		summary.TotalIncrease = summary.TotalIncrease.Add(batch.TotalIncrease)
	}
	return summary
}
