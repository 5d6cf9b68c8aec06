package handoff

import (
	"strconv"
	"time"

	"github.com/sawpanic/noticerun/internal/domain"
)

// Renewal defaults written into every plan.
const (
	RenewalLeaseType = "FixedWithRollover"
	RenewalCycle     = "Monthly"
)

// Build turns the review summary into per-building plans. Leases that are
// moving out are left out entirely; they get neither a notice nor a term
// extension.
func Build(s domain.Summary) []domain.BuildingPlan {
	effective := s.EffectiveDate.Format(domain.DateLayout)
	plans := make([]domain.BuildingPlan, 0, len(s.Batches))
	for _, b := range s.Batches {
		plan := domain.BuildingPlan{
			BuildingID:    b.BuildingID,
			BuildingName:  b.BuildingName,
			EffectiveDate: effective,
		}
		for _, r := range b.Results {
			if r.Moving() {
				continue
			}
			plan.Leases = append(plan.Leases, PlanFor(r, effective))
		}
		plan.IgnoreBuilding = len(plan.Leases) > 0 && !plan.HasActive()
		plans = append(plans, plan)
	}
	return plans
}

// PlanFor builds the notice and renewal sections of one lease.
func PlanFor(r domain.IncreaseResult, effective string) domain.LeasePlan {
	return domain.LeasePlan{
		LeaseID:      r.LeaseID,
		BuildingName: r.BuildingName,
		Ignored:      r.Ignored,
		Reason:       r.Reason,
		Notice: domain.Notice{
			TenantNames:   r.AllTenantNames,
			Address:       r.Address,
			Unit:          r.UnitNumber,
			EffectiveDate: effective,
			NewRent:       r.NoticeRent(),
			Increase:      r.NoticeIncrease(),
			Percentage:    r.NoticePct,
			AgiType:       r.AgiType,
		},
		Renewal: domain.Renewal{
			LeaseType:     RenewalLeaseType,
			TermStart:     effective,
			RentCycle:     RenewalCycle,
			Charges:       r.UpdatedCharges,
			TenantIDs:     r.TenantIDs,
			ChargesToStop: r.ChargesToStop,
		},
	}
}

// FileName names the sealed bundle attached to the review task.
func FileName(accountID int64, effective time.Time) string {
	return strconv.FormatInt(accountID, 10) + "_Increase_Notice_Data_" + effective.Format(domain.DateLayout) + ".bin"
}
