package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// extendLease pushes an ignored lease's end date out so it stays active
// until the next cycle.
func (o *Orchestrator) extendLease(ctx context.Context, leaseID int64) error {
	lease, err := o.api.Lease(ctx, leaseID)
	if err != nil {
		return err
	}
	end, err := time.Parse(domain.DateLayout, lease.LeaseToDate)
	if err != nil {
		return fault.New(fault.MalformedData, "lease end date", err)
	}
	u := upstream.UpdateFromLease(lease)
	u.LeaseToDate = AddMonths(end, o.cfg.ExtensionMonths).Format(domain.DateLayout)
	if err := o.api.UpdateLease(ctx, leaseID, u); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Int64("lease_id", leaseID).Str("lease_to", u.LeaseToDate).Msg("Ignored lease extended")
	return nil
}

// AddMonths adds n calendar months, clamping to the last day of the target
// month instead of overflowing into the next one.
func AddMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// RenewalBody builds the renewal request for a delivered notice. The new
// term runs one year from the effective date.
func RenewalBody(r domain.Renewal, effective time.Time) upstream.Renewal {
	charges := make([]upstream.RenewalCharge, 0, len(r.Charges))
	for _, c := range r.Charges {
		amount, _ := c.Amount.Float64()
		charges = append(charges, upstream.RenewalCharge{
			Amount:      amount,
			GLAccountID: c.GLAccountID,
			NextDueDate: c.NextDueDate,
			Memo:        c.Memo,
		})
	}
	return upstream.Renewal{
		LeaseType:              r.LeaseType,
		LeaseToDate:            effective.AddDate(1, 0, -1).Format(domain.DateLayout),
		Rent:                   upstream.RenewalRent{Cycle: r.RentCycle, Charges: charges},
		TenantIDs:              r.TenantIDs,
		RecurringChargesToStop: r.ChargesToStop,
	}
}

// renew submits the renewal. A 409 means an eviction flag blocks it: the
// flag is cleared, the renewal retried, and the flag restored afterwards.
func (o *Orchestrator) renew(ctx context.Context, lp domain.LeasePlan, effective time.Time) error {
	logger := log.Ctx(ctx).With().Int64("lease_id", lp.LeaseID).Logger()
	body := RenewalBody(lp.Renewal, effective)

	var (
		restore *bool
		err     error
		status  int
	)
	for attempt := 1; attempt <= o.cfg.RenewalAttempts; attempt++ {
		status, err = o.api.Renew(ctx, lp.LeaseID, body)
		if err != nil {
			break
		}
		if status != http.StatusConflict {
			logger.Info().Int("attempt", attempt).Msg("Lease renewed")
			break
		}
		if restore != nil {
			continue
		}
		prev, cerr := o.setEviction(ctx, lp.LeaseID, false)
		if cerr != nil {
			err = cerr
			break
		}
		restore = &prev
		logger.Warn().Int("attempt", attempt).Msg("Renewal blocked by eviction flag, cleared and retrying")
	}
	if err == nil && status == http.StatusConflict {
		err = fault.Newf(fault.UpstreamRejected, "renew lease", "still conflicting after %d attempts", o.cfg.RenewalAttempts)
	}

	if restore != nil {
		if _, rerr := o.setEviction(ctx, lp.LeaseID, *restore); rerr != nil {
			logger.Error().Err(rerr).Msg("Could not restore eviction flag")
		}
	}
	return err
}

// setEviction sets the eviction-pending flag and returns its prior value.
func (o *Orchestrator) setEviction(ctx context.Context, leaseID int64, pending bool) (bool, error) {
	lease, err := o.api.Lease(ctx, leaseID)
	if err != nil {
		return false, err
	}
	u := upstream.UpdateFromLease(lease)
	u.IsEvictionPending = pending
	moveOut := false
	u.AutomaticallyMoveOutTenants = &moveOut
	return lease.IsEvictionPending, o.api.UpdateLease(ctx, leaseID, u)
}
