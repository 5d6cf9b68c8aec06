package calc

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
)

var (
	// ErrMissingPrimaryCharge means no charge carries the base rent code.
	ErrMissingPrimaryCharge = errors.New("no primary rent charge")
	// ErrMultiplePrimaryCharges means more than one charge carries it.
	ErrMultiplePrimaryCharges = errors.New("more than one primary rent charge")
)

var hundred = decimal.NewFromInt(100)

// Split is the result of spreading a percentage increase over a lease's
// recurring charges.
type Split struct {
	OriginalTotal decimal.Decimal
	// NewTotal is the rounded new total. The updated charges always sum to
	// exactly this value.
	NewTotal decimal.Decimal
	Increase decimal.Decimal
	Updated  []domain.RecurringCharge
	// ChargesToStop lists ids of charges outside the rent schedule. It is
	// nil when there are none.
	ChargesToStop []int64
}

func factor(pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(pct.Div(hundred))
}

// SplitCharges applies pct to every charge. Non-primary charges are rounded
// independently and the primary rent absorbs the rounding remainder, so the
// updated amounts sum to round(original * (1 + pct/100), 2).
//
// In the AGI pass the reported increase is measured against the rent the
// lease would have at comparisonPct rather than against the current rent.
func SplitCharges(charges []domain.RecurringCharge, pct decimal.Decimal, effective time.Time, agiPass bool, comparisonPct decimal.Decimal) (Split, error) {
	primary := -1
	for i, c := range charges {
		if !c.IsPrimary() {
			continue
		}
		if primary >= 0 {
			return Split{}, fault.New(fault.MalformedData, "split charges", ErrMultiplePrimaryCharges)
		}
		primary = i
	}
	if primary < 0 {
		return Split{}, fault.New(fault.MalformedData, "split charges", ErrMissingPrimaryCharge)
	}

	f := factor(pct)
	due := effective.Format(domain.DateLayout)

	original := decimal.Zero
	for _, c := range charges {
		original = original.Add(c.Amount)
	}
	newTotal := original.Mul(f).Round(2)

	s := Split{
		OriginalTotal: original,
		NewTotal:      newTotal,
		Updated:       make([]domain.RecurringCharge, 0, len(charges)),
	}

	remainder := newTotal
	for i, c := range charges {
		if i == primary {
			continue
		}
		amount := c.Amount.Mul(f).Round(2)
		remainder = remainder.Sub(amount)
		if c.RentID == nil {
			s.ChargesToStop = append(s.ChargesToStop, c.ID)
		}
		c.Amount = amount
		c.NextDueDate = due
		s.Updated = append(s.Updated, c)
	}

	rent := charges[primary]
	naive := rent.Amount.Mul(f).Round(2)
	remainder = remainder.Sub(naive).Round(2)
	rent.Amount = naive.Add(remainder).Round(2)
	rent.NextDueDate = due
	s.Updated = append(s.Updated, rent)

	if agiPass {
		base := original.Mul(factor(pct.Sub(comparisonPct))).Round(2)
		s.Increase = newTotal.Sub(base)
	} else {
		s.Increase = newTotal.Sub(original)
	}
	return s, nil
}
