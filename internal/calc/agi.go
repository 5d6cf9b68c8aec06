package calc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/domain"
)

// AnniversaryBump is added to the comparison percentage once the first AGI
// increase is more than a year old.
var AnniversaryBump = decimal.RequireFromString("0.25")

// YearsElapsed counts whole years from first to effective, one less when the
// effective month/day falls before the first increase's month/day. It is
// negative when effective precedes first.
func YearsElapsed(first, effective time.Time) int {
	years := effective.Year() - first.Year()
	if effective.Month() < first.Month() ||
		(effective.Month() == first.Month() && effective.Day() < first.Day()) {
		years--
	}
	return years
}

// AccrueAgiPercentage folds the yearly AGI increments of every record into
// the guideline percentage. total is the notice percentage: the guideline
// plus the increment for the current year of each record. calc is the
// percentage applied by the AGI pass: guideline plus the cumulative
// increments to date, with AnniversaryBump once past the first year. When
// several records apply, calc reflects the last one.
func AccrueAgiPercentage(records []domain.AgiRecord, guideline decimal.Decimal, effective time.Time) (total, calc decimal.Decimal) {
	total, calc = guideline, guideline
	for _, rec := range records {
		if rec.FirstIncrease == nil || len(rec.YearlyPercentages) == 0 {
			continue
		}
		years := YearsElapsed(*rec.FirstIncrease, effective)

		cumulative := decimal.Zero
		if years >= 0 {
			n := years + 1
			if n > len(rec.YearlyPercentages) {
				n = len(rec.YearlyPercentages)
			}
			for _, p := range rec.YearlyPercentages[:n] {
				cumulative = cumulative.Add(p)
			}
		}
		if years >= 0 && years < len(rec.YearlyPercentages) {
			total = total.Add(rec.YearlyPercentages[years])
		}

		calc = cumulative.Add(guideline).Round(2)
		if years > 0 {
			calc = calc.Add(AnniversaryBump)
		}
	}
	return total, calc
}

// AnniversaryPassed reports whether effective is more than one year after
// the first AGI record's first increase date.
func AnniversaryPassed(records []domain.AgiRecord, effective time.Time) bool {
	if len(records) == 0 || records[0].FirstIncrease == nil {
		return false
	}
	return effective.After(records[0].FirstIncrease.AddDate(1, 0, 0))
}
