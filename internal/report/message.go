package report

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sawpanic/noticerun/internal/domain"
)

var printer = message.NewPrinter(language.English)

// Money formats an amount with thousands separators and two decimals.
func Money(d decimal.Decimal) string {
	return printer.Sprintf("$%.2f", d.Round(2).InexactFloat64())
}

func optMoney(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return Money(*d)
}

func truncate(s string, n int) string {
	if rs := []rune(s); len(rs) > n {
		return string(rs[:n])
	}
	return s
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// ReviewTitle is the title of the preliminary review task.
func ReviewTitle(effective time.Time) string {
	return "Increase Notices for " + effective.Format(domain.LongDateLayout) + " - Review"
}

// BuildingMessage renders the review message posted to the task for one
// building.
func BuildingMessage(s domain.Summary, b domain.BuildingBatch, runDate time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nRun Date: %s\n", runDate.Format(domain.DateLayout))
	fmt.Fprintf(&sb, "Increase Effective Date: %s\n", s.EffectiveDate.Format(domain.LongDateLayout))
	fmt.Fprintf(&sb, "Guideline Increase Rate: %s%%\n", s.GuidelinePct.String())
	fmt.Fprintf(&sb, "Building: Property: %s\n\n", b.BuildingName)
	fmt.Fprintf(&sb, "Number of Increases: %d\n", b.Count)
	fmt.Fprintf(&sb, "Total Increase: %s\n\n", Money(b.TotalIncrease))

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Current Rent\tNew Rent\tAGI Rent\tMarket Rent\tGuideline Increase\tAGI Increase\tNotice %\tCalc %\tIgnored\tUnit\tTenant")
	for _, r := range b.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			Money(r.CurrentRent),
			Money(r.GuidelineRent),
			optMoney(r.AgiRent),
			Money(r.MarketRent),
			Money(r.GuidelineIncrease),
			optMoney(r.AgiIncrease),
			r.NoticePct.String(),
			calcPct(r),
			yn(r.Ignored),
			r.UnitNumber,
			truncate(r.TenantName, 15),
		)
	}
	tw.Flush()
	return sb.String()
}

func calcPct(r domain.IncreaseResult) string {
	if r.AgiRent == nil {
		return ""
	}
	return r.CalcPct.String()
}

// IgnoredMessage lists every ignored lease across buildings with its
// reason, or says there are none.
func IgnoredMessage(s domain.Summary) string {
	var sb strings.Builder
	count := 0
	for _, b := range s.Batches {
		var ignored []domain.IncreaseResult
		for _, r := range b.Results {
			if r.Ignored {
				ignored = append(ignored, r)
			}
		}
		if len(ignored) == 0 {
			continue
		}
		if count > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(b.BuildingName + "\n")
		tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Current Rent\tNew Rent\tAGI Rent\tMarket Rent\tGuideline Increase\tAGI Increase\tNotice %\tCalc %\tUnit\tTenant\tReason")
		for _, r := range ignored {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				Money(r.CurrentRent),
				Money(r.GuidelineRent),
				optMoney(r.AgiRent),
				Money(r.MarketRent),
				Money(r.GuidelineIncrease),
				optMoney(r.AgiIncrease),
				r.NoticePct.String(),
				calcPct(r),
				r.UnitNumber,
				truncate(r.TenantName, 12),
				r.Reason,
			)
		}
		tw.Flush()
		count += len(ignored)
	}
	if count == 0 {
		return "No Ignored Leases"
	}
	fmt.Fprintf(&sb, "\n\n\nIgnored Count: %d", count)
	return sb.String()
}
