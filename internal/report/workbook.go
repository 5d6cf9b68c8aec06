package report

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
)

// Sheet names of the review workbook.
const (
	SheetSummary  = "Summary"
	SheetIncluded = "Included"
	SheetIgnored  = "Ignored"
)

var leaseHeader = []interface{}{
	"Building", "Unit", "Tenant", "Current", "Guideline Rent", "AGI Rent",
	"Market", "Guideline Increase", "AGI Increase", "Notice %", "Calc %", "Ignored", "Reason",
}

func money(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

func optFloat(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	return money(*d)
}

// WorkbookName names the review workbook attached to the task.
func WorkbookName(effective time.Time) string {
	return "Rent Increase Summary " + effective.Format(domain.LongDateLayout) + ".xlsx"
}

// Workbook builds the review spreadsheet: per-building totals, then the
// included and ignored leases.
func Workbook(s domain.Summary, runDate time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, wrap(err)
	}
	for _, name := range []string{SheetIncluded, SheetIgnored} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, wrap(err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, wrap(err)
	}
	currencyFmt := "$#,##0.00"
	currency, err := f.NewStyle(&excelize.Style{CustomNumFmt: &currencyFmt})
	if err != nil {
		return nil, wrap(err)
	}

	head := [][]interface{}{
		{"Rent Increase Summary"},
		{"Run Date", runDate.Format(domain.DateLayout)},
		{"Increase Effective Date", s.EffectiveDate.Format(domain.LongDateLayout)},
		{"Guideline Increase Rate", s.GuidelinePct.String() + "%"},
		{},
		{"Building", "Increases (not ignored)", "Total Increase (not ignored)", "Ignored Count", "Total Ignored Increase"},
	}
	for i, row := range head {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "A1", bold); err != nil {
		return nil, wrap(err)
	}
	if err := f.SetCellStyle(SheetSummary, "A6", "E6", bold); err != nil {
		return nil, wrap(err)
	}

	row := len(head) + 1
	for _, b := range s.Batches {
		active, ignored := 0, 0
		activeTotal, ignoredTotal := decimal.Zero, decimal.Zero
		for _, r := range b.Results {
			if r.Ignored {
				ignored++
				ignoredTotal = ignoredTotal.Add(r.GuidelineIncrease)
				continue
			}
			active++
			activeTotal = activeTotal.Add(r.NoticeIncrease())
		}
		if err := setRow(f, SheetSummary, row, []interface{}{b.BuildingName, active, money(activeTotal), ignored, money(ignoredTotal)}); err != nil {
			return nil, err
		}
		row++
	}
	if row > len(head)+1 {
		if err := styleRange(f, SheetSummary, 3, len(head)+1, 3, row-1, currency); err != nil {
			return nil, err
		}
		if err := styleRange(f, SheetSummary, 5, len(head)+1, 5, row-1, currency); err != nil {
			return nil, err
		}
	}

	next := map[string]int{SheetIncluded: 2, SheetIgnored: 2}
	for _, name := range []string{SheetIncluded, SheetIgnored} {
		if err := setRow(f, name, 1, leaseHeader); err != nil {
			return nil, err
		}
		if err := styleRange(f, name, 1, 1, len(leaseHeader), 1, bold); err != nil {
			return nil, err
		}
	}
	for _, b := range s.Batches {
		for _, r := range b.Results {
			sheet := SheetIncluded
			if r.Ignored {
				sheet = SheetIgnored
			}
			values := []interface{}{
				b.BuildingName, r.UnitNumber, r.TenantName,
				money(r.CurrentRent), money(r.GuidelineRent), optFloat(r.AgiRent),
				money(r.MarketRent), money(r.GuidelineIncrease), optFloat(r.AgiIncrease),
				r.NoticePct.String(), r.CalcPct.String(), yn(r.Ignored), r.Reason,
			}
			if err := setRow(f, sheet, next[sheet], values); err != nil {
				return nil, err
			}
			next[sheet]++
		}
	}
	for _, name := range []string{SheetIncluded, SheetIgnored} {
		if next[name] > 2 {
			if err := styleRange(f, name, 4, 2, 9, next[name]-1, currency); err != nil {
				return nil, err
			}
		}
		if err := f.SetColWidth(name, "A", "M", 16); err != nil {
			return nil, wrap(err)
		}
	}
	if err := f.SetColWidth(SheetSummary, "A", "E", 24); err != nil {
		return nil, wrap(err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, wrap(err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return wrap(err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return wrap(err)
	}
	return nil
}

func styleRange(f *excelize.File, sheet string, col1, row1, col2, row2, style int) error {
	from, err := excelize.CoordinatesToCellName(col1, row1)
	if err != nil {
		return wrap(err)
	}
	to, err := excelize.CoordinatesToCellName(col2, row2)
	if err != nil {
		return wrap(err)
	}
	if err := f.SetCellStyle(sheet, from, to, style); err != nil {
		return wrap(err)
	}
	return nil
}

func wrap(err error) error {
	return fault.New(fault.EncryptionOrIO, "build workbook", err)
}
