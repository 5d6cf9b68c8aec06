package document

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/domain"
)

// DistributionRow is one delivered notice on the distribution page.
type DistributionRow struct {
	TenantNames  string
	Unit         string
	RentCharge   decimal.Decimal
	OtherCharges decimal.Decimal
	Total        decimal.Decimal
	Increase     decimal.Decimal
}

// RowFromPlan derives a row from a lease plan. The rent charge is the new
// total less every non-primary charge.
func RowFromPlan(p domain.LeasePlan) DistributionRow {
	other := decimal.Zero
	for _, c := range p.Renewal.Charges {
		if !c.IsPrimary() {
			other = other.Add(c.Amount)
		}
	}
	return DistributionRow{
		TenantNames:  p.Notice.TenantNames,
		Unit:         p.Notice.Unit,
		RentCharge:   p.Notice.NewRent.Sub(other),
		OtherCharges: other,
		Total:        p.Notice.NewRent,
		Increase:     p.Notice.Increase,
	}
}

var distributionColumns = []struct {
	title string
	width float64
}{
	{"Tenant Names", 120},
	{"Rent Charge", 70},
	{"Other Charges", 75},
	{"Total Charges", 75},
	{"Increase", 65},
	{"Unit", 70},
	{"Delivered", 65},
}

// Distribution renders the delivery checklist placed in front of a
// building's notices.
func (r Renderer) Distribution(building string, effective time.Time, rows []DistributionRow) ([]byte, error) {
	now := r.now()
	pdf := newDoc("P", "N1 Increase Notice Summary", now)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		for _, col := range distributionColumns {
			pdf.CellFormat(col.width, 14, col.title, "B", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 16, "N1 Increase Notice Summary", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 16, tr(building), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(250, 12, "Number Of Increases: "+strconv.Itoa(len(rows)), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 12, "Notices Delivered By:__________________________________", "", 1, "L", false, 0, "")
	pdf.CellFormat(250, 12, "Generated on: "+now.Format(domain.LongDateLayout), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 12, "Date/Delivery Method:_________________________________", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 12, "Increases Effective: "+effective.Format(domain.LongDateLayout), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	header()
	for _, row := range rows {
		names := row.TenantNames
		if rs := []rune(names); len(rs) > 24 {
			names = string(rs[:24])
		}
		cells := []string{
			tr(names),
			Money(row.RentCharge.StringFixed(2)),
			Money(row.OtherCharges.StringFixed(2)),
			Money(row.Total.StringFixed(2)),
			Money(row.Increase.StringFixed(2)),
			tr(row.Unit),
			"________",
		}
		for i, text := range cells {
			pdf.CellFormat(distributionColumns[i].width, 13, text, "", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return output(pdf, "render distribution page")
}
