package document

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC) }

func sampleNotice() domain.Notice {
	return domain.Notice{
		TenantNames:   "Zoë Tremblay, Marc Roy",
		Address:       "1 - 12 Elm St, Toronto, ON M4M 1A1",
		Unit:          "1",
		EffectiveDate: "2024-05-01",
		NewRent:       decimal.RequireFromString("1804.93"),
		Increase:      decimal.RequireFromString("44.02"),
		Percentage:    decimal.RequireFromString("2.5"),
	}
}

func TestNames(t *testing.T) {
	effective := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "N1 for Apartment 1 - 12 Elm St Effective May 01, 2024.pdf", NoticeFileName("1 - 12 Elm St, Toronto, ON", effective))
	assert.Equal(t, "Notices for Maple Court May 01, 2024 Part 2.pdf", PartFileName("Maple Court", effective, 2))
	assert.Equal(t, "a b c", SanitizeFileName(`a/b:"c"`))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1,804.93", Money("1804.93"))
	assert.Equal(t, "$0.50", Money("0.50"))
	assert.Equal(t, "$1,234,567.00", Money("1234567.00"))
	assert.Equal(t, "-$44.02", Money("-44.02"))
}

func TestRowFromPlan(t *testing.T) {
	plan := domain.LeasePlan{
		Notice: sampleNotice(),
		Renewal: domain.Renewal{Charges: []domain.RecurringCharge{
			{Amount: decimal.RequireFromString("70.84"), GLAccountID: 40},
			{Amount: decimal.RequireFromString("59.26"), GLAccountID: 41},
			{Amount: decimal.RequireFromString("1674.83"), GLAccountID: domain.PrimaryRentGL},
		}},
	}
	row := RowFromPlan(plan)
	assert.Equal(t, "130.1", row.OtherCharges.String())
	assert.Equal(t, "1674.83", row.RentCharge.String())
	assert.Equal(t, "1804.93", row.Total.String())
}

func TestRenderAndMerge(t *testing.T) {
	r := Renderer{Letterhead: Letterhead{LandlordName: "Elm Holdings"}, Now: fixedNow}

	notice, err := r.Notice(sampleNotice())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(notice[:4]))

	again, err := r.Notice(sampleNotice())
	require.NoError(t, err)
	assert.Equal(t, notice, again)

	rows := []DistributionRow{RowFromPlan(domain.LeasePlan{Notice: sampleNotice()})}
	page, err := r.Distribution("Maple Court", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), rows)
	require.NoError(t, err)

	merged, err := PDFMerger{}.Merge([][]byte{page, notice, notice})
	require.NoError(t, err)
	pages, err := PageCount(merged)
	require.NoError(t, err)
	assert.Equal(t, 5, pages)
}

func TestRenderNotice_BadDate(t *testing.T) {
	n := sampleNotice()
	n.EffectiveDate = "May 1"
	_, err := Renderer{Now: fixedNow}.Notice(n)
	assert.True(t, fault.Is(err, fault.MalformedData))
}

func TestMerge_Edges(t *testing.T) {
	_, err := PDFMerger{}.Merge(nil)
	assert.Error(t, err)

	one := []byte("%PDF-single")
	out, err := PDFMerger{}.Merge([][]byte{one})
	require.NoError(t, err)
	assert.Equal(t, one, out)
}
