package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sawpanic/noticerun/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func sampleSummary() domain.Summary {
	eff := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	return domain.Summary{
		EffectiveDate: eff,
		GuidelinePct:  dec("2.75"),
		Batches: []domain.BuildingBatch{
			{
				BuildingID:   20,
				BuildingName: "Elm Court",
				Results: []domain.IncreaseResult{
					{
						LeaseID: 1, UnitNumber: "1A", TenantName: "Alexandria Montgomery",
						CurrentRent: dec("1234.56"), MarketRent: dec("2000"),
						GuidelineRent: dec("1268.51"), GuidelineIncrease: dec("33.95"),
						AgiRent: decp("1293.20"), AgiIncrease: decp("58.64"),
						NoticePct: dec("4.75"), CalcPct: dec("2"),
					},
					{
						LeaseID: 2, UnitNumber: "2B", TenantName: "Bo Lee",
						CurrentRent: dec("900"), MarketRent: dec("950"),
						GuidelineRent: dec("924.75"), GuidelineIncrease: dec("24.75"),
						NoticePct: dec("2.75"), Ignored: true, Reason: "Moving Out 2025-08-31",
					},
				},
				Count:         1,
				TotalIncrease: dec("58.64"),
			},
			{
				BuildingID:   10,
				BuildingName: "Birch Hall",
				Results: []domain.IncreaseResult{
					{
						LeaseID: 3, UnitNumber: "3", TenantName: "Cy",
						CurrentRent: dec("1000"), MarketRent: dec("1200"),
						GuidelineRent: dec("1027.50"), GuidelineIncrease: dec("27.50"),
						NoticePct: dec("2.75"),
					},
				},
				Count:         1,
				TotalIncrease: dec("27.50"),
			},
		},
		Count:         2,
		TotalIncrease: dec("86.14"),
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1,234.56", Money(dec("1234.555")))
	assert.Equal(t, "$0.00", Money(decimal.Zero))
	assert.Equal(t, "$12,000.10", Money(dec("12000.1")))
}

func TestReviewTitle(t *testing.T) {
	eff := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Increase Notices for September 01, 2025 - Review", ReviewTitle(eff))
}

func TestBuildingMessage(t *testing.T) {
	s := sampleSummary()
	run := time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)
	msg := BuildingMessage(s, s.Batches[0], run)

	assert.Contains(t, msg, "Run Date: 2025-06-20")
	assert.Contains(t, msg, "Increase Effective Date: September 01, 2025")
	assert.Contains(t, msg, "Guideline Increase Rate: 2.75%")
	assert.Contains(t, msg, "Building: Property: Elm Court")
	assert.Contains(t, msg, "Number of Increases: 1")
	assert.Contains(t, msg, "Total Increase: $58.64")
	assert.Contains(t, msg, "$1,293.20")
	assert.Contains(t, msg, "Alexandria Mont")
	assert.NotContains(t, msg, "Alexandria Montg")

	lines := strings.Split(strings.TrimSpace(msg), "\n")
	last := lines[len(lines)-1]
	assert.Contains(t, last, "Bo Lee")
	assert.Contains(t, last, " Y ")
}

func TestIgnoredMessage(t *testing.T) {
	s := sampleSummary()
	msg := IgnoredMessage(s)

	assert.True(t, strings.HasPrefix(msg, "Elm Court\n"))
	assert.Contains(t, msg, "Moving Out 2025-08-31")
	assert.NotContains(t, msg, "Birch Hall")
	assert.True(t, strings.HasSuffix(msg, "Ignored Count: 1"))

	s.Batches[0].Results = s.Batches[0].Results[:1]
	assert.Equal(t, "No Ignored Leases", IgnoredMessage(s))
}

func TestWorkbook(t *testing.T) {
	s := sampleSummary()
	data, err := Workbook(s, time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetIncluded, SheetIgnored}, f.GetSheetList())

	included, err := f.GetRows(SheetIncluded)
	require.NoError(t, err)
	require.Len(t, included, 3)
	assert.Equal(t, "Building", included[0][0])
	assert.Equal(t, "Elm Court", included[1][0])
	assert.Equal(t, "1A", included[1][1])
	assert.Equal(t, "Birch Hall", included[2][0])

	ignored, err := f.GetRows(SheetIgnored)
	require.NoError(t, err)
	require.Len(t, ignored, 2)
	assert.Equal(t, "Bo Lee", ignored[1][2])
	assert.Equal(t, "Y", ignored[1][11])
	assert.Equal(t, "Moving Out 2025-08-31", ignored[1][12])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, "September 01, 2025", summary[2][1])
	assert.Equal(t, "Elm Court", summary[6][0])
	assert.Equal(t, "1", summary[6][1])
	assert.Equal(t, "1", summary[6][3])
	assert.Equal(t, "Birch Hall", summary[7][0])
}

func TestWorkbookName(t *testing.T) {
	eff := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Rent Increase Summary September 01, 2025.xlsx", WorkbookName(eff))
}
