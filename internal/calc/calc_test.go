package calc

import (
	"math/rand"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func rentID(id int64) *int64 { return &id }

var effective = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// rent 1633.99 linked to the rent schedule, parking and garage unlinked
func sampleCharges() []domain.RecurringCharge {
	return []domain.RecurringCharge{
		{ID: 11, Amount: dec("1633.99"), GLAccountID: domain.PrimaryRentGL, Memo: "Rent", RentID: rentID(900)},
		{ID: 12, Amount: dec("69.11"), GLAccountID: 41, Memo: "Parking"},
		{ID: 13, Amount: dec("57.81"), GLAccountID: 42, Memo: "Garage"},
	}
}

func amountsByMemo(charges []domain.RecurringCharge) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(charges))
	for _, c := range charges {
		out[c.Memo] = c.Amount
	}
	return out
}

func sum(charges []domain.RecurringCharge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		total = total.Add(c.Amount)
	}
	return total
}

func TestSplitCharges_GuidelinePass(t *testing.T) {
	s, err := SplitCharges(sampleCharges(), dec("2.5"), effective, false, dec("2.5"))
	require.NoError(t, err)

	assertDec(t, "1760.91", s.OriginalTotal)
	assertDec(t, "1804.93", s.NewTotal)
	assertDec(t, "44.02", s.Increase)

	amounts := amountsByMemo(s.Updated)
	assertDec(t, "70.84", amounts["Parking"])
	assertDec(t, "59.26", amounts["Garage"])
	// 1674.84 naive, the -0.01 rounding remainder lands on the rent line
	assertDec(t, "1674.83", amounts["Rent"])
	assertDec(t, "1804.93", sum(s.Updated))

	assert.Equal(t, []int64{12, 13}, s.ChargesToStop)
	for _, c := range s.Updated {
		assert.Equal(t, "2025-06-01", c.NextDueDate)
	}
	// primary rent is last
	assert.Equal(t, "Rent", s.Updated[len(s.Updated)-1].Memo)
}

func TestSplitCharges_AgiPass(t *testing.T) {
	s, err := SplitCharges(sampleCharges(), dec("2.5"), effective, true, dec("2.25"))
	require.NoError(t, err)

	assertDec(t, "1804.93", s.NewTotal)
	// agiRent = round(1760.91 * 1.0025, 2) = 1765.31
	assertDec(t, "39.62", s.Increase)
}

func TestSplitCharges_StopListNilWhenAllLinked(t *testing.T) {
	charges := []domain.RecurringCharge{
		{ID: 1, Amount: dec("1000"), GLAccountID: domain.PrimaryRentGL, RentID: rentID(1)},
		{ID: 2, Amount: dec("50"), GLAccountID: 9, RentID: rentID(1)},
	}
	s, err := SplitCharges(charges, dec("2.5"), effective, false, dec("2.5"))
	require.NoError(t, err)
	assert.Nil(t, s.ChargesToStop)
}

func TestSplitCharges_MissingPrimary(t *testing.T) {
	_, err := SplitCharges(nil, dec("2.5"), effective, false, dec("2.5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingPrimaryCharge)
	assert.True(t, fault.Is(err, fault.MalformedData))

	_, err = SplitCharges([]domain.RecurringCharge{{ID: 1, Amount: dec("10"), GLAccountID: 8}}, dec("2.5"), effective, false, dec("2.5"))
	assert.ErrorIs(t, err, ErrMissingPrimaryCharge)
}

func TestSplitCharges_MultiplePrimary(t *testing.T) {
	charges := []domain.RecurringCharge{
		{ID: 1, Amount: dec("900"), GLAccountID: domain.PrimaryRentGL},
		{ID: 2, Amount: dec("100"), GLAccountID: domain.PrimaryRentGL},
	}
	_, err := SplitCharges(charges, dec("2.5"), effective, false, dec("2.5"))
	assert.ErrorIs(t, err, ErrMultiplePrimaryCharges)
}

func TestSplitCharges_NegativePercentage(t *testing.T) {
	s, err := SplitCharges(sampleCharges(), dec("-1.5"), effective, false, dec("0"))
	require.NoError(t, err)
	assert.True(t, s.Increase.IsNegative())
	assert.True(t, sum(s.Updated).Equal(s.NewTotal))
}

func TestSplitCharges_DoesNotMutateInput(t *testing.T) {
	charges := sampleCharges()
	_, err := SplitCharges(charges, dec("2.5"), effective, false, dec("2.5"))
	require.NoError(t, err)
	assertDec(t, "1633.99", charges[0].Amount)
	assert.Empty(t, charges[0].NextDueDate)
}

func TestSplitCharges_SumInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(6)
		charges := make([]domain.RecurringCharge, n)
		primary := rng.Intn(n)
		for j := range charges {
			charges[j] = domain.RecurringCharge{
				ID:          int64(j + 1),
				Amount:      decimal.New(int64(rng.Intn(400000)), -2),
				GLAccountID: int64(100 + j),
			}
			if j == primary {
				charges[j].GLAccountID = domain.PrimaryRentGL
			}
			if rng.Intn(2) == 0 {
				charges[j].RentID = rentID(1)
			}
		}
		pct := decimal.New(int64(rng.Intn(2000)-500), -2)

		s, err := SplitCharges(charges, pct, effective, rng.Intn(2) == 0, decimal.New(int64(rng.Intn(500)), -2))
		require.NoError(t, err)
		require.Len(t, s.Updated, n)
		require.True(t, sum(s.Updated).Equal(s.NewTotal), "case %d: %s != %s", i, sum(s.Updated), s.NewTotal)
	}
}

func TestSplitCharges_Idempotent(t *testing.T) {
	a, err := SplitCharges(sampleCharges(), dec("3.3"), effective, true, dec("2.5"))
	require.NoError(t, err)
	b, err := SplitCharges(sampleCharges(), dec("3.3"), effective, true, dec("2.5"))
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestYearsElapsed(t *testing.T) {
	first := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		effective time.Time
		want      int
	}{
		{time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), -2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, YearsElapsed(first, tt.effective), tt.effective.Format(domain.DateLayout))
	}
}

func TestAccrueAgiPercentage(t *testing.T) {
	first := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	records := []domain.AgiRecord{{
		ApprovalStatus:    "Approved",
		FirstIncrease:     &first,
		YearlyPercentages: []decimal.Decimal{dec("3.0"), dec("2.5"), dec("1.0")},
	}}

	tests := []struct {
		name       string
		effective  time.Time
		total, pct string
	}{
		{"first year", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), "5.5", "5.5"},
		{"second year", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "5.0", "8.25"},
		{"third year", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "3.5", "9.25"},
		{"past schedule", time.Date(2028, 6, 1, 0, 0, 0, 0, time.UTC), "2.5", "9.25"},
		{"before first increase", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), "2.5", "2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, calc := AccrueAgiPercentage(records, dec("2.5"), tt.effective)
			assertDec(t, tt.total, total)
			assertDec(t, tt.pct, calc)
		})
	}
}

func TestAccrueAgiPercentage_SkipsIncompleteRecords(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.AgiRecord{
		{ApprovalStatus: "Approved"},
		{FirstIncrease: &first},
	}
	total, calc := AccrueAgiPercentage(records, dec("2.5"), effective)
	assertDec(t, "2.5", total)
	assertDec(t, "2.5", calc)
}

func TestAnniversaryPassed(t *testing.T) {
	first := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.AgiRecord{{FirstIncrease: &first}}

	assert.False(t, AnniversaryPassed(records, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, AnniversaryPassed(records, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))
	assert.False(t, AnniversaryPassed(nil, effective))
	assert.False(t, AnniversaryPassed([]domain.AgiRecord{{}}, effective))
}
