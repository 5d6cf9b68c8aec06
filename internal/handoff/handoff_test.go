package handoff

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func summary() domain.Summary {
	agiRent, agiInc := d("1844.55"), d("83.64")
	return domain.Summary{
		EffectiveDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Batches: []domain.BuildingBatch{
			{BuildingID: 200, BuildingName: "Oak", Results: []domain.IncreaseResult{
				{LeaseID: 1, BuildingName: "Oak", AllTenantNames: "Ada Lovelace", Address: "1 Oak St", UnitNumber: "1",
					GuidelineRent: d("1804.93"), GuidelineIncrease: d("44.02"), NoticePct: d("2.5"),
					UpdatedCharges: []domain.RecurringCharge{{Amount: d("1804.93"), GLAccountID: domain.PrimaryRentGL, NextDueDate: "2024-05-01"}},
					TenantIDs:      []int64{10}, ChargesToStop: []int64{7}},
				{LeaseID: 2, BuildingName: "Oak", Ignored: true, Reason: "Moving Out 2024-04-30"},
				{LeaseID: 3, BuildingName: "Oak", AgiRent: &agiRent, AgiIncrease: &agiInc, AgiType: domain.AgiApproved,
					GuidelineRent: d("1800"), GuidelineIncrease: d("40"), NoticePct: d("5.5")},
			}},
			{BuildingID: 100, BuildingName: "Maple", Results: []domain.IncreaseResult{
				{LeaseID: 4, Ignored: true, Reason: "Above Market"},
				{LeaseID: 5, Ignored: true, Reason: "No Increase Note"},
			}},
			{BuildingID: 50, BuildingName: "Birch", Results: []domain.IncreaseResult{
				{LeaseID: 6, Ignored: true, Reason: "Moving Out 2024-03-01"},
			}},
		},
	}
}

func TestBuild(t *testing.T) {
	plans := Build(summary())
	require.Len(t, plans, 3)

	oak := plans[0]
	assert.False(t, oak.IgnoreBuilding)
	assert.Equal(t, "2024-05-01", oak.EffectiveDate)
	require.Len(t, oak.Leases, 2)
	assert.Equal(t, int64(1), oak.Leases[0].LeaseID)
	assert.Equal(t, int64(3), oak.Leases[1].LeaseID)

	first := oak.Leases[0]
	assert.Equal(t, "1804.93", first.Notice.NewRent.String())
	assert.Equal(t, "44.02", first.Notice.Increase.String())
	assert.Equal(t, RenewalLeaseType, first.Renewal.LeaseType)
	assert.Equal(t, "2024-05-01", first.Renewal.TermStart)
	assert.Equal(t, []int64{7}, first.Renewal.ChargesToStop)

	agi := oak.Leases[1].Notice
	assert.Equal(t, "1844.55", agi.NewRent.String())
	assert.Equal(t, "83.64", agi.Increase.String())
	assert.Equal(t, domain.AgiApproved, agi.AgiType)

	assert.True(t, plans[1].IgnoreBuilding)
	assert.Empty(t, plans[2].Leases)
	assert.False(t, plans[2].IgnoreBuilding)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	parsed, err := ParseKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	plans := Build(summary())
	blob, err := Seal(key, plans)
	require.NoError(t, err)

	other, err := Seal(key, plans)
	require.NoError(t, err)
	assert.NotEqual(t, blob, other, "nonce must differ per seal")

	opened, err := Open(key, blob)
	require.NoError(t, err)
	require.Len(t, opened, 3)
	assert.Equal(t, "Oak", opened[0].BuildingName)
	assert.Equal(t, "1804.93", opened[0].Leases[0].Notice.NewRent.String())
	assert.True(t, opened[1].IgnoreBuilding)
}

func TestOpen_Failures(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	wrong, err := GenerateKey()
	require.NoError(t, err)

	blob, err := Seal(key, Build(summary()))
	require.NoError(t, err)

	_, err = Open(wrong, blob)
	assert.True(t, fault.Is(err, fault.EncryptionOrIO))

	blob[len(blob)-1] ^= 0xff
	_, err = Open(key, blob)
	assert.True(t, fault.Is(err, fault.EncryptionOrIO))

	_, err = Open(key, []byte("short"))
	assert.True(t, fault.Is(err, fault.EncryptionOrIO))
}

func TestParseKey_Rejects(t *testing.T) {
	_, err := ParseKey("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrBadKey)
	_, err = ParseKey("not base64 at all!")
	assert.True(t, fault.Is(err, fault.EncryptionOrIO))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "42_Increase_Notice_Data_2024-05-01.bin", FileName(42, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
}
