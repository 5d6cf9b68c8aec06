package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PrimaryRentGL is the ledger code of the base rent charge. Exactly one
// charge per lease carries it.
const PrimaryRentGL int64 = 3

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// LongDateLayout renders dates in notice titles and file names.
const LongDateLayout = "January 02, 2006"

// RecurringCharge is one monthly charge on a lease.
type RecurringCharge struct {
	ID                int64           `json:"-"`
	Amount            decimal.Decimal `json:"Amount"`
	GLAccountID       int64           `json:"GlAccountId"`
	PostDaysInAdvance int             `json:"-"`
	Memo              string          `json:"Memo"`
	// RentID is set when the charge belongs to the upstream's rent
	// schedule. Charges without it are stopped and re-created on renewal.
	RentID      *int64 `json:"-"`
	NextDueDate string `json:"NextDueDate,omitempty"`
}

// IsPrimary reports whether c is the base rent charge.
func (c RecurringCharge) IsPrimary() bool {
	return c.GLAccountID == PrimaryRentGL
}

// AgiType classifies the above-guideline status of a building.
type AgiType string

const (
	AgiNone        AgiType = ""
	AgiApproved    AgiType = "Approved"
	AgiNotApproved AgiType = "Not Approved"
)

// AgiRecord is one above-guideline increase parsed from a building note.
type AgiRecord struct {
	ApprovalStatus    string
	CompletionDate    *time.Time
	FirstIncrease     *time.Time
	YearlyPercentages []decimal.Decimal
}

// Lease is an active lease with everything needed to compute its increase.
type Lease struct {
	ID             int64
	UnitID         int64
	BuildingID     int64
	BuildingName   string
	UnitNumber     string
	Address        string
	TenantName     string
	AllTenantNames string
	TenantIDs      []int64
	LeaseEnd       time.Time
	Charges        []RecurringCharge
	MarketRent     decimal.Decimal

	Eligible bool
	Reason   string

	// NoticePct is the percentage printed on the notice: the guideline
	// plus the current year's AGI increments.
	NoticePct decimal.Decimal
	// CalcPct is the percentage the AGI pass applies.
	CalcPct    decimal.Decimal
	HasAgi     bool
	AgiType    AgiType
	AgiRecords []AgiRecord
}

// CurrentRent is the sum of all recurring charges.
func (l Lease) CurrentRent() decimal.Decimal {
	total := decimal.Zero
	for _, c := range l.Charges {
		total = total.Add(c.Amount)
	}
	return total
}

// IncreaseResult is the computed outcome for one lease.
type IncreaseResult struct {
	LeaseID        int64
	BuildingID     int64
	BuildingName   string
	UnitNumber     string
	Address        string
	TenantName     string
	AllTenantNames string
	TenantIDs      []int64
	LeaseEnd       time.Time

	CurrentRent       decimal.Decimal
	MarketRent        decimal.Decimal
	GuidelineRent     decimal.Decimal
	GuidelineIncrease decimal.Decimal
	// AgiRent and AgiIncrease are nil unless the lease has AGI.
	AgiRent     *decimal.Decimal
	AgiIncrease *decimal.Decimal

	NoticePct decimal.Decimal
	CalcPct   decimal.Decimal
	AgiType   AgiType

	Ignored bool
	Reason  string

	UpdatedCharges []RecurringCharge
	ChargesToStop  []int64
}

// NoticeRent is the rent printed on the notice.
func (r IncreaseResult) NoticeRent() decimal.Decimal {
	if r.AgiRent != nil {
		return *r.AgiRent
	}
	return r.GuidelineRent
}

// NoticeIncrease is the increase printed on the notice.
func (r IncreaseResult) NoticeIncrease() decimal.Decimal {
	if r.AgiIncrease != nil {
		return *r.AgiIncrease
	}
	return r.GuidelineIncrease
}

// Moving reports whether the lease was skipped for a move-out.
func (r IncreaseResult) Moving() bool {
	return strings.HasPrefix(r.Reason, "Moving")
}

// BuildingBatch groups the results of one building.
type BuildingBatch struct {
	BuildingID    int64
	BuildingName  string
	Results       []IncreaseResult
	Count         int
	TotalIncrease decimal.Decimal
}

// IgnoreWholeBuilding is true when the batch is non-empty and every lease in
// it is ignored.
func (b BuildingBatch) IgnoreWholeBuilding() bool {
	if len(b.Results) == 0 {
		return false
	}
	for _, r := range b.Results {
		if !r.Ignored {
			return false
		}
	}
	return true
}

// Summary is the full output of increase generation.
type Summary struct {
	EffectiveDate time.Time
	GuidelinePct  decimal.Decimal
	Batches       []BuildingBatch
	Count         int
	TotalIncrease decimal.Decimal
}
