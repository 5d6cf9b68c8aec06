package upstream

import (
	"github.com/shopspring/decimal"
)

// Lease is a lease as returned by the lease listing.
type Lease struct {
	ID                int64          `json:"Id"`
	PropertyID        int64          `json:"PropertyId"`
	UnitID            int64          `json:"UnitId"`
	UnitNumber        string         `json:"UnitNumber"`
	LeaseFromDate     string         `json:"LeaseFromDate"`
	LeaseToDate       string         `json:"LeaseToDate"`
	LeaseType         string         `json:"LeaseType"`
	LeaseStatus       string         `json:"LeaseStatus"`
	IsEvictionPending bool           `json:"IsEvictionPending"`
	AccountDetails    AccountDetails `json:"AccountDetails"`
	Tenants           []TenantRef    `json:"Tenants"`
	CurrentTenants    []Tenant       `json:"CurrentTenants"`
	MoveOutData       []MoveOut      `json:"MoveOutData"`
}

// AccountDetails carries the lease's current rent.
type AccountDetails struct {
	Rent decimal.Decimal `json:"Rent"`
}

// TenantRef is a tenant listed on a lease.
type TenantRef struct {
	ID int64 `json:"Id"`
}

// Tenant is a current tenant with contact details.
type Tenant struct {
	ID        int64   `json:"Id"`
	FirstName string  `json:"FirstName"`
	LastName  string  `json:"LastName"`
	Address   Address `json:"Address"`
}

// Address is a postal address.
type Address struct {
	AddressLine1 string `json:"AddressLine1"`
	City         string `json:"City"`
	State        string `json:"State"`
	PostalCode   string `json:"PostalCode"`
}

// MoveOut is a recorded tenant move-out.
type MoveOut struct {
	TenantID    int64  `json:"TenantId"`
	MoveOutDate string `json:"MoveOutDate"`
}

// Note is a free-text note on a lease or building.
type Note struct {
	ID   int64  `json:"Id"`
	Note string `json:"Note"`
}

// RecurringTransaction is a scheduled lease transaction.
type RecurringTransaction struct {
	ID                int64           `json:"Id"`
	TransactionType   string          `json:"TransactionType"`
	RentID            *int64          `json:"RentId"`
	Lines             []ChargeLine    `json:"Lines"`
	Amount            decimal.Decimal `json:"Amount"`
	Memo              string          `json:"Memo"`
	PostDaysInAdvance int             `json:"PostDaysInAdvance"`
	Frequency         string          `json:"Frequency"`
	Duration          string          `json:"Duration"`
	NextOccurrence    string          `json:"NextOccurrenceDate"`
}

// ChargeLine is one ledger line of a recurring transaction.
type ChargeLine struct {
	GLAccountID int64           `json:"GLAccountId"`
	Amount      decimal.Decimal `json:"Amount"`
}

// Unit is a rental unit.
type Unit struct {
	ID           int64           `json:"Id"`
	PropertyID   int64           `json:"PropertyId"`
	BuildingName string          `json:"BuildingName"`
	UnitNumber   string          `json:"UnitNumber"`
	MarketRent   decimal.Decimal `json:"MarketRent"`
}

// Rental is a building.
type Rental struct {
	ID            int64          `json:"Id"`
	Name          string         `json:"Name"`
	RentalManager *RentalManager `json:"RentalManager"`
}

// RentalManager is the staff member responsible for a building.
type RentalManager struct {
	ID        int64  `json:"Id"`
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
}

// Task is a to-do task.
type Task struct {
	ID               int64     `json:"Id"`
	Title            string    `json:"Title"`
	TaskStatus       string    `json:"TaskStatus"`
	AssignedToUserID int64     `json:"AssignedToUserId"`
	Category         *Category `json:"Category"`
	Priority         string    `json:"Priority"`
}

// CategoryName returns the task's category name or "".
func (t Task) CategoryName() string {
	if t.Category == nil {
		return ""
	}
	return t.Category.Name
}

// TaskHistory is one entry of a task's history, newest first.
type TaskHistory struct {
	ID      int64   `json:"Id"`
	FileIDs []int64 `json:"FileIds"`
}

// Category is a task or file category.
type Category struct {
	ID   int64  `json:"Id"`
	Name string `json:"Name"`
}

// Transaction is a posted lease transaction.
type Transaction struct {
	ID              int64   `json:"Id"`
	TransactionType string  `json:"TransactionType"`
	Date            string  `json:"Date"`
	Journal         Journal `json:"Journal"`
}

// Journal is a transaction's memo and ledger lines.
type Journal struct {
	Memo  string        `json:"Memo"`
	Lines []JournalLine `json:"Lines"`
}

// JournalLine is one ledger line of a transaction.
type JournalLine struct {
	GLAccount GLAccountRef    `json:"GLAccount"`
	Amount    decimal.Decimal `json:"Amount"`
}

// GLAccountRef identifies a ledger account.
type GLAccountRef struct {
	ID int64 `json:"Id"`
}

// UploadTicket is a set of single-use presigned upload credentials.
type UploadTicket struct {
	BucketURL string
	Fields    map[string]string
}

// NewTask is the body of a task creation.
type NewTask struct {
	Title            string `json:"Title"`
	Description      string `json:"Description"`
	CategoryID       int64  `json:"CategoryId"`
	PropertyID       int64  `json:"PropertyId"`
	AssignedToUserID int64  `json:"AssignedToUserId"`
	TaskStatus       string `json:"TaskStatus"`
	Priority         string `json:"Priority"`
	DueDate          string `json:"DueDate"`
}

// TaskUpdate is the body of a task update. Message is appended to the
// task history.
type TaskUpdate struct {
	Title            string `json:"Title"`
	AssignedToUserID int64  `json:"AssignedToUserId"`
	Priority         string `json:"Priority"`
	CategoryID       int64  `json:"CategoryId"`
	TaskStatus       string `json:"TaskStatus"`
	Message          string `json:"Message"`
	Date             string `json:"Date"`
}

// LeaseUpdate is the body of a lease update.
type LeaseUpdate struct {
	LeaseType                   string `json:"LeaseType"`
	UnitID                      int64  `json:"UnitId"`
	LeaseFromDate               string `json:"LeaseFromDate"`
	LeaseToDate                 string `json:"LeaseToDate"`
	IsEvictionPending           bool   `json:"IsEvictionPending"`
	AutomaticallyMoveOutTenants *bool  `json:"AutomaticallyMoveOutTenants,omitempty"`
}

// UpdateFromLease copies the mutable fields of l.
func UpdateFromLease(l Lease) LeaseUpdate {
	return LeaseUpdate{
		LeaseType:         l.LeaseType,
		UnitID:            l.UnitID,
		LeaseFromDate:     l.LeaseFromDate,
		LeaseToDate:       l.LeaseToDate,
		IsEvictionPending: l.IsEvictionPending,
	}
}

// Renewal is the body of a lease renewal.
type Renewal struct {
	LeaseType              string      `json:"LeaseType"`
	LeaseToDate            string      `json:"LeaseToDate"`
	Rent                   RenewalRent `json:"Rent"`
	TenantIDs              []int64     `json:"TenantIds"`
	SendWelcomeEmail       bool        `json:"SendWelcomeEmail"`
	RecurringChargesToStop []int64     `json:"RecurringChargesToStop,omitempty"`
}

// RenewalRent is the rent schedule of a renewed lease.
type RenewalRent struct {
	Cycle   string          `json:"Cycle"`
	Charges []RenewalCharge `json:"Charges"`
}

// RenewalCharge is one charge of a renewed rent schedule.
type RenewalCharge struct {
	Amount      float64 `json:"Amount"`
	GLAccountID int64   `json:"GlAccountId"`
	NextDueDate string  `json:"NextDueDate"`
	Memo        string  `json:"Memo"`
}
