package calc

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LMRGLAccount is the ledger account holding last-month-rent deposits.
const LMRGLAccount int64 = 191645

// LMRInterestMemo marks applied deposits that are themselves interest
// payouts and so are left out of the balance.
const LMRInterestMemo = "Last Month's Rent Interest Applied to Balances"

// LedgerLine is one line of a lease transaction journal.
type LedgerLine struct {
	GLAccountID int64
	Amount      decimal.Decimal
}

// LedgerEntry is one lease transaction.
type LedgerEntry struct {
	Type  string
	Memo  string
	Lines []LedgerLine
}

// LMRBalance sums a lease's last-month-rent deposit. Payments and credits
// against the deposit account are stored as negative amounts and are
// negated; applied deposits count unless they are interest payouts.
func LMRBalance(entries []LedgerEntry) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		memo := strings.TrimSpace(e.Memo)
		for _, line := range e.Lines {
			switch {
			case line.GLAccountID == LMRGLAccount:
				if e.Type == "Payment" || e.Type == "Credit" {
					balance = balance.Sub(line.Amount)
				}
			case e.Type == "Applied Deposit" && memo != LMRInterestMemo:
				balance = balance.Add(line.Amount)
			}
		}
	}
	return balance.Round(2)
}

// InterestPeriod is the calendar month interest accrues over.
type InterestPeriod struct {
	First      time.Time
	Last       time.Time
	DaysInYear int
}

// Days is the inclusive number of days in the period.
func (p InterestPeriod) Days() int {
	return int(p.Last.Sub(p.First).Hours()/24) + 1
}

// Label renders the period as "January 2006".
func (p InterestPeriod) Label() string {
	return p.First.Format("January 2006")
}

// MonthPeriod returns the period covering the month containing now.
func MonthPeriod(now time.Time) InterestPeriod {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	days := int(yearStart.AddDate(1, 0, 0).Sub(yearStart).Hours() / 24)
	return InterestPeriod{First: first, Last: last, DaysInYear: days}
}

// LMRInterest is balance * rate/100 / daysInYear * days, rounded to cents.
// Non-positive balances earn nothing.
func LMRInterest(balance, ratePct decimal.Decimal, p InterestPeriod) decimal.Decimal {
	if !balance.IsPositive() || p.DaysInYear <= 0 {
		return decimal.Zero
	}
	num := balance.Mul(ratePct).Mul(decimal.NewFromInt(int64(p.Days())))
	den := hundred.Mul(decimal.NewFromInt(int64(p.DaysInYear)))
	return num.Div(den).Round(2)
}
