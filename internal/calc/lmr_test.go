package calc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLMRBalance(t *testing.T) {
	entries := []LedgerEntry{
		{Type: "Payment", Lines: []LedgerLine{{GLAccountID: LMRGLAccount, Amount: dec("-1500")}}},
		{Type: "Credit", Lines: []LedgerLine{{GLAccountID: LMRGLAccount, Amount: dec("-100")}}},
		{Type: "Applied Deposit", Memo: "Top up", Lines: []LedgerLine{{GLAccountID: 5, Amount: dec("50")}}},
		{Type: "Applied Deposit", Memo: " " + LMRInterestMemo, Lines: []LedgerLine{{GLAccountID: 5, Amount: dec("3.12")}}},
		{Type: "Payment", Lines: []LedgerLine{{GLAccountID: 6, Amount: dec("-1700")}}},
		{Type: "Charge", Lines: []LedgerLine{{GLAccountID: LMRGLAccount, Amount: dec("1500")}}},
	}
	assertDec(t, "1650", LMRBalance(entries))
	assertDec(t, "0", LMRBalance(nil))
}

func TestMonthPeriod(t *testing.T) {
	p := MonthPeriod(time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.First)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), p.Last)
	assert.Equal(t, 29, p.Days())
	assert.Equal(t, 366, p.DaysInYear)
	assert.Equal(t, "February 2024", p.Label())

	assert.Equal(t, 365, MonthPeriod(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)).DaysInYear)
}

func TestLMRInterest(t *testing.T) {
	june := MonthPeriod(time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC))

	// 1650 * 2.5% / 365 * 30
	assertDec(t, "3.39", LMRInterest(dec("1650"), dec("2.5"), june))
	assertDec(t, "0", LMRInterest(dec("0"), dec("2.5"), june))
	assertDec(t, "0", LMRInterest(dec("-20"), dec("2.5"), june))
}
