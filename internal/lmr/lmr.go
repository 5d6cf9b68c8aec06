// Package lmr computes the monthly interest owed on last-month-rent
// deposits and reports it on a review task.
package lmr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/noticerun/internal/calc"
	"github.com/sawpanic/noticerun/internal/report"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// NoInterestMessage is posted when no deposit earns interest.
const NoInterestMessage = "No LMR interest due this month."

// API is the part of the upstream the interest run uses.
type API interface {
	FixedLeases(ctx context.Context) ([]upstream.Lease, error)
	Transactions(ctx context.Context, leaseID int64) ([]upstream.Transaction, error)
	Rental(ctx context.Context, buildingID int64) (upstream.Rental, error)
	Task(ctx context.Context, taskID int64) (upstream.Task, error)
	UpdateTask(ctx context.Context, taskID int64, u upstream.TaskUpdate) error
}

// LeaseInterest is the interest accrued on one lease's deposit.
type LeaseInterest struct {
	LeaseID    int64
	PropertyID int64
	Balance    decimal.Decimal
	Interest   decimal.Decimal
}

// PropertyTotal is the interest owed across one property.
type PropertyTotal struct {
	Name  string
	Total decimal.Decimal
}

// Result is the outcome of one interest run.
type Result struct {
	Period  calc.InterestPeriod
	Leases  []LeaseInterest
	Totals  []PropertyTotal
	Message string
}

// Runner executes the interest run.
type Runner struct {
	api     API
	rate    decimal.Decimal
	now     func() time.Time
	workers int
}

// New creates a Runner paying ratePct percent a year.
func New(api API, ratePct decimal.Decimal) *Runner {
	return &Runner{api: api, rate: ratePct, now: time.Now}
}

// WithWorkers bounds concurrent ledger reads; zero is unbounded.
func (r *Runner) WithWorkers(n int) *Runner {
	r.workers = n
	return r
}

// Title is the review task title for a period.
func Title(p calc.InterestPeriod) string {
	return "Last Month's Interest for " + p.Label() + " - Review"
}

// Message renders property totals sorted by name.
func Message(totals []PropertyTotal) string {
	if len(totals) == 0 {
		return NoInterestMessage
	}
	lines := make([]string, 0, len(totals)+1)
	lines = append(lines, "LMR Interest Totals by Property:")
	for _, t := range totals {
		lines = append(lines, t.Name+": "+report.Money(t.Total))
	}
	return strings.Join(lines, "\n")
}

// Ledger converts posted transactions to ledger entries.
func Ledger(txs []upstream.Transaction) []calc.LedgerEntry {
	entries := make([]calc.LedgerEntry, 0, len(txs))
	for _, tx := range txs {
		e := calc.LedgerEntry{Type: tx.TransactionType, Memo: tx.Journal.Memo}
		for _, l := range tx.Journal.Lines {
			e.Lines = append(e.Lines, calc.LedgerLine{GLAccountID: l.GLAccount.ID, Amount: l.Amount})
		}
		entries = append(entries, e)
	}
	return entries
}

// Run computes the current month's interest and posts the totals to taskID.
func (r *Runner) Run(ctx context.Context, taskID int64) (Result, error) {
	logger := log.Ctx(ctx).With().Int64("task_id", taskID).Logger()

	task, err := r.api.Task(ctx, taskID)
	if err != nil {
		return Result{}, err
	}
	period := calc.MonthPeriod(r.now())

	leases, err := r.api.FixedLeases(ctx)
	if err != nil {
		return Result{}, err
	}
	logger.Info().Int("leases", len(leases)).Str("period", period.Label()).Msg("Computing LMR interest")

	var (
		mu      sync.Mutex
		accrued []LeaseInterest
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for _, l := range leases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			txs, err := r.api.Transactions(gctx, l.ID)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				logger.Error().Err(err).Int64("lease_id", l.ID).Msg("Could not read lease transactions")
				return nil
			}
			balance := calc.LMRBalance(Ledger(txs))
			interest := calc.LMRInterest(balance, r.rate, period)
			if !interest.IsPositive() {
				return nil
			}
			mu.Lock()
			accrued = append(accrued, LeaseInterest{LeaseID: l.ID, PropertyID: l.PropertyID, Balance: balance, Interest: interest})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	sort.Slice(accrued, func(i, j int) bool { return accrued[i].LeaseID < accrued[j].LeaseID })

	res := Result{Period: period, Leases: accrued}
	res.Totals = r.totals(ctx, accrued)
	res.Message = Message(res.Totals)

	update := upstream.TaskUpdate{
		Title:            Title(period),
		AssignedToUserID: task.AssignedToUserID,
		Priority:         "High",
		TaskStatus:       "InProgress",
		Message:          res.Message,
		Date:             r.now().UTC().Format(time.RFC3339),
	}
	if task.Category != nil {
		update.CategoryID = task.Category.ID
	}
	if err := r.api.UpdateTask(ctx, taskID, update); err != nil {
		return res, err
	}
	logger.Info().Int("properties", len(res.Totals)).Int("leases", len(accrued)).Msg("LMR interest task updated")
	return res, nil
}

// totals sums interest per property and resolves property names. An
// unreadable property is reported under its id.
func (r *Runner) totals(ctx context.Context, accrued []LeaseInterest) []PropertyTotal {
	byID := map[int64]decimal.Decimal{}
	var ids []int64
	for _, a := range accrued {
		if _, ok := byID[a.PropertyID]; !ok {
			ids = append(ids, a.PropertyID)
		}
		byID[a.PropertyID] = byID[a.PropertyID].Add(a.Interest)
	}

	byName := map[string]decimal.Decimal{}
	for _, id := range ids {
		name := fmt.Sprintf("Property %d", id)
		rental, err := r.api.Rental(ctx, id)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("building_id", id).Msg("Could not read property name")
		} else if rental.Name != "" {
			name = rental.Name
		}
		byName[name] = byName[name].Add(byID[id])
	}

	out := make([]PropertyTotal, 0, len(byName))
	for name, total := range byName {
		out = append(out, PropertyTotal{Name: name, Total: total.Round(2)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
