package eligibility

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
	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// ReasonNoIncrease marks leases opted out by a lease note.
const ReasonNoIncrease = "No Increase Note"

// API is the part of the upstream the aggregator reads.
type API interface {
	ActiveLeases(ctx context.Context, leaseDateTo time.Time) ([]upstream.Lease, error)
	BuildingNotes(ctx context.Context, buildingID int64) ([]upstream.Note, error)
	LeaseNotes(ctx context.Context, leaseID int64) ([]upstream.Note, error)
	Unit(ctx context.Context, unitID int64) (upstream.Unit, error)
	RecurringTransactions(ctx context.Context, leaseID int64) ([]upstream.RecurringTransaction, error)
}

// RunCache holds lookups shared by every lease of one run.
type RunCache struct {
	mu  sync.Mutex
	agi map[int64][]domain.AgiRecord
}

// NewRunCache creates an empty cache.
func NewRunCache() *RunCache {
	return &RunCache{agi: make(map[int64][]domain.AgiRecord)}
}

func (c *RunCache) get(buildingID int64) ([]domain.AgiRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.agi[buildingID]
	return r, ok
}

func (c *RunCache) put(buildingID int64, records []domain.AgiRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agi[buildingID] = records
}

// EffectiveDate is the first of the month containing the first of now's
// month plus 125 days.
func EffectiveDate(now time.Time) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	target := first.AddDate(0, 0, 125)
	return time.Date(target.Year(), target.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Aggregator gathers every lease due for an increase.
type Aggregator struct {
	api     API
	cache   *RunCache
	workers int
}

// New creates an Aggregator. A nil cache gets a fresh one.
func New(api API, cache *RunCache) *Aggregator {
	if cache == nil {
		cache = NewRunCache()
	}
	return &Aggregator{api: api, cache: cache}
}

// WithWorkers bounds how many leases resolve at once. Zero or less leaves
// the fan-out unbounded.
func (a *Aggregator) WithWorkers(n int) *Aggregator {
	a.workers = n
	return a
}

// Gather lists active leases, resolves each one concurrently and groups the
// survivors by building, buildings in descending id order. A failure on one
// lease is logged and only drops that lease.
func (a *Aggregator) Gather(ctx context.Context, guideline decimal.Decimal, effective time.Time) ([]calc.Group, error) {
	leases, err := a.api.ActiveLeases(ctx, effective)
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	log.Info().Int("leases", len(leases)).Str("effective", effective.Format(domain.DateLayout)).Msg("Fetched leases")

	// building notes are resolved up front, once per building
	records := make([][]domain.AgiRecord, len(leases))
	for i, l := range leases {
		records[i] = a.buildingAgi(ctx, l.PropertyID)
	}

	resolved := make([]*domain.Lease, len(leases))
	g, gctx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		g.SetLimit(a.workers)
	}
	for i := range leases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l, err := a.resolve(gctx, leases[i], records[i], guideline, effective)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				log.Error().Err(err).Int64("lease_id", leases[i].ID).Msg("Skipping lease")
				return nil
			}
			resolved[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve leases: %w", err)
	}

	return group(resolved), nil
}

func (a *Aggregator) buildingAgi(ctx context.Context, buildingID int64) []domain.AgiRecord {
	if r, ok := a.cache.get(buildingID); ok {
		return r
	}
	notes, err := a.api.BuildingNotes(ctx, buildingID)
	if err != nil {
		log.Warn().Err(err).Int64("building_id", buildingID).Msg("Building notes unavailable, assuming no AGI")
	}
	records := ParseBuildingNotes(notes)
	a.cache.put(buildingID, records)
	return records
}

// resolve returns nil, nil for leases that are not due.
func (a *Aggregator) resolve(ctx context.Context, l upstream.Lease, agi []domain.AgiRecord, guideline decimal.Decimal, effective time.Time) (*domain.Lease, error) {
	end, err := time.Parse(domain.DateLayout, l.LeaseToDate)
	if err != nil {
		return nil, fault.New(fault.MalformedData, "lease end date", err)
	}
	if end.After(effective.AddDate(0, 0, -1)) || !l.AccountDetails.Rent.IsPositive() {
		return nil, nil
	}
	if len(l.CurrentTenants) == 0 {
		return nil, fault.Newf(fault.MalformedData, "lease tenants", "lease %d has no current tenants", l.ID)
	}

	notes, err := a.api.LeaseNotes(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	markers := ParseLeaseNotes(notes)

	lease := &domain.Lease{
		ID:        l.ID,
		UnitID:    l.UnitID,
		LeaseEnd:  end,
		NoticePct: guideline,
		CalcPct:   guideline,
		Eligible:  true,
	}
	if len(markers.AgiYears) > 0 {
		lease.HasAgi = true
		lease.AgiRecords = agi
		lease.NoticePct, lease.CalcPct = calc.AccrueAgiPercentage(agi, guideline, effective)
		lease.AgiType = ApprovalOf(agi)
	}

	unit, err := a.api.Unit(ctx, l.UnitID)
	if err != nil {
		return nil, err
	}
	lease.MarketRent = unit.MarketRent
	lease.BuildingID = unit.PropertyID
	if lease.BuildingID == 0 {
		lease.BuildingID = l.PropertyID
	}
	lease.BuildingName = unit.BuildingName
	lease.UnitNumber = unit.UnitNumber

	txs, err := a.api.RecurringTransactions(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	lease.Charges = FilterCharges(txs)

	switch {
	case markers.NoIncrease:
		lease.Eligible = false
		lease.Reason = ReasonNoIncrease
	case len(l.MoveOutData) > 0 && len(l.Tenants) == len(l.MoveOutData):
		lease.Eligible = false
		lease.Reason = "Moving Out " + latestMoveOut(l.MoveOutData)
	}

	names := make([]string, 0, len(l.CurrentTenants))
	for _, t := range l.CurrentTenants {
		names = append(names, t.FirstName+" "+t.LastName)
		lease.TenantIDs = append(lease.TenantIDs, t.ID)
	}
	lease.TenantName = names[0]
	lease.AllTenantNames = strings.Join(names, ", ")
	addr := l.CurrentTenants[0].Address
	lease.Address = fmt.Sprintf("%s, %s, %s %s", addr.AddressLine1, addr.City, addr.State, addr.PostalCode)

	return lease, nil
}

// FilterCharges keeps monthly charges that run until the end of the term.
func FilterCharges(txs []upstream.RecurringTransaction) []domain.RecurringCharge {
	var out []domain.RecurringCharge
	for _, tx := range txs {
		if tx.TransactionType != "Charge" || tx.Frequency != "Monthly" || tx.Duration != "UntilEndOfTerm" {
			continue
		}
		c := domain.RecurringCharge{
			ID:                tx.ID,
			Amount:            tx.Amount,
			PostDaysInAdvance: tx.PostDaysInAdvance,
			Memo:              tx.Memo,
			RentID:            tx.RentID,
		}
		if len(tx.Lines) > 0 {
			c.GLAccountID = tx.Lines[0].GLAccountID
		}
		out = append(out, c)
	}
	return out
}

func latestMoveOut(data []upstream.MoveOut) string {
	latest := ""
	for _, m := range data {
		// YYYY-MM-DD compares lexically
		if m.MoveOutDate > latest {
			latest = m.MoveOutDate
		}
	}
	return latest
}

func group(leases []*domain.Lease) []calc.Group {
	byBuilding := make(map[int64]*calc.Group)
	for _, l := range leases {
		if l == nil {
			continue
		}
		g, ok := byBuilding[l.BuildingID]
		if !ok {
			g = &calc.Group{BuildingID: l.BuildingID, BuildingName: l.BuildingName}
			byBuilding[l.BuildingID] = g
		}
		g.Leases = append(g.Leases, *l)
	}

	groups := make([]calc.Group, 0, len(byBuilding))
	for _, g := range byBuilding {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].BuildingID > groups[j].BuildingID })
	return groups
}
