package upstream

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sawpanic/noticerun/internal/domain"
)

// ActiveLeases lists active leases ending on or before leaseDateTo.
func (c *Client) ActiveLeases(ctx context.Context, leaseDateTo time.Time) ([]Lease, error) {
	q := url.Values{}
	q.Set("leasestatuses", "Active")
	q.Set("leasedateto", leaseDateTo.Format(domain.DateLayout))
	return paged[Lease](ctx, c, "list leases", "/leases", q)
}

// FixedLeases lists active fixed-term leases.
func (c *Client) FixedLeases(ctx context.Context) ([]Lease, error) {
	q := url.Values{}
	q.Set("leasestatuses", "Active")
	q.Set("leasetypes", "Fixed,FixedWithRollover")
	return paged[Lease](ctx, c, "list fixed leases", "/leases", q)
}

// Lease reads one lease.
func (c *Client) Lease(ctx context.Context, leaseID int64) (Lease, error) {
	var l Lease
	err := c.get(ctx, "get lease", pathf("/leases/%d", leaseID), nil, &l)
	return l, err
}

// UpdateLease replaces a lease's mutable fields.
func (c *Client) UpdateLease(ctx context.Context, leaseID int64, u LeaseUpdate) error {
	_, err := c.write(ctx, "update lease", http.MethodPut, pathf("/leases/%d", leaseID), u, http.StatusOK)
	return err
}

// LeaseNotes lists a lease's notes.
func (c *Client) LeaseNotes(ctx context.Context, leaseID int64) ([]Note, error) {
	return list[Note](ctx, c, "lease notes", pathf("/leases/%d/notes", leaseID), nil)
}

// RecurringTransactions lists a lease's scheduled transactions.
func (c *Client) RecurringTransactions(ctx context.Context, leaseID int64) ([]RecurringTransaction, error) {
	return list[RecurringTransaction](ctx, c, "recurring transactions", pathf("/leases/%d/recurringtransactions", leaseID), nil)
}

// Transactions lists every posted transaction of a lease.
func (c *Client) Transactions(ctx context.Context, leaseID int64) ([]Transaction, error) {
	return paged[Transaction](ctx, c, "lease transactions", pathf("/leases/%d/transactions", leaseID), nil)
}

// Renew posts a lease renewal and returns the upstream status. 201 is
// success and 409 means the lease has an eviction pending; both come back
// without error.
func (c *Client) Renew(ctx context.Context, leaseID int64, r Renewal) (int, error) {
	resp, err := c.write(ctx, "renew lease", http.MethodPost, pathf("/leases/%d/renewals", leaseID), r, http.StatusCreated, http.StatusConflict)
	if resp != nil {
		return resp.Status, err
	}
	return 0, err
}

// Unit reads a rental unit.
func (c *Client) Unit(ctx context.Context, unitID int64) (Unit, error) {
	var u Unit
	err := c.get(ctx, "get unit", pathf("/rentals/units/%d", unitID), nil, &u)
	return u, err
}

// Rental reads a building.
func (c *Client) Rental(ctx context.Context, buildingID int64) (Rental, error) {
	var r Rental
	err := c.get(ctx, "get rental", pathf("/rentals/%d", buildingID), nil, &r)
	return r, err
}

// BuildingNotes lists a building's notes.
func (c *Client) BuildingNotes(ctx context.Context, buildingID int64) ([]Note, error) {
	return list[Note](ctx, c, "building notes", pathf("/rentals/%d/notes", buildingID), nil)
}
