package prelim

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/handoff"
	"github.com/sawpanic/noticerun/internal/scratch"
	"github.com/sawpanic/noticerun/internal/upload"
	"github.com/sawpanic/noticerun/internal/upstream"
)

type fakeAPI struct {
	mu         sync.Mutex
	updates    []upstream.TaskUpdate
	uploads    []string
	updateErr  error
	historyErr error
}

func rentID(id int64) *int64 { return &id }

func (f *fakeAPI) ActiveLeases(context.Context, time.Time) ([]upstream.Lease, error) {
	mk := func(id int64) upstream.Lease {
		return upstream.Lease{
			ID: id, PropertyID: 7, UnitID: id, LeaseToDate: "2024-03-31",
			AccountDetails: upstream.AccountDetails{Rent: decimal.NewFromInt(1000)},
			Tenants:        []upstream.TenantRef{{ID: id * 10}},
			CurrentTenants: []upstream.Tenant{{ID: id * 10, FirstName: "Ada", LastName: "Byron", Address: upstream.Address{
				AddressLine1: "12 Elm St", City: "Toronto", State: "ON", PostalCode: "M4M 1A1",
			}}},
		}
	}
	return []upstream.Lease{mk(1), mk(2)}, nil
}

func (f *fakeAPI) BuildingNotes(context.Context, int64) ([]upstream.Note, error) { return nil, nil }

func (f *fakeAPI) LeaseNotes(_ context.Context, id int64) ([]upstream.Note, error) {
	if id == 2 {
		return []upstream.Note{{ID: 1, Note: "No Increase per owner"}}, nil
	}
	return nil, nil
}

func (f *fakeAPI) Unit(_ context.Context, id int64) (upstream.Unit, error) {
	return upstream.Unit{ID: id, PropertyID: 7, BuildingName: "Elm Court", UnitNumber: "10" + string(rune('0'+id)), MarketRent: decimal.NewFromInt(3000)}, nil
}

func (f *fakeAPI) RecurringTransactions(_ context.Context, id int64) ([]upstream.RecurringTransaction, error) {
	return []upstream.RecurringTransaction{{
		ID: id, TransactionType: "Charge", Frequency: "Monthly", Duration: "UntilEndOfTerm",
		Amount: decimal.NewFromInt(1000), RentID: rentID(id),
		Lines: []upstream.ChargeLine{{GLAccountID: domain.PrimaryRentGL}},
	}}, nil
}

func (f *fakeAPI) Task(_ context.Context, id int64) (upstream.Task, error) {
	return upstream.Task{ID: id, AssignedToUserID: 55, Category: &upstream.Category{ID: 9, Name: "System Tasks"}}, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, _ int64, u upstream.TaskUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeAPI) LatestHistoryID(context.Context, int64) (int64, error) {
	return 300, f.historyErr
}

func (f *fakeAPI) RequestTaskUpload(_ context.Context, _, historyID int64, name string) (upstream.UploadTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, name)
	return upstream.UploadTicket{BucketURL: "https://bucket"}, nil
}

type memUploader struct {
	files []upload.File
}

func (m *memUploader) Upload(ctx context.Context, target upload.Target, f upload.File, ticket upload.TicketFunc) error {
	if _, err := ticket(ctx); err != nil {
		return err
	}
	m.files = append(m.files, f)
	return nil
}

func newRunner(t *testing.T, api *fakeAPI, up *memUploader, key handoff.Key) *Runner {
	t.Helper()
	store, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	r := New(api, up, store, Config{
		AccountID: 42,
		Guideline: decimal.RequireFromString("2.5"),
		Effective: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Key:       key,
	})
	r.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRun_PublishesReview(t *testing.T) {
	key, err := handoff.GenerateKey()
	require.NoError(t, err)
	api := &fakeAPI{}
	up := &memUploader{}

	res, err := newRunner(t, api, up, key).Run(context.Background(), 77)
	require.NoError(t, err)

	require.Len(t, api.updates, 2)
	first := api.updates[0]
	assert.Equal(t, "Increase Notices for May 01, 2024 - Review", first.Title)
	assert.Equal(t, "InProgress", first.TaskStatus)
	assert.Equal(t, "High", first.Priority)
	assert.Equal(t, int64(9), first.CategoryID)
	assert.Equal(t, int64(55), first.AssignedToUserID)
	assert.Contains(t, first.Message, "Building: Property: Elm Court")
	assert.True(t, strings.HasSuffix(api.updates[1].Message, "Ignored Count: 1"))
	assert.Equal(t, 2, res.Messages)

	require.Len(t, up.files, 2)
	assert.Equal(t, "42_Increase_Notice_Data_2024-05-01.bin", up.files[0].Name)
	assert.Equal(t, res.BundleName, up.files[0].Name)
	assert.True(t, strings.HasSuffix(up.files[1].Name, ".xlsx"))
	assert.True(t, res.Workbook)
	assert.Equal(t, []string{up.files[0].Name, up.files[1].Name}, api.uploads)

	plans, err := handoff.Open(key, up.files[0].Data)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, int64(7), plans[0].BuildingID)
	assert.False(t, plans[0].IgnoreBuilding)
	require.Len(t, plans[0].Leases, 2)
	for _, lp := range plans[0].Leases {
		if lp.LeaseID == 1 {
			assert.False(t, lp.Ignored)
			assert.Equal(t, "1025", lp.Notice.NewRent.String())
		} else {
			assert.True(t, lp.Ignored)
			assert.Equal(t, "No Increase Note", lp.Reason)
		}
	}
}

func TestRun_MessageFailuresAreNotFatal(t *testing.T) {
	key, _ := handoff.GenerateKey()
	api := &fakeAPI{updateErr: errors.New("HTTP 500")}
	up := &memUploader{}

	res, err := newRunner(t, api, up, key).Run(context.Background(), 77)
	require.NoError(t, err)
	assert.Zero(t, res.Messages)
	assert.Len(t, up.files, 2)
}

func TestRun_BundleFailureFails(t *testing.T) {
	key, _ := handoff.GenerateKey()
	api := &fakeAPI{historyErr: errors.New("no history")}

	res, err := newRunner(t, api, &memUploader{}, key).Run(context.Background(), 77)
	require.Error(t, err)
	assert.Empty(t, res.BundleName)
	assert.Len(t, res.Summary.Batches[0].Results, 2)
}
