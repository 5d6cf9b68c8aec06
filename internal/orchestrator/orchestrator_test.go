package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/noticerun/internal/document"
	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/scratch"
	"github.com/sawpanic/noticerun/internal/upload"
	"github.com/sawpanic/noticerun/internal/upstream"
)

type fakeAPI struct {
	mu sync.Mutex

	leases      map[int64]upstream.Lease
	renewStatus map[int64][]int
	rentalErr   error

	fileCategories []string
	taskCategories int
	tasks          []upstream.NewTask
	leaseUploads   []int64
	taskUploads    []string
	updates        map[int64][]upstream.LeaseUpdate
	renewals       map[int64]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		leases:      map[int64]upstream.Lease{},
		renewStatus: map[int64][]int{},
		updates:     map[int64][]upstream.LeaseUpdate{},
		renewals:    map[int64]int{},
	}
}

func (f *fakeAPI) RequestLeaseUpload(_ context.Context, u upstream.LeaseUpload) (upstream.UploadTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaseUploads = append(f.leaseUploads, u.LeaseID)
	return upstream.UploadTicket{}, nil
}

func (f *fakeAPI) RequestTaskUpload(_ context.Context, _, _ int64, name string) (upstream.UploadTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskUploads = append(f.taskUploads, name)
	return upstream.UploadTicket{}, nil
}

func (f *fakeAPI) LatestHistoryID(context.Context, int64) (int64, error) { return 1, nil }

func (f *fakeAPI) Rental(_ context.Context, id int64) (upstream.Rental, error) {
	if f.rentalErr != nil {
		return upstream.Rental{}, f.rentalErr
	}
	return upstream.Rental{ID: id, RentalManager: &upstream.RentalManager{ID: 900 + id}}, nil
}

func (f *fakeAPI) FindOrCreateTaskCategory(context.Context, string) (upstream.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskCategories++
	return upstream.Category{ID: 31, Name: TaskCategory}, nil
}

func (f *fakeAPI) FindOrCreateFileCategory(_ context.Context, name string) (upstream.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileCategories = append(f.fileCategories, name)
	return upstream.Category{ID: 41, Name: name}, nil
}

func (f *fakeAPI) CreateTask(_ context.Context, t upstream.NewTask) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	return int64(500 + len(f.tasks)), nil
}

func (f *fakeAPI) Lease(_ context.Context, id int64) (upstream.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leases[id]
	if !ok {
		return upstream.Lease{}, errors.New("no such lease")
	}
	return l, nil
}

func (f *fakeAPI) UpdateLease(_ context.Context, id int64, u upstream.LeaseUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = append(f.updates[id], u)
	l := f.leases[id]
	l.IsEvictionPending = u.IsEvictionPending
	l.LeaseToDate = u.LeaseToDate
	f.leases[id] = l
	return nil
}

func (f *fakeAPI) Renew(_ context.Context, id int64, _ upstream.Renewal) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.renewals[id]
	f.renewals[id]++
	if script := f.renewStatus[id]; n < len(script) {
		return script[n], nil
	}
	return http.StatusCreated, nil
}

type fakeUploader struct {
	mu     sync.Mutex
	failed map[string]bool
}

func (u *fakeUploader) Upload(ctx context.Context, _ upload.Target, f upload.File, ticket upload.TicketFunc) error {
	if _, err := ticket(ctx); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failed[f.Name] {
		return errors.New("store down")
	}
	return nil
}

type concatMerger struct{}

func (concatMerger) Merge(docs [][]byte) ([]byte, error) { return bytes.Join(docs, nil), nil }

type recordingObserver struct {
	mu       sync.Mutex
	uploaded int
	results  []string
}

func (r *recordingObserver) LeaseUploaded() {
	r.mu.Lock()
	r.uploaded++
	r.mu.Unlock()
}

func (r *recordingObserver) BuildingFinished(result string, _ time.Duration) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

func leasePlan(id int64, ignored bool) domain.LeasePlan {
	return domain.LeasePlan{
		LeaseID: id,
		Ignored: ignored,
		Notice: domain.Notice{
			TenantNames: "Tenant", Address: "Unit " + string(rune('A'+id)), Unit: "1", EffectiveDate: "2024-05-01",
			NewRent: decimal.NewFromInt(1025), Increase: decimal.NewFromInt(25), Percentage: decimal.RequireFromString("2.5"),
		},
		Renewal: domain.Renewal{LeaseType: "FixedWithRollover", TermStart: "2024-05-01", RentCycle: "Monthly", TenantIDs: []int64{id}},
	}
}

func newOrchestrator(t *testing.T, api *fakeAPI, up *fakeUploader, cfg Config, obs Observer) (*Orchestrator, *[]time.Duration) {
	store, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	r := document.Renderer{Now: func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }}
	o := New(api, up, r, concatMerger{}, store, cfg, obs)
	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	o.now = func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }
	return o, &slept
}

func TestRun(t *testing.T) {
	api := newFakeAPI()
	api.leases[3] = upstream.Lease{ID: 3, LeaseToDate: "2024-04-30", LeaseType: "Fixed"}
	api.leases[7] = upstream.Lease{ID: 7, LeaseToDate: "2024-03-31"}
	up := &fakeUploader{failed: map[string]bool{"N1 for Apartment Unit C Effective May 01, 2024.pdf": true}}
	obs := &recordingObserver{}
	o, slept := newOrchestrator(t, api, up, Config{Pause: 2 * time.Second, ExtendIgnored: true}, obs)

	plans := []domain.BuildingPlan{
		{BuildingID: 100, BuildingName: "Maple", EffectiveDate: "2024-05-01", Leases: []domain.LeasePlan{
			leasePlan(1, false), leasePlan(2, false), leasePlan(3, true),
		}},
		{BuildingID: 50, BuildingName: "Empty", EffectiveDate: "2024-05-01"},
		{BuildingID: 200, BuildingName: "Oak", EffectiveDate: "2024-05-01", IgnoreBuilding: true, Leases: []domain.LeasePlan{
			leasePlan(7, true),
		}},
	}

	report, err := o.Run(context.Background(), plans)
	require.NoError(t, err)

	assert.Equal(t, []string{"Increases May 01, 2024"}, api.fileCategories)
	assert.Equal(t, Report{Buildings: 2, Skipped: 1, Tasks: 1, Notices: 1, Parts: 1, Failed: 1}, report)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *slept)

	require.Len(t, api.tasks, 1)
	task := api.tasks[0]
	assert.Equal(t, "Deliver Notices for May 01, 2024 Increases", task.Title)
	assert.Equal(t, "Please deliver the attached N1 Increase Notices.", task.Description)
	assert.Equal(t, int64(100), task.PropertyID)
	assert.Equal(t, int64(1000), task.AssignedToUserID)
	assert.Equal(t, int64(31), task.CategoryID)
	assert.Equal(t, "2024-01-10", task.DueDate)

	// failed notice still travels in the bundle
	assert.Equal(t, []string{"Notices for Maple May 01, 2024 Part 1.pdf"}, api.taskUploads)
	assert.ElementsMatch(t, []int64{1, 2}, api.leaseUploads)

	assert.Equal(t, "2024-10-30", api.updates[3][0].LeaseToDate)
	assert.Equal(t, "Fixed", api.updates[3][0].LeaseType)
	assert.Equal(t, "2024-09-30", api.updates[7][0].LeaseToDate)
	assert.Empty(t, api.renewals)

	assert.Equal(t, 1, obs.uploaded)
	assert.Equal(t, []string{"ok", "partial"}, obs.results)
}

func TestRun_AssigneeOverrideSkipsRentalLookup(t *testing.T) {
	api := newFakeAPI()
	api.rentalErr = errors.New("should not be called")
	o, _ := newOrchestrator(t, api, &fakeUploader{}, Config{AssigneeUserID: 352}, nil)

	_, err := o.Run(context.Background(), []domain.BuildingPlan{
		{BuildingID: 1, BuildingName: "A", EffectiveDate: "2024-05-01", Leases: []domain.LeasePlan{leasePlan(1, false)}},
		{BuildingID: 2, BuildingName: "B", EffectiveDate: "2024-05-01", Leases: []domain.LeasePlan{leasePlan(2, false)}},
	})
	require.NoError(t, err)
	require.Len(t, api.tasks, 2)
	assert.Equal(t, int64(352), api.tasks[0].AssignedToUserID)
	assert.Equal(t, int64(2), api.tasks[0].PropertyID, "buildings run in descending order")
	assert.Equal(t, 1, api.taskCategories)
}

func TestRun_TaskFailureStillUploadsNotices(t *testing.T) {
	api := newFakeAPI()
	api.rentalErr = errors.New("rental lookup failed")
	o, _ := newOrchestrator(t, api, &fakeUploader{}, Config{}, nil)

	report, err := o.Run(context.Background(), []domain.BuildingPlan{
		{BuildingID: 1, BuildingName: "A", EffectiveDate: "2024-05-01", Leases: []domain.LeasePlan{leasePlan(1, false)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notices)
	assert.Zero(t, report.Tasks)
	assert.Empty(t, api.taskUploads)
}

func TestRun_BadEffectiveDate(t *testing.T) {
	o, _ := newOrchestrator(t, newFakeAPI(), &fakeUploader{}, Config{}, nil)
	_, err := o.Run(context.Background(), []domain.BuildingPlan{{BuildingID: 1, EffectiveDate: "May"}})
	assert.Error(t, err)

	report, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestRenew_ClearsAndRestoresEviction(t *testing.T) {
	api := newFakeAPI()
	api.leases[4] = upstream.Lease{ID: 4, LeaseToDate: "2024-04-30", IsEvictionPending: true}
	api.renewStatus[4] = []int{http.StatusConflict, http.StatusCreated}
	o, _ := newOrchestrator(t, api, &fakeUploader{}, Config{RenewLeases: true}, nil)

	err := o.renew(context.Background(), leasePlan(4, false), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, api.renewals[4])

	require.Len(t, api.updates[4], 2)
	assert.False(t, api.updates[4][0].IsEvictionPending)
	require.NotNil(t, api.updates[4][0].AutomaticallyMoveOutTenants)
	assert.False(t, *api.updates[4][0].AutomaticallyMoveOutTenants)
	assert.True(t, api.updates[4][1].IsEvictionPending)
}

func TestRenew_BoundedAttempts(t *testing.T) {
	api := newFakeAPI()
	api.leases[4] = upstream.Lease{ID: 4}
	api.renewStatus[4] = []int{409, 409, 409, 409, 409}
	o, _ := newOrchestrator(t, api, &fakeUploader{}, Config{RenewalAttempts: 3}, nil)

	err := o.renew(context.Background(), leasePlan(4, false), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.Equal(t, 3, api.renewals[4])
	assert.Len(t, api.updates[4], 2)
}

func TestRenewalBody(t *testing.T) {
	r := domain.Renewal{
		LeaseType: "FixedWithRollover", RentCycle: "Monthly", TenantIDs: []int64{1, 2}, ChargesToStop: []int64{9},
		Charges: []domain.RecurringCharge{{Amount: decimal.RequireFromString("1674.83"), GLAccountID: 3, NextDueDate: "2024-05-01", Memo: "Rent"}},
	}
	body := RenewalBody(r, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-04-30", body.LeaseToDate)
	assert.Equal(t, "Monthly", body.Rent.Cycle)
	require.Len(t, body.Rent.Charges, 1)
	assert.InDelta(t, 1674.83, body.Rent.Charges[0].Amount, 1e-9)
	assert.Equal(t, []int64{9}, body.RecurringChargesToStop)
	assert.False(t, body.SendWelcomeEmail)
}

func TestAddMonths(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2024-03-31", "2024-09-30"},
		{"2024-04-30", "2024-10-30"},
		{"2023-08-31", "2024-02-29"},
		{"2024-01-15", "2024-07-15"},
	}
	for _, tt := range tests {
		in, err := time.Parse(domain.DateLayout, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, AddMonths(in, 6).Format(domain.DateLayout), tt.in)
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Value())
}

type slowUploader struct {
	delay time.Duration

	mu     sync.Mutex
	active int
	peak   int
}

func (u *slowUploader) Upload(ctx context.Context, _ upload.Target, _ upload.File, _ upload.TicketFunc) error {
	u.mu.Lock()
	u.active++
	if u.active > u.peak {
		u.peak = u.active
	}
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.active--
		u.mu.Unlock()
	}()
	select {
	case <-time.After(u.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var testRenderer = document.Renderer{Now: func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }}

func sixLeases() []domain.BuildingPlan {
	plan := domain.BuildingPlan{BuildingID: 100, BuildingName: "Maple", EffectiveDate: "2024-05-01"}
	for id := int64(1); id <= 6; id++ {
		plan.Leases = append(plan.Leases, leasePlan(id, false))
	}
	return []domain.BuildingPlan{plan}
}

func TestRun_BoundsConcurrentLeaseWork(t *testing.T) {
	up := &slowUploader{delay: 20 * time.Millisecond}
	store, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	o := New(newFakeAPI(), up, testRenderer, concatMerger{}, store, Config{AssigneeUserID: 1, Workers: 2}, nil)

	report, err := o.Run(context.Background(), sixLeases())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Notices)
	assert.LessOrEqual(t, up.peak, 2)
	assert.Positive(t, up.peak)
}

func TestRun_CancelStopsBuilding(t *testing.T) {
	up := &slowUploader{delay: time.Second}
	store, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	obs := &recordingObserver{}
	o := New(newFakeAPI(), up, testRenderer, concatMerger{}, store, Config{AssigneeUserID: 1, Workers: 2}, obs)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := o.Run(ctx, sixLeases())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, report.Notices)
	assert.Equal(t, []string{"cancelled"}, obs.results)
}
