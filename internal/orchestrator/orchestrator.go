package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/noticerun/internal/document"
	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/pipeline"
	"github.com/sawpanic/noticerun/internal/scratch"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// TaskCategory groups the delivery tasks created per building.
const TaskCategory = "Increase Notices"

// API is everything the orchestrator needs from the upstream.
type API interface {
	pipeline.API
	Rental(ctx context.Context, buildingID int64) (upstream.Rental, error)
	FindOrCreateTaskCategory(ctx context.Context, name string) (upstream.Category, error)
	FindOrCreateFileCategory(ctx context.Context, name string) (upstream.Category, error)
	CreateTask(ctx context.Context, t upstream.NewTask) (int64, error)
	Lease(ctx context.Context, leaseID int64) (upstream.Lease, error)
	UpdateLease(ctx context.Context, leaseID int64, u upstream.LeaseUpdate) error
	Renew(ctx context.Context, leaseID int64, r upstream.Renewal) (int, error)
}

// Observer records run progress.
type Observer interface {
	LeaseUploaded()
	BuildingFinished(result string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) LeaseUploaded()                         {}
func (nopObserver) BuildingFinished(string, time.Duration) {}

// Config tunes a run.
type Config struct {
	Pause           time.Duration
	AssigneeUserID  int64
	PartCeiling     int64
	RenewLeases     bool
	RenewalAttempts int
	ExtendIgnored   bool
	ExtensionMonths int
	// Workers bounds concurrent lease work within a building; zero is
	// unbounded.
	Workers int
}

// Counter counts uploaded notices across concurrent lease work.
type Counter struct {
	mu sync.Mutex
	n  int
}

// Inc adds one.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// Value returns the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Report summarizes a run.
type Report struct {
	Buildings int
	Skipped   int
	Tasks     int
	Notices   int
	Parts     int
	Failed    int
}

// Orchestrator delivers a reviewed set of building plans.
type Orchestrator struct {
	api      API
	uploader pipeline.Uploader
	renderer document.Renderer
	merger   document.Merger
	store    *scratch.Store
	cfg      Config
	observer Observer

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an Orchestrator. A nil observer discards progress.
func New(api API, uploader pipeline.Uploader, renderer document.Renderer, merger document.Merger, store *scratch.Store, cfg Config, obs Observer) *Orchestrator {
	if obs == nil {
		obs = nopObserver{}
	}
	if cfg.RenewalAttempts <= 0 {
		cfg.RenewalAttempts = 3
	}
	if cfg.ExtensionMonths <= 0 {
		cfg.ExtensionMonths = 6
	}
	return &Orchestrator{
		api:      api,
		uploader: uploader,
		renderer: renderer,
		merger:   merger,
		store:    store,
		cfg:      cfg,
		observer: obs,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// run holds state shared by the buildings of one Run call.
type run struct {
	pipe           *pipeline.Pipeline
	effective      time.Time
	counter        *Counter
	taskCategoryID int64
	report         Report
	logger         *zerolog.Logger
}

// Run processes buildings one at a time in descending id order. A failing
// building is logged and the run moves on; only an unusable plan set or a
// missing file category aborts.
func (o *Orchestrator) Run(ctx context.Context, plans []domain.BuildingPlan) (Report, error) {
	logger := log.Ctx(ctx)
	if len(plans) == 0 {
		logger.Info().Msg("No buildings to process")
		return Report{}, nil
	}

	effective, err := time.Parse(domain.DateLayout, plans[0].EffectiveDate)
	if err != nil {
		return Report{}, fault.New(fault.MalformedData, "effective date", err)
	}

	ordered := make([]domain.BuildingPlan, len(plans))
	copy(ordered, plans)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].BuildingID > ordered[j].BuildingID })

	category, err := o.api.FindOrCreateFileCategory(ctx, "Increases "+effective.Format(domain.LongDateLayout))
	if err != nil {
		return Report{}, err
	}

	r := &run{
		pipe: pipeline.New(o.api, o.uploader, o.renderer, o.merger, o.store, pipeline.Config{
			Effective:   effective,
			CategoryID:  category.ID,
			PartCeiling: o.cfg.PartCeiling,
		}),
		effective: effective,
		counter:   &Counter{},
		logger:    logger,
	}

	for i, plan := range ordered {
		if i > 0 && o.cfg.Pause > 0 {
			if err := o.sleep(ctx, o.cfg.Pause); err != nil {
				return r.finish(), err
			}
		}
		if err := o.runBuilding(ctx, r, plan); err != nil {
			return r.finish(), err
		}
	}

	report := r.finish()
	logger.Info().
		Int("buildings", report.Buildings).
		Int("tasks", report.Tasks).
		Int("notices", report.Notices).
		Int("parts", report.Parts).
		Int("failed", report.Failed).
		Msg("Notice run complete")
	return report, nil
}

func (r *run) finish() Report {
	r.report.Notices = r.counter.Value()
	return r.report
}

// runBuilding logs and counts per-lease failures; it only returns an error
// when ctx ends mid-building.
func (o *Orchestrator) runBuilding(ctx context.Context, r *run, plan domain.BuildingPlan) error {
	logger := r.logger.With().Int64("building_id", plan.BuildingID).Str("building", plan.BuildingName).Logger()
	if len(plan.Leases) == 0 {
		logger.Info().Msg("No leases for building, skipping")
		r.report.Skipped++
		return nil
	}
	start := time.Now()
	r.report.Buildings++

	var taskID int64
	if plan.IgnoreBuilding {
		logger.Info().Msg("Every lease ignored, skipping task and summary")
	} else if plan.HasActive() {
		id, err := o.createTask(ctx, r, plan)
		if err != nil {
			logger.Error().Err(err).Msg("Task creation failed, notices will not be bundled")
		} else {
			taskID = id
			r.report.Tasks++
			logger.Info().Int64("task_id", taskID).Msg("Delivery task created")
		}
	}

	docs := make([]pipeline.LeaseDoc, len(plan.Leases))
	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.Workers > 0 {
		g.SetLimit(o.cfg.Workers)
	}
	for i, lp := range plan.Leases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if lp.Ignored {
				if o.cfg.ExtendIgnored {
					if err := o.extendLease(gctx, lp.LeaseID); err != nil {
						logger.Error().Err(err).Int64("lease_id", lp.LeaseID).Msg("Lease extension failed")
					}
				}
				return gctx.Err()
			}
			docs[i] = r.pipe.ProduceLease(gctx, lp)
			if !docs[i].Uploaded {
				return gctx.Err()
			}
			r.counter.Inc()
			o.observer.LeaseUploaded()
			if o.cfg.RenewLeases {
				if err := o.renew(gctx, lp, r.effective); err != nil {
					logger.Error().Err(err).Int64("lease_id", lp.LeaseID).Msg("Lease renewal failed")
				}
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Msg("Building interrupted")
		o.observer.BuildingFinished("cancelled", time.Since(start))
		return err
	}

	result := "ok"
	var building *pipeline.Building
	if taskID != 0 {
		building = r.pipe.Begin(plan, taskID)
	}
	for i, lp := range plan.Leases {
		if lp.Ignored {
			continue
		}
		if docs[i].Err != nil {
			r.report.Failed++
			result = "partial"
		}
		if building == nil {
			continue
		}
		if err := building.Integrate(lp, docs[i]); err != nil {
			logger.Error().Err(err).Int64("lease_id", lp.LeaseID).Msg("Could not add notice to bundle")
			result = "partial"
		}
	}
	if building != nil {
		parts, err := building.Finish(ctx)
		r.report.Parts += parts
		if err != nil {
			logger.Error().Err(err).Msg("Bundle upload incomplete")
			result = "partial"
		}
	}

	o.observer.BuildingFinished(result, time.Since(start))
	return nil
}

func (o *Orchestrator) createTask(ctx context.Context, r *run, plan domain.BuildingPlan) (int64, error) {
	assignee := o.cfg.AssigneeUserID
	if assignee == 0 {
		rental, err := o.api.Rental(ctx, plan.BuildingID)
		if err != nil {
			return 0, err
		}
		if rental.RentalManager != nil {
			assignee = rental.RentalManager.ID
		}
	}
	if r.taskCategoryID == 0 {
		cat, err := o.api.FindOrCreateTaskCategory(ctx, TaskCategory)
		if err != nil {
			return 0, err
		}
		r.taskCategoryID = cat.ID
	}
	return o.api.CreateTask(ctx, upstream.NewTask{
		Title:            "Deliver Notices for " + r.effective.Format(domain.LongDateLayout) + " Increases",
		Description:      "Please deliver the attached N1 Increase Notices.",
		CategoryID:       r.taskCategoryID,
		PropertyID:       plan.BuildingID,
		AssignedToUserID: assignee,
		TaskStatus:       "New",
		Priority:         "High",
		DueDate:          o.now().Format(domain.DateLayout),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
