// Package prelim runs the review phase: it computes the increases for every
// eligible lease, posts them to the review task and attaches the sealed
// handoff bundle the notice phase later delivers from.
package prelim

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/calc"
	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/eligibility"
	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/handoff"
	"github.com/sawpanic/noticerun/internal/pipeline"
	"github.com/sawpanic/noticerun/internal/report"
	"github.com/sawpanic/noticerun/internal/scratch"
	"github.com/sawpanic/noticerun/internal/upload"
	"github.com/sawpanic/noticerun/internal/upstream"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// API is the part of the upstream the review phase uses.
type API interface {
	eligibility.API
	Task(ctx context.Context, taskID int64) (upstream.Task, error)
	UpdateTask(ctx context.Context, taskID int64, u upstream.TaskUpdate) error
	LatestHistoryID(ctx context.Context, taskID int64) (int64, error)
	RequestTaskUpload(ctx context.Context, taskID, historyID int64, fileName string) (upstream.UploadTicket, error)
}

// Config parameterizes one review run.
type Config struct {
	AccountID int64
	Guideline decimal.Decimal
	Margin    decimal.Decimal
	// Effective overrides the computed effective date when non-zero.
	Effective time.Time
	Key       handoff.Key
	// Workers bounds concurrent lease lookups; zero is unbounded.
	Workers int
}

// Result describes what a review run produced.
type Result struct {
	Summary    domain.Summary
	BundleName string
	Messages   int
	Workbook   bool
}

// Runner executes the review phase for one task.
type Runner struct {
	api      API
	uploader pipeline.Uploader
	store    *scratch.Store
	cfg      Config
	now      func() time.Time
}

// New creates a Runner.
func New(api API, uploader pipeline.Uploader, store *scratch.Store, cfg Config) *Runner {
	return &Runner{api: api, uploader: uploader, store: store, cfg: cfg, now: time.Now}
}

// Run gathers, computes and publishes the increases for review on taskID.
// Failed message updates are logged; failing to attach the bundle fails
// the run since nothing can be delivered without it.
func (r *Runner) Run(ctx context.Context, taskID int64) (Result, error) {
	logger := log.Ctx(ctx).With().Int64("task_id", taskID).Logger()

	task, err := r.api.Task(ctx, taskID)
	if err != nil {
		return Result{}, err
	}

	now := r.now()
	effective := r.cfg.Effective
	if effective.IsZero() {
		effective = eligibility.EffectiveDate(now)
	}
	logger.Info().
		Str("effective", effective.Format(domain.DateLayout)).
		Str("guideline_pct", r.cfg.Guideline.String()).
		Msg("Starting increase review")

	groups, err := eligibility.New(r.api, nil).WithWorkers(r.cfg.Workers).Gather(ctx, r.cfg.Guideline, effective)
	if err != nil {
		return Result{}, err
	}
	summary := calc.Generator{
		Guideline: r.cfg.Guideline,
		Effective: effective,
		Margin:    r.cfg.Margin,
	}.GenerateIncreases(groups)

	res := Result{Summary: summary}
	update := upstream.TaskUpdate{
		Title:            report.ReviewTitle(effective),
		AssignedToUserID: task.AssignedToUserID,
		Priority:         "High",
		TaskStatus:       "InProgress",
	}
	if task.Category != nil {
		update.CategoryID = task.Category.ID
	}

	for _, b := range summary.Batches {
		if len(b.Results) == 0 {
			continue
		}
		update.Message = report.BuildingMessage(summary, b, now)
		update.Date = r.now().UTC().Format(time.RFC3339)
		if err := r.api.UpdateTask(ctx, taskID, update); err != nil {
			logger.Error().Err(err).Int64("building_id", b.BuildingID).Msg("Review message update failed")
			continue
		}
		res.Messages++
	}
	update.Message = report.IgnoredMessage(summary)
	update.Date = r.now().UTC().Format(time.RFC3339)
	if err := r.api.UpdateTask(ctx, taskID, update); err != nil {
		logger.Error().Err(err).Msg("Ignored leases update failed")
	} else {
		res.Messages++
	}

	sealed, err := handoff.Seal(r.cfg.Key, handoff.Build(summary))
	if err != nil {
		return res, err
	}
	bundle := upload.File{
		Name:        handoff.FileName(r.cfg.AccountID, effective),
		ContentType: "application/json",
		Data:        sealed,
	}
	if err := r.attach(ctx, taskID, bundle); err != nil {
		return res, err
	}
	res.BundleName = bundle.Name

	book, err := report.Workbook(summary, now)
	if err == nil {
		err = r.attach(ctx, taskID, upload.File{Name: report.WorkbookName(effective), ContentType: xlsxContentType, Data: book})
	}
	if err != nil {
		logger.Error().Err(err).Msg("Review workbook not attached")
	} else {
		res.Workbook = true
	}

	logger.Info().
		Int("increases", summary.Count).
		Str("total_increase", summary.TotalIncrease.StringFixed(2)).
		Int("messages", res.Messages).
		Str("bundle", res.BundleName).
		Msg("Increase review published")
	return res, nil
}

// attach stages f in scratch and uploads it to the task's newest history
// entry, removing the staged copy once it lands.
func (r *Runner) attach(ctx context.Context, taskID int64, f upload.File) error {
	if _, err := r.store.WriteFile(f.Name, f.Data); err != nil {
		return err
	}
	historyID, err := r.api.LatestHistoryID(ctx, taskID)
	if err != nil {
		return err
	}
	err = r.uploader.Upload(ctx, upload.TargetTask, f, func(ctx context.Context) (upstream.UploadTicket, error) {
		return r.api.RequestTaskUpload(ctx, taskID, historyID, f.Name)
	})
	if err != nil {
		return fault.New(fault.KindOf(err), "attach "+f.Name, err)
	}
	return r.store.Remove(f.Name)
}
