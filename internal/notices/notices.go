// Package notices runs the delivery phase once a review task is approved.
package notices

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/handoff"
	"github.com/sawpanic/noticerun/internal/orchestrator"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// ErrNoBundle is returned when no history entry of the task carries a
// bundle that opens with the configured key.
var ErrNoBundle = errors.New("no handoff bundle attached to task")

// API is the part of the upstream the delivery phase reads.
type API interface {
	TaskHistory(ctx context.Context, taskID int64) ([]upstream.TaskHistory, error)
	RequestTaskFileDownload(ctx context.Context, taskID, historyID, fileID int64) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Deliverer runs the building loop over a set of plans.
type Deliverer interface {
	Run(ctx context.Context, plans []domain.BuildingPlan) (orchestrator.Report, error)
}

// Runner fetches the reviewed bundle from a task and delivers it.
type Runner struct {
	api       API
	key       handoff.Key
	deliverer Deliverer
}

// New creates a Runner.
func New(api API, key handoff.Key, d Deliverer) *Runner {
	return &Runner{api: api, key: key, deliverer: d}
}

// Fetch downloads and opens the bundle from the newest history entry that
// has files. Files that do not open (the review workbook) are passed over.
func (r *Runner) Fetch(ctx context.Context, taskID int64) ([]domain.BuildingPlan, error) {
	logger := log.Ctx(ctx).With().Int64("task_id", taskID).Logger()

	history, err := r.api.TaskHistory(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var entry *upstream.TaskHistory
	for i := range history {
		if len(history[i].FileIDs) > 0 {
			entry = &history[i]
			break
		}
	}
	if entry == nil {
		return nil, fault.New(fault.MalformedData, "find bundle", ErrNoBundle)
	}

	lastErr := error(fault.New(fault.MalformedData, "find bundle", ErrNoBundle))
	for _, fileID := range entry.FileIDs {
		url, err := r.api.RequestTaskFileDownload(ctx, taskID, entry.ID, fileID)
		if err != nil {
			return nil, err
		}
		blob, err := r.api.Download(ctx, url)
		if err != nil {
			return nil, err
		}
		plans, err := handoff.Open(r.key, blob)
		if err != nil {
			logger.Debug().Err(err).Int64("file_id", fileID).Msg("History file is not a bundle")
			lastErr = err
			continue
		}
		logger.Info().
			Int64("history_id", entry.ID).
			Int64("file_id", fileID).
			Int("buildings", len(plans)).
			Msg("Handoff bundle opened")
		return plans, nil
	}
	return nil, lastErr
}

// Run fetches the bundle attached to taskID and delivers every building.
func (r *Runner) Run(ctx context.Context, taskID int64) (orchestrator.Report, error) {
	plans, err := r.Fetch(ctx, taskID)
	if err != nil {
		return orchestrator.Report{}, err
	}
	return r.deliverer.Run(ctx, plans)
}
