package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/accounts"
	"github.com/sawpanic/noticerun/internal/document"
	"github.com/sawpanic/noticerun/internal/gateway"
	"github.com/sawpanic/noticerun/internal/lmr"
	"github.com/sawpanic/noticerun/internal/notices"
	"github.com/sawpanic/noticerun/internal/orchestrator"
	"github.com/sawpanic/noticerun/internal/prelim"
	"github.com/sawpanic/noticerun/internal/scratch"
	"github.com/sawpanic/noticerun/internal/upload"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// Session runs phases against one account.
type Session struct {
	app      *App
	account  accounts.Account
	client   *upstream.Client
	uploader *upload.Uploader
	gateway  *gateway.Gateway
}

// Account returns the account the session acts for.
func (s *Session) Account() accounts.Account {
	return s.account
}

// Task reads one task.
func (s *Session) Task(ctx context.Context, taskID int64) (upstream.Task, error) {
	return s.client.Task(ctx, taskID)
}

func (s *Session) scratch() (*scratch.Store, func(), error) {
	store, err := scratch.New(s.app.cfg.Pipeline.ScratchDir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Str("dir", store.Dir()).Msg("Failed to clean scratch dir")
		}
	}, nil
}

// RunPrelim computes the increases and posts them for review on taskID.
func (s *Session) RunPrelim(ctx context.Context, taskID int64) error {
	_, err := s.Prelim(ctx, taskID)
	return err
}

// Prelim is RunPrelim returning the run result.
func (s *Session) Prelim(ctx context.Context, taskID int64) (prelim.Result, error) {
	key, err := s.app.handoffKey()
	if err != nil {
		return prelim.Result{}, err
	}
	guideline, err := s.app.guideline(s.account)
	if err != nil {
		return prelim.Result{}, err
	}
	effective, err := s.app.cfg.Increase.Effective()
	if err != nil {
		return prelim.Result{}, err
	}
	store, cleanup, err := s.scratch()
	if err != nil {
		return prelim.Result{}, err
	}
	defer cleanup()

	runner := prelim.New(s.client, s.uploader, store, prelim.Config{
		AccountID: s.account.ID,
		Guideline: guideline,
		Margin:    s.app.cfg.Increase.Margin(),
		Effective: effective,
		Key:       key,
		Workers:   s.app.cfg.Gateway.MaxConcurrent,
	})
	return runner.Run(ctx, taskID)
}

// RunNotices delivers the reviewed bundle attached to taskID.
func (s *Session) RunNotices(ctx context.Context, taskID int64) error {
	_, err := s.Notices(ctx, taskID)
	return err
}

// Notices is RunNotices returning the delivery report.
func (s *Session) Notices(ctx context.Context, taskID int64) (orchestrator.Report, error) {
	key, err := s.app.handoffKey()
	if err != nil {
		return orchestrator.Report{}, err
	}
	store, cleanup, err := s.scratch()
	if err != nil {
		return orchestrator.Report{}, err
	}
	defer cleanup()

	p := s.app.cfg.Pipeline
	assignee := s.account.AssigneeUserID
	if assignee == 0 {
		assignee = p.AssigneeUserID
	}
	renderer := document.Renderer{Letterhead: document.Letterhead{
		LandlordName:    p.LandlordName,
		LandlordAddress: p.LandlordAddress,
	}}
	orch := orchestrator.New(s.client, s.uploader, renderer, document.PDFMerger{}, store, orchestrator.Config{
		Pause:           p.BuildingPause(),
		AssigneeUserID:  assignee,
		PartCeiling:     p.PartCeilingBytes,
		RenewLeases:     p.RenewLeases,
		RenewalAttempts: p.RenewalAttempts,
		ExtendIgnored:   p.ExtendIgnored,
		ExtensionMonths: p.ExtensionMonths,
		Workers:         s.app.cfg.Gateway.MaxConcurrent,
	}, s.app.metrics)

	start := time.Now()
	report, err := notices.New(s.client, key, orch).Run(ctx, taskID)
	if err != nil {
		return report, err
	}
	log.Ctx(ctx).Info().
		Int("buildings", report.Buildings).
		Int("skipped", report.Skipped).
		Int("notices", report.Notices).
		Int("parts", report.Parts).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("Notices delivered")
	return report, nil
}

// RunLMR posts the month's last-month-rent interest totals to taskID.
func (s *Session) RunLMR(ctx context.Context, taskID int64) error {
	_, err := s.LMR(ctx, taskID)
	return err
}

// LMR is RunLMR returning the computed interest.
func (s *Session) LMR(ctx context.Context, taskID int64) (lmr.Result, error) {
	return lmr.New(s.client, s.app.cfg.Increase.LMRRate()).WithWorkers(s.app.cfg.Gateway.MaxConcurrent).Run(ctx, taskID)
}
