package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/document"
	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/scratch"
	"github.com/sawpanic/noticerun/internal/upload"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// API is the part of the upstream the pipeline writes to.
type API interface {
	RequestLeaseUpload(ctx context.Context, u upstream.LeaseUpload) (upstream.UploadTicket, error)
	RequestTaskUpload(ctx context.Context, taskID, historyID int64, fileName string) (upstream.UploadTicket, error)
	LatestHistoryID(ctx context.Context, taskID int64) (int64, error)
}

// Uploader performs presigned uploads.
type Uploader interface {
	Upload(ctx context.Context, target upload.Target, f upload.File, ticket upload.TicketFunc) error
}

// Config holds the per-run settings of a Pipeline.
type Config struct {
	Effective   time.Time
	CategoryID  int64
	PartCeiling int64
}

// Pipeline renders notices and moves them to the upstream.
type Pipeline struct {
	api      API
	uploader Uploader
	renderer document.Renderer
	merger   document.Merger
	store    *scratch.Store
	cfg      Config
}

// New creates a Pipeline.
func New(api API, uploader Uploader, renderer document.Renderer, merger document.Merger, store *scratch.Store, cfg Config) *Pipeline {
	if cfg.PartCeiling <= 0 {
		cfg.PartCeiling = document.DefaultPartCeiling
	}
	return &Pipeline{api: api, uploader: uploader, renderer: renderer, merger: merger, store: store, cfg: cfg}
}

// LeaseDoc is the outcome of producing one lease's notice. Data is set once
// the notice rendered, even when the lease upload then failed.
type LeaseDoc struct {
	LeaseID  int64
	FileName string
	Data     []byte
	Uploaded bool
	Err      error
}

// ProduceLease renders the notice for plan, stages it in scratch storage
// and attaches it to the lease. Safe for concurrent use.
func (p *Pipeline) ProduceLease(ctx context.Context, plan domain.LeasePlan) LeaseDoc {
	doc := LeaseDoc{LeaseID: plan.LeaseID, FileName: document.NoticeFileName(plan.Notice.Address, p.cfg.Effective)}
	logger := log.With().Int64("lease_id", plan.LeaseID).Logger()

	data, err := p.renderer.Notice(plan.Notice)
	if err != nil {
		doc.Err = err
		return doc
	}
	doc.Data = data

	// lease ids keep concurrent stagings apart
	staged := fmt.Sprintf("%d %s", plan.LeaseID, doc.FileName)
	if _, err := p.store.WriteFile(staged, data); err != nil {
		doc.Err = err
		return doc
	}

	err = p.uploader.Upload(ctx, upload.TargetLease, upload.File{Name: doc.FileName, Data: data}, func(ctx context.Context) (upstream.UploadTicket, error) {
		return p.api.RequestLeaseUpload(ctx, upstream.LeaseUpload{
			LeaseID:    plan.LeaseID,
			FileName:   doc.FileName,
			Title:      doc.FileName,
			CategoryID: p.cfg.CategoryID,
		})
	})
	if err != nil {
		logger.Error().Err(err).Str("kind", fault.KindOf(err).String()).Msg("Notice upload failed")
		doc.Err = err
		return doc
	}
	doc.Uploaded = true
	if err := p.store.Remove(staged); err != nil {
		logger.Warn().Err(err).Msg("Could not remove staged notice")
	}
	logger.Info().Str("file", doc.FileName).Msg("Notice uploaded")
	return doc
}

// Building tracks one building's summary bundle. It is owned by a single
// goroutine.
type Building struct {
	p      *Pipeline
	plan   domain.BuildingPlan
	taskID int64
	state  State

	packer *document.Packer
	parts  []string
	rows   []document.DistributionRow
}

// Begin starts a building whose bundle will be attached to taskID.
func (p *Pipeline) Begin(plan domain.BuildingPlan, taskID int64) *Building {
	b := &Building{p: p, plan: plan, taskID: taskID}
	b.packer = document.NewPacker(p.cfg.PartCeiling, p.merger, b.stage)
	return b
}

// State returns the building's current state.
func (b *Building) State() State {
	return b.state
}

func (b *Building) advance(to State) error {
	if !b.state.next(to) {
		return fault.Newf(fault.MalformedData, "building pipeline", "cannot move from %s to %s", b.state, to)
	}
	b.state = to
	return nil
}

// Integrate adds a produced notice to the bundle. Calls must follow the
// building's lease order. Notices that failed to render are skipped.
func (b *Building) Integrate(plan domain.LeasePlan, doc LeaseDoc) error {
	if err := b.advance(GeneratingLeaseDocs); err != nil {
		return err
	}
	if doc.Data == nil {
		return nil
	}
	if err := b.packer.Add(doc.Data); err != nil {
		return err
	}
	b.rows = append(b.rows, document.RowFromPlan(plan))
	return nil
}

func (b *Building) stage(part document.Part) error {
	name := document.PartFileName(b.plan.BuildingName, b.p.cfg.Effective, part.Number)
	if _, err := b.p.store.WriteFile(name, part.Data); err != nil {
		return err
	}
	b.parts = append(b.parts, name)
	return nil
}

// Finish prepends the distribution page, closes the last part and uploads
// every part to the building's task. It returns the number of parts
// uploaded.
func (b *Building) Finish(ctx context.Context) (int, error) {
	if b.state == Idle {
		// nothing rendered; still walk the states so Done is reached
		b.state = GeneratingLeaseDocs
	}
	if err := b.advance(PackingSummary); err != nil {
		return 0, err
	}
	logger := log.With().Int64("building_id", b.plan.BuildingID).Int64("task_id", b.taskID).Logger()

	if len(b.rows) > 0 {
		page, err := b.p.renderer.Distribution(b.plan.BuildingName, b.p.cfg.Effective, b.rows)
		if err != nil {
			return 0, err
		}
		if err := b.packer.Finish(page); err != nil {
			return 0, err
		}
	}

	if err := b.advance(UploadingParts); err != nil {
		return 0, err
	}
	uploaded := 0
	if len(b.parts) > 0 {
		historyID, err := b.p.api.LatestHistoryID(ctx, b.taskID)
		if err != nil {
			return 0, err
		}
		for i, name := range b.parts {
			if err := b.uploadPart(ctx, historyID, name); err != nil {
				logger.Error().Err(err).Int("part", i+1).Msg("Summary part upload failed")
				continue
			}
			uploaded++
		}
	}

	b.state = Done
	logger.Info().Int("parts", len(b.parts)).Int("uploaded", uploaded).Int("notices", len(b.rows)).Msg("Building bundle finished")
	if uploaded < len(b.parts) {
		return uploaded, fault.Newf(fault.UpstreamRejected, "building bundle", "%d of %d parts failed", len(b.parts)-uploaded, len(b.parts))
	}
	return uploaded, nil
}

func (b *Building) uploadPart(ctx context.Context, historyID int64, name string) error {
	data, err := b.p.store.ReadFile(name)
	if err != nil {
		return err
	}
	err = b.p.uploader.Upload(ctx, upload.TargetTask, upload.File{Name: name, Data: data}, func(ctx context.Context) (upstream.UploadTicket, error) {
		return b.p.api.RequestTaskUpload(ctx, b.taskID, historyID, name)
	})
	if err != nil {
		return err
	}
	return b.p.store.Remove(name)
}
