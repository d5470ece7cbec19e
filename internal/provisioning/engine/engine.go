package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/executor"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/plan"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/resolver"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/streaming"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
	"github.com/KevinKickass/OpenUnitSync/internal/units"
)

type ProfileStore interface {
	GetUnitProfile(ctx context.Context, id uuid.UUID) (*types.StoredUnitProfile, error)
}

type ReportStore interface {
	SaveSyncReport(ctx context.Context, report *types.SyncReport) error
}

// ReportObserver is told about every finished run.
type ReportObserver interface {
	RunReported(ctx context.Context, report *types.SyncReport)
}

type Engine struct {
	dialer    executor.Dialer
	executor  *executor.StepExecutor
	profiles  ProfileStore
	items     resolver.ItemStore
	reports   ReportStore
	streamer  *streaming.ProgressStreamer
	observers []ReportObserver
	locks     *unitLocks
	logger    *zap.Logger
}

func NewEngine(dialer executor.Dialer, exec *executor.StepExecutor, profiles ProfileStore, items resolver.ItemStore, streamer *streaming.ProgressStreamer, logger *zap.Logger) *Engine {
	return &Engine{
		dialer:   dialer,
		executor: exec,
		profiles: profiles,
		items:    items,
		streamer: streamer,
		locks:    newUnitLocks(),
		logger:   logger,
	}
}

// SetReportStore enables persistence of finished reports.
func (e *Engine) SetReportStore(reports ReportStore) {
	e.reports = reports
}

func (e *Engine) AddObserver(o ReportObserver) {
	e.observers = append(e.observers, o)
}

// Run prepares and executes a synchronization. Only pre-flight failures
// are returned; everything after that is recorded in the report.
func (e *Engine) Run(ctx context.Context, req Request) (*types.SyncReport, error) {
	run, err := e.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, run)
}

// Prepare validates the request and builds the plans. No unit is contacted.
func (e *Engine) Prepare(ctx context.Context, req Request) (*Run, error) {
	if len(req.Targets) == 0 {
		return nil, types.NewValidationError(units.CodeNoUnits, "no units selected")
	}
	if !req.WriteProfile && len(req.Categories) == 0 {
		return nil, types.NewValidationError("NOTHING_SELECTED", "neither profile write nor categories selected")
	}
	if req.WriteProfile && len(req.Targets) != 1 {
		labels := make([]string, len(req.Targets))
		for i, t := range req.Targets {
			labels[i] = t.Unit.Label()
		}
		return nil, types.NewValidationError(units.CodeSingleTarget,
			fmt.Sprintf("a profile can only be written to exactly one unit, %d selected", len(req.Targets)), labels...)
	}

	seenCategory := make(map[types.ConfigCategory]bool, len(req.Categories))
	for _, c := range req.Categories {
		if !c.Valid() {
			return nil, types.NewValidationError("UNKNOWN_CATEGORY", fmt.Sprintf("unknown category %d", int(c)))
		}
		if seenCategory[c] {
			return nil, types.NewValidationError("DUPLICATE_CATEGORY", fmt.Sprintf("category %s selected twice", c))
		}
		seenCategory[c] = true
	}

	seenUnit := make(map[string]bool, len(req.Targets))
	for _, t := range req.Targets {
		if seenUnit[t.Unit.Key()] {
			return nil, types.NewValidationError("DUPLICATE_UNIT", "unit selected twice", t.Unit.Label())
		}
		seenUnit[t.Unit.Key()] = true
	}

	runID := req.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	run := newRun(runID)
	run.categories = append([]types.ConfigCategory(nil), req.Categories...)

	if err := run.setState(types.RunPlanning); err != nil {
		return nil, err
	}

	for _, t := range req.Targets {
		profile, err := e.profiles.GetUnitProfile(ctx, t.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("load profile for %s: %w", t.Unit.Label(), err)
		}
		run.units = append(run.units, unitRun{unit: t.Unit, profile: profile})
	}

	if req.WriteProfile {
		target := run.units[0]
		if err := units.CheckIdentityWrite(target.unit, target.profile, req.Known); err != nil {
			return nil, err
		}

		p, err := plan.Build(target.profile, target.unit)
		if err != nil {
			return nil, err
		}
		run.plan = p
	}

	for _, u := range run.units {
		for _, c := range run.categories {
			run.setPair(u.unit, c, types.PairPending)
		}
	}

	e.publish(run, 0, "Planned")

	e.logger.Info("Synchronization planned",
		zap.String("run_id", run.ID.String()),
		zap.Int("units", len(run.units)),
		zap.Int("categories", len(run.categories)),
		zap.Bool("write_profile", run.plan != nil))

	return run, nil
}

// Execute runs a prepared run to completion and returns the sealed report.
// Runs sharing a unit are executed one after the other.
func (e *Engine) Execute(ctx context.Context, run *Run) (*types.SyncReport, error) {
	if err := run.claim(); err != nil {
		return nil, err
	}

	keys := make([]string, len(run.units))
	for i, u := range run.units {
		keys[i] = u.unit.Key()
	}
	release, err := e.locks.acquire(ctx, keys, func() {
		e.publish(run, 0, "Waiting for units in use by another run")
		e.logger.Info("Run waits for units of another run", zap.String("run_id", run.ID.String()))
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: waiting for units: %w", run.ID, err)
	}
	defer release()

	if err := run.setState(types.RunExecuting); err != nil {
		return nil, err
	}

	builder := types.NewReportBuilder(run.ID)
	x := &execution{
		engine:    e,
		run:       run,
		builder:   builder,
		links:     make(map[string]executor.Link),
		dialErr:   make(map[string]error),
		resolvers: make(map[uuid.UUID]*resolver.Resolver),
	}
	defer x.closeLinks()

	x.computeWeights()
	e.publish(run, 0, "Starting")

	if run.plan != nil {
		x.writeProfile(ctx)
	}
	if len(run.categories) > 0 {
		x.deletePhase(ctx)
		x.sendPhase(ctx)
	}

	report := builder.Seal()
	return e.finish(ctx, run, report), nil
}

func (e *Engine) finish(ctx context.Context, run *Run, report *types.SyncReport) *types.SyncReport {
	run.mu.Lock()
	run.report = report
	run.mu.Unlock()

	if err := run.setState(types.RunReported); err != nil {
		e.logger.Error("Invalid run state", zap.Error(err))
	}

	summary := report.Summary()
	run.mu.Lock()
	run.progress.Percent = 100
	run.progress.Operation = "Completed"
	run.progress.Summary = &summary
	run.progress.Timestamp = time.Now()
	final := run.progress
	run.mu.Unlock()
	e.streamer.Broadcast(final)

	e.logger.Info("Synchronization completed",
		zap.String("run_id", run.ID.String()),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", report.CompletedAt.Sub(report.StartedAt)))

	if e.reports != nil {
		if err := e.reports.SaveSyncReport(ctx, report); err != nil {
			e.logger.Error("Failed to persist sync report",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
		}
	}

	for _, o := range e.observers {
		o.RunReported(ctx, report)
	}

	return report
}

func (e *Engine) publish(run *Run, percent int, operation string) {
	run.mu.Lock()
	if percent > run.progress.Percent {
		run.progress.Percent = percent
	}
	run.progress.Operation = operation
	run.progress.Timestamp = time.Now()
	p := run.progress
	run.mu.Unlock()

	e.streamer.Broadcast(p)
}
