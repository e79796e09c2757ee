package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/rommer/internal/archive"
	"git.home.luguber.info/inful/rommer/internal/config"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/git"
	"git.home.luguber.info/inful/rommer/internal/hooks"
	"git.home.luguber.info/inful/rommer/internal/logfields"
	"git.home.luguber.info/inful/rommer/internal/metrics"
	"git.home.luguber.info/inful/rommer/internal/patch"
	"git.home.luguber.info/inful/rommer/internal/process"
	"git.home.luguber.info/inful/rommer/internal/sign"
	"git.home.luguber.info/inful/rommer/internal/source"
	"git.home.luguber.info/inful/rommer/internal/workspace"
)

// ArchiveResolver produces the local path of the base ROM archive.
type ArchiveResolver interface {
	Resolve(ctx context.Context, cfg *config.BuildConfig) (string, error)
}

// Result is what a run produced.
type Result struct {
	RunID      string
	OutputPath string
	Report     *Report
}

// Orchestrator runs the build described by one BuildConfig.
type Orchestrator struct {
	cfg       *config.BuildConfig
	resolver  ArchiveResolver
	codec     archive.Codec
	cloner    patch.Cloner
	runner    process.Runner
	recorder  metrics.Recorder
	observers []Observer
	logger    *slog.Logger
	tempBase  string
	wsOpts    []workspace.Option
	newRunID  func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResolver replaces the HTTP-backed archive resolver.
func WithResolver(r ArchiveResolver) Option { return func(o *Orchestrator) { o.resolver = r } }

// WithCodec replaces the zip codec.
func WithCodec(c archive.Codec) Option { return func(o *Orchestrator) { o.codec = c } }

// WithCloner replaces the go-git cloner used for git patch sources.
func WithCloner(c patch.Cloner) Option { return func(o *Orchestrator) { o.cloner = c } }

// WithProcessRunner replaces the runner used for hooks and external signers.
func WithProcessRunner(r process.Runner) Option { return func(o *Orchestrator) { o.runner = r } }

// WithRecorder sends stage and build metrics to rec.
func WithRecorder(rec metrics.Recorder) Option { return func(o *Orchestrator) { o.recorder = rec } }

// WithObserver adds an observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithTempBase sets the parent of ephemeral workspaces (os.TempDir by default).
func WithTempBase(dir string) Option { return func(o *Orchestrator) { o.tempBase = dir } }

// WithWorkspaceOptions passes opts to the run's workspace manager.
func WithWorkspaceOptions(opts ...workspace.Option) Option {
	return func(o *Orchestrator) { o.wsOpts = append(o.wsOpts, opts...) }
}

// WithRunID fixes the run identifier.
func WithRunID(id string) Option { return func(o *Orchestrator) { o.newRunID = func() string { return id } } }

// New returns an orchestrator for cfg.
func New(cfg *config.BuildConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		codec:    archive.ZipCodec{},
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		o.runner = process.NewExecRunner()
	}
	if o.cloner == nil {
		o.cloner = git.NewClient(o.logger)
	}
	if o.resolver == nil {
		rec := o.recorder
		o.resolver = source.NewResolver(source.NewHTTPFetcher(),
			source.WithLogger(o.logger),
			source.WithAttemptObserver(func(_ int, err error) { rec.IncDownloadAttempt(err == nil) }),
		)
	}
	return o
}

// run holds the mutable state of one execution.
type run struct {
	id       string
	device   string
	log      *slog.Logger
	ws       *workspace.Manager
	hooks    *hooks.Runner
	observer Observer
	report   *Report
	archive  string
	output   string
}

func (r *run) env() hooks.Env {
	return hooks.Env{RunID: r.id, Device: r.device, WorkDir: r.ws.Path(), Archive: r.archive, Output: r.output}
}

// Run executes every stage in order. The returned Result is non-nil even on
// failure so callers can inspect the report.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	cfg := o.cfg
	r := o.newRun()
	res := &Result{RunID: r.id, Report: r.report}

	r.log.Info("Starting ROM build", slog.String("summary", cfg.Summary()), logfields.DryRun(cfg.DryRun))

	err := o.execute(ctx, r)
	if err != nil {
		o.handleFailure(r, err)
	}
	r.report.Archive = r.archive
	r.report.Output = r.output
	r.report.finish(err)
	r.observer.OnBuildComplete(r.report)
	if err != nil {
		return res, err
	}
	res.OutputPath = r.output
	r.log.Info("ROM build complete", logfields.Path(r.output), logfields.Duration(r.report.Duration()), logfields.DryRun(cfg.DryRun))
	return res, nil
}

func (o *Orchestrator) newRun() *run {
	cfg := o.cfg
	id := o.newRunID()
	log := o.logger.With(logfields.RunID(id), logfields.Device(cfg.Device))

	wsOpts := append([]workspace.Option{workspace.WithLogger(log)}, o.wsOpts...)
	var ws *workspace.Manager
	if cfg.WorkDir != "" {
		ws = workspace.NewExplicitManager(cfg.WorkDir, wsOpts...)
	} else {
		ws = workspace.NewManager(o.tempBase, id, wsOpts...)
	}

	observers := make(multiObserver, 0, len(o.observers)+1)
	observers = append(observers, recorderObserver{rec: o.recorder})
	observers = append(observers, o.observers...)

	rep := newReport(id, cfg.DryRun)
	rep.Workspace = ws.Path()

	rec := o.recorder
	return &run{
		id:     id,
		device: cfg.Device,
		log:    log,
		ws:     ws,
		hooks: &hooks.Runner{
			Hooks:           cfg.Hooks,
			Process:         o.runner,
			Dir:             cfg.BaseDir,
			DryRun:          cfg.DryRun,
			ExecuteInDryRun: cfg.DryRunHooks,
			Logger:          log,
			OnRun: func(stage hooks.Stage, success bool, _ time.Duration) {
				rec.IncHookRun(string(stage), success)
			},
		},
		observer: observers,
		report:   rep,
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	cfg := o.cfg

	if err := o.hook(ctx, r, StageRun, config.HookPreRun); err != nil {
		return err
	}

	if err := o.stage(ctx, r, StageDownload, config.HookPreDownload, config.HookPostDownload, func(ctx context.Context) error {
		path, err := o.resolver.Resolve(ctx, cfg)
		if err != nil {
			return err
		}
		r.archive = path
		return nil
	}); err != nil {
		return err
	}

	tree := r.ws.Sub(workspace.TreeDir)
	extract := func(ctx context.Context) error { return o.extract(ctx, r, tree) }
	if cfg.DryRun {
		r.log.Info("Would extract ROM", logfields.Path(r.archive), slog.String("into", tree), logfields.DryRun(true))
		extract = nil
	}
	if err := o.stage(ctx, r, StageUnzip, config.HookPreUnzip, config.HookPostUnzip, extract); err != nil {
		return err
	}

	if err := o.stage(ctx, r, StagePatch, config.HookPrePatch, config.HookPostPatch, func(ctx context.Context) error {
		return o.applyPatches(ctx, r, tree)
	}); err != nil {
		return err
	}

	if err := o.stage(ctx, r, StageZip, config.HookPreZip, config.HookPostZip, func(ctx context.Context) error {
		r.output = cfg.OutputPath()
		if cfg.DryRun {
			r.log.Info("Would create ROM archive", logfields.Path(r.output), logfields.DryRun(true))
			return nil
		}
		if _, err := archive.Repack(ctx, o.codec, tree, r.output); err != nil {
			return err
		}
		r.log.Info("Created ROM archive", logfields.Path(r.output))
		return nil
	}); err != nil {
		return err
	}

	signBody := func(ctx context.Context) error {
		method, err := sign.MethodFromConfig(cfg.Signing)
		if err != nil {
			return err
		}
		d := &sign.Dispatcher{Runner: o.runner, Codec: o.codec, DryRun: cfg.DryRun, Logger: r.log}
		out, err := d.Sign(ctx, r.output, method)
		if err != nil {
			return err
		}
		r.output = out
		return nil
	}
	if cfg.SkipSigning {
		r.log.Info("Skipping signing")
		signBody = nil
	}
	if err := o.stage(ctx, r, StageSign, config.HookPreSign, config.HookPostSign, signBody); err != nil {
		return err
	}

	if cfg.Cleanup {
		if err := o.stage(ctx, r, StageCleanup, config.HookPreCleanup, config.HookPostCleanup, func(context.Context) error {
			return o.cleanup(r)
		}); err != nil {
			return err
		}
	} else {
		r.log.Info("Keeping workspace", logfields.Path(r.ws.Path()))
		o.skip(r, StageCleanup)
	}

	return o.hook(ctx, r, StageRun, config.HookPostRun)
}

// stage runs pre hook, body and post hook. A nil body records the stage as
// skipped while its hooks still fire.
func (o *Orchestrator) stage(ctx context.Context, r *run, name StageName, pre, post config.HookStage, body func(context.Context) error) error {
	if err := o.hook(ctx, r, name, pre); err != nil {
		return err
	}
	if body == nil {
		o.skip(r, name)
	} else {
		if err := ctx.Err(); err != nil {
			return o.fail(r, name, 0, ferrors.WrapError(err, ferrors.CategoryCanceled, "build canceled").Build())
		}
		r.observer.OnStageStart(name)
		r.log.Info("Stage started", logfields.Stage(string(name)))
		start := time.Now()
		err := body(ctx)
		d := time.Since(start)
		if err != nil {
			se := newStageError(name, err)
			if se.Kind != StageErrorWarning {
				return o.fail(r, name, d, err)
			}
			r.log.Warn("Stage completed with warning", logfields.Stage(string(name)), logfields.Error(err))
			r.report.Warnings = append(r.report.Warnings, err.Error())
			r.report.record(name, StageResultWarning, d, err)
			r.observer.OnStageComplete(name, d, StageResultWarning)
		} else {
			r.log.Info("Stage completed", logfields.Stage(string(name)), logfields.Duration(d))
			r.report.record(name, StageResultSuccess, d, nil)
			r.observer.OnStageComplete(name, d, StageResultSuccess)
		}
	}
	return o.hook(ctx, r, name, post)
}

func (o *Orchestrator) skip(r *run, name StageName) {
	r.report.record(name, StageResultSkipped, 0, nil)
	r.observer.OnStageComplete(name, 0, StageResultSkipped)
}

func (o *Orchestrator) hook(ctx context.Context, r *run, owner StageName, h config.HookStage) error {
	if err := r.hooks.Run(ctx, h, r.env()); err != nil {
		return o.fail(r, owner, 0, err)
	}
	return nil
}

func (o *Orchestrator) fail(r *run, name StageName, d time.Duration, err error) error {
	if ce, ok := ferrors.AsClassified(err); ok {
		err = ce.WithContext("stage", string(name))
	}
	se := newStageError(name, err)
	if se.Kind == StageErrorWarning {
		se.Kind = StageErrorFatal
	}
	r.report.record(name, se.Kind.result(), d, err)
	r.observer.OnStageComplete(name, d, se.Kind.result())
	r.log.Error("Stage failed", logfields.Stage(string(name)), logfields.Error(err))
	return se
}

func (o *Orchestrator) extract(ctx context.Context, r *run, tree string) error {
	if err := r.ws.Create(); err != nil {
		return err
	}
	n, err := archive.Extract(ctx, o.codec, r.archive, tree)
	if err != nil {
		return err
	}
	r.log.Info("Extracted ROM", slog.Int("entries", n), logfields.Path(tree))
	return nil
}

func (o *Orchestrator) applyPatches(ctx context.Context, r *run, tree string) error {
	cfg := o.cfg
	if len(cfg.Patches) == 0 {
		r.log.Info("No patches configured")
		return nil
	}
	sel := &patch.Selector{
		AndroidVersion: cfg.Source.AndroidVersion,
		Tags:           cfg.Tags,
		CloneDir:       r.ws.Sub(workspace.PatchesDir),
		Cloner:         o.cloner,
		DryRun:         cfg.DryRun,
		Logger:         r.log,
	}
	units, err := sel.Select(ctx, cfg.Patches)
	if err != nil {
		return err
	}
	rec := o.recorder
	eng := &patch.Engine{
		DryRun: cfg.DryRun,
		Logger: r.log,
		OnUnit: func(rep patch.UnitReport) {
			r.report.Patches = append(r.report.Patches, rep)
			rec.ObservePatchUnit(rep.Duration, rep.Copied, rep.DeletedDirs+rep.DeletedFiles)
		},
	}
	return eng.Apply(ctx, tree, units)
}

func (o *Orchestrator) cleanup(r *run) error {
	if o.cfg.DryRun {
		r.log.Info("Would remove workspace", logfields.Path(r.ws.Path()), logfields.DryRun(true))
		return nil
	}
	return r.ws.Cleanup()
}

// handleFailure decides the fate of the workspace after a failed run.
// Cancellation never deletes it.
func (o *Orchestrator) handleFailure(r *run, err error) {
	var se *StageError
	canceled := asStageError(err, &se) && se.Kind == StageErrorCanceled
	if !r.ws.Created() {
		return
	}
	if !o.cfg.CleanupOnFailure || canceled {
		r.log.Warn("Workspace left in place for inspection", logfields.Path(r.ws.Path()))
		return
	}
	if cerr := r.ws.Cleanup(); cerr != nil {
		r.log.Warn("Failed to remove workspace after failure", logfields.Error(cerr))
		r.report.Warnings = append(r.report.Warnings, cerr.Error())
	}
}

func asStageError(err error, target **StageError) bool {
	return stderrors.As(err, target)
}
