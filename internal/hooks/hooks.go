// Package hooks runs the user scripts attached to named pipeline boundaries.
//
// Each boundary resolves to zero or one script. A script runs synchronously
// via sh; a non-zero exit aborts the run.
package hooks

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"git.home.luguber.info/inful/rommer/internal/config"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/logfields"
	"git.home.luguber.info/inful/rommer/internal/process"
)

// Stage is a named extension point.
type Stage = config.HookStage

// Env is the run state exported to hook scripts.
type Env struct {
	RunID   string
	Device  string
	WorkDir string
	// Archive is the base ROM; Output is the produced archive once repacked.
	Archive string
	Output  string
}

// Runner resolves and executes hooks.
type Runner struct {
	Hooks   config.Hooks
	Process process.Runner
	// Dir is the working directory for scripts.
	Dir string
	// DryRun visits hooks without executing them unless ExecuteInDryRun is set.
	DryRun          bool
	ExecuteInDryRun bool
	Logger          *slog.Logger
	// OnRun, when set, is told about every executed script.
	OnRun func(stage Stage, success bool, d time.Duration)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Has reports whether a script is configured for stage.
func (r *Runner) Has(stage Stage) bool {
	_, ok := r.Hooks.Script(stage)
	return ok
}

// Run executes the script for stage, if any.
func (r *Runner) Run(ctx context.Context, stage Stage, env Env) error {
	script, ok := r.Hooks.Script(stage)
	if !ok {
		return nil
	}
	log := r.logger().With(logfields.Hook(string(stage)), logfields.Path(script))

	if r.DryRun && !r.ExecuteInDryRun {
		log.Info("Would run hook", logfields.DryRun(true))
		return nil
	}

	if info, err := os.Stat(script); err != nil || info.IsDir() {
		if err == nil {
			err = stderrors.New("is a directory")
		}
		return ferrors.WrapError(err, ferrors.CategoryHook, "hook script not found").
			Fatal().
			WithContext("hook", string(stage)).
			WithContext("path", script).
			Build()
	}
	if r.Process == nil {
		return ferrors.InternalError("no process runner configured for hooks").Build()
	}

	cmd := process.Command{
		Name: "sh",
		Args: []string{script},
		Dir:  r.Dir,
		Env: []string{
			"ROMMER_STAGE=" + string(stage),
			"ROMMER_RUN_ID=" + env.RunID,
			"ROMMER_DEVICE=" + env.Device,
			"ROMMER_WORKDIR=" + env.WorkDir,
			"ROMMER_ARCHIVE=" + env.Archive,
			"ROMMER_OUTPUT=" + env.Output,
			"ROMMER_DRY_RUN=" + strconv.FormatBool(r.DryRun),
		},
	}

	log.Info("Running hook")
	start := time.Now()
	_, err := r.Process.Run(ctx, cmd)
	elapsed := time.Since(start)
	if r.OnRun != nil {
		r.OnRun(stage, err == nil, elapsed)
	}
	if err == nil {
		log.Debug("Hook finished", logfields.Duration(elapsed))
		return nil
	}
	if ctx.Err() != nil {
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryCanceled, "hook canceled").
			WithContext("hook", string(stage)).
			Build()
	}

	b := ferrors.WrapError(err, ferrors.CategoryHook, "hook failed").
		Fatal().
		WithContext("hook", string(stage)).
		WithContext("path", script)
	var ee *process.ExitError
	if stderrors.As(err, &ee) {
		b = b.WithContext("exit_code", ee.ExitCode).WithContext("stderr", ee.Stderr)
	}
	return b.Build()
}
