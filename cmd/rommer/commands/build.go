package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/rommer/internal/config"
	"git.home.luguber.info/inful/rommer/internal/logfields"
	"git.home.luguber.info/inful/rommer/internal/metrics"
	"git.home.luguber.info/inful/rommer/internal/pipeline"
)

// BuildFlags are shared by build and watch.
type BuildFlags struct {
	Config           string   `short:"c" help:"Configuration file path" default:"ROMMER.yaml" type:"path"`
	Romzip           string   `short:"r" name:"romzip" help:"Use a local ROM archive instead of downloading"`
	NoCleanup        bool     `short:"n" help:"Keep the working directory after a successful build"`
	SkipSigning      bool     `short:"s" help:"Do not sign the output archive"`
	DryRun           bool     `short:"d" help:"Log every action without touching the network or the filesystem"`
	CleanupOnFailure bool     `name:"cleanup-on-failure" help:"Remove the working directory when the build fails"`
	DryRunHooks      bool     `name:"dry-run-hooks" help:"Execute hook scripts during a dry run"`
	Tags             []string `help:"Only apply patches tagged with one of these values" sep:","`
	MetricsFile      string   `name:"metrics-file" help:"Write Prometheus metrics to this file after the build" type:"path"`
}

func (f *BuildFlags) runOptions() config.RunOptions {
	return config.RunOptions{
		RomArchive:       f.Romzip,
		NoCleanup:        f.NoCleanup,
		CleanupOnFailure: f.CleanupOnFailure,
		SkipSigning:      f.SkipSigning,
		DryRun:           f.DryRun,
		DryRunHooks:      f.DryRunHooks,
		Tags:             f.Tags,
	}
}

// BuildCmd implements the default 'build' command.
type BuildCmd struct {
	BuildFlags `embed:""`
}

func (b *BuildCmd) Run(g *Global) error {
	_, err := RunBuild(g.Context(), &b.BuildFlags, g.Logger, os.Stdout)
	return err
}

// RunBuild loads the configuration and runs one pipeline.
func RunBuild(ctx context.Context, flags *BuildFlags, logger *slog.Logger, out io.Writer) (*pipeline.Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Friendly progress lines go to stdout; structured logs go to stderr.
	_, _ = fmt.Fprintln(out, "Starting ROMMER build")

	cfg, err := config.Load(flags.Config, flags.runOptions())
	if err != nil {
		_, _ = fmt.Fprintln(out, "Build failed")
		return nil, err
	}
	_, _ = fmt.Fprintf(out, "Building %s\n", cfg.Summary())
	if cfg.DryRun {
		_, _ = fmt.Fprintln(out, "Dry run: nothing will be downloaded or written")
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithObserver(progressObserver{out: out}),
	}
	var rec *metrics.PrometheusRecorder
	if flags.MetricsFile != "" && !cfg.DryRun {
		rec = metrics.NewPrometheusRecorder(prom.NewRegistry())
		opts = append(opts, pipeline.WithRecorder(rec))
	}

	res, runErr := pipeline.New(cfg, opts...).Run(ctx)

	if rec != nil {
		if err := rec.WriteTextfile(flags.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics file", logfields.Path(flags.MetricsFile), logfields.Error(err))
		}
	}
	if runErr != nil {
		if res != nil && res.Report.Workspace != "" && res.Report.FailedStage != "" {
			if _, statErr := os.Stat(res.Report.Workspace); statErr == nil {
				_, _ = fmt.Fprintf(out, "Working directory kept at %s\n", res.Report.Workspace)
			}
		}
		_, _ = fmt.Fprintln(out, "Build failed")
		return res, runErr
	}

	if cfg.DryRun {
		_, _ = fmt.Fprintf(out, "Dry run complete; output would be %s\n", res.OutputPath)
	} else {
		_, _ = fmt.Fprintf(out, "ROM ready: %s\n", res.OutputPath)
	}
	if len(res.Report.Warnings) > 0 {
		_, _ = fmt.Fprintf(out, "Completed with %d warning(s)\n", len(res.Report.Warnings))
	}
	return res, nil
}

// progressObserver prints one line per finished stage.
type progressObserver struct{ out io.Writer }

func (p progressObserver) OnStageStart(pipeline.StageName) {}

func (p progressObserver) OnStageComplete(stage pipeline.StageName, d time.Duration, result pipeline.StageResult) {
	if result == pipeline.StageResultSkipped {
		_, _ = fmt.Fprintf(p.out, "  %-8s skipped\n", stage)
		return
	}
	_, _ = fmt.Fprintf(p.out, "  %-8s %s (%s)\n", stage, result, d.Round(time.Millisecond))
}

func (p progressObserver) OnBuildComplete(r *pipeline.Report) {
	_, _ = fmt.Fprintf(p.out, "Finished in %s (%s)\n", r.Duration().Round(time.Millisecond), r.Outcome)
}

// localPatchDirs returns the configured patch entries that are local directories.
func localPatchDirs(cfg *config.BuildConfig) []string {
	var dirs []string
	for _, p := range cfg.Patches {
		if filepath.IsAbs(p) {
			dirs = append(dirs, p)
		}
	}
	return dirs
}
