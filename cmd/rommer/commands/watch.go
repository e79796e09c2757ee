package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/rommer/internal/config"
	"git.home.luguber.info/inful/rommer/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	BuildFlags `embed:""`
	Debounce   time.Duration `help:"Quiet period before a rebuild starts" default:"2s"`
}

func (w *WatchCmd) Run(g *Global) error {
	return RunWatch(g.Context(), &w.BuildFlags, w.Debounce, g.Logger, os.Stdout)
}

// RunWatch builds once and rebuilds on every change until ctx is canceled.
// A configuration that does not load is reported and watching continues.
func RunWatch(ctx context.Context, flags *BuildFlags, debounce time.Duration, logger *slog.Logger, out io.Writer) error {
	if logger == nil {
		logger = slog.Default()
	}
	var trees []string
	if cfg, err := config.Load(flags.Config, flags.runOptions()); err == nil {
		trees = localPatchDirs(cfg)
	}

	w, err := watch.New(flags.Config, trees, debounce, logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx, func(ctx context.Context) error {
		res, err := RunBuild(ctx, flags, logger, out)
		if res == nil {
			return err
		}
		// The patch list may have changed with the configuration.
		if cfg, loadErr := config.Load(flags.Config, flags.runOptions()); loadErr == nil {
			for _, dir := range localPatchDirs(cfg) {
				if addErr := w.AddTree(dir); addErr != nil {
					logger.Warn("Failed to watch patch directory", slog.String("dir", dir), slog.Any("error", addErr))
				}
			}
		}
		return err
	})
}
