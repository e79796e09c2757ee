package patch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/logfields"
)

// UnitReport summarizes what applying one unit did (or would do).
type UnitReport struct {
	Name         string
	DeletedDirs  int
	DeletedFiles int
	Copied       int
	Missing      int // deletion targets that did not exist
	Duration     time.Duration
}

// Engine applies units to a tree.
type Engine struct {
	DryRun bool
	Logger *slog.Logger
	// OnUnit, when set, receives a report after each unit.
	OnUnit func(UnitReport)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Apply applies units onto root in order. The first failure aborts; earlier
// mutations stay in place.
func (e *Engine) Apply(ctx context.Context, root string, units []*Unit) error {
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryCanceled, "patching canceled").Build()
		}
		e.logger().Info("Applying patch", slog.Int("index", i+1), slog.Int("total", len(units)), logfields.Patch(u.Name()), logfields.DryRun(e.DryRun))
		rep, err := e.applyUnit(root, u)
		if err != nil {
			return err
		}
		e.logger().Info("Patch applied", logfields.Patch(u.Name()),
			slog.Int("deleted_dirs", rep.DeletedDirs), slog.Int("deleted_files", rep.DeletedFiles),
			slog.Int("copied", rep.Copied), logfields.Duration(rep.Duration))
		if e.OnUnit != nil {
			e.OnUnit(rep)
		}
	}
	return nil
}

func (e *Engine) applyUnit(root string, u *Unit) (UnitReport, error) {
	start := time.Now()
	rep := UnitReport{Name: u.Name()}
	log := e.logger().With(logfields.Patch(u.Name()))

	// A dry run normally never extracts the ROM, so every entry is reported
	// as a planned deletion when the tree is absent.
	planOnly := false
	if e.DryRun {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			planOnly = true
		}
	}

	for _, entry := range u.DeleteDirs {
		target, err := resolveTarget(root, entry)
		if err != nil {
			return rep, patchError(err, "invalid directory deletion entry", u, entry)
		}
		if planOnly {
			log.Info("Would delete directory", logfields.Path(entry))
			rep.DeletedDirs++
			continue
		}
		info, err := os.Lstat(target)
		if os.IsNotExist(err) {
			rep.Missing++
			log.Debug("Directory to delete not present", logfields.Path(entry))
			continue
		}
		if err != nil {
			return rep, patchError(err, "failed to inspect deletion target", u, entry)
		}
		if !info.IsDir() {
			log.Debug("Directory deletion target is not a directory, skipped", logfields.Path(entry))
			continue
		}
		if e.DryRun {
			log.Info("Would delete directory", logfields.Path(entry))
		} else if err := os.RemoveAll(target); err != nil {
			return rep, patchError(err, "failed to delete directory", u, entry)
		}
		rep.DeletedDirs++
	}

	for _, entry := range u.DeleteFiles {
		target, err := resolveTarget(root, entry)
		if err != nil {
			return rep, patchError(err, "invalid file deletion entry", u, entry)
		}
		if planOnly {
			log.Info("Would delete file", logfields.Path(entry))
			rep.DeletedFiles++
			continue
		}
		info, err := os.Lstat(target)
		if os.IsNotExist(err) {
			rep.Missing++
			log.Debug("File to delete not present", logfields.Path(entry))
			continue
		}
		if err != nil {
			return rep, patchError(err, "failed to inspect deletion target", u, entry)
		}
		if info.IsDir() {
			log.Debug("File deletion target is a directory, skipped", logfields.Path(entry))
			continue
		}
		if e.DryRun {
			log.Info("Would delete file", logfields.Path(entry))
		} else if err := os.Remove(target); err != nil {
			return rep, patchError(err, "failed to delete file", u, entry)
		}
		rep.DeletedFiles++
	}

	for _, dir := range u.Dirs {
		target, err := resolveTarget(root, dir)
		if err != nil {
			return rep, patchError(err, "invalid overlay directory", u, dir)
		}
		if e.DryRun {
			continue
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return rep, patchError(err, "failed to create directory", u, dir)
		}
	}

	for _, file := range u.Files {
		target, err := resolveTarget(root, file)
		if err != nil {
			return rep, patchError(err, "invalid overlay file", u, file)
		}
		src := filepath.Join(u.Path, filepath.FromSlash(file))
		if e.DryRun {
			log.Info("Would copy file", logfields.Path(file))
			rep.Copied++
			continue
		}
		if err := copyFile(src, target); err != nil {
			return rep, patchError(err, "failed to copy file", u, file)
		}
		rep.Copied++
	}

	rep.Duration = time.Since(start)
	return rep, nil
}

// copyFile copies src over dst, preserving the source permission bits.
// An existing regular file at dst is replaced; a directory is an error.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- file inside a configured patch directory
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	if existing, err := os.Lstat(dst); err == nil {
		if existing.IsDir() {
			return fmt.Errorf("cannot overwrite directory %s with a file", dst)
		}
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	perm := info.Mode().Perm() | 0o200
	// #nosec G304 -- dst is validated to stay under the ROM root
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm()|fs.FileMode(0o200))
}

func patchError(err error, msg string, u *Unit, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryPatch, msg).
		WithContext("patch", u.Name()).
		WithContext("path", path).
		Build()
}
