package patch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/git"
	"git.home.luguber.info/inful/rommer/internal/logfields"
)

// Cloner fetches a git patch source into dest.
type Cloner interface {
	Clone(ctx context.Context, remote git.Remote, dest string) (string, error)
}

// Selector turns configured patch entries into the units to apply.
type Selector struct {
	// AndroidVersion is compared against requires_android; zero means unknown.
	AndroidVersion int
	// Tags, when non-empty, keeps only units whose patch.yaml has a matching tag.
	Tags []string
	// CloneDir receives git patch sources.
	CloneDir string
	Cloner   Cloner
	DryRun   bool
	Logger   *slog.Logger
}

func (s *Selector) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Select scans every entry in order and returns the units that pass the
// filters. Missing local directories are warned about and skipped. In dry-run
// git sources are not cloned and therefore not returned.
func (s *Selector) Select(ctx context.Context, entries []string) ([]*Unit, error) {
	log := s.logger()
	units := make([]*Unit, 0, len(entries))
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryCanceled, "patch selection canceled").Build()
		}

		dir := entry
		if git.IsRemote(entry) {
			cloned, skip, err := s.fetchRemote(ctx, i, entry)
			if err != nil {
				return nil, err
			}
			if skip {
				continue
			}
			dir = cloned
		} else if _, err := os.Stat(dir); os.IsNotExist(err) {
			log.Warn("Patch folder does not exist, skipping", logfields.Patch(entry))
			continue
		}

		u, err := LoadUnit(entry, dir)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryPatch, "failed to read patch unit").
				WithContext("patch", entry).
				Build()
		}

		if keep, reason := s.accept(u); !keep {
			log.Info("Skipping patch", logfields.Patch(u.Name()), slog.String("reason", reason))
			continue
		}
		units = append(units, u)
	}
	return units, nil
}

func (s *Selector) fetchRemote(ctx context.Context, index int, entry string) (string, bool, error) {
	remote, err := git.ParseRemote(entry)
	if err != nil {
		return "", false, ferrors.WrapError(err, ferrors.CategoryPatch, "invalid git patch source").
			WithContext("patch", entry).
			Build()
	}
	dest := filepath.Join(s.CloneDir, fmt.Sprintf("%02d-%s", index+1, remote.Name()))
	if s.DryRun {
		s.logger().Info("Would clone patch repository", logfields.Patch(entry), logfields.Path(dest), logfields.DryRun(true))
		return "", true, nil
	}
	if s.Cloner == nil || s.CloneDir == "" {
		return "", false, ferrors.InternalError("git patch sources need a clone directory").
			WithContext("patch", entry).
			Build()
	}
	if _, err := s.Cloner.Clone(ctx, remote, dest); err != nil {
		if ctx.Err() != nil {
			return "", false, ferrors.WrapError(err, ferrors.CategoryCanceled, "patch clone canceled").Build()
		}
		return "", false, ferrors.WrapError(err, ferrors.CategoryPatch, "failed to clone patch repository").
			WithContext("patch", entry).
			Build()
	}
	return dest, false, nil
}

// accept applies the tag filter and the Android version requirement.
func (s *Selector) accept(u *Unit) (bool, string) {
	if len(s.Tags) > 0 {
		if u.Metadata == nil {
			return false, "no patch.yaml, no tags"
		}
		if !u.Metadata.HasAnyTag(s.Tags) {
			return false, "tag mismatch"
		}
	}
	if u.Metadata == nil || u.Metadata.RequiresAndroid == "" {
		return true, ""
	}
	req, err := ParseRequirement(u.Metadata.RequiresAndroid)
	if err != nil {
		s.logger().Warn("Ignoring unparseable Android requirement", logfields.Patch(u.Name()), logfields.Error(err))
		return true, ""
	}
	if s.AndroidVersion == 0 {
		s.logger().Warn("Patch declares an Android requirement but android_version is not configured; applying anyway",
			logfields.Patch(u.Name()), slog.String("requires_android", req.String()))
		return true, ""
	}
	if !req.Satisfied(s.AndroidVersion) {
		return false, fmt.Sprintf("requires Android %s, current is %d", req, s.AndroidVersion)
	}
	return true, ""
}
