// Package source turns the configured ROM source into a local archive path:
// a named source or URL is downloaded with bounded retries, a local archive is
// used as-is, and either way the SHA-256 checksum gate is applied.
package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/rommer/internal/checksum"
	"git.home.luguber.info/inful/rommer/internal/config"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/logfields"
	"git.home.luguber.info/inful/rommer/internal/retry"
)

// AttemptFunc is notified after every download attempt.
type AttemptFunc func(attempt int, err error)

// Resolver acquires the base ROM archive.
type Resolver struct {
	fetcher   Fetcher
	logger    *slog.Logger
	policy    *retry.Policy
	onAttempt AttemptFunc
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

// WithPolicy overrides the retry policy derived from the build configuration.
func WithPolicy(p retry.Policy) Option { return func(r *Resolver) { r.policy = &p } }

// WithAttemptObserver registers fn to be called after each download attempt.
func WithAttemptObserver(fn AttemptFunc) Option { return func(r *Resolver) { r.onAttempt = fn } }

// NewResolver returns a resolver downloading through f.
func NewResolver(f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: f, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveURL maps the source descriptor to a download URL. Named sources are
// matched case-insensitively; anything else is used verbatim.
func ResolveURL(cfg *config.BuildConfig) (string, error) {
	src := cfg.Source
	switch strings.ToLower(src.ROM) {
	case config.SourceLineageOS:
		if src.Version == "" || src.Timestamp == "" || src.Variant == "" {
			return "", ferrors.ConfigError("lineageos requires version, timestamp and variant").Build()
		}
		return fmt.Sprintf("https://mirrorbits.lineageos.org/full/%s/%s/lineage-%s-%s-%s-%s-signed.zip",
			cfg.Device, src.Timestamp, src.Version, src.Timestamp, src.Variant, cfg.Device), nil
	case config.SourcePixelExperience:
		return fmt.Sprintf("https://download.pixelexperience.org/builds/%s/%s", cfg.Device, src.Version), nil
	case config.SourceEvolutionX:
		return fmt.Sprintf("https://sourceforge.net/projects/evolution-x/files/%s/%s/download", cfg.Device, src.Version), nil
	default:
		return src.ROM, nil
	}
}

// DestinationPath is where a downloaded archive is cached:
// {download_dir}/{device}_{rom|custom}_{version}.zip.
func DestinationPath(cfg *config.BuildConfig) string {
	name := strings.ToLower(cfg.Source.ROM)
	if cfg.Source.IsURL() {
		name = "custom"
	}
	parts := []string{cfg.Device, name}
	if cfg.Source.Version != "" {
		parts = append(parts, cfg.Source.Version)
	}
	file := sanitizeFileName(strings.Join(parts, "_")) + ".zip"
	return filepath.Join(cfg.DownloadDir, file)
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
}

// Resolve returns the path of a verified local archive. In dry-run it touches
// neither the network nor the filesystem and returns the would-be path.
func (r *Resolver) Resolve(ctx context.Context, cfg *config.BuildConfig) (string, error) {
	if cfg.RomArchive != "" {
		return r.resolveLocal(cfg)
	}

	url, err := ResolveURL(cfg)
	if err != nil {
		return "", err
	}
	dest := DestinationPath(cfg)

	if cfg.DryRun {
		r.logger.Info("Would download ROM", logfields.URL(url), logfields.Path(dest), logfields.DryRun(true))
		return dest, nil
	}

	if reused, err := r.reuseCached(dest, cfg.ExpectedChecksum); err != nil {
		return "", err
	} else if reused {
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryDownload, "failed to create download directory").
			WithContext("path", filepath.Dir(dest)).
			Build()
	}

	policy := retry.FromConfig(cfg)
	if r.policy != nil {
		policy = *r.policy
	}

	r.logger.Info("Downloading ROM", logfields.URL(url), logfields.Path(dest), slog.Int("max_attempts", policy.MaxAttempts))
	start := time.Now()
	err = policy.Do(ctx, func(attempt int) error {
		err := r.downloadOnce(ctx, url, dest, cfg.ExpectedChecksum)
		if r.onAttempt != nil {
			r.onAttempt(attempt, err)
		}
		if err != nil {
			r.logger.Warn("Download attempt failed", logfields.Attempt(attempt), logfields.URL(url), logfields.Error(err))
		}
		return err
	}, func(attempt int, delay time.Duration, _ error) {
		r.logger.Info("Retrying download", logfields.Attempt(attempt+1), slog.Duration("delay", delay))
	})
	if err != nil {
		return "", classifyDownloadError(err, url, dest)
	}

	r.logger.Info("Download complete", logfields.Path(dest), logfields.Duration(time.Since(start)))
	return dest, nil
}

func (r *Resolver) resolveLocal(cfg *config.BuildConfig) (string, error) {
	path := cfg.RomArchive
	if cfg.DryRun {
		r.logger.Info("Would use local ROM archive", logfields.Path(path), logfields.DryRun(true))
		return path, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryDownload, "local ROM archive is not accessible").
			Fatal().
			WithContext("path", path).
			Build()
	}
	if info.IsDir() {
		return "", ferrors.DownloadError("local ROM archive is a directory").
			Fatal().
			WithContext("path", path).
			Build()
	}
	r.logger.Info("Using local ROM archive", logfields.Path(path))

	if cfg.ExpectedChecksum == "" {
		return path, nil
	}
	if _, err := checksum.Verify(path, cfg.ExpectedChecksum); err != nil {
		return "", classifyDownloadError(err, "", path)
	}
	r.logger.Info("Checksum verified", logfields.Path(path))
	return path, nil
}

// reuseCached reports whether an existing download at dest can be used.
// A file with a mismatching checksum is removed.
func (r *Resolver) reuseCached(dest, expected string) (bool, error) {
	info, err := os.Stat(dest)
	if err != nil || info.IsDir() {
		return false, nil
	}
	if expected == "" {
		r.logger.Info("Reusing previously downloaded ROM", logfields.Path(dest))
		return true, nil
	}
	sum, err := checksum.File(dest)
	if err == nil && checksum.Equal(sum, expected) {
		r.logger.Info("Reusing previously downloaded ROM (checksum verified)", logfields.Path(dest))
		return true, nil
	}
	r.logger.Warn("Cached ROM does not match expected checksum, downloading again", logfields.Path(dest))
	if err := os.Remove(dest); err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryDownload, "failed to remove stale download").
			WithContext("path", dest).
			Build()
	}
	return false, nil
}

// downloadOnce streams url into dest.part while hashing, then renames it into place.
func (r *Resolver) downloadOnce(ctx context.Context, url, dest, expected string) error {
	part := dest + ".part"
	f, err := os.Create(part) // #nosec G304 -- destination derived from configuration
	if err != nil {
		return retry.Permanent(fmt.Errorf("create %s: %w", part, err))
	}

	hw := checksum.NewWriter()
	_, fetchErr := r.fetcher.Fetch(ctx, url, io.MultiWriter(f, hw))
	closeErr := f.Close()
	if fetchErr == nil {
		fetchErr = closeErr
	}
	if fetchErr != nil {
		_ = os.Remove(part)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return retry.Permanent(ctxErr)
		}
		return fetchErr
	}

	actual := hw.Sum()
	if expected != "" && !checksum.Equal(expected, actual) {
		_ = os.Remove(part)
		return retry.Permanent(&checksum.MismatchError{Path: dest, Expected: expected, Actual: actual})
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return retry.Permanent(fmt.Errorf("rename %s: %w", part, err))
	}
	return nil
}

func classifyDownloadError(err error, url, path string) error {
	var mismatch *checksum.MismatchError
	if stderrors.As(err, &mismatch) {
		return ferrors.WrapError(err, ferrors.CategoryChecksum, "checksum mismatch").
			Fatal().
			WithContext("path", mismatch.Path).
			WithContext("expected", strings.ToLower(mismatch.Expected)).
			WithContext("actual", mismatch.Actual).
			Build()
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return ferrors.WrapError(err, ferrors.CategoryCanceled, "download canceled").Build()
	}
	b := ferrors.WrapError(err, ferrors.CategoryDownload, "download failed")
	var exhausted *retry.ExhaustedError
	if stderrors.As(err, &exhausted) {
		b = b.WithContext("attempts", exhausted.Attempts)
	}
	if url != "" {
		b = b.WithContext("url", url)
	}
	return b.WithContext("path", path).Build()
}
