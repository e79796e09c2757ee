package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

// Extract unpacks every entry of archivePath under root, preserving relative
// paths and permission bits. Entries that would land outside root are
// rejected. It returns the number of entries written.
func Extract(ctx context.Context, codec Codec, archivePath, root string) (int, error) {
	r, err := codec.Open(archivePath)
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryExtraction, "failed to open archive").
			WithContext("path", archivePath).
			Build()
	}
	defer func() { _ = r.Close() }()

	if err := os.MkdirAll(root, 0o750); err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryExtraction, "failed to create working directory").
			WithContext("path", root).
			Build()
	}

	count := 0
	for _, e := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return count, ferrors.WrapError(err, ferrors.CategoryCanceled, "extraction canceled").Build()
		}
		target, err := entryTarget(root, e.Name)
		if err != nil {
			return count, ferrors.WrapError(err, ferrors.CategoryExtraction, "unsafe archive entry").
				WithContext("entry", e.Name).
				Build()
		}
		if err := extractEntry(r, e, target); err != nil {
			return count, ferrors.WrapError(err, ferrors.CategoryExtraction, "failed to extract entry").
				WithContext("entry", e.Name).
				WithContext("path", target).
				Build()
		}
		count++
	}
	return count, nil
}

// entryTarget maps an archive entry name to a path under root.
func entryTarget(root, name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("entry %q escapes the extraction root", name)
	}
	return filepath.Join(root, rel), nil
}

func extractEntry(r Reader, e Entry, target string) error {
	if e.IsDir {
		if err := os.MkdirAll(target, dirPerm(e.Mode)); err != nil {
			return err
		}
		return os.Chmod(target, dirPerm(e.Mode))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	src, err := r.Open(e.Name)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	// #nosec G304 -- target is validated to stay under the extraction root
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm(e.Mode))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Chmod(target, filePerm(e.Mode))
}

// Directories stay traversable and writable by the owner so patches can land in them.
func dirPerm(m fs.FileMode) fs.FileMode {
	p := m.Perm()
	if p == 0 {
		return 0o755
	}
	return p | 0o700
}

func filePerm(m fs.FileMode) fs.FileMode {
	p := m.Perm()
	if p == 0 {
		return 0o644
	}
	return p | 0o600
}
