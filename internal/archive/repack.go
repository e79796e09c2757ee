package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

// Repack writes the tree under root to outputPath. Entries are emitted in
// lexical order with directory entries, relative slash paths, preserved
// permission bits and FixedModTime, so the same tree always yields the same
// bytes. The archive is written to a temporary file and renamed into place.
// It returns the entry names in the order written.
func Repack(ctx context.Context, codec Codec, root, outputPath string) ([]string, error) {
	absOut, _ := filepath.Abs(outputPath)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return nil, repackError(err, "failed to create output directory", filepath.Dir(outputPath))
	}
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".rommer-repack-*.tmp")
	if err != nil {
		return nil, repackError(err, "failed to create temporary archive", outputPath)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := codec.NewWriter(tmp)
	var names []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if path == root {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absOut || path == tmpPath {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := os.Stat(path) // follows symlinks
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if err := w.WriteDir(name, info.Mode()); err != nil {
				return err
			}
			names = append(names, name+"/")
		case info.Mode().IsRegular():
			if err := writeFileEntry(w, path, name, info.Mode()); err != nil {
				return err
			}
			names = append(names, name)
		}
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, ferrors.WrapError(walkErr, ferrors.CategoryCanceled, "repack canceled").Build()
		}
		return nil, repackError(walkErr, "failed to write archive", root)
	}
	if err := w.Close(); err != nil {
		return nil, repackError(err, "failed to finalize archive", outputPath)
	}
	if err := tmp.Close(); err != nil {
		return nil, repackError(err, "failed to close archive", outputPath)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return nil, repackError(err, "failed to set archive permissions", outputPath)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, repackError(err, "failed to move archive into place", outputPath)
	}
	committed = true
	return names, nil
}

func writeFileEntry(w Writer, path, name string, mode fs.FileMode) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from walking the working tree
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := w.WriteFile(name, mode, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func repackError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryRepack, msg).WithContext("path", path).Build()
}
