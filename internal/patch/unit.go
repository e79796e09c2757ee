package patch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Unit is one patch directory, scanned at apply time.
type Unit struct {
	// Source is the patch entry as configured (a path or git+ URL).
	Source string
	// Path is the local directory holding the unit.
	Path string
	// Dirs and Files are the overlay, relative to the ROM root, slash-separated, lexically ordered.
	Dirs  []string
	Files []string
	// DeleteDirs and DeleteFiles come from the deletion manifests.
	DeleteDirs  []string
	DeleteFiles []string
	Metadata    *Metadata
}

// Name is the metadata name when present, otherwise the configured source.
func (u *Unit) Name() string {
	if u.Metadata != nil && u.Metadata.Name != "" {
		return u.Metadata.Name
	}
	return u.Source
}

// LoadUnit scans dir into a Unit. Reserved files at the unit root and any
// .git directory are excluded from the overlay.
func LoadUnit(source, dir string) (*Unit, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("patch %s is not a directory", dir)
	}

	u := &Unit{Source: source, Path: dir}
	if u.DeleteDirs, err = readManifest(filepath.Join(dir, DirDeletionManifest)); err != nil {
		return nil, fmt.Errorf("read %s: %w", DirDeletionManifest, err)
	}
	if u.DeleteFiles, err = readManifest(filepath.Join(dir, FileDeletionManifest)); err != nil {
		return nil, fmt.Errorf("read %s: %w", FileDeletionManifest, err)
	}
	if u.Metadata, err = loadMetadata(filepath.Join(dir, MetadataFile)); err != nil {
		return nil, err
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			if name == ".git" {
				return filepath.SkipDir
			}
			u.Dirs = append(u.Dirs, name)
			return nil
		}
		if isReserved(name) {
			return nil
		}
		u.Files = append(u.Files, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan patch %s: %w", dir, err)
	}
	return u, nil
}

func isReserved(rel string) bool {
	switch rel {
	case DirDeletionManifest, FileDeletionManifest, MetadataFile:
		return true
	default:
		return false
	}
}
