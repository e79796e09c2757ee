package patch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reserved file names at the root of a patch unit. They are never copied.
const (
	DirDeletionManifest  = ".rommerdel"
	FileDeletionManifest = ".rommerfdel"
	MetadataFile         = "patch.yaml"
)

// ParseManifest reads newline-separated paths. Lines are trimmed; blank lines
// and lines starting with # are ignored.
func ParseManifest(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func readManifest(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- manifest inside a configured patch directory
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseManifest(f)
}

// resolveTarget maps a manifest or overlay path (relative to the ROM root)
// to an absolute path under root. A leading slash is treated as the ROM root;
// anything that climbs out of root is rejected.
func resolveTarget(root, entry string) (string, error) {
	rel := strings.Trim(filepath.ToSlash(entry), "/")
	rel = filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes the ROM root", entry)
	}
	return filepath.Join(root, rel), nil
}
