// Package testutil holds fixtures shared by package tests: ROM archives built
// on the fly and fluent assertions over extracted trees.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rommer/internal/archive"
)

// ZipFile is one entry of a fixture archive. A Name ending in "/" is a directory.
type ZipFile struct {
	Name string
	Mode fs.FileMode
	Body string
}

// WriteZip writes files to a new archive at path and returns path.
func WriteZip(t testing.TB, path string, files ...ZipFile) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w := archive.ZipCodec{}.NewWriter(f)
	for _, file := range files {
		mode := file.Mode
		if strings.HasSuffix(file.Name, "/") {
			if mode == 0 {
				mode = 0o755
			}
			require.NoError(t, w.WriteDir(file.Name, mode))
			continue
		}
		if mode == 0 {
			mode = 0o644
		}
		require.NoError(t, w.WriteFile(file.Name, mode, strings.NewReader(file.Body)))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

// ZipNames lists the entry names of the archive at path.
func ZipNames(t testing.TB, path string) map[string]bool {
	t.Helper()
	entries, err := archive.List(archive.ZipCodec{}, path)
	require.NoError(t, err)
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Name] = true
	}
	return out
}

// TreeAssertions checks file system state below a root directory.
type TreeAssertions struct {
	t    testing.TB
	root string
}

// NewTreeAssertions returns assertions rooted at root.
func NewTreeAssertions(t testing.TB, root string) *TreeAssertions {
	return &TreeAssertions{t: t, root: root}
}

// FileExists asserts that rel is a regular file.
func (ta *TreeAssertions) FileExists(rel string) *TreeAssertions {
	ta.t.Helper()
	require.FileExists(ta.t, filepath.Join(ta.root, filepath.FromSlash(rel)))
	return ta
}

// NotExists asserts that nothing exists at rel.
func (ta *TreeAssertions) NotExists(rel string) *TreeAssertions {
	ta.t.Helper()
	_, err := os.Lstat(filepath.Join(ta.root, filepath.FromSlash(rel)))
	require.ErrorIs(ta.t, err, fs.ErrNotExist, rel)
	return ta
}

// FileContains asserts that rel exists and contains substr.
func (ta *TreeAssertions) FileContains(rel, substr string) *TreeAssertions {
	ta.t.Helper()
	data, err := os.ReadFile(filepath.Join(ta.root, filepath.FromSlash(rel)))
	require.NoError(ta.t, err)
	require.Contains(ta.t, string(data), substr, rel)
	return ta
}

// Entries returns the names directly below rel.
func (ta *TreeAssertions) Entries(rel string) []string {
	ta.t.Helper()
	entries, err := os.ReadDir(filepath.Join(ta.root, filepath.FromSlash(rel)))
	require.NoError(ta.t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
