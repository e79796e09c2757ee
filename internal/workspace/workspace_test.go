package workspace

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

func TestManager_EphemeralMode(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewManager(tempBase, "0123456789abcdef")

	wsPath := mgr.Path()
	require.True(t, strings.HasPrefix(filepath.Base(wsPath), "rommer-"), wsPath)
	require.True(t, strings.HasSuffix(wsPath, "-01234567"), wsPath)
	require.NoDirExists(t, wsPath, "path is known before Create")

	require.NoError(t, mgr.Create())
	require.DirExists(t, wsPath)

	tree, err := mgr.CreateSubdir(TreeDir)
	require.NoError(t, err)
	require.Equal(t, mgr.Sub(TreeDir), tree)

	require.NoError(t, mgr.Cleanup())
	require.NoDirExists(t, wsPath)
	require.NoError(t, mgr.Cleanup(), "second cleanup is a no-op")
}

func TestManager_EphemeralCollisionFails(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewManager(tempBase, "samerun")
	require.NoError(t, os.MkdirAll(mgr.Path(), 0o750))

	err := mgr.Create()
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryExtraction, ce.Category())
}

func TestManager_ExplicitDirMustBeEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")

	// Absent: created.
	mgr := NewExplicitManager(dir)
	require.NoError(t, mgr.Create())
	require.DirExists(t, dir)

	// Present and empty: accepted.
	require.NoError(t, NewExplicitManager(dir).Create())

	// Non-empty: refused, contents untouched.
	marker := filepath.Join(dir, "previous-run.txt")
	require.NoError(t, os.WriteFile(marker, []byte("keep me"), 0o600))
	err := NewExplicitManager(dir).Create()
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryExtraction, ce.Category())
	require.FileExists(t, marker)
}

func TestManager_ExplicitPathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	require.Error(t, NewExplicitManager(file).Create())
}

func TestManager_CleanupBeforeCreateIsNoop(t *testing.T) {
	mgr := NewManager(t.TempDir(), "x")
	require.NoError(t, mgr.Cleanup())
	_, err := mgr.CreateSubdir("rom")
	require.Error(t, err)
}

func TestManager_CleanupFailureIsWarning(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil)).With(slog.String("run_id", "r1"))
	mgr := NewManager(t.TempDir(), "r1",
		WithLogger(logger),
		WithRemover(func(string) error { return errors.New("device busy") }),
	)
	require.NoError(t, mgr.Create())
	require.Contains(t, logs.String(), "Created workspace")
	require.Contains(t, logs.String(), "run_id=r1")

	err := mgr.Cleanup()
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryCleanup))
	require.True(t, ferrors.HasSeverity(err, ferrors.SeverityWarning))
	require.True(t, mgr.Created(), "failed cleanup leaves the workspace marked as present")
	require.DirExists(t, mgr.Path())
}
