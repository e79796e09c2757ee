package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/logfields"
)

// Subdirectories created inside a workspace.
const (
	TreeDir    = "rom"
	PatchesDir = "patches"
)

// Manager owns the working directory of one run.
type Manager struct {
	path     string
	explicit bool
	created  bool
	logger   *slog.Logger
	remove   func(string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRemover replaces os.RemoveAll in Cleanup.
func WithRemover(fn func(string) error) Option {
	return func(m *Manager) {
		if fn != nil {
			m.remove = fn
		}
	}
}

func newManager(path string, explicit bool, opts []Option) *Manager {
	m := &Manager{path: path, explicit: explicit, logger: slog.Default(), remove: os.RemoveAll}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManager returns a manager for an ephemeral directory under baseDir
// (os.TempDir when empty), named after the current time and runID.
func NewManager(baseDir, runID string, opts ...Option) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	timestamp := time.Now().Format("20060102-150405")
	if len(runID) > 8 {
		runID = runID[:8]
	}
	name := "rommer-" + timestamp
	if runID != "" {
		name += "-" + runID
	}
	return newManager(filepath.Join(baseDir, name), false, opts)
}

// NewExplicitManager returns a manager for a user-chosen directory. The
// directory must be absent or empty when Create is called.
func NewExplicitManager(dir string, opts ...Option) *Manager {
	return newManager(dir, true, opts)
}

// Create makes the workspace directory.
func (m *Manager) Create() error {
	if m.explicit {
		if err := ensureEmpty(m.path); err != nil {
			return err
		}
		if err := os.MkdirAll(m.path, 0o750); err != nil {
			return setupError(err, "failed to create working directory", m.path)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
			return setupError(err, "failed to create workspace parent directory", filepath.Dir(m.path))
		}
		// Mkdir, not MkdirAll: an existing directory means a name collision.
		if err := os.Mkdir(m.path, 0o750); err != nil {
			return setupError(err, "failed to create workspace directory", m.path)
		}
	}
	m.created = true
	m.logger.Info("Created workspace", logfields.Path(m.path))
	return nil
}

// Path returns the workspace directory. It is known before Create so dry
// runs can report it.
func (m *Manager) Path() string { return m.path }

// Sub returns the path of a named subdirectory without creating it.
func (m *Manager) Sub(name string) string { return filepath.Join(m.path, name) }

// Created reports whether Create succeeded.
func (m *Manager) Created() bool { return m.created }

// CreateSubdir creates a subdirectory within the workspace.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if !m.created {
		return "", fmt.Errorf("workspace not created")
	}
	subdir := filepath.Join(m.path, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", setupError(err, "failed to create subdirectory", subdir)
	}
	return subdir, nil
}

// Cleanup removes the workspace directory. Failures are reported as
// warning-level Cleanup errors.
func (m *Manager) Cleanup() error {
	if !m.created {
		return nil
	}
	if err := m.remove(m.path); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryCleanup, "failed to remove workspace").
			Warning().
			WithContext("path", m.path).
			Build()
	}
	m.logger.Info("Cleaned up workspace", logfields.Path(m.path))
	m.created = false
	return nil
}

func ensureEmpty(dir string) error {
	f, err := os.Open(dir) // #nosec G304 -- configured working directory
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return setupError(err, "failed to inspect working directory", dir)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return setupError(err, "failed to inspect working directory", dir)
	}
	if !info.IsDir() {
		return ferrors.ExtractionError("working directory path is not a directory").
			WithContext("path", dir).
			Build()
	}
	if _, err := f.Readdirnames(1); err != io.EOF {
		if err != nil {
			return setupError(err, "failed to inspect working directory", dir)
		}
		return ferrors.ExtractionError("working directory is not empty; refusing to reuse it").
			UserAction().
			WithContext("path", dir).
			Build()
	}
	return nil
}

func setupError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryExtraction, msg).WithContext("path", path).Build()
}
