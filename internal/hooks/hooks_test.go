package hooks

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rommer/internal/config"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/process"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func script(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "hook.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestRun_AbsentHookIsNoop(t *testing.T) {
	fake := &process.FakeRunner{}
	r := &Runner{Hooks: config.Hooks{}, Process: fake, Logger: quiet()}
	require.NoError(t, r.Run(context.Background(), config.HookPreRun, Env{}))
	require.Empty(t, fake.Calls())
	require.False(t, r.Has(config.HookPreRun))
}

func TestRun_ExecutesWithEnvironment(t *testing.T) {
	s := script(t, "exit 0\n")
	fake := &process.FakeRunner{}
	var observed []Stage
	r := &Runner{
		Hooks:   config.Hooks{config.HookPostUnzip: s},
		Process: fake,
		Dir:     "/project",
		Logger:  quiet(),
		OnRun:   func(stage Stage, success bool, _ time.Duration) { observed = append(observed, stage); require.True(t, success) },
	}
	require.NoError(t, r.Run(context.Background(), config.HookPostUnzip, Env{RunID: "abc", Device: "cheeseburger", WorkDir: "/tmp/w", Archive: "/dl/rom.zip"}))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "sh", calls[0].Name)
	require.Equal(t, []string{s}, calls[0].Args)
	require.Equal(t, "/project", calls[0].Dir)
	require.Contains(t, calls[0].Env, "ROMMER_STAGE=post-unzip")
	require.Contains(t, calls[0].Env, "ROMMER_WORKDIR=/tmp/w")
	require.Contains(t, calls[0].Env, "ROMMER_ARCHIVE=/dl/rom.zip")
	require.Contains(t, calls[0].Env, "ROMMER_DRY_RUN=false")
	require.Equal(t, []Stage{config.HookPostUnzip}, observed)
}

func TestRun_NonZeroExitIsHookError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	s := script(t, "echo nope >&2\nexit 4\n")
	r := &Runner{Hooks: config.Hooks{config.HookPreSign: s}, Process: &process.ExecRunner{}, Logger: quiet()}

	err := r.Run(context.Background(), config.HookPreSign, Env{})
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryHook, ce.Category())
	code, _ := ce.Context().Get("exit_code")
	require.Equal(t, 4, code)
	stderr, _ := ce.Context().GetString("stderr")
	require.Equal(t, "nope", stderr)
}

func TestRun_MissingScript(t *testing.T) {
	fake := &process.FakeRunner{}
	r := &Runner{Hooks: config.Hooks{config.HookPreRun: filepath.Join(t.TempDir(), "missing.sh")}, Process: fake, Logger: quiet()}
	err := r.Run(context.Background(), config.HookPreRun, Env{})
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryHook, ce.Category())
	require.Empty(t, fake.Calls())
}

func TestRun_DryRun(t *testing.T) {
	s := script(t, "exit 0\n")
	fake := &process.FakeRunner{}
	r := &Runner{Hooks: config.Hooks{config.HookPreRun: s}, Process: fake, DryRun: true, Logger: quiet()}
	require.NoError(t, r.Run(context.Background(), config.HookPreRun, Env{}))
	require.Empty(t, fake.Calls())

	r.ExecuteInDryRun = true
	require.NoError(t, r.Run(context.Background(), config.HookPreRun, Env{}))
	require.Len(t, fake.Calls(), 1)
	require.Contains(t, fake.Calls()[0].Env, "ROMMER_DRY_RUN=true")
}
