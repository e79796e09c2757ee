package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecRunner_Success(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	r := &ExecRunner{Stdout: &out}

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello"}})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "hello\n", out.String())
}

func TestExecRunner_NonZeroExitCapturesStderr(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo broken keystore >&2; exit 3"}})
	require.Error(t, err)
	var ee *ExitError
	require.True(t, stderrors.As(err, &ee))
	require.Equal(t, 3, ee.ExitCode)
	require.Equal(t, "broken keystore", ee.Stderr)
	require.Equal(t, 3, res.ExitCode)
}

func TestExecRunner_EnvAndDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	r := &ExecRunner{}

	_, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", `printf "%s" "$ROMMER_STAGE" > marker`},
		Dir:  dir,
		Env:  []string{"ROMMER_STAGE=pre-run"},
	})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "marker"))
	require.NoError(t, err)
	require.Equal(t, "pre-run", string(data))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := &ExecRunner{}
	_, err := r.Run(context.Background(), Command{Name: "rommer-definitely-not-installed"})
	require.Error(t, err)
	var ee *ExitError
	require.False(t, stderrors.As(err, &ee))
}

func TestExecRunner_Canceled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&ExecRunner{}).Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFakeRunner_RecordsCalls(t *testing.T) {
	f := &FakeRunner{Handler: func(cmd Command) (Result, error) {
		if cmd.Name == "fail" {
			return Result{ExitCode: 1}, &ExitError{Command: cmd.String(), ExitCode: 1}
		}
		return Result{}, nil
	}}
	_, err := f.Run(context.Background(), Command{Name: "ok", Args: []string{"a"}})
	require.NoError(t, err)
	_, err = f.Run(context.Background(), Command{Name: "fail"})
	require.Error(t, err)
	require.Len(t, f.Calls(), 2)
	require.Equal(t, "ok a", f.Calls()[0].String())
}

func TestTailWriter_KeepsOnlyRecentOutput(t *testing.T) {
	var w tailWriter
	chunk := bytes.Repeat([]byte("x"), 1000)
	for range 100 {
		n, err := w.Write(chunk)
		require.NoError(t, err)
		require.Equal(t, len(chunk), n)
	}
	_, err := w.Write([]byte("final line\n"))
	require.NoError(t, err)

	require.LessOrEqual(t, cap(w.buf), 4*maxStderr)
	out := w.String()
	require.True(t, strings.HasPrefix(out, "..."), out[:10])
	require.True(t, strings.HasSuffix(out, "final line"))
	require.LessOrEqual(t, len(out), maxStderr+3)
}

func TestTailWriter_LargeSingleWrite(t *testing.T) {
	var w tailWriter
	_, err := w.Write(append(bytes.Repeat([]byte("y"), 10*maxStderr), []byte("end")...))
	require.NoError(t, err)
	require.LessOrEqual(t, len(w.buf), maxStderr)
	require.True(t, strings.HasSuffix(w.String(), "end"))
}

func TestTailWriter_ShortOutputUntouched(t *testing.T) {
	var w tailWriter
	_, _ = w.Write([]byte("  keystore not found \n"))
	require.Equal(t, "keystore not found", w.String())
}
