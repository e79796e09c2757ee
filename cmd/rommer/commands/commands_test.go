package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/testutil"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func initProject(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "myrom")
	var out bytes.Buffer
	require.NoError(t, RunInit(dir, false, &out))
	require.Contains(t, out.String(), "Project initialized")
	return dir
}

func baseROM(t *testing.T, dir string) string {
	t.Helper()
	return testutil.WriteZip(t, filepath.Join(dir, "base.zip"),
		testutil.ZipFile{Name: "system/app/ExampleBloatwareApp/app.apk", Body: "apk"},
		testutil.ZipFile{Name: "system/build.prop", Body: "ro.build=1\n"},
	)
}

func TestRunInit_RefusesOverwrite(t *testing.T) {
	dir := initProject(t)
	var out bytes.Buffer
	err := RunInit(dir, false, &out)
	require.Error(t, err)
	require.Equal(t, ferrors.ExitConfig, ferrors.NewCLIErrorAdapter(false, quiet()).ExitCodeFor(err))
	require.NoError(t, RunInit(dir, true, &out))
}

func TestRunBuild_DryRunOnScaffold(t *testing.T) {
	dir := initProject(t)
	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	var out bytes.Buffer
	flags := &BuildFlags{Config: filepath.Join(dir, "ROMMER.yaml"), DryRun: true, MetricsFile: filepath.Join(dir, "metrics.prom")}
	res, err := RunBuild(context.Background(), flags, quiet(), &out)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "custom-rom.zip"), res.OutputPath)
	require.Contains(t, out.String(), "Dry run complete")

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	require.NoFileExists(t, flags.MetricsFile)
}

func TestRunBuild_LocalArchive(t *testing.T) {
	dir := initProject(t)
	flags := &BuildFlags{
		Config:      filepath.Join(dir, "ROMMER.yaml"),
		Romzip:      baseROM(t, t.TempDir()),
		MetricsFile: filepath.Join(dir, "metrics.prom"),
	}

	var out bytes.Buffer
	res, err := RunBuild(context.Background(), flags, quiet(), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "ROM ready: "+res.OutputPath)
	require.Contains(t, out.String(), "patch")

	names := testutil.ZipNames(t, res.OutputPath)
	require.True(t, names["system/etc/example_custom_file.txt"])
	require.True(t, names["META-INF/CERT.RSA"])
	require.False(t, names["system/app/ExampleBloatwareApp/app.apk"])

	metrics, err := os.ReadFile(flags.MetricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), `rommer_build_outcomes_total{outcome="success"} 1`)
}

func TestRunBuild_MissingConfig(t *testing.T) {
	var out bytes.Buffer
	_, err := RunBuild(context.Background(), &BuildFlags{Config: filepath.Join(t.TempDir(), "ROMMER.yaml")}, quiet(), &out)
	require.Error(t, err)
	require.Equal(t, ferrors.ExitConfig, ferrors.NewCLIErrorAdapter(false, quiet()).ExitCodeFor(err))
	require.Contains(t, out.String(), "Build failed")
}

func TestParseLogLevel(t *testing.T) {
	t.Setenv("ROMMER_LOG_LEVEL", "warn")
	require.Equal(t, slog.LevelWarn, parseLogLevel(false))
	require.Equal(t, slog.LevelDebug, parseLogLevel(true))
	t.Setenv("ROMMER_LOG_LEVEL", "")
	require.Equal(t, slog.LevelInfo, parseLogLevel(false))
}
