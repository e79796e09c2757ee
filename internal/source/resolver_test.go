package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rommer/internal/config"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/retry"
)

var romBody = []byte("PK\x03\x04 pretend this is a ROM")

func digest(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fastPolicy(attempts int) retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, attempts)
}

func urlConfig(t *testing.T, url string) *config.BuildConfig {
	t.Helper()
	return &config.BuildConfig{
		Device:      "cheeseburger",
		Source:      config.SourceDescriptor{ROM: url, Version: "1.0"},
		MaxRetries:  3,
		DownloadDir: t.TempDir(),
	}
}

func requireCategory(t *testing.T, err error, cat ferrors.ErrorCategory) *ferrors.ClassifiedError {
	t.Helper()
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok, "expected classified error, got %T: %v", err, err)
	require.Equal(t, cat, ce.Category())
	return ce
}

func TestResolveURL_NamedSources(t *testing.T) {
	cfg := &config.BuildConfig{Device: "cheeseburger", Source: config.SourceDescriptor{
		ROM: "LineageOS", Version: "22.1", Timestamp: "20250614", Variant: "nightly",
	}}
	u, err := ResolveURL(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://mirrorbits.lineageos.org/full/cheeseburger/20250614/lineage-22.1-20250614-nightly-cheeseburger-signed.zip", u)

	cfg.Source = config.SourceDescriptor{ROM: "pixelexperience", Version: "15"}
	u, err = ResolveURL(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://download.pixelexperience.org/builds/cheeseburger/15", u)

	cfg.Source = config.SourceDescriptor{ROM: "evolutionx", Version: "10.0"}
	u, err = ResolveURL(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://sourceforge.net/projects/evolution-x/files/cheeseburger/10.0/download", u)

	cfg.Source = config.SourceDescriptor{ROM: "https://mirror.example/rom.zip"}
	u, err = ResolveURL(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://mirror.example/rom.zip", u)

	cfg.Source = config.SourceDescriptor{ROM: "lineageos", Version: "22.1"}
	_, err = ResolveURL(cfg)
	requireCategory(t, err, ferrors.CategoryConfig)
}

func TestDestinationPath(t *testing.T) {
	cfg := &config.BuildConfig{Device: "cheeseburger", DownloadDir: "/dl", Source: config.SourceDescriptor{ROM: "LineageOS", Version: "22.1"}}
	require.Equal(t, filepath.Join("/dl", "cheeseburger_lineageos_22.1.zip"), DestinationPath(cfg))

	cfg.Source = config.SourceDescriptor{ROM: "https://x/y.zip", Version: "1"}
	require.Equal(t, filepath.Join("/dl", "cheeseburger_custom_1.zip"), DestinationPath(cfg))
}

func TestResolve_DownloadsAndVerifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(romBody)
	}))
	defer srv.Close()

	cfg := urlConfig(t, srv.URL+"/rom.zip")
	cfg.ExpectedChecksum = digest(romBody)

	r := NewResolver(NewHTTPFetcher(), WithLogger(quietLogger()), WithPolicy(fastPolicy(3)))
	path, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, DestinationPath(cfg), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, romBody, data)
	require.NoFileExists(t, path+".part")
}

func TestResolve_RetryExhaustionMakesExactlyMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := urlConfig(t, srv.URL+"/rom.zip")
	cfg.MaxRetries = 2

	var observed []int
	r := NewResolver(NewHTTPFetcher(),
		WithLogger(quietLogger()),
		WithPolicy(fastPolicy(cfg.MaxRetries)),
		WithAttemptObserver(func(attempt int, err error) {
			require.Error(t, err)
			observed = append(observed, attempt)
		}),
	)
	_, err := r.Resolve(context.Background(), cfg)

	ce := requireCategory(t, err, ferrors.CategoryDownload)
	attempts, ok := ce.Context().Get("attempts")
	require.True(t, ok)
	require.Equal(t, 2, attempts)
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, []int{1, 2}, observed)

	var status *StatusError
	require.True(t, errors.As(err, &status))
	require.Equal(t, http.StatusServiceUnavailable, status.StatusCode)
	require.NoFileExists(t, DestinationPath(cfg))
}

func TestResolve_RecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(romBody)
	}))
	defer srv.Close()

	cfg := urlConfig(t, srv.URL)
	r := NewResolver(NewHTTPFetcher(), WithLogger(quietLogger()), WithPolicy(fastPolicy(3)))
	_, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestResolve_ChecksumSingleBitFlipIsNotRetried(t *testing.T) {
	flipped := append([]byte(nil), romBody...)
	flipped[len(flipped)-1] ^= 0x01

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(flipped)
	}))
	defer srv.Close()

	cfg := urlConfig(t, srv.URL)
	cfg.ExpectedChecksum = digest(romBody)

	r := NewResolver(NewHTTPFetcher(), WithLogger(quietLogger()), WithPolicy(fastPolicy(3)))
	_, err := r.Resolve(context.Background(), cfg)

	ce := requireCategory(t, err, ferrors.CategoryChecksum)
	actual, _ := ce.Context().GetString("actual")
	require.Equal(t, digest(flipped), actual)
	require.Equal(t, int32(1), hits.Load())
	require.NoFileExists(t, DestinationPath(cfg))
	require.NoFileExists(t, DestinationPath(cfg)+".part")
}

func TestResolve_ReusesCachedDownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(romBody)
	}))
	defer srv.Close()

	cfg := urlConfig(t, srv.URL)
	dest := DestinationPath(cfg)
	require.NoError(t, os.WriteFile(dest, romBody, 0o600))

	r := NewResolver(NewHTTPFetcher(), WithLogger(quietLogger()), WithPolicy(fastPolicy(3)))
	_, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, int32(0), hits.Load())

	// A stale cache with a configured checksum is replaced.
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o600))
	cfg.ExpectedChecksum = digest(romBody)
	_, err = r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, romBody, data)
}

func TestResolve_LocalArchive(t *testing.T) {
	local := filepath.Join(t.TempDir(), "base.zip")
	require.NoError(t, os.WriteFile(local, romBody, 0o600))

	cfg := urlConfig(t, "https://unused.invalid/rom.zip")
	cfg.RomArchive = local
	cfg.ExpectedChecksum = digest(romBody)

	r := NewResolver(failingFetcher{}, WithLogger(quietLogger()))
	path, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, local, path)

	cfg.ExpectedChecksum = digest([]byte("something else"))
	_, err = r.Resolve(context.Background(), cfg)
	requireCategory(t, err, ferrors.CategoryChecksum)

	cfg.RomArchive = filepath.Join(t.TempDir(), "missing.zip")
	_, err = r.Resolve(context.Background(), cfg)
	requireCategory(t, err, ferrors.CategoryDownload)
}

func TestResolve_DryRunHasNoSideEffects(t *testing.T) {
	cfg := urlConfig(t, "https://unused.invalid/rom.zip")
	cfg.DownloadDir = filepath.Join(t.TempDir(), "downloads")
	cfg.DryRun = true

	r := NewResolver(failingFetcher{}, WithLogger(quietLogger()))
	path, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, DestinationPath(cfg), path)
	require.NoDirExists(t, cfg.DownloadDir)
}

func TestResolve_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := urlConfig(t, "https://unused.invalid/rom.zip")
	r := NewResolver(failingFetcher{}, WithLogger(quietLogger()), WithPolicy(fastPolicy(3)))
	_, err := r.Resolve(ctx, cfg)
	requireCategory(t, err, ferrors.CategoryCanceled)
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string, io.Writer) (int64, error) {
	return 0, errors.New("network must not be used")
}
