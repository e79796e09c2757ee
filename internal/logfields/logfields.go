package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyHook       = "hook"
	KeyDurationMS = "duration_ms"
	KeyDevice     = "device"
	KeyPatch      = "patch"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyAttempt    = "attempt"
	KeyMethod     = "method"
	KeyDryRun     = "dry_run"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr        { return slog.String(KeyStage, name) }
func Hook(name string) slog.Attr         { return slog.String(KeyHook, name) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Device(d string) slog.Attr          { return slog.String(KeyDevice, d) }
func Patch(p string) slog.Attr           { return slog.String(KeyPatch, p) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func Method(m string) slog.Attr          { return slog.String(KeyMethod, m) }
func DryRun(enabled bool) slog.Attr      { return slog.Bool(KeyDryRun, enabled) }
func Duration(d time.Duration) slog.Attr { return DurationMS(float64(d.Microseconds()) / 1000) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
