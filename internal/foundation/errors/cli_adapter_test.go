package errors

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "validation error", err: ValidationError("bad flag").Build(), expected: ExitValidation},
		{name: "config error", err: ConfigError("missing device").Build(), expected: ExitConfig},
		{name: "download error", err: DownloadError("retries exhausted").Build(), expected: ExitDownload},
		{name: "checksum error", err: ChecksumError("mismatch").Build(), expected: ExitChecksum},
		{name: "patch error", err: PatchError("copy failed").Build(), expected: ExitBuild},
		{name: "signing error", err: SigningError("apksigner failed").Build(), expected: ExitSigning},
		{name: "hook error", err: HookError("pre-run failed").Build(), expected: ExitHook},
		{name: "canceled", err: CanceledError("interrupted").Build(), expected: ExitCanceled},
		{name: "wrapped classified", err: fmt.Errorf("stage: %w", RepackError("write").Build()), expected: ExitBuild},
		{name: "unclassified error", err: &customError{msg: "unknown error"}, expected: ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.ExitCodeFor(tt.err)
			if got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	err := WrapError(errors.New("exit status 1"), CategoryHook, "hook failed").
		WithContext("stage", "pre-zip").
		Build()
	got := adapter.FormatError(err)
	if !strings.Contains(got, "stage pre-zip") || !strings.Contains(got, "exit status 1") {
		t.Errorf("expected stage and cause in message, got %q", got)
	}

	if got := adapter.FormatError(&customError{msg: "boom"}); got != "Error: boom" {
		t.Errorf("unexpected unclassified format %q", got)
	}
	if got := adapter.FormatError(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
}

func TestCLIErrorAdapter_Report(t *testing.T) {
	var logs, out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	adapter := NewCLIErrorAdapter(true, logger)
	adapter.out = &out

	code := adapter.Report(DownloadError("retries exhausted").WithContext("attempts", 2).Build())
	if code != ExitDownload {
		t.Errorf("expected exit code %d, got %d", ExitDownload, code)
	}
	if !strings.Contains(logs.String(), "category=download") {
		t.Errorf("expected category attribute in logs, got %q", logs.String())
	}
	if !strings.Contains(out.String(), "retries exhausted") {
		t.Errorf("expected message on output, got %q", out.String())
	}
}
