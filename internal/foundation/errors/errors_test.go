package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "ROMMER.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}

		file, exists := err.Context().GetString("file")
		if !exists || file != "ROMMER.yaml" {
			t.Errorf("expected context file=ROMMER.yaml, got %v", file)
		}
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("missing field").Build()

		if !IsClassified(err) {
			t.Error("expected error to be classified")
		}
		if !HasCategory(err, CategoryConfig) {
			t.Error("expected error to have config category")
		}
		if !HasSeverity(err, SeverityFatal) {
			t.Error("expected error to have fatal severity")
		}
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		inner := ChecksumError("checksum mismatch").Build()
		wrapped := fmt.Errorf("resolve: %w", inner)

		if !HasCategory(wrapped, CategoryChecksum) {
			t.Error("expected wrapped error to keep checksum category")
		}
		if GetCategory(wrapped) != CategoryChecksum {
			t.Errorf("expected checksum category, got %s", GetCategory(wrapped))
		}
	})

	t.Run("Unclassified defaults", func(t *testing.T) {
		plain := errors.New("plain")
		if GetCategory(plain) != CategoryInternal {
			t.Errorf("expected internal category, got %s", GetCategory(plain))
		}
		if GetSeverity(plain) != SeverityError {
			t.Errorf("expected error severity, got %s", GetSeverity(plain))
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		originalErr := errors.New("connection reset")
		err := WrapError(originalErr, CategoryDownload, "download attempt failed").
			Warning().
			Retryable().
			WithContext("url", "https://example.com/rom.zip").
			WithContext("attempt", 2).
			Build()

		if err.Category() != CategoryDownload {
			t.Errorf("expected category %s, got %s", CategoryDownload, err.Category())
		}
		if err.Severity() != SeverityWarning {
			t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
		}
		if err.RetryStrategy() != RetryBackoff {
			t.Errorf("expected retry strategy %s, got %s", RetryBackoff, err.RetryStrategy())
		}
		if !errors.Is(err, originalErr) {
			t.Error("expected error to wrap original error")
		}
		if !err.CanRetry() {
			t.Error("expected backoff error to be retryable")
		}

		url, _ := err.Context().GetString("url")
		if url != "https://example.com/rom.zip" {
			t.Errorf("expected url context, got %s", url)
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		cases := []struct {
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
		}{
			{DownloadError("x"), CategoryDownload, SeverityFatal},
			{ChecksumError("x"), CategoryChecksum, SeverityFatal},
			{ExtractionError("x"), CategoryExtraction, SeverityFatal},
			{PatchError("x"), CategoryPatch, SeverityFatal},
			{RepackError("x"), CategoryRepack, SeverityFatal},
			{SigningError("x"), CategorySigning, SeverityFatal},
			{HookError("x"), CategoryHook, SeverityFatal},
			{CleanupError("x"), CategoryCleanup, SeverityWarning},
		}
		for _, c := range cases {
			err := c.builder.Build()
			if err.Category() != c.category || err.Severity() != c.severity {
				t.Errorf("expected %s/%s, got %s/%s", c.category, c.severity, err.Category(), err.Severity())
			}
		}
	})
}

func TestClassifiedErrorWithContextDoesNotMutate(t *testing.T) {
	base := PatchError("copy failed").WithContext("patch", "debloat").Build()
	derived := base.WithContext("path", "system/build.prop")

	if _, ok := base.Context().GetString("path"); ok {
		t.Error("expected original error context to stay untouched")
	}
	if p, _ := derived.Context().GetString("patch"); p != "debloat" {
		t.Errorf("expected derived error to keep patch context, got %q", p)
	}
}

func TestErrorContextMerge(t *testing.T) {
	a := ErrorContext{"a": 1, "shared": "left"}
	b := ErrorContext{"b": 2, "shared": "right"}
	merged := a.Merge(b)

	if merged["shared"] != "right" {
		t.Errorf("expected right-hand precedence, got %v", merged["shared"])
	}
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("unexpected merge result: %v", merged)
	}
	var empty ErrorContext
	if got := empty.Merge(b); got["b"] != 2 {
		t.Errorf("expected nil receiver to return other, got %v", got)
	}
}
