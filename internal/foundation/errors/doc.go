// Package errors provides foundational, type-safe error primitives used across rommer.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification mirroring the pipeline stages
//     (config, download, checksum, extraction, patch, repack, signing, hook, cleanup)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - RetryStrategy: Retry behavior (never, immediate, backoff)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - CLI adapter for exit codes and error presentation
//
// Example usage:
//
//	err := errors.DownloadError("download failed after retries").
//		WithContext("url", romURL).
//		WithContext("attempts", 3).
//		WithCause(lastErr).
//		Build()
package errors
