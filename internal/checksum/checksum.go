// Package checksum computes and compares SHA-256 digests of archives.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// File returns the lower-case hex SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is an archive chosen by the user
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Reader(f)
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// MismatchError reports a digest that does not match the expected value.
type MismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, strings.ToLower(e.Expected), e.Actual)
}

// Verify hashes path and compares it with expected. An empty expected digest
// always passes; the computed digest is returned either way.
func Verify(path, expected string) (string, error) {
	actual, err := File(path)
	if err != nil {
		return "", err
	}
	if expected != "" && !Equal(expected, actual) {
		return actual, &MismatchError{Path: path, Expected: expected, Actual: actual}
	}
	return actual, nil
}

// Writer is an io.Writer that hashes what passes through it, used to digest
// a download while it streams to disk.
type Writer struct {
	h hash.Hash
}

// NewWriter returns a hashing writer.
func NewWriter() *Writer { return &Writer{h: sha256.New()} }

func (w *Writer) Write(p []byte) (int, error) { return w.h.Write(p) }

// Sum returns the lower-case hex digest of everything written so far.
func (w *Writer) Sum() string { return hex.EncodeToString(w.h.Sum(nil)) }
