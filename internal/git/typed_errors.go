package git

import (
	"fmt"
	"strings"
)

// Typed clone failures, so callers can report them without string parsing.
type AuthError struct {
	URL string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("clone auth error for %s: %v", e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

type NotFoundError struct {
	URL string
	Err error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("clone: %s not found: %v", e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

type RefNotFoundError struct {
	URL, Ref string
	Err      error
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("clone: ref %q not found in %s: %v", e.Ref, e.URL, e.Err)
}
func (e *RefNotFoundError) Unwrap() error { return e.Err }

func classifyCloneError(url string, err error) error {
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") || strings.Contains(l, "invalid username or password"):
		return &AuthError{URL: url, Err: err}
	case strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist"):
		return &NotFoundError{URL: url, Err: err}
	default:
		return fmt.Errorf("failed to clone repository %s: %w", url, err)
	}
}
