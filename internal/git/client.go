package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/rommer/internal/logfields"
)

// Client clones patch repositories.
type Client struct {
	logger *slog.Logger
}

// NewClient returns a client logging through logger (slog.Default when nil).
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// Clone checks out remote into dest, which must not exist yet. A ref is
// tried as a branch first and then as a tag. Network remotes are cloned
// with depth 1.
func (c *Client) Clone(ctx context.Context, remote Remote, dest string) (string, error) {
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("clone destination %s already exists", dest)
	}

	candidates := []plumbing.ReferenceName{""}
	if remote.Ref != "" {
		candidates = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(remote.Ref),
			plumbing.NewTagReferenceName(remote.Ref),
		}
	}

	c.logger.Debug("Cloning patch repository", logfields.URL(remote.URL), slog.String("ref", remote.Ref), logfields.Path(dest))
	var lastErr error
	for _, ref := range candidates {
		opts := &git.CloneOptions{URL: remote.URL}
		if ref != "" {
			opts.ReferenceName = ref
			opts.SingleBranch = true
		}
		if !remote.isLocal() {
			opts.Depth = 1
		}
		repo, err := git.PlainCloneContext(ctx, dest, false, opts)
		if err == nil {
			if head, herr := repo.Head(); herr == nil {
				c.logger.Info("Patch repository cloned", logfields.URL(remote.URL), slog.String("commit", head.Hash().String()[:8]), logfields.Path(dest))
			}
			return dest, nil
		}
		_ = os.RemoveAll(dest)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err
		if !errors.Is(err, plumbing.ErrReferenceNotFound) && !isNoMatchingRef(err) {
			return "", classifyCloneError(remote.URL, err)
		}
	}
	return "", &RefNotFoundError{URL: remote.URL, Ref: remote.Ref, Err: lastErr}
}

func isNoMatchingRef(err error) bool {
	var nm git.NoMatchingRefSpecError
	return errors.As(err, &nm)
}
