// Package gitrepo clones remote repositories into temporary directories
// so the aggregation pipeline can treat them as ordinary local folders.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// IsRepoURL reports whether the input names a remote repository rather
// than a local path.
func IsRepoURL(input string) bool {
	switch {
	case strings.HasPrefix(input, "git@"):
		return true
	case strings.HasSuffix(input, ".git"):
		return strings.Contains(input, "://") || strings.Contains(input, "@")
	case strings.HasPrefix(input, "https://github.com/"),
		strings.HasPrefix(input, "http://github.com/"),
		strings.HasPrefix(input, "https://gitlab.com/"),
		strings.HasPrefix(input, "https://bitbucket.org/"):
		return true
	}
	return false
}

// Clone fetches the repository's default branch into a fresh temporary
// directory and returns its path together with a cleanup func that
// removes it. depth limits the fetched history; 0 fetches everything.
// The caller bounds the clone with ctx; local processing afterwards is
// not subject to this timeout.
func Clone(ctx context.Context, url string, depth int, logger *zap.Logger) (string, func(), error) {
	dir, err := os.MkdirTemp("", "automd-repo-")
	if err != nil {
		return "", nil, fmt.Errorf("creating clone directory: %w", err)
	}

	logger.Info("Cloning repository",
		zap.String("url", url),
		zap.String("dir", dir),
		zap.Int("depth", depth))

	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		Depth:         depth,
		ReferenceName: plumbing.HEAD,
		SingleBranch:  true,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, fmt.Errorf("cloning %s: %w", url, err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove clone directory",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}
	return dir, cleanup, nil
}
