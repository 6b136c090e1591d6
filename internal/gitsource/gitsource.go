// Package gitsource keeps local clones of remote markdown repositories.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does.
func Sync(ctx context.Context, repoURL, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("Cloning repository", "url", repoURL, "path", localPath)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent of %s: %w", localPath, err)
		}
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL: repoURL,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
		slog.Info("Clone successful", "path", localPath)

	case err == nil:
		slog.Info("Pulling latest changes", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		slog.Info("Pull successful (or already up-to-date)", "path", localPath)

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}

// IsRemote reports whether source names a git remote rather than a local
// directory.
func IsRemote(source string) bool {
	if u, err := url.Parse(source); err == nil {
		switch u.Scheme {
		case "http", "https", "ssh", "git", "file":
			return true
		}
	}
	return scpLike(source)
}

// LocalPath maps a repository URL to its clone directory under baseDir,
// e.g. https://github.com/acme/faq.git becomes baseDir/github.com/acme/faq.
func LocalPath(baseDir, repoURL string) (string, error) {
	if scpLike(repoURL) {
		host, repoPath, _ := strings.Cut(repoURL, ":")
		_, host, _ = strings.Cut(host, "@")
		return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
	}

	u, err := url.Parse(repoURL)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	repoPath := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	if repoPath == "" {
		return "", fmt.Errorf("git URL has no repository path: %s", repoURL)
	}
	host := u.Host
	if host == "" {
		host = "local"
	}
	return filepath.Join(baseDir, host, repoPath), nil
}

// scpLike matches user@host:path addresses.
func scpLike(s string) bool {
	at := strings.Index(s, "@")
	colon := strings.Index(s, ":")
	return at > 0 && colon > at && !strings.Contains(s[:colon], "/")
}
