// Package git drives version control operations for the publisher, either
// through the git binary or in-process with go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Signature identifies the author and committer of generated commits.
type Signature struct {
	Name  string
	Email string
}

// Client is the version control surface the publisher depends on. Errors
// carry the tool's own message; callers name the failing step.
type Client interface {
	// Clone clones repoURL into dest, which must exist and be empty.
	Clone(ctx context.Context, repoURL, dest string) error
	// Commit stages paths (relative to dir) and records a commit.
	Commit(ctx context.Context, dir string, paths []string, message string, author Signature) error
	// Push publishes HEAD to origin. An empty branch means the branch the
	// clone checked out. It returns the branch name that was pushed.
	Push(ctx context.Context, dir, branch string) (string, error)
}

// ExecClient shells out to a git binary.
type ExecClient struct {
	binary string
}

// NewExecClient returns a client invoking the git binary found on PATH.
func NewExecClient() *ExecClient {
	return &ExecClient{binary: "git"}
}

// Available reports whether the git binary can be located.
func (c *ExecClient) Available() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("git binary not found: %w", err)
	}
	return nil
}

// Clone clones the repository into the provided destination directory.
func (c *ExecClient) Clone(ctx context.Context, repoURL, dest string) error {
	if repoURL == "" {
		return errors.New("repository URL cannot be empty")
	}
	if dest == "" {
		return errors.New("destination cannot be empty")
	}
	_, err := c.run(ctx, dest, "clone", "--depth", "1", repoURL, ".")
	return err
}

// Commit stages paths and commits them with the given identity.
func (c *ExecClient) Commit(ctx context.Context, dir string, paths []string, message string, author Signature) error {
	if len(paths) == 0 {
		return errors.New("nothing to stage")
	}
	addArgs := append([]string{"add", "--"}, paths...)
	if _, err := c.run(ctx, dir, addArgs...); err != nil {
		return fmt.Errorf("stage files: %w", err)
	}
	_, err := c.run(ctx, dir,
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "-m", message,
	)
	return err
}

// Push pushes HEAD to refs/heads/<branch> on origin.
func (c *ExecClient) Push(ctx context.Context, dir, branch string) (string, error) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		current, err := c.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return "", fmt.Errorf("resolve current branch: %w", err)
		}
		branch = strings.TrimSpace(current)
	}
	if _, err := c.run(ctx, dir, "push", "origin", "HEAD:refs/heads/"+branch); err != nil {
		return "", err
	}
	return branch, nil
}

func (c *ExecClient) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = dir
	// Prevent git from prompting for credentials interactively.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
