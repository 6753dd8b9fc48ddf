package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GoGitClient performs the same operations in-process, without a git binary.
type GoGitClient struct{}

// NewGoGitClient returns a go-git backed client.
func NewGoGitClient() *GoGitClient {
	return &GoGitClient{}
}

// Clone clones repoURL into dest. An empty remote is initialized locally with
// origin configured so the first commit can still be pushed.
func (c *GoGitClient) Clone(ctx context.Context, repoURL, dest string) error {
	if repoURL == "" {
		return errors.New("repository URL cannot be empty")
	}
	if dest == "" {
		return errors.New("destination cannot be empty")
	}
	_, err := gogit.PlainCloneContext(ctx, dest, false, &gogit.CloneOptions{
		URL:  repoURL,
		Auth: basicAuth(repoURL),
	})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		repo, initErr := gogit.PlainInit(dest, false)
		if initErr != nil {
			return fmt.Errorf("init empty clone: %w", initErr)
		}
		if _, remoteErr := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{repoURL}}); remoteErr != nil {
			return fmt.Errorf("configure origin: %w", remoteErr)
		}
		return nil
	}
	return err
}

// Commit stages paths and commits them with the given identity.
func (c *GoGitClient) Commit(ctx context.Context, dir string, paths []string, message string, author Signature) error {
	if len(paths) == 0 {
		return errors.New("nothing to stage")
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(filepath.ToSlash(p)); err != nil {
			return fmt.Errorf("stage %s: %w", p, err)
		}
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return errors.New("nothing to commit, working tree clean")
	}
	sig := &object.Signature{Name: author.Name, Email: author.Email, When: time.Now()}
	_, err = wt.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig})
	return err
}

// Push pushes HEAD to refs/heads/<branch> on origin.
func (c *GoGitClient) Push(ctx context.Context, dir, branch string) (string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = head.Name().Short()
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("resolve origin: %w", err)
	}
	var auth transport.AuthMethod
	if urls := remote.Config().URLs; len(urls) > 0 {
		auth = basicAuth(urls[0])
	}
	spec := config.RefSpec(fmt.Sprintf("%s:refs/heads/%s", head.Name(), branch))
	err = repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{spec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "", err
	}
	return branch, nil
}

// basicAuth extracts userinfo credentials from an http(s) URL.
func basicAuth(raw string) transport.AuthMethod {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	password, ok := u.User.Password()
	if !ok {
		return nil
	}
	return &githttp.BasicAuth{Username: u.User.Username(), Password: password}
}
