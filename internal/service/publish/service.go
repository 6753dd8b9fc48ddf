package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/splax/stackgen/internal/domain"
	"github.com/splax/stackgen/internal/git"
	"github.com/splax/stackgen/internal/workspace"
)

// Step names one stage of a publish attempt.
type Step string

// Publish stages in execution order.
const (
	StepWorkspace Step = "workspace"
	StepClone     Step = "clone"
	StepWrite     Step = "write"
	StepCommit    Step = "commit"
	StepPush      Step = "push"
)

var (
	// ErrInvalidTarget is returned before any work starts when owner, repo or
	// file name cannot be used.
	ErrInvalidTarget = errors.New("invalid publish target")
	ErrWorkspace     = errors.New("workspace unavailable")
	ErrClone         = errors.New("clone failed")
	ErrWrite         = errors.New("write failed")
	ErrCommit        = errors.New("commit failed")
	ErrPush          = errors.New("push failed")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

const redacted = "***"

// StepError reports the stage at which a publish attempt stopped.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

// Unwrap exposes both the step sentinel and the underlying cause.
func (e *StepError) Unwrap() []error {
	return []error{stepSentinel(e.Step), e.Err}
}

func stepSentinel(step Step) error {
	switch step {
	case StepWorkspace:
		return ErrWorkspace
	case StepClone:
		return ErrClone
	case StepWrite:
		return ErrWrite
	case StepCommit:
		return ErrCommit
	default:
		return ErrPush
	}
}

// Target identifies the repository to publish into.
type Target struct {
	Owner string
	Repo  string
	Token string
}

// Outcome is the result of one publish attempt.
type Outcome struct {
	Committed    bool   `json:"committed"`
	RemoteURL    string `json:"remoteUrl,omitempty"`
	Branch       string `json:"branch,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Output       string `json:"output"`
}

// Options configures the publisher.
type Options struct {
	// BaseURL is the git host, e.g. https://github.com. Local paths are
	// accepted and never receive credentials.
	BaseURL string
	// Branch overrides the branch pushed to; empty means the cloned default.
	Branch  string
	Author  git.Signature
	Timeout time.Duration
}

// Service clones, writes, commits and pushes generated artifacts.
type Service struct {
	vcs       git.Client
	workspace *workspace.Manager
	logger    *slog.Logger
	opts      Options
}

// New returns a publish service.
func New(vcs git.Client, ws *workspace.Manager, logger *slog.Logger, opts Options) Service {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = "https://github.com"
	}
	if opts.Author.Name == "" {
		opts.Author.Name = "stackgen"
	}
	if opts.Author.Email == "" {
		opts.Author.Email = "stackgen@users.noreply.github.com"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{vcs: vcs, workspace: ws, logger: logger, opts: opts}
}

// CommitMessage is the fixed message used for every generated commit.
func CommitMessage(fileName string) string {
	return fmt.Sprintf("chore: add %s via stackgen", fileName)
}

// Publish runs clone, write, commit and push in order. The first failing
// step aborts the rest. The working directory is removed on every path.
func (s Service) Publish(ctx context.Context, target Target, artifact domain.Artifact) (outcome Outcome, err error) {
	var transcript []string
	defer func() {
		outcome.Output = redact(strings.Join(transcript, "\n"), target.Token)
		if err != nil {
			outcome.Committed = false
			outcome.RemoteURL = ""
			outcome.ErrorMessage = redact(err.Error(), target.Token)
			err = redactError(err, target.Token)
		}
	}()

	fileName, err := validate(target, artifact.FileName)
	if err != nil {
		return Outcome{}, err
	}
	cloneURL, err := CloneURL(s.opts.BaseURL, target.Owner, target.Repo, target.Token)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	displayURL, _ := CloneURL(s.opts.BaseURL, target.Owner, target.Repo, "")

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	lease, err := s.workspace.Acquire()
	if err != nil {
		return Outcome{}, &StepError{Step: StepWorkspace, Err: err}
	}
	defer func() {
		if cerr := lease.Release(); cerr != nil {
			s.logger.Warn("workspace cleanup failed", "dir", lease.Dir, "error", cerr)
		}
	}()

	log := s.logger.With("owner", target.Owner, "repo", target.Repo, "file", fileName)

	transcript = append(transcript, "$ git clone "+displayURL)
	if err := s.vcs.Clone(ctx, cloneURL, lease.Dir); err != nil {
		log.Warn("clone failed", "error", redact(err.Error(), target.Token))
		return Outcome{}, &StepError{Step: StepClone, Err: err}
	}

	if err := writeArtifact(lease.Dir, fileName, artifact.Content); err != nil {
		log.Warn("write failed", "error", err)
		return Outcome{}, &StepError{Step: StepWrite, Err: err}
	}
	transcript = append(transcript, "(wrote "+fileName+")")

	message := CommitMessage(fileName)
	transcript = append(transcript, "$ git add "+fileName, fmt.Sprintf("$ git commit -m %q", message))
	if err := s.vcs.Commit(ctx, lease.Dir, []string{filepath.FromSlash(fileName)}, message, s.opts.Author); err != nil {
		log.Warn("commit failed", "error", err)
		return Outcome{}, &StepError{Step: StepCommit, Err: err}
	}

	pushTarget := s.opts.Branch
	if pushTarget == "" {
		pushTarget = "HEAD"
	}
	transcript = append(transcript, "$ git push origin "+pushTarget)
	branch, err := s.vcs.Push(ctx, lease.Dir, s.opts.Branch)
	if err != nil {
		log.Warn("push failed", "error", redact(err.Error(), target.Token))
		return Outcome{}, &StepError{Step: StepPush, Err: err}
	}

	remote, err := url.JoinPath(webBase(s.opts.BaseURL), target.Owner, target.Repo, "blob", branch, fileName)
	if err != nil {
		remote = ""
	}
	log.Info("artifact published", "branch", branch)
	return Outcome{Committed: true, RemoteURL: remote, Branch: branch}, nil
}

// ValidName reports whether name can be used as a repository owner or name.
func ValidName(name string) bool {
	return namePattern.MatchString(name) && name != "." && name != ".."
}

func validate(target Target, fileName string) (string, error) {
	if !ValidName(target.Owner) {
		return "", fmt.Errorf("%w: invalid owner %q", ErrInvalidTarget, target.Owner)
	}
	if !ValidName(target.Repo) {
		return "", fmt.Errorf("%w: invalid repo %q", ErrInvalidTarget, target.Repo)
	}
	clean := path.Clean(strings.TrimSpace(filepath.ToSlash(fileName)))
	if fileName == "" || clean == "." || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("%w: invalid file name %q", ErrInvalidTarget, fileName)
	}
	return clean, nil
}

// writeArtifact reports paths relative to root so errors never expose the
// server's workspace location.
func writeArtifact(root, fileName, content string) error {
	dest := filepath.Join(root, filepath.FromSlash(fileName))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent directories: %w", relativeTo(root, err))
	}
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return relativeTo(root, err)
	}
	return nil
}

func relativeTo(root string, err error) error {
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		return err
	}
	rel, relErr := filepath.Rel(root, pathErr.Path)
	if relErr != nil || !filepath.IsLocal(rel) {
		rel = filepath.Base(pathErr.Path)
	}
	return &fs.PathError{Op: pathErr.Op, Path: filepath.ToSlash(rel), Err: pathErr.Err}
}

// CloneURL builds <base>/<owner>/<repo>.git. A non-empty token is embedded
// as owner:token userinfo for http(s) bases only.
func CloneURL(base, owner, repo, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = path.Join(u.Path, owner, repo+".git")
	u.RawPath = ""
	if token != "" && (u.Scheme == "http" || u.Scheme == "https") {
		u.User = url.UserPassword(owner, token)
	}
	return u.String(), nil
}

func webBase(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if u, err := url.Parse(trimmed); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		u.User = nil
		return u.String()
	}
	return "https://github.com"
}

func redact(text, token string) string {
	if token == "" {
		return text
	}
	text = strings.ReplaceAll(text, token, redacted)
	if escaped := url.PathEscape(token); escaped != token {
		text = strings.ReplaceAll(text, escaped, redacted)
	}
	if escaped := url.QueryEscape(token); escaped != token {
		text = strings.ReplaceAll(text, escaped, redacted)
	}
	return text
}

// redactedError keeps errors.Is/As working while hiding the token in Error().
type redactedError struct {
	err   error
	token string
}

func (e *redactedError) Error() string { return redact(e.err.Error(), e.token) }
func (e *redactedError) Unwrap() error { return e.err }

func redactError(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{err: err, token: token}
}
