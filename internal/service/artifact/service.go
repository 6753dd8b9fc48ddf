// Package artifact orchestrates one generate request: render the file,
// optionally publish it, and record the outcome in history.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/splax/stackgen/internal/domain"
	"github.com/splax/stackgen/internal/generator"
	"github.com/splax/stackgen/internal/service/history"
	"github.com/splax/stackgen/internal/service/publish"
)

// Publisher commits an artifact to a remote repository.
type Publisher interface {
	Publish(ctx context.Context, target publish.Target, artifact domain.Artifact) (publish.Outcome, error)
}

// Recorder stores the outcome of an executed action.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) (string, error)
}

// Request is one generate submission.
type Request struct {
	Kind     string
	Owner    string
	Repo     string
	Token    string
	Options  json.RawMessage
	Commit   *bool
	Username string
}

// ShouldCommit reports whether the request asks for publishing. Absent means true.
func (r Request) ShouldCommit() bool {
	return r.Commit == nil || *r.Commit
}

// Response describes what Execute produced. Outcome is nil when publishing
// was not requested.
type Response struct {
	Artifact  domain.Artifact
	Outcome   *publish.Outcome
	HistoryID string
}

// Service runs generate requests.
type Service struct {
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger
}

// New constructs an artifact service. recorder may be nil.
func New(publisher Publisher, recorder Recorder, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	initMetrics()
	return Service{publisher: publisher, recorder: recorder, logger: logger}
}

// Execute validates req, renders the artifact, publishes it when requested
// and records history. A publish failure returns a Response carrying the
// failed outcome together with the step error. History failures are logged
// only.
func (s Service) Execute(ctx context.Context, req Request) (Response, error) {
	req.Owner = strings.TrimSpace(req.Owner)
	req.Repo = strings.TrimSpace(req.Repo)
	if err := validateRequest(req); err != nil {
		recordResult(req.Kind, resultInvalid)
		return Response{}, err
	}

	art, err := generator.GenerateRaw(req.Kind, req.Options)
	if err != nil {
		recordResult(req.Kind, resultInvalid)
		return Response{}, err
	}
	resp := Response{Artifact: art}
	log := s.logger.With("kind", art.Kind, "owner", req.Owner, "repo", req.Repo)

	if !req.ShouldCommit() {
		recordResult(art.Kind, resultGenerated)
		resp.HistoryID = s.record(ctx, log, history.Entry{
			Username: req.Username,
			Owner:    req.Owner,
			Repo:     req.Repo,
			Command:  fmt.Sprintf("generate %s (%s)", art.Kind, art.FileName),
			Output:   art.Content,
			Status:   domain.HistoryStatusGenerated,
		})
		log.Info("artifact generated", "file", art.FileName)
		return resp, nil
	}
	if s.publisher == nil {
		return resp, fmt.Errorf("publishing is not configured")
	}

	start := time.Now()
	outcome, pubErr := s.publisher.Publish(ctx, publish.Target{Owner: req.Owner, Repo: req.Repo, Token: req.Token}, art)
	observePublish(time.Since(start), pubErr == nil)
	resp.Outcome = &outcome

	entry := history.Entry{
		Username: req.Username,
		Owner:    req.Owner,
		Repo:     req.Repo,
		Command:  fmt.Sprintf("publish %s (%s)", art.Kind, art.FileName),
		Output:   outcome.Output,
		Status:   domain.HistoryStatusSuccess,
	}
	if pubErr != nil {
		recordResult(art.Kind, resultFailed)
		entry.Status = domain.HistoryStatusFailed
		entry.Output = joinNonEmpty(outcome.Output, "error: "+outcome.ErrorMessage)
		resp.HistoryID = s.record(ctx, log, entry)
		log.Warn("artifact publish failed", "error", outcome.ErrorMessage)
		return resp, pubErr
	}

	recordResult(art.Kind, resultCommitted)
	entry.Output = joinNonEmpty(outcome.Output, outcome.RemoteURL)
	resp.HistoryID = s.record(ctx, log, entry)
	log.Info("artifact published", "file", art.FileName, "url", outcome.RemoteURL)
	return resp, nil
}

func (s Service) record(ctx context.Context, log *slog.Logger, entry history.Entry) string {
	if s.recorder == nil {
		return ""
	}
	id, err := s.recorder.Record(ctx, entry)
	if err != nil {
		log.Warn("failed to record history", "error", err)
		return ""
	}
	return id
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Kind) == "" {
		return &generator.ValidationError{Field: "type", Message: "is required"}
	}
	if req.Owner == "" {
		return &generator.ValidationError{Field: "owner", Message: "is required"}
	}
	if !publish.ValidName(req.Owner) {
		return &generator.ValidationError{Field: "owner", Message: fmt.Sprintf("%q is not a valid owner", req.Owner)}
	}
	if req.Repo == "" {
		return &generator.ValidationError{Field: "repo", Message: "is required"}
	}
	if !publish.ValidName(req.Repo) {
		return &generator.ValidationError{Field: "repo", Message: fmt.Sprintf("%q is not a valid repository name", req.Repo)}
	}
	return nil
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
