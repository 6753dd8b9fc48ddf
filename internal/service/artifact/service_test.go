package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/splax/stackgen/internal/domain"
	"github.com/splax/stackgen/internal/generator"
	"github.com/splax/stackgen/internal/service/history"
	"github.com/splax/stackgen/internal/service/publish"
)

type stubPublisher struct {
	outcome publish.Outcome
	err     error
	calls   int
	target  publish.Target
	file    domain.Artifact
}

func (s *stubPublisher) Publish(ctx context.Context, target publish.Target, art domain.Artifact) (publish.Outcome, error) {
	s.calls++
	s.target = target
	s.file = art
	return s.outcome, s.err
}

type stubRecorder struct {
	entries []history.Entry
	err     error
}

func (s *stubRecorder) Record(ctx context.Context, entry history.Entry) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.entries = append(s.entries, entry)
	return "hist-1", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(v bool) *bool { return &v }

func TestExecuteGenerateOnly(t *testing.T) {
	pub := &stubPublisher{}
	rec := &stubRecorder{}
	svc := New(pub, rec, discardLogger())

	resp, err := svc.Execute(context.Background(), Request{
		Kind:    "dockerfile",
		Owner:   "alice",
		Repo:    "app",
		Options: json.RawMessage(`{"port":8080}`),
		Commit:  boolPtr(false),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if pub.calls != 0 {
		t.Fatalf("publisher should not run when commit is false")
	}
	if resp.Outcome != nil {
		t.Fatalf("expected no outcome, got %+v", resp.Outcome)
	}
	if resp.Artifact.FileName != generator.FileDockerfile || !strings.Contains(resp.Artifact.Content, "EXPOSE 8080") {
		t.Fatalf("unexpected artifact %+v", resp.Artifact)
	}
	if resp.HistoryID != "hist-1" || len(rec.entries) != 1 || rec.entries[0].Status != domain.HistoryStatusGenerated {
		t.Fatalf("unexpected history %+v / %q", rec.entries, resp.HistoryID)
	}
}

func TestExecutePublishes(t *testing.T) {
	pub := &stubPublisher{outcome: publish.Outcome{
		Committed: true,
		RemoteURL: "https://github.com/alice/app/blob/main/Dockerfile",
		Branch:    "main",
		Output:    "$ git clone https://github.com/alice/app.git",
	}}
	rec := &stubRecorder{}
	svc := New(pub, rec, discardLogger())

	resp, err := svc.Execute(context.Background(), Request{Kind: "dockerfile", Owner: " alice ", Repo: "app", Token: "tkn"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if pub.calls != 1 || pub.target.Owner != "alice" || pub.target.Token != "tkn" {
		t.Fatalf("unexpected publish call %+v", pub.target)
	}
	if resp.Outcome == nil || !resp.Outcome.Committed {
		t.Fatalf("expected committed outcome, got %+v", resp.Outcome)
	}
	entry := rec.entries[0]
	if entry.Status != domain.HistoryStatusSuccess || !strings.Contains(entry.Output, "blob/main/Dockerfile") {
		t.Fatalf("unexpected history entry %+v", entry)
	}
}

func TestExecutePublishFailure(t *testing.T) {
	stepErr := &publish.StepError{Step: publish.StepClone, Err: errors.New("repository not found")}
	pub := &stubPublisher{err: stepErr, outcome: publish.Outcome{ErrorMessage: stepErr.Error()}}
	rec := &stubRecorder{}
	svc := New(pub, rec, discardLogger())

	resp, err := svc.Execute(context.Background(), Request{Kind: "prisma", Owner: "alice", Repo: "missing"})
	if !errors.Is(err, publish.ErrClone) {
		t.Fatalf("expected clone failure, got %v", err)
	}
	if resp.Outcome == nil || resp.Outcome.Committed {
		t.Fatalf("expected failed outcome, got %+v", resp.Outcome)
	}
	if resp.Artifact.FileName != generator.FilePrisma {
		t.Fatalf("failed response should still carry the artifact, got %+v", resp.Artifact)
	}
	if rec.entries[0].Status != domain.HistoryStatusFailed || !strings.Contains(rec.entries[0].Output, "repository not found") {
		t.Fatalf("unexpected history entry %+v", rec.entries[0])
	}
}

func TestExecuteValidation(t *testing.T) {
	svc := New(&stubPublisher{}, &stubRecorder{}, discardLogger())
	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing kind", Request{Owner: "a", Repo: "b"}, "type"},
		{"missing owner", Request{Kind: "dockerfile", Repo: "b"}, "owner"},
		{"bad owner", Request{Kind: "dockerfile", Owner: "a/b", Repo: "b"}, "owner"},
		{"missing repo", Request{Kind: "dockerfile", Owner: "a"}, "repo"},
		{"bad port", Request{Kind: "dockerfile", Owner: "a", Repo: "b", Options: json.RawMessage(`{"port":0}`)}, "port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Execute(context.Background(), tc.req)
			var verr *generator.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}

	_, err := svc.Execute(context.Background(), Request{Kind: "terraform", Owner: "a", Repo: "b"})
	if !errors.Is(err, generator.ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}
}

func TestExecuteIgnoresRecorderFailure(t *testing.T) {
	svc := New(&stubPublisher{}, &stubRecorder{err: errors.New("db down")}, discardLogger())
	resp, err := svc.Execute(context.Background(), Request{Kind: "sequelize", Owner: "a", Repo: "b", Commit: boolPtr(false)})
	if err != nil {
		t.Fatalf("recorder failure should not surface: %v", err)
	}
	if resp.HistoryID != "" {
		t.Fatalf("expected empty history id, got %q", resp.HistoryID)
	}
}
