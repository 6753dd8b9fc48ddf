package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/stackgen/internal/domain"
	"github.com/splax/stackgen/internal/repository"
	"github.com/splax/stackgen/pkg/crypto"
)

// ErrInvalidInput reports a request the history store cannot accept.
var ErrInvalidInput = errors.New("history: invalid input")

// Event types published to stream subscribers.
const (
	EventCreated = "history.created"
	EventUpdated = "history.updated"
	EventDeleted = "history.deleted"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Broadcaster delivers serialized events to subscribers of a topic.
type Broadcaster interface {
	Broadcast(topic string, payload []byte)
}

// Options bounds history listings.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Service records executed actions and exposes them for inspection.
type Service struct {
	repo   repository.HistoryRepository
	hub    Broadcaster
	sealer *crypto.Sealer
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// New constructs a history service. hub and sealer may be nil.
func New(repo repository.HistoryRepository, hub Broadcaster, sealer *crypto.Sealer, logger *slog.Logger, opts Options) Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultListLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = maxListLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, hub: hub, sealer: sealer, logger: logger, opts: opts, now: time.Now}
}

// Entry is one completed action to record.
type Entry struct {
	Username string
	Owner    string
	Repo     string
	Command  string
	Output   string
	Status   string
}

// CreateInput is a manually submitted history row.
type CreateInput struct {
	Username string
	Token    string
	Owner    string
	Repo     string
	Command  string
	Output   string
	Status   string
}

// UpdateInput carries the mutable fields of a row. Nil fields are kept.
type UpdateInput struct {
	Command *string
	Output  *string
	Status  *string
}

// Record stores the outcome of an executed action and returns its id.
func (s Service) Record(ctx context.Context, entry Entry) (string, error) {
	if entry.Username == "" {
		entry.Username = "stackgen"
	}
	record, err := s.insert(ctx, CreateInput{
		Username: entry.Username,
		Owner:    entry.Owner,
		Repo:     entry.Repo,
		Command:  entry.Command,
		Output:   entry.Output,
		Status:   entry.Status,
	})
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

// Create stores a manually submitted row. Status defaults to pending; a
// supplied token is sealed before it reaches storage.
func (s Service) Create(ctx context.Context, input CreateInput) (domain.HistoryRecord, error) {
	return s.insert(ctx, input)
}

func (s Service) insert(ctx context.Context, input CreateInput) (domain.HistoryRecord, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Owner = strings.TrimSpace(input.Owner)
	input.Repo = strings.TrimSpace(input.Repo)
	input.Command = strings.TrimSpace(input.Command)
	if input.Username == "" || input.Owner == "" || input.Repo == "" || input.Command == "" {
		return domain.HistoryRecord{}, fmt.Errorf("%w: username, owner, repo and command are required", ErrInvalidInput)
	}
	if input.Status == "" {
		input.Status = domain.HistoryStatusPending
	}
	if !domain.ValidHistoryStatus(input.Status) {
		return domain.HistoryRecord{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, input.Status)
	}

	var sealed []byte
	if input.Token != "" {
		if s.sealer == nil {
			return domain.HistoryRecord{}, errors.New("history: token storage is not configured")
		}
		var err error
		if sealed, err = s.sealer.Seal(input.Token); err != nil {
			return domain.HistoryRecord{}, fmt.Errorf("seal token: %w", err)
		}
	}

	now := s.now().UTC()
	record := domain.HistoryRecord{
		ID:          uuid.NewString(),
		Username:    input.Username,
		Owner:       input.Owner,
		Repo:        input.Repo,
		Command:     input.Command,
		Output:      input.Output,
		Status:      input.Status,
		SealedToken: sealed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateHistory(ctx, &record); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("create history: %w", err)
	}
	s.publish(EventCreated, record)
	return record, nil
}

// List returns records most recent first. limit <= 0 selects the default and
// values above the maximum are clamped.
func (s Service) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = s.opts.DefaultLimit
	case filter.Limit > s.opts.MaxLimit:
		filter.Limit = s.opts.MaxLimit
	}
	filter.Owner = strings.TrimSpace(filter.Owner)
	filter.Repo = strings.TrimSpace(filter.Repo)
	records, err := s.repo.ListHistory(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

// Get returns one record or repository.ErrNotFound.
func (s Service) Get(ctx context.Context, id string) (domain.HistoryRecord, error) {
	if !validID(id) {
		return domain.HistoryRecord{}, repository.ErrNotFound
	}
	record, err := s.repo.GetHistory(ctx, id)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	return *record, nil
}

// Update applies input to the record identified by id.
func (s Service) Update(ctx context.Context, id string, input UpdateInput) (domain.HistoryRecord, error) {
	if !validID(id) {
		return domain.HistoryRecord{}, repository.ErrNotFound
	}
	if input.Command == nil && input.Output == nil && input.Status == nil {
		return domain.HistoryRecord{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if input.Command != nil && strings.TrimSpace(*input.Command) == "" {
		return domain.HistoryRecord{}, fmt.Errorf("%w: command cannot be empty", ErrInvalidInput)
	}
	if input.Status != nil && !domain.ValidHistoryStatus(*input.Status) {
		return domain.HistoryRecord{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *input.Status)
	}
	record, err := s.repo.UpdateHistory(ctx, domain.HistoryUpdate{
		ID:      id,
		Command: input.Command,
		Output:  input.Output,
		Status:  input.Status,
	})
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	s.publish(EventUpdated, *record)
	return *record, nil
}

// Delete removes a record or returns repository.ErrNotFound.
func (s Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrNotFound
	}
	record, err := s.repo.DeleteHistory(ctx, id)
	if err != nil {
		return err
	}
	s.publish(EventDeleted, *record)
	return nil
}

func (s Service) publish(eventType string, record domain.HistoryRecord) {
	if s.hub == nil {
		return
	}
	payload, err := MarshalEvent(eventType, record)
	if err != nil {
		s.logger.Warn("failed to marshal history event", "error", err)
		return
	}
	s.hub.Broadcast(Topic(record.Owner, record.Repo), payload)
}

// Topic names the stream a repository's events are published on.
func Topic(owner, repo string) string {
	return owner + "/" + repo
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// View is the wire representation of a record. The sealed token is never
// exposed.
type View struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Command   string `json:"command"`
	Output    string `json:"output"`
	Status    string `json:"status"`
	HasToken  bool   `json:"hasToken"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// ToView converts a record for responses and stream payloads.
func ToView(record domain.HistoryRecord) View {
	return View{
		ID:        record.ID,
		Username:  record.Username,
		Owner:     record.Owner,
		Repo:      record.Repo,
		Command:   record.Command,
		Output:    record.Output,
		Status:    record.Status,
		HasToken:  len(record.SealedToken) > 0,
		CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// MarshalEvent formats a stream payload.
func MarshalEvent(eventType string, record domain.HistoryRecord) ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Record View   `json:"record"`
	}{Type: eventType, Record: ToView(record)})
}
