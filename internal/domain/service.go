// Package domain defines the health sync value types and the receiver's ingest workflow.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidSample is returned when an uploaded sample is missing required fields.
var ErrInvalidSample = errors.New("invalid sample")

// Sample is a record accepted and stored by the receiver.
type Sample struct {
	ID         string
	UserID     string
	Activity   string
	RecordedAt time.Time
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// SampleRepository captures persistence operations for received samples.
type SampleRepository interface {
	FindByIdempotency(ctx context.Context, userID, idempotencyKey string) (*Sample, error)
	Create(ctx context.Context, sample Sample, idempotencyKey string) error
	LatestRecordedAt(ctx context.Context, userID, activity string) (*time.Time, error)
}

// Service orchestrates sample ingestion.
type Service struct {
	repo SampleRepository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo SampleRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// IngestInput captures one uploaded record from the API layer.
type IngestInput struct {
	UserID         string
	Activity       string
	RecordedAt     time.Time
	Payload        json.RawMessage
	IdempotencyKey string
}

// Ingest stores a sample with idempotent replay semantics. The boolean reports a replay.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (*Sample, bool, error) {
	if strings.TrimSpace(input.UserID) == "" || strings.TrimSpace(input.Activity) == "" || input.RecordedAt.IsZero() {
		return nil, false, ErrInvalidSample
	}
	if input.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotency(ctx, input.UserID, input.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	sample := Sample{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		Activity:   input.Activity,
		RecordedAt: input.RecordedAt.UTC(),
		Payload:    input.Payload,
		ReceivedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, sample, input.IdempotencyKey); err != nil {
		return nil, false, err
	}
	return &sample, false, nil
}

// Latest returns the most recent recorded timestamp stored for the user and activity.
func (s *Service) Latest(ctx context.Context, userID, activity string) (time.Time, bool, error) {
	ts, err := s.repo.LatestRecordedAt(ctx, userID, activity)
	if err != nil {
		return time.Time{}, false, err
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}
