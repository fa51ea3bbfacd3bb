package itinerary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tripplanner/internal/domain"
	"tripplanner/internal/gemini"
	"tripplanner/internal/infra"
)

const (
	// maxErrorLength bounds the error text persisted on a failed job.
	maxErrorLength = 255

	persistTimeout           = 15 * time.Second
	defaultGenerationTimeout = 120 * time.Second
)

var (
	// ErrValidation indicates bad caller input; surfaced synchronously.
	ErrValidation = errors.New("itinerary: invalid request")
	// ErrInitialization indicates the initial processing write failed; no
	// background work was scheduled.
	ErrInitialization = errors.New("itinerary: initialize job")
)

// DocumentStore persists job documents with merge semantics.
type DocumentStore interface {
	Upsert(ctx context.Context, jobID string, record map[string]any) error
	Get(ctx context.Context, jobID string) (map[string]any, error)
}

// Generator produces a structured itinerary for a request.
type Generator interface {
	GenerateItinerary(ctx context.Context, req gemini.ItineraryRequest) ([]any, error)
}

// StartRequest carries the caller's itinerary parameters plus hints resolved
// from the request context.
type StartRequest struct {
	Destination   string `json:"destination" validate:"required"`
	DurationDays  int    `json:"durationDays" validate:"required,gt=0"`
	Locale        string `json:"-"`
	OriginCountry string `json:"-"`
}

// Options configures a Service.
type Options struct {
	Store             DocumentStore
	Generator         Generator
	Logger            infra.Logger
	GenerationTimeout time.Duration
	NewID             func() string
	Now               func() time.Time
}

// Service drives the job lifecycle: processing -> completed | failed. The
// caller waits only for validation and the initial processing write; the
// generation step runs detached.
type Service struct {
	store      DocumentStore
	generator  Generator
	logger     infra.Logger
	validate   *validator.Validate
	genTimeout time.Duration
	newID      func() string
	now        func() time.Time
	detached   sync.WaitGroup
}

// NewService creates the lifecycle service.
func NewService(opts Options) *Service {
	genTimeout := opts.GenerationTimeout
	if genTimeout <= 0 {
		genTimeout = defaultGenerationTimeout
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      opts.Store,
		generator:  opts.Generator,
		logger:     opts.Logger,
		validate:   validator.New(),
		genTimeout: genTimeout,
		newID:      newID,
		now:        now,
	}
}

// Start validates the request, persists the processing document, schedules the
// detached generation step, and returns the new job id. When the initial
// write fails nothing is scheduled and no id is handed back.
func (s *Service) Start(ctx context.Context, req StartRequest) (string, error) {
	req.Destination = strings.TrimSpace(req.Destination)
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	jobID := s.newID()
	record := map[string]any{
		"status":       domain.JobStatusProcessing,
		"destination":  req.Destination,
		"durationDays": req.DurationDays,
		"createdAt":    s.now().UTC(),
		"completedAt":  nil,
		"itinerary":    []any{},
		"error":        nil,
	}
	if err := s.store.Upsert(ctx, jobID, record); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	s.logger.Info().Str("job_id", jobID).Str("destination", req.Destination).
		Int("duration_days", req.DurationDays).Msg("itinerary job accepted")

	// Detached phase: never tied to the caller's context, so a client
	// disconnect cannot cancel generation.
	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		s.generate(jobID, req)
	}()

	return jobID, nil
}

// Drain blocks until all detached generation work has finished or ctx expires.
// Shutdown uses it to honor the keep-alive-until-complete requirement.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) generate(jobID string, req StartRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.genTimeout)
	defer cancel()

	itinerary, err := s.generator.GenerateItinerary(ctx, gemini.ItineraryRequest{
		Destination:   req.Destination,
		DurationDays:  req.DurationDays,
		Locale:        req.Locale,
		OriginCountry: req.OriginCountry,
	})
	if err == nil {
		err = s.persist(jobID, map[string]any{
			"status":      domain.JobStatusCompleted,
			"itinerary":   itinerary,
			"completedAt": s.now().UTC(),
			"error":       nil,
		})
		if err == nil {
			s.logger.Info().Str("job_id", jobID).Int("days", len(itinerary)).Msg("itinerary job completed")
			return
		}
	}

	message := err.Error()
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}
	s.logger.Warn().Str("job_id", jobID).Err(err).Msg("itinerary job failed")

	if werr := s.persist(jobID, map[string]any{
		"status":      domain.JobStatusFailed,
		"completedAt": s.now().UTC(),
		"error":       message,
	}); werr != nil {
		// The job is now stuck in processing; observable only here.
		s.logger.Error().Str("job_id", jobID).Err(werr).
			Msg("failed-state write failed, job left in processing")
	}
}

// persist writes with its own deadline so terminal writes are not starved by
// an exhausted generation context.
func (s *Service) persist(jobID string, record map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return s.store.Upsert(ctx, jobID, record)
}

// Get reads the job document and maps it back to the domain model.
func (s *Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	record, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:        jobID,
		Itinerary: []domain.Day{},
	}
	if v, ok := record["status"].(string); ok {
		job.Status = domain.JobStatus(v)
	}
	if v, ok := record["destination"].(string); ok {
		job.Destination = v
	}
	if v, ok := record["durationDays"].(int64); ok {
		job.DurationDays = int(v)
	}
	if v, ok := record["createdAt"].(time.Time); ok {
		job.CreatedAt = v
	}
	if v, ok := record["completedAt"].(time.Time); ok {
		job.CompletedAt = &v
	}
	if v, ok := record["error"].(string); ok {
		job.Error = v
	}
	if raw, ok := record["itinerary"].([]any); ok && len(raw) > 0 {
		encoded, err := json.Marshal(raw)
		if err == nil {
			var days []domain.Day
			if err := json.Unmarshal(encoded, &days); err == nil {
				job.Itinerary = days
			}
		}
	}
	return job, nil
}
