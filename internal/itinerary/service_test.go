package itinerary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tripplanner/internal/domain"
	"tripplanner/internal/gemini"
)

type upsertCall struct {
	jobID  string
	record map[string]any
	index  int
}

func (c upsertCall) status() domain.JobStatus {
	if v, ok := c.record["status"].(domain.JobStatus); ok {
		return v
	}
	return ""
}

type fakeStore struct {
	mu      sync.Mutex
	upserts []upsertCall
	fail    func(call upsertCall) error
	signal  chan upsertCall
	record  map[string]any
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{signal: make(chan upsertCall, 64)}
}

func (f *fakeStore) Upsert(ctx context.Context, jobID string, record map[string]any) error {
	f.mu.Lock()
	call := upsertCall{jobID: jobID, record: record, index: len(f.upserts)}
	f.upserts = append(f.upserts, call)
	f.mu.Unlock()

	var err error
	if f.fail != nil {
		err = f.fail(call)
	}
	f.signal <- call
	return err
}

func (f *fakeStore) Get(ctx context.Context, jobID string) (map[string]any, error) {
	return f.record, f.getErr
}

func (f *fakeStore) calls() []upsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upsertCall(nil), f.upserts...)
}

type fakeGenerator struct {
	mu     sync.Mutex
	called int
	got    gemini.ItineraryRequest
	result []any
	err    error
}

func (f *fakeGenerator) GenerateItinerary(ctx context.Context, req gemini.ItineraryRequest) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	f.got = req
	return f.result, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

func newTestService(store *fakeStore, generator *fakeGenerator) *Service {
	return NewService(Options{
		Store:     store,
		Generator: generator,
		Logger:    zerolog.Nop(),
	})
}

func waitForStatus(t *testing.T, store *fakeStore, want domain.JobStatus) upsertCall {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case call := <-store.signal:
			if call.status() == want {
				return call
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q write", want)
		}
	}
}

func TestStartPersistsProcessingThenCompleted(t *testing.T) {
	store := newFakeStore()
	generator := &fakeGenerator{result: []any{
		map[string]any{"day": float64(1), "theme": "Arrival", "activities": []any{
			map[string]any{"time": "Morning", "description": "Land", "location": "Airport"},
		}},
	}}
	svc := newTestService(store, generator)

	jobID, err := svc.Start(context.Background(), StartRequest{
		Destination:  "Kyoto",
		DurationDays: 3,
		Locale:       "en",
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if jobID == "" {
		t.Fatal("Start returned empty job id")
	}

	calls := store.calls()
	if len(calls) < 1 {
		t.Fatal("processing write missing")
	}
	first := calls[0]
	if first.jobID != jobID {
		t.Fatalf("processing write jobID = %q, want %q", first.jobID, jobID)
	}
	if first.status() != domain.JobStatusProcessing {
		t.Fatalf("first status = %q, want processing", first.status())
	}
	if items, ok := first.record["itinerary"].([]any); !ok || len(items) != 0 {
		t.Fatalf("initial itinerary = %#v, want empty array", first.record["itinerary"])
	}
	if first.record["completedAt"] != nil {
		t.Fatalf("initial completedAt = %#v, want nil", first.record["completedAt"])
	}

	terminal := waitForStatus(t, store, domain.JobStatusCompleted)
	if terminal.jobID != jobID {
		t.Fatalf("terminal jobID = %q, want %q", terminal.jobID, jobID)
	}
	if _, ok := terminal.record["completedAt"].(time.Time); !ok {
		t.Fatalf("completedAt = %#v, want time", terminal.record["completedAt"])
	}
	if terminal.record["error"] != nil {
		t.Fatalf("error = %#v, want nil", terminal.record["error"])
	}
	days, ok := terminal.record["itinerary"].([]any)
	if !ok || len(days) != 1 {
		t.Fatalf("itinerary = %#v, want 1 day", terminal.record["itinerary"])
	}
	if generator.calls() != 1 {
		t.Fatalf("generator called %d times, want 1", generator.calls())
	}
	if got := generator.got.Destination; got != "Kyoto" {
		t.Fatalf("generator destination = %q", got)
	}

	if n := len(store.calls()); n != 2 {
		t.Fatalf("total upserts = %d, want 2 (single terminal write)", n)
	}
}

func TestStartGenerationFailureWritesFailed(t *testing.T) {
	store := newFakeStore()
	generator := &fakeGenerator{err: errors.New("gemini: generation failed: " + strings.Repeat("x", 300))}
	svc := newTestService(store, generator)

	jobID, err := svc.Start(context.Background(), StartRequest{Destination: "Lisbon", DurationDays: 2})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	terminal := waitForStatus(t, store, domain.JobStatusFailed)
	if terminal.jobID != jobID {
		t.Fatalf("terminal jobID = %q", terminal.jobID)
	}
	message, ok := terminal.record["error"].(string)
	if !ok || message == "" {
		t.Fatalf("error = %#v, want non-empty string", terminal.record["error"])
	}
	if len(message) > 255 {
		t.Fatalf("error length = %d, want <= 255", len(message))
	}
	if _, present := terminal.record["itinerary"]; present {
		t.Fatalf("failed write must not touch itinerary: %#v", terminal.record)
	}
	if n := len(store.calls()); n != 2 {
		t.Fatalf("total upserts = %d, want 2", n)
	}
}

func TestStartValidation(t *testing.T) {
	store := newFakeStore()
	generator := &fakeGenerator{}
	svc := newTestService(store, generator)

	cases := []StartRequest{
		{Destination: "", DurationDays: 3},
		{Destination: "   ", DurationDays: 3},
		{Destination: "Kyoto", DurationDays: 0},
		{Destination: "Kyoto", DurationDays: -2},
	}
	for _, req := range cases {
		if _, err := svc.Start(context.Background(), req); !errors.Is(err, ErrValidation) {
			t.Fatalf("Start(%+v) err = %v, want ErrValidation", req, err)
		}
	}
	if n := len(store.calls()); n != 0 {
		t.Fatalf("upserts = %d, want 0 for invalid input", n)
	}
	if generator.calls() != 0 {
		t.Fatal("generator must not run for invalid input")
	}
}

func TestStartInitializationFailure(t *testing.T) {
	store := newFakeStore()
	store.fail = func(call upsertCall) error {
		if call.index == 0 {
			return errors.New("store down")
		}
		return nil
	}
	generator := &fakeGenerator{result: []any{}}
	svc := newTestService(store, generator)

	_, err := svc.Start(context.Background(), StartRequest{Destination: "Kyoto", DurationDays: 3})
	if !errors.Is(err, ErrInitialization) {
		t.Fatalf("err = %v, want ErrInitialization", err)
	}

	time.Sleep(50 * time.Millisecond)
	if generator.calls() != 0 {
		t.Fatal("generation must not be scheduled after a failed initial write")
	}
	if n := len(store.calls()); n != 1 {
		t.Fatalf("upserts = %d, want 1", n)
	}
}

func TestStartStuckInProcessingWhenFailedWriteFails(t *testing.T) {
	store := newFakeStore()
	store.fail = func(call upsertCall) error {
		if call.status().Terminal() {
			return errors.New("store down")
		}
		return nil
	}
	generator := &fakeGenerator{result: []any{map[string]any{"day": float64(1)}}}
	svc := newTestService(store, generator)

	if _, err := svc.Start(context.Background(), StartRequest{Destination: "Kyoto", DurationDays: 1}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	// Completed write fails, then the failed write fails too; the job stays
	// in processing and no further writes happen.
	waitForStatus(t, store, domain.JobStatusCompleted)
	waitForStatus(t, store, domain.JobStatusFailed)
	time.Sleep(50 * time.Millisecond)
	if n := len(store.calls()); n != 3 {
		t.Fatalf("total upserts = %d, want 3", n)
	}
}

func TestStartIssuesUniqueJobIDs(t *testing.T) {
	store := newFakeStore()
	generator := &fakeGenerator{result: []any{}}
	svc := newTestService(store, generator)

	seen := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		jobID, err := svc.Start(context.Background(), StartRequest{Destination: "Kyoto", DurationDays: 1})
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
		if _, dup := seen[jobID]; dup {
			t.Fatalf("job id %q issued twice", jobID)
		}
		seen[jobID] = struct{}{}
	}
}

func TestGetMapsDocument(t *testing.T) {
	completed := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.record = map[string]any{
		"status":       "completed",
		"destination":  "Kyoto",
		"durationDays": int64(3),
		"createdAt":    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		"completedAt":  completed,
		"error":        "",
		"itinerary": []any{
			map[string]any{"day": int64(1), "theme": "Arrival", "activities": []any{
				map[string]any{"time": "Morning", "description": "Land", "location": "Airport"},
			}},
		},
	}
	svc := newTestService(store, &fakeGenerator{})

	job, err := svc.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %q", job.Status)
	}
	if job.DurationDays != 3 {
		t.Fatalf("DurationDays = %d", job.DurationDays)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(completed) {
		t.Fatalf("CompletedAt = %v", job.CompletedAt)
	}
	if len(job.Itinerary) != 1 || job.Itinerary[0].Theme != "Arrival" {
		t.Fatalf("Itinerary = %#v", job.Itinerary)
	}
	if job.Itinerary[0].Activities[0].Time != domain.TimeMorning {
		t.Fatalf("Activity time = %q", job.Itinerary[0].Activities[0].Time)
	}
}

func TestGetNotFound(t *testing.T) {
	store := newFakeStore()
	store.getErr = domain.ErrNotFound
	svc := newTestService(store, &fakeGenerator{})

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
