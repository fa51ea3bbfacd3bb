package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tripplanner/internal/domain"
	"tripplanner/internal/gemini"
	"tripplanner/internal/http/handlers"
	"tripplanner/internal/http/httpapi"
	"tripplanner/internal/itinerary"
)

type fakeStore struct {
	mu      sync.Mutex
	upserts int
	record  map[string]any
	getErr  error
}

func (f *fakeStore) Upsert(ctx context.Context, jobID string, record map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	return nil
}

func (f *fakeStore) Get(ctx context.Context, jobID string) (map[string]any, error) {
	return f.record, f.getErr
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

type fakeGenerator struct{}

func (fakeGenerator) GenerateItinerary(ctx context.Context, req gemini.ItineraryRequest) ([]any, error) {
	return []any{}, nil
}

func newTestServer(store *fakeStore) http.Handler {
	service := itinerary.NewService(itinerary.Options{
		Store:     store,
		Generator: fakeGenerator{},
		Logger:    zerolog.Nop(),
	})
	app := handlers.NewApp(service, zerolog.Nop())
	return httpapi.NewRouter(app, zerolog.Nop(), nil)
}

func TestCreateItineraryAccepted(t *testing.T) {
	store := &fakeStore{}
	router := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/v1/itineraries", strings.NewReader(`{"destination":"Kyoto","durationDays":3}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["jobId"] == "" {
		t.Fatal("response missing jobId")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if store.writes() < 1 {
		t.Fatal("processing document was not written before the acknowledgment")
	}
}

func TestCreateItineraryValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty destination", `{"destination":"","durationDays":3}`},
		{"missing destination", `{"durationDays":3}`},
		{"zero days", `{"destination":"Kyoto","durationDays":0}`},
		{"negative days", `{"destination":"Kyoto","durationDays":-1}`},
		{"fractional days", `{"destination":"Kyoto","durationDays":2.5}`},
		{"malformed json", `{"destination":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			router := newTestServer(store)

			req := httptest.NewRequest(http.MethodPost, "/v1/itineraries", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			time.Sleep(20 * time.Millisecond)
			if store.writes() != 0 {
				t.Fatal("no document may be written for invalid input")
			}
		})
	}
}

func TestCreateItineraryRequiresJSONContentType(t *testing.T) {
	router := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/v1/itineraries", strings.NewReader(`destination=Kyoto`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestPreflightIsEmptyNoContent(t *testing.T) {
	router := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/itineraries", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight body = %q, want empty", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("Access-Control-Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestItineraryStatus(t *testing.T) {
	store := &fakeStore{record: map[string]any{
		"status":       "processing",
		"destination":  "Kyoto",
		"durationDays": int64(3),
		"createdAt":    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}}
	router := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/itineraries/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var job domain.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.Destination != "Kyoto" {
		t.Fatalf("job = %+v", job)
	}
}

func TestItineraryStatusNotFound(t *testing.T) {
	store := &fakeStore{getErr: domain.ErrNotFound}
	router := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/itineraries/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
