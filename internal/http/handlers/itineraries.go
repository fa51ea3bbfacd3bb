package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tripplanner/internal/domain"
	"tripplanner/internal/itinerary"
	"tripplanner/internal/middleware"
)

type createItineraryRequest struct {
	Destination  string `json:"destination"`
	DurationDays int    `json:"durationDays"`
}

// ItinerariesCreate accepts an itinerary request, persists the processing
// document, and acknowledges with the job id. Generation continues after the
// response is returned.
func (a *App) ItinerariesCreate(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
		return
	}

	var req createItineraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	jobID, err := a.Service.Start(r.Context(), itinerary.StartRequest{
		Destination:   req.Destination,
		DurationDays:  req.DurationDays,
		Locale:        middleware.LocaleFromContext(r.Context()),
		OriginCountry: middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, itinerary.ErrValidation):
			a.error(w, http.StatusBadRequest, "bad_request", "destination must be non-empty and durationDays a positive integer")
		default:
			a.Logger.Error().Err(err).Msg("itinerary job initialization failed")
			a.error(w, http.StatusBadGateway, "initialization_failed", "could not persist job")
		}
		return
	}

	a.json(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// ItineraryStatus returns the current job document.
func (a *App) ItineraryStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := a.Service.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown job id")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("job status read failed")
		a.error(w, http.StatusBadGateway, "store_unavailable", "could not read job")
		return
	}

	a.json(w, http.StatusOK, job)
}
