package domain

import "time"

// JobStatus enumerates itinerary job lifecycle states. Processing is the only
// initial state; Completed and Failed are terminal and never transitioned out of.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// TimeOfDay enumerates the slots an activity can occupy within a day.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "Morning"
	TimeAfternoon TimeOfDay = "Afternoon"
	TimeEvening   TimeOfDay = "Evening"
)

// Job tracks one itinerary-generation request end-to-end. The in-process value
// is transient; the document store owns the record once persisted.
type Job struct {
	ID           string     `json:"jobId"`
	Status       JobStatus  `json:"status"`
	Destination  string     `json:"destination"`
	DurationDays int        `json:"durationDays"`
	Itinerary    []Day      `json:"itinerary"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	Error        string     `json:"error,omitempty"`
}

// Day is one day of a generated itinerary.
type Day struct {
	Day        int        `json:"day"`
	Theme      string     `json:"theme"`
	Activities []Activity `json:"activities"`
}

// Activity is a single itinerary entry within a day.
type Activity struct {
	Time        TimeOfDay `json:"time"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
