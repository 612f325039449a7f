package activity

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
)

var ErrNotFound = errors.New("activity not found")

// Activity is a saved recording ("my routes").
type Activity struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
	DistanceKm   float64        `json:"distance_km"`
	DurationMin  float64        `json:"duration_min"`
	PaceMinPerKm float64        `json:"pace_min_per_km"`
	AvgSpeedKmh  float64        `json:"avg_speed_kmh"`
	Path         orb.LineString `json:"path,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
