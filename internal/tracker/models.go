package tracker

import (
	"errors"
	"math"
	"time"

	"backend-bikevillage/internal/mapbox"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type Mode string

const (
	ModeFree       Mode = "FREE"
	ModeRecording  Mode = "RECORDING"
	ModeNavigation Mode = "NAVIGATION"
)

var (
	ErrNoLocation          = errors.New("no location available")
	ErrNoDestination       = errors.New("no destination selected")
	ErrInvalidTransition   = errors.New("activity already in progress")
	ErrActivityInProgress  = errors.New("not allowed while an activity is in progress")
	ErrOutOfBounds         = errors.New("destination outside the map area")
	ErrInvalidSample       = errors.New("invalid location sample")
	ErrInvalidDestination  = errors.New("invalid destination")
	ErrStaleRoute          = errors.New("route response superseded by a newer request")
	ErrMapUnavailable      = errors.New("map service not configured")
	ErrSessionNotFound     = errors.New("tracker session not found")
	ErrSessionClosed       = errors.New("tracker session closed")
	ErrForbidden           = errors.New("tracker session belongs to another user")
	ErrManagerShuttingDown = errors.New("tracker is shutting down")
)

// Sample is one fix from the device location source. Speed is m/s, headings
// are degrees clockwise from north.
type Sample struct {
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	Speed          *float64 `json:"speed"`
	Heading        *float64 `json:"heading"`
	CompassHeading *float64 `json:"compass_heading,omitempty"`
}

func (s Sample) Point() orb.Point {
	return orb.Point{s.Lng, s.Lat}
}

// SpeedKmh converts the sample speed; an unknown speed reads as 0.
func (s Sample) SpeedKmh() float64 {
	if s.Speed == nil {
		return 0
	}
	return *s.Speed * 3.6
}

func (s Sample) validate() error {
	if !finite(s.Lat) || !finite(s.Lng) || s.Lat < -90 || s.Lat > 90 || s.Lng < -180 || s.Lng > 180 {
		return ErrInvalidSample
	}
	for _, v := range []*float64{s.Speed, s.Heading, s.CompassHeading} {
		if v != nil && !finite(*v) {
			return ErrInvalidSample
		}
	}
	return nil
}

// normalized drops negative speeds, which some devices report for "unknown".
func (s Sample) normalized() Sample {
	if s.Speed != nil && *s.Speed < 0 {
		s.Speed = nil
	}
	return s
}

type Stats struct {
	SpeedKmh     float64 `json:"speed_kmh"`
	DistanceKm   float64 `json:"distance_km"`
	DurationMin  float64 `json:"duration_min"`
	PaceMinPerKm float64 `json:"pace_min_per_km"`
}

const selectedLocationName = "Ubicación seleccionada"

type Destination struct {
	Lng  float64 `json:"lng"`
	Lat  float64 `json:"lat"`
	Name string  `json:"name"`
}

func (d Destination) Point() orb.Point {
	return orb.Point{d.Lng, d.Lat}
}

// Recording is a finished RECORDING activity, handed to the Recorder on stop.
type Recording struct {
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Path      orb.LineString `json:"path"`
	Stats     Stats          `json:"stats"`
}

type Marker struct {
	Position orb.Point `json:"position"`
	Rotation float64   `json:"rotation"`
}

type RouteSummary struct {
	Profile   mapbox.Profile `json:"profile"`
	DistanceM float64        `json:"distance_m"`
	DurationS float64        `json:"duration_s"`
	Points    int            `json:"points"`
}

// RouteRequest is one directions lookup. Seq orders requests; only the
// latest one may be applied.
type RouteRequest struct {
	Seq     uint64
	Profile mapbox.Profile
	From    orb.Point
	To      orb.Point
}

// Snapshot is the HUD state pushed to clients after every change.
type Snapshot struct {
	SessionID     string                     `json:"session_id"`
	Mode          Mode                       `json:"mode"`
	Tracking      bool                       `json:"tracking"`
	Profile       mapbox.Profile             `json:"profile"`
	Stats         Stats                      `json:"stats"`
	Location      *Sample                    `json:"location,omitempty"`
	LocationError string                     `json:"location_error,omitempty"`
	Marker        *Marker                    `json:"marker,omitempty"`
	Destination   *Destination               `json:"destination,omitempty"`
	Route         *RouteSummary              `json:"route,omitempty"`
	Planning      bool                       `json:"planning"`
	RouteLayer    *geojson.FeatureCollection `json:"route_layer"`
	PathLayer     *geojson.FeatureCollection `json:"path_layer"`
	Camera        []CameraCommand            `json:"camera,omitempty"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
