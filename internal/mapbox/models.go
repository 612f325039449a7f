package mapbox

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type Profile string

const (
	ProfileWalking Profile = "walking"
	ProfileCycling Profile = "cycling"
)

var (
	ErrMissingToken   = errors.New("map access token not configured")
	ErrNoRoute        = errors.New("no route found")
	ErrInvalidProfile = errors.New("profile must be walking or cycling")
)

// ParseProfile accepts the two transport profiles the directions service is
// queried with.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileWalking, ProfileCycling:
		return Profile(s), nil
	}
	return "", ErrInvalidProfile
}

// Route is the first route returned by the directions service.
type Route struct {
	Profile     Profile        `json:"profile"`
	Coordinates orb.LineString `json:"coordinates"`
	DistanceM   float64        `json:"distance_m"`
	DurationS   float64        `json:"duration_s"`
}

type Place struct {
	Center    orb.Point `json:"center"`
	Text      string    `json:"text"`
	PlaceName string    `json:"place_name"`
}

// MapSettings is what the client needs to build its map view.
type MapSettings struct {
	Style     string       `json:"style"`
	Center    orb.Point    `json:"center"`
	Zoom      float64      `json:"zoom"`
	MinZoom   float64      `json:"min_zoom"`
	MaxZoom   float64      `json:"max_zoom"`
	MaxBounds [2]orb.Point `json:"max_bounds"`
}

const (
	StyleLight = "mapbox://styles/mapbox/outdoors-v12"
	StyleDark  = "mapbox://styles/mapbox/dark-v11"
)

// DefaultCenter is Pilar de la Horadada.
var DefaultCenter = orb.Point{-0.79, 37.87}

type directionsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry *geojson.Geometry `json:"geometry"`
		Distance float64           `json:"distance"`
		Duration float64           `json:"duration"`
	} `json:"routes"`
}

type geocodingResponse struct {
	Features []struct {
		Center    []float64 `json:"center"`
		Text      string    `json:"text"`
		PlaceName string    `json:"place_name"`
	} `json:"features"`
}
