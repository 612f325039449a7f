package activity

import (
	"errors"
	"time"

	"github.com/tkrajina/gpxgo/gpx"
)

const gpxCreator = "BikeVillage"

// GPX renders the activity as a GPX 1.1 track. Point timestamps are spread
// evenly between start and end since samples are stored without times.
func GPX(a Activity) ([]byte, error) {
	if len(a.Path) == 0 {
		return nil, errors.New("activity has no path")
	}

	start := a.StartedAt.UTC()
	step := time.Duration(0)
	if n := len(a.Path); n > 1 && a.Duration() > 0 {
		step = a.Duration() / time.Duration(n-1)
	}

	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(a.Path))}
	for i, p := range a.Path {
		segment.Points = append(segment.Points, gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  p.Lat(),
				Longitude: p.Lon(),
			},
			Timestamp: start.Add(time.Duration(i) * step),
		})
	}

	doc := gpx.GPX{
		Version: "1.1",
		Creator: gpxCreator,
		Name:    a.Name,
		Time:    &start,
		Tracks: []gpx.GPXTrack{{
			Name:     a.Name,
			Type:     "cycling",
			Segments: []gpx.GPXTrackSegment{segment},
		}},
	}
	return doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
}
