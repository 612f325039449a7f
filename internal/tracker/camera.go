package tracker

import (
	"time"

	"github.com/paulmach/orb"
)

type CameraKind string

const (
	CameraEase CameraKind = "ease"
	CameraFly  CameraKind = "fly"
	CameraFit  CameraKind = "fit"
)

const (
	followDuration     = 500 * time.Millisecond
	transitionDuration = time.Second
	navigationPitch    = 50.0
	overviewZoom       = 13.0
	recordingZoom      = 16.0
	navigationZoom     = 17.0
	destinationZoom    = 14.0
	fitPadding         = 50
	movingSpeedMps     = 1.0
)

// CameraCommand is one viewport instruction for the map client. Nil fields
// keep the current value.
type CameraCommand struct {
	Kind       CameraKind    `json:"kind"`
	Center     *orb.Point    `json:"center,omitempty"`
	Zoom       *float64      `json:"zoom,omitempty"`
	Bearing    *float64      `json:"bearing,omitempty"`
	Pitch      *float64      `json:"pitch,omitempty"`
	Bounds     *[2]orb.Point `json:"bounds,omitempty"`
	Padding    int           `json:"padding,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	Linear     bool          `json:"linear,omitempty"`
}

// Camera owns the Tracking Flag and the animation-in-progress state.
// Follow updates are suppressed while an earlier animation is still running.
type Camera struct {
	tracking  bool
	busyUntil time.Time
	pending   []CameraCommand
}

func (c *Camera) Tracking() bool {
	return c.tracking
}

func (c *Camera) Animating(now time.Time) bool {
	return now.Before(c.busyUntil)
}

func (c *Camera) issue(now time.Time, cmd CameraCommand, d time.Duration) {
	cmd.DurationMs = d.Milliseconds()
	c.pending = append(c.pending, cmd)
	if end := now.Add(d); end.After(c.busyUntil) {
		c.busyUntil = end
	}
}

// follow centers on the user unless an animation is running.
func (c *Camera) follow(now time.Time, center orb.Point, bearing, pitch float64) bool {
	if c.Animating(now) {
		return false
	}
	c.issue(now, CameraCommand{
		Kind:    CameraEase,
		Center:  &center,
		Bearing: &bearing,
		Pitch:   &pitch,
		Linear:  true,
	}, followDuration)
	return true
}

// done marks the running animation as finished.
func (c *Camera) done() {
	c.busyUntil = time.Time{}
}

func (c *Camera) drain() []CameraCommand {
	out := c.pending
	c.pending = nil
	return out
}

// Rotation picks the marker and bearing heading. Moving faster than 1 m/s
// trusts the GPS course, otherwise the compass wins when present.
func Rotation(s Sample) float64 {
	speed := 0.0
	if s.Speed != nil {
		speed = *s.Speed
	}
	switch {
	case speed > movingSpeedMps && s.Heading != nil:
		return *s.Heading
	case s.CompassHeading != nil:
		return *s.CompassHeading
	case s.Heading != nil:
		return *s.Heading
	}
	return 0
}

func headingOrZero(s Sample) float64 {
	if s.Heading == nil {
		return 0
	}
	return *s.Heading
}

func f64(v float64) *float64 {
	return &v
}
