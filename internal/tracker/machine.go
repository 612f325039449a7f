package tracker

import (
	"math"
	"time"

	"backend-bikevillage/internal/mapbox"
	"backend-bikevillage/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const compassInterval = 100 * time.Millisecond

// Machine is the live tracker state for one rider: mode, metrics, camera and
// route planning. It is not safe for concurrent use; Session serializes
// access to it.
type Machine struct {
	now    func() time.Time
	bounds orb.Bound

	mode          Mode
	location      *Sample
	locationError string
	lastCompass   time.Time

	baseline  *orb.Point
	startedAt time.Time
	path      orb.LineString
	stats     Stats

	profile     mapbox.Profile
	destination *Destination
	route       *mapbox.Route
	seq         uint64
	planning    bool

	camera Camera
}

// NewMachine starts in FREE mode with the walking profile. Destinations are
// restricted to bounds unless it is the zero Bound.
func NewMachine(bounds orb.Bound, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		now:     now,
		bounds:  bounds,
		mode:    ModeFree,
		profile: mapbox.ProfileWalking,
	}
}

func (m *Machine) Mode() Mode { return m.mode }
func (m *Machine) Stats() Stats { return m.stats }
func (m *Machine) Profile() mapbox.Profile { return m.profile }
func (m *Machine) Tracking() bool { return m.camera.Tracking() }
func (m *Machine) Destination() *Destination { return m.destination }
func (m *Machine) Route() *mapbox.Route { return m.route }
func (m *Machine) Seq() uint64 { return m.seq }
func (m *Machine) DrainCamera() []CameraCommand { return m.camera.drain() }

// UpdateLocation ingests a location sample. Outside FREE mode it advances the
// distance baseline and metrics, then follows the user when tracking.
func (m *Machine) UpdateLocation(s Sample) error {
	if err := s.validate(); err != nil {
		return err
	}
	s = s.normalized()
	if s.CompassHeading == nil && m.location != nil {
		s.CompassHeading = m.location.CompassHeading
	}
	m.location = &s
	m.locationError = ""

	if m.mode != ModeFree {
		m.advance(s)
	}
	m.follow()
	return nil
}

// UpdateCompass records a compass heading, at most once per 100 ms.
// Readings without a known location are dropped.
func (m *Machine) UpdateCompass(heading float64) error {
	if !finite(heading) {
		return ErrInvalidSample
	}
	if m.location == nil {
		return nil
	}
	now := m.now()
	if !m.lastCompass.IsZero() && now.Sub(m.lastCompass) < compassInterval {
		return nil
	}
	m.lastCompass = now
	h := math.Mod(heading+360, 360)
	m.location.CompassHeading = &h
	m.follow()
	return nil
}

func (m *Machine) SetLocationError(msg string) {
	m.locationError = msg
}

func (m *Machine) StartRecording() error {
	if m.mode != ModeFree {
		return ErrInvalidTransition
	}
	if m.location == nil {
		return ErrNoLocation
	}

	pos := m.location.Point()
	m.clearRoute()
	m.mode = ModeRecording
	m.camera.tracking = true
	m.startedAt = m.now()
	m.path = orb.LineString{pos}
	m.baseline = &pos
	m.stats = Stats{}

	m.camera.issue(m.now(), CameraCommand{
		Kind:    CameraEase,
		Center:  &pos,
		Zoom:    f64(recordingZoom),
		Bearing: f64(headingOrZero(*m.location)),
		Pitch:   f64(0),
	}, transitionDuration)
	return nil
}

// StartNavigation enters NAVIGATION from FREE. Calling it while already
// navigating re-centers the camera and resets the distance baseline.
func (m *Machine) StartNavigation() error {
	if m.mode == ModeRecording {
		return ErrInvalidTransition
	}
	if m.location == nil {
		return ErrNoLocation
	}

	pos := m.location.Point()
	m.mode = ModeNavigation
	m.camera.tracking = true
	m.baseline = &pos

	m.camera.issue(m.now(), CameraCommand{
		Kind:    CameraEase,
		Center:  &pos,
		Zoom:    f64(navigationZoom),
		Bearing: f64(headingOrZero(*m.location)),
		Pitch:   f64(navigationPitch),
	}, transitionDuration)
	return nil
}

// Stop returns to FREE from any mode and clears the activity. When a
// recording was running it is returned with ok set.
func (m *Machine) Stop() (rec Recording, ok bool) {
	now := m.now()
	if m.mode == ModeRecording {
		stats := m.stats
		stats.DurationMin = m.elapsedMin(now)
		stats.PaceMinPerKm = pace(stats.DurationMin, stats.DistanceKm)
		rec = Recording{
			StartedAt: m.startedAt,
			EndedAt:   now,
			Path:      m.path.Clone(),
			Stats:     stats,
		}
		ok = true
	}

	m.mode = ModeFree
	m.camera.tracking = false
	m.path = nil
	m.baseline = nil
	m.startedAt = time.Time{}
	m.stats = Stats{}
	m.clearRoute()

	m.camera.issue(now, CameraCommand{
		Kind:    CameraEase,
		Zoom:    f64(overviewZoom),
		Bearing: f64(0),
		Pitch:   f64(0),
	}, transitionDuration)
	return rec, ok
}

// Tick refreshes the elapsed time of a running recording. It reports
// whether anything changed.
func (m *Machine) Tick() bool {
	if m.mode != ModeRecording || m.startedAt.IsZero() {
		return false
	}
	m.stats.DurationMin = m.elapsedMin(m.now())
	m.stats.PaceMinPerKm = pace(m.stats.DurationMin, m.stats.DistanceKm)
	return true
}

// SetDestination picks a destination inside the map bounds. It is only
// allowed in FREE mode and drops any route planned for an earlier one.
func (m *Machine) SetDestination(d Destination, focus bool) error {
	if m.mode != ModeFree {
		return ErrActivityInProgress
	}
	if !finite(d.Lat) || !finite(d.Lng) {
		return ErrInvalidDestination
	}
	if !m.bounds.IsZero() && !m.bounds.Contains(d.Point()) {
		return ErrOutOfBounds
	}
	if d.Name == "" {
		d.Name = selectedLocationName
	}

	m.clearRoute()
	m.destination = &d
	if focus {
		center := d.Point()
		m.camera.issue(m.now(), CameraCommand{
			Kind:   CameraFly,
			Center: &center,
			Zoom:   f64(destinationZoom),
		}, transitionDuration)
	}
	return nil
}

// SetProfile switches the travel profile. It reports whether the active or
// pending route should be re-planned with the new profile.
func (m *Machine) SetProfile(p mapbox.Profile) (bool, error) {
	p, err := mapbox.ParseProfile(string(p))
	if err != nil {
		return false, err
	}
	if p == m.profile {
		return false, nil
	}
	m.profile = p
	return m.destination != nil && (m.mode == ModeNavigation || m.planning), nil
}

// BeginRouteRequest stamps a new request with the next sequence number.
// Results for any earlier request become stale.
func (m *Machine) BeginRouteRequest() (RouteRequest, error) {
	if m.mode == ModeRecording {
		return RouteRequest{}, ErrActivityInProgress
	}
	if m.location == nil {
		return RouteRequest{}, ErrNoLocation
	}
	if m.destination == nil {
		return RouteRequest{}, ErrNoDestination
	}
	m.seq++
	m.planning = true
	return RouteRequest{
		Seq:     m.seq,
		Profile: m.profile,
		From:    m.location.Point(),
		To:      m.destination.Point(),
	}, nil
}

// ApplyRoute installs the result of request seq. Stale results are rejected
// without touching state. From FREE the camera fits the whole route before
// navigation starts.
func (m *Machine) ApplyRoute(seq uint64, r mapbox.Route) error {
	if !m.planning || seq != m.seq {
		return ErrStaleRoute
	}
	m.planning = false
	if len(r.Coordinates) == 0 {
		return mapbox.ErrNoRoute
	}

	r.Coordinates = r.Coordinates.Clone()
	m.route = &r
	m.stats = Stats{
		SpeedKmh:    m.location.SpeedKmh(),
		DistanceKm:  r.DistanceM / 1000,
		DurationMin: r.DurationS / 60,
	}

	if m.mode == ModeFree {
		start := m.location.Point()
		b := geo.Extend(orb.Bound{Min: start, Max: start}, r.Coordinates)
		m.camera.issue(m.now(), CameraCommand{
			Kind:    CameraFit,
			Bounds:  &[2]orb.Point{b.Min, b.Max},
			Padding: fitPadding,
		}, transitionDuration)
	}
	return m.StartNavigation()
}

// FailRoute clears the pending flag when seq is still the latest request.
func (m *Machine) FailRoute(seq uint64) bool {
	if !m.planning || seq != m.seq {
		return false
	}
	m.planning = false
	return true
}

// Gesture is a user drag or rotate on the map; it releases the follow camera
// during an activity.
func (m *Machine) Gesture() {
	if m.mode != ModeFree {
		m.camera.tracking = false
	}
}

func (m *Machine) Recenter() {
	m.camera.tracking = true
	if m.location == nil {
		return
	}
	pos := m.location.Point()
	m.camera.issue(m.now(), CameraCommand{
		Kind:    CameraFly,
		Center:  &pos,
		Zoom:    f64(navigationZoom),
		Bearing: f64(headingOrZero(*m.location)),
		Pitch:   f64(m.pitch()),
	}, transitionDuration)
}

func (m *Machine) AnimationDone() {
	m.camera.done()
}

func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		Mode:          m.mode,
		Tracking:      m.Tracking(),
		Profile:       m.profile,
		Stats:         m.stats,
		LocationError: m.locationError,
		Planning:      m.planning,
		RouteLayer:    m.routeLayer(),
		PathLayer:     m.pathLayer(),
		UpdatedAt:     m.now(),
	}
	if m.location != nil {
		loc := *m.location
		snap.Location = &loc
		snap.Marker = &Marker{Position: loc.Point(), Rotation: Rotation(loc)}
	}
	if m.destination != nil {
		d := *m.destination
		snap.Destination = &d
	}
	if m.route != nil {
		snap.Route = &RouteSummary{
			Profile:   m.route.Profile,
			DistanceM: m.route.DistanceM,
			DurationS: m.route.DurationS,
			Points:    len(m.route.Coordinates),
		}
	}
	return snap
}

func (m *Machine) advance(s Sample) {
	pos := s.Point()
	inc := 0.0
	if m.baseline != nil {
		inc = geo.DistanceKm(*m.baseline, pos)
	}
	m.baseline = &pos
	speed := s.SpeedKmh()

	switch m.mode {
	case ModeRecording:
		m.path = append(m.path, pos)
		distance := m.stats.DistanceKm + inc
		elapsed := m.elapsedMin(m.now())
		m.stats = Stats{
			SpeedKmh:     speed,
			DistanceKm:   distance,
			DurationMin:  elapsed,
			PaceMinPerKm: pace(elapsed, distance),
		}
	case ModeNavigation:
		// ETA heuristic: the distance just covered, at current speed, comes
		// off the remaining time. A stationary rider counts as 1 km/min.
		perMin := speed / 60
		if perMin == 0 {
			perMin = 1
		}
		m.stats.SpeedKmh = speed
		m.stats.DistanceKm = math.Max(0, m.stats.DistanceKm-inc)
		m.stats.DurationMin = math.Max(0, m.stats.DurationMin-inc/perMin)
	}
}

func (m *Machine) follow() {
	if m.location == nil || m.mode == ModeFree || !m.camera.tracking {
		return
	}
	m.camera.follow(m.now(), m.location.Point(), Rotation(*m.location), m.pitch())
}

func (m *Machine) pitch() float64 {
	if m.mode == ModeNavigation {
		return navigationPitch
	}
	return 0
}

func (m *Machine) clearRoute() {
	m.destination = nil
	m.route = nil
	m.planning = false
	m.seq++
}

func (m *Machine) elapsedMin(now time.Time) float64 {
	if m.startedAt.IsZero() {
		return 0
	}
	return math.Max(0, now.Sub(m.startedAt).Minutes())
}

func (m *Machine) routeLayer() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if m.route != nil && len(m.route.Coordinates) > 0 {
		fc.Append(geojson.NewFeature(m.route.Coordinates.Clone()))
	}
	return fc
}

func (m *Machine) pathLayer() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if m.mode == ModeRecording && len(m.path) > 0 {
		fc.Append(geojson.NewFeature(m.path.Clone()))
	}
	return fc
}

func pace(durationMin, distanceKm float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	p := durationMin / distanceKm
	if !finite(p) {
		return 0
	}
	return p
}
