package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"backend-bikevillage/internal/mapbox"
	"backend-bikevillage/internal/metrics"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// Router plans a route between two points.
type Router interface {
	Directions(ctx context.Context, profile mapbox.Profile, from, to orb.Point) (mapbox.Route, error)
}

// Recorder persists finished recordings.
type Recorder interface {
	SaveRecording(ctx context.Context, userID string, rec Recording) error
}

type RecorderFunc func(ctx context.Context, userID string, rec Recording) error

func (f RecorderFunc) SaveRecording(ctx context.Context, userID string, rec Recording) error {
	return f(ctx, userID, rec)
}

// Publisher fans snapshots out to stream subscribers.
type Publisher interface {
	Broadcast(sessionID string, payload []byte)
}

// Session owns one Machine. Every mutation runs on the Run goroutine, so
// route results, ticks and client input never interleave.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	machine *Machine
	ops     chan func()
	done    chan struct{}
	cancel  context.CancelFunc

	router       Router
	recorder     Recorder
	publisher    Publisher
	metrics      *metrics.Registry
	log          *zap.SugaredLogger
	tick         time.Duration
	routeTimeout time.Duration
	saveTimeout  time.Duration

	// owned by the Run goroutine
	runCtx     context.Context
	planCancel context.CancelFunc

	bg sync.WaitGroup

	now        func() time.Time
	lastActive atomic.Int64
}

func newSession(id, userID string, opts Options) *Session {
	s := &Session{
		ID:           id,
		UserID:       userID,
		CreatedAt:    opts.Now(),
		machine:      NewMachine(opts.Bounds, opts.Now),
		ops:          make(chan func(), 16),
		done:         make(chan struct{}),
		cancel:       func() {},
		router:       opts.Router,
		recorder:     opts.Recorder,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		log:          opts.Log.With("session_id", id, "user_id", userID),
		tick:         opts.Tick,
		routeTimeout: opts.RouteTimeout,
		saveTimeout:  opts.SaveTimeout,
		now:          opts.Now,
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

// idleSince reports whether the last operation happened before t.
func (s *Session) idleSince(t time.Time) bool {
	return s.lastActive.Load() < t.UnixNano()
}

// Run processes operations until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	s.runCtx = ctx

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cancelPlanning()
			return
		case op := <-s.ops:
			op()
		case <-ticker.C:
			if s.machine.Tick() {
				s.publish(s.snapshot())
			}
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until background route lookups and saves have finished.
func (s *Session) Wait() {
	s.bg.Wait()
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.exec(ctx, false, func(*Machine) error { return nil })
}

func (s *Session) UpdateLocation(ctx context.Context, sample Sample) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error { return m.UpdateLocation(sample) })
}

func (s *Session) UpdateCompass(ctx context.Context, heading float64) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error { return m.UpdateCompass(heading) })
}

func (s *Session) ReportLocationError(ctx context.Context, msg string) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		m.SetLocationError(msg)
		return nil
	})
}

func (s *Session) StartRecording(ctx context.Context) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		if err := m.StartRecording(); err != nil {
			return err
		}
		s.cancelPlanning()
		return nil
	})
}

// PlanRoute requests directions to the current destination. The result is
// applied asynchronously and starts navigation; the returned snapshot shows
// the request as pending.
func (s *Session) PlanRoute(ctx context.Context) (Snapshot, error) {
	if s.router == nil {
		return Snapshot{}, ErrMapUnavailable
	}
	return s.exec(ctx, true, func(m *Machine) error {
		req, err := m.BeginRouteRequest()
		if err != nil {
			return err
		}
		s.dispatch(req)
		return nil
	})
}

// Stop ends any activity. A finished recording is saved in the background.
func (s *Session) Stop(ctx context.Context) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		rec, ok := m.Stop()
		s.cancelPlanning()
		if ok {
			s.save(rec)
		}
		return nil
	})
}

func (s *Session) SetDestination(ctx context.Context, d Destination, focus bool) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		if err := m.SetDestination(d, focus); err != nil {
			return err
		}
		s.cancelPlanning()
		return nil
	})
}

// SetProfile switches the travel profile and re-plans an active or pending
// route with it.
func (s *Session) SetProfile(ctx context.Context, p mapbox.Profile) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		replan, err := m.SetProfile(p)
		if err != nil || !replan || s.router == nil {
			return err
		}
		req, err := m.BeginRouteRequest()
		if err != nil {
			s.log.Warnw("skipping re-plan after profile change", "error", err)
			return nil
		}
		s.dispatch(req)
		return nil
	})
}

func (s *Session) Recenter(ctx context.Context) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		m.Recenter()
		return nil
	})
}

func (s *Session) Gesture(ctx context.Context) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		m.Gesture()
		return nil
	})
}

func (s *Session) AnimationDone(ctx context.Context) (Snapshot, error) {
	return s.exec(ctx, true, func(m *Machine) error {
		m.AnimationDone()
		return nil
	})
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Sample
}

// HandleMessage applies a message sent by the client over the stream.
// Supported types are location, orientation (heading is the compass value),
// location_error, gesture and camera_idle.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	var err error
	switch msg.Type {
	case "location":
		_, err = s.UpdateLocation(ctx, msg.Sample)
	case "orientation":
		if msg.Heading == nil {
			return ErrInvalidSample
		}
		_, err = s.UpdateCompass(ctx, *msg.Heading)
	case "location_error":
		_, err = s.ReportLocationError(ctx, msg.Message)
	case "gesture":
		_, err = s.Gesture(ctx)
	case "camera_idle":
		_, err = s.AnimationDone(ctx)
	default:
		return errors.New("unknown message type: " + msg.Type)
	}
	return err
}

func (s *Session) exec(ctx context.Context, publish bool, fn func(m *Machine) error) (Snapshot, error) {
	type result struct {
		snap Snapshot
		err  error
	}
	reply := make(chan result, 1)
	op := func() {
		s.touch()
		if err := fn(s.machine); err != nil {
			reply <- result{err: err}
			return
		}
		if !publish {
			snap := s.machine.Snapshot()
			snap.SessionID = s.ID
			reply <- result{snap: snap}
			return
		}
		snap := s.snapshot()
		s.publish(snap)
		reply <- result{snap: snap}
	}

	select {
	case s.ops <- op:
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.snap, r.err
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// post queues op from a background goroutine. It gives up once the session
// has stopped.
func (s *Session) post(op func()) {
	select {
	case s.ops <- op:
	case <-s.done:
	}
}

func (s *Session) dispatch(req RouteRequest) {
	s.cancelPlanning()
	ctx, cancel := context.WithTimeout(s.runCtx, s.routeTimeout)
	s.planCancel = cancel

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()
		route, err := s.router.Directions(ctx, req.Profile, req.From, req.To)
		s.post(func() { s.applyRoute(req, route, err) })
	}()
}

func (s *Session) applyRoute(req RouteRequest, route mapbox.Route, err error) {
	if err != nil {
		if !s.machine.FailRoute(req.Seq) {
			s.log.Debugw("ignoring failure of superseded route request", "seq", req.Seq, "error", err)
			return
		}
		s.log.Errorw("route planning failed", "seq", req.Seq, "profile", req.Profile, "error", err)
		s.publish(s.snapshot())
		return
	}

	if err := s.machine.ApplyRoute(req.Seq, route); err != nil {
		if errors.Is(err, ErrStaleRoute) {
			if s.metrics != nil {
				s.metrics.StaleRoutesDiscarded.Inc()
			}
			s.log.Debugw("discarding stale route", "seq", req.Seq, "latest", s.machine.Seq())
			return
		}
		s.log.Errorw("could not apply route", "seq", req.Seq, "error", err)
	}
	s.publish(s.snapshot())
}

func (s *Session) cancelPlanning() {
	if s.planCancel != nil {
		s.planCancel()
		s.planCancel = nil
	}
}

func (s *Session) save(rec Recording) {
	if s.recorder == nil {
		return
	}
	if len(rec.Path) < 2 {
		s.log.Infow("recording too short to save", "points", len(rec.Path))
		s.countSaved("skipped")
		return
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		defer cancel()
		if err := s.recorder.SaveRecording(ctx, s.UserID, rec); err != nil {
			s.log.Errorw("failed to save recording", "error", err)
			s.countSaved("error")
			return
		}
		s.countSaved("ok")
	}()
}

func (s *Session) countSaved(outcome string) {
	if s.metrics != nil {
		s.metrics.ActivitiesSavedTotal.WithLabelValues(outcome).Inc()
	}
}

// snapshot drains pending camera commands into the returned state.
func (s *Session) snapshot() Snapshot {
	snap := s.machine.Snapshot()
	snap.SessionID = s.ID
	snap.Camera = s.machine.DrainCamera()
	return snap
}

func (s *Session) publish(snap Snapshot) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		s.log.Errorw("failed to encode snapshot", "error", err)
		return
	}
	s.publisher.Broadcast(s.ID, payload)
}
