package tracker

import (
	"context"
	"sync"
	"time"

	"backend-bikevillage/internal/metrics"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Router    Router
	Recorder  Recorder
	Publisher Publisher
	Metrics   *metrics.Registry
	Log       *zap.SugaredLogger
	Bounds    orb.Bound

	Tick         time.Duration
	RouteTimeout time.Duration
	SaveTimeout  time.Duration
	// IdleTimeout is how long a session may go without operations or
	// stream subscribers before it is stopped and removed.
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	Now          func() time.Time
}

// subscriberCounter is implemented by publishers that know which sessions
// have live stream clients.
type subscriberCounter interface {
	Subscribers(sessionID string) int
}

func (o *Options) defaults() {
	if o.Log == nil {
		o.Log = zap.NewNop().Sugar()
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.RouteTimeout <= 0 {
		o.RouteTimeout = 10 * time.Second
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Minute
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = o.IdleTimeout / 2
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager keeps the live sessions and runs each on its own goroutine.
type Manager struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]*Session
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewManager(opts Options) *Manager {
	opts.defaults()
	base, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(base)
	m := &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
		group:    group,
	}
	group.Go(func() error {
		m.reapLoop(ctx)
		return nil
	})
	return m
}

// Create returns the user's live session, starting one if there is none.
// A user holds at most one session at a time.
func (m *Manager) Create(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerShuttingDown
	}
	if s, ok := m.byUser[userID]; ok {
		s.touch()
		return s, nil
	}

	s := newSession(uuid.NewString(), userID, m.opts)
	ctx, cancel := context.WithCancel(m.ctx)
	s.cancel = cancel
	m.sessions[s.ID] = s
	m.byUser[userID] = s
	if m.opts.Metrics != nil {
		m.opts.Metrics.TrackerSessionsActive.Inc()
	}

	m.group.Go(func() error {
		s.Run(ctx)
		s.Wait()
		return nil
	})
	s.log.Infow("tracker session started")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Owned returns the session only if it belongs to userID.
func (m *Manager) Owned(id, userID string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, ErrForbidden
	}
	return s, nil
}

// Close stops a session and waits for its loop to exit. A running recording
// is discarded, not saved.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		m.remove(s)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	m.stop(s)
	s.log.Infow("tracker session closed")
	return nil
}

// remove drops s from the indexes. Callers hold m.mu.
func (m *Manager) remove(s *Session) {
	delete(m.sessions, s.ID)
	if m.byUser[s.UserID] == s {
		delete(m.byUser, s.UserID)
	}
}

func (m *Manager) stop(s *Session) {
	s.cancel()
	<-s.done
	if m.opts.Metrics != nil {
		m.opts.Metrics.TrackerSessionsActive.Dec()
	}
}

func (m *Manager) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle(ctx)
		}
	}
}

// reapIdle stops sessions that have been idle past IdleTimeout and have no
// stream subscribers. A running recording is saved first.
func (m *Manager) reapIdle(ctx context.Context) {
	cutoff := m.opts.Now().Add(-m.opts.IdleTimeout)
	counter, _ := m.opts.Publisher.(subscriberCounter)

	var idle []*Session
	m.mu.Lock()
	for _, s := range m.sessions {
		if !s.idleSince(cutoff) {
			continue
		}
		if counter != nil && counter.Subscribers(s.ID) > 0 {
			continue
		}
		m.remove(s)
		idle = append(idle, s)
	}
	m.mu.Unlock()

	for _, s := range idle {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if _, err := s.Stop(stopCtx); err != nil {
			s.log.Warnw("could not stop idle session cleanly", "error", err)
		}
		cancel()
		m.stop(s)
		if m.opts.Metrics != nil {
			m.opts.Metrics.TrackerSessionsReaped.Inc()
		}
		s.log.Infow("idle tracker session reaped")
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// HandleStreamMessage routes a client stream message to its session.
func (m *Manager) HandleStreamMessage(sessionID string, raw []byte) {
	s, err := m.Get(sessionID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()
	if err := s.HandleMessage(ctx, raw); err != nil {
		s.log.Debugw("rejected stream message", "error", err)
	}
}

// Shutdown stops every session and waits for them, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	n := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.byUser = make(map[string]*Session)
	m.mu.Unlock()

	m.cancel()
	if m.opts.Metrics != nil {
		m.opts.Metrics.TrackerSessionsActive.Sub(float64(n))
	}

	done := make(chan error, 1)
	go func() { done <- m.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
