// Package monitor implements per-user proximity-notification sessions. A
// session is driven by pushed location fixes: on each fix it walks the live
// point snapshot and raises one alert per point per session the first time
// the rider comes within the configured radius.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/bike-help/internal/geo"
	"github.com/example/bike-help/internal/models"
	"github.com/example/bike-help/internal/observability"
	"github.com/example/bike-help/internal/storage"
)

// ErrSharingDisabled is returned by Start when the user's location-sharing
// toggle is off. The caller surfaces it; the monitor never retries.
var ErrSharingDisabled = errors.New("location sharing is disabled")

// DefaultRadiusMeters is the nearby-alert threshold.
const DefaultRadiusMeters = 200.0

// PointSource supplies the candidate point set for a tick. A failed fetch is
// non-fatal: the tick simply runs with zero candidates.
type PointSource interface {
	Snapshot(ctx context.Context) ([]models.MapPoint, error)
}

// Notifier presents an alert to the user. Delivery is best-effort and its
// completion is never awaited by the session loop.
type Notifier interface {
	Notify(a models.Alert) error
}

type Manager struct {
	source   PointSource
	notifier Notifier
	settings storage.SettingsStore
	radius   float64
	queue    int
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(source PointSource, notifier Notifier, settings storage.SettingsStore, radiusMeters float64, logger *slog.Logger) *Manager {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return &Manager{
		source:   source,
		notifier: notifier,
		settings: settings,
		radius:   radiusMeters,
		queue:    16,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Start begins a monitoring session for userID, replacing any running one.
// Dedup state always starts empty: a point notified in a previous session may
// be notified again. Start fails fast when sharing is disabled.
func (m *Manager) Start(ctx context.Context, userID string) error {
	enabled, err := m.settings.SharingEnabled(ctx, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrSharingDisabled
	}

	s := newSession(m, userID)
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	m.mu.Lock()
	if old, ok := m.sessions[userID]; ok {
		old.cancel()
		observability.SessionsActive.Dec()
	}
	m.sessions[userID] = s
	m.mu.Unlock()

	observability.SessionsActive.Inc()
	m.logger.Info("monitor session started", "user_id", userID)
	go s.run(sctx)
	return nil
}

// Stop tears down the user's session. In-flight snapshot fetches or alert
// deliveries finishing afterwards are harmless no-ops.
func (m *Manager) Stop(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.cancel()
	observability.SessionsActive.Dec()
	m.logger.Info("monitor session stopped", "user_id", userID)
	return true
}

// StopAll stops every session, for shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
		observability.SessionsActive.Dec()
	}
}

func (m *Manager) Running(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// Deliver hands a fix to the user's session without blocking the caller.
// Fixes for absent sessions, and fixes arriving faster than the session can
// process, are dropped.
func (m *Manager) Deliver(f models.LocationFix) bool {
	m.mu.Lock()
	s, ok := m.sessions[f.UserID]
	m.mu.Unlock()
	if !ok {
		observability.FixesDropped.Inc()
		return false
	}
	select {
	case s.fixes <- f:
		return true
	default:
		observability.FixesDropped.Inc()
		return false
	}
}

// session owns its notified set exclusively; it is only touched from the
// session's single goroutine.
type session struct {
	m        *Manager
	userID   string
	cancel   context.CancelFunc
	fixes    chan models.LocationFix
	notified map[string]struct{}
}

func newSession(m *Manager, userID string) *session {
	return &session{
		m:        m,
		userID:   userID,
		fixes:    make(chan models.LocationFix, m.queue),
		notified: make(map[string]struct{}),
	}
}

func (s *session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.fixes:
			s.processFix(ctx, f)
		}
	}
}

// processFix recomputes distances against the current snapshot and alerts for
// every not-yet-notified point inside the radius. Duplicate or out-of-order
// fixes cannot produce duplicate alerts: the id is recorded before dispatch.
func (s *session) processFix(ctx context.Context, f models.LocationFix) {
	points, err := s.m.source.Snapshot(ctx)
	if err != nil {
		// Zero candidates this tick; the session keeps running.
		observability.SnapshotMisses.Inc()
		s.m.logger.Warn("point set unavailable for tick", "user_id", s.userID, "error", err)
		return
	}
	for _, p := range points {
		if _, done := s.notified[p.ID]; done {
			continue
		}
		if !geo.Within(f.Loc, p.Loc, s.m.radius) {
			continue
		}
		s.notified[p.ID] = struct{}{}
		a := models.Alert{
			UserID:  s.userID,
			PointID: p.ID,
			Title:   "Nearby point",
			Body:    fmt.Sprintf("%q is within %.0f meters of your location.", p.Name, s.m.radius),
			At:      time.Now(),
		}
		observability.AlertsTotal.Inc()
		go s.deliver(a)
	}
}

func (s *session) deliver(a models.Alert) {
	if err := s.m.notifier.Notify(a); err != nil {
		s.m.logger.Warn("alert delivery failed", "user_id", a.UserID, "point_id", a.PointID, "error", err)
	}
}
