package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/bike-help/internal/models"
	"github.com/example/bike-help/internal/storage"
)

type fakeSource struct {
	points []models.MapPoint
	err    error
}

func (f *fakeSource) Snapshot(ctx context.Context) ([]models.MapPoint, error) {
	return f.points, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
	ch     chan models.Alert
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan models.Alert, 16)}
}

func (r *recordingNotifier) Notify(a models.Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
	r.ch <- a
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func enabledSettings(t *testing.T, userID string) storage.SettingsStore {
	t.Helper()
	s := storage.NewMemorySettings()
	if err := s.SetSharingEnabled(context.Background(), userID, true); err != nil {
		t.Fatal(err)
	}
	return s
}

func fixAt(userID string, lat, lon float64) models.LocationFix {
	return models.LocationFix{UserID: userID, Loc: models.Coord{Lat: lat, Lon: lon}, RecordedAt: time.Now()}
}

func TestAtMostOneAlertPerPointPerSession(t *testing.T) {
	src := &fakeSource{points: []models.MapPoint{
		{ID: "p1", Name: "pump", Loc: models.Coord{Lat: 0, Lon: 0}},
	}}
	n := newRecordingNotifier()
	m := NewManager(src, n, enabledSettings(t, "u1"), 200, slog.Default())

	s := newSession(m, "u1")
	ctx := context.Background()
	// Two fixes inside the radius, one of them a duplicate position.
	s.processFix(ctx, fixAt("u1", 0, 0))
	s.processFix(ctx, fixAt("u1", 0, 0.0005))

	select {
	case a := <-n.ch:
		if a.PointID != "p1" {
			t.Fatalf("unexpected point %s", a.PointID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected one alert")
	}
	if len(s.notified) != 1 {
		t.Fatalf("expected one notified id, got %d", len(s.notified))
	}
	select {
	case a := <-n.ch:
		t.Fatalf("unexpected second alert for %s", a.PointID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLeaveAndReenterDoesNotRenotify(t *testing.T) {
	src := &fakeSource{points: []models.MapPoint{
		{ID: "p1", Name: "pump", Loc: models.Coord{Lat: 0, Lon: 0}},
	}}
	n := newRecordingNotifier()
	m := NewManager(src, n, enabledSettings(t, "u1"), 200, slog.Default())

	s := newSession(m, "u1")
	ctx := context.Background()
	s.processFix(ctx, fixAt("u1", 0, 0))      // inside
	s.processFix(ctx, fixAt("u1", 1, 1))      // far outside
	s.processFix(ctx, fixAt("u1", 0, 0.0001)) // back inside
	<-n.ch
	select {
	case <-n.ch:
		t.Fatal("re-entering the radius must not re-notify within a session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRadiusClassificationIsGeodesic(t *testing.T) {
	src := &fakeSource{points: []models.MapPoint{
		{ID: "A", Name: "a", Loc: models.Coord{Lat: 0, Lon: 0}},
		{ID: "B", Name: "b", Loc: models.Coord{Lat: 0, Lon: 0.002}}, // ~222m
	}}
	n := newRecordingNotifier()
	m := NewManager(src, n, enabledSettings(t, "u1"), 200, slog.Default())

	s := newSession(m, "u1")
	s.processFix(context.Background(), fixAt("u1", 0, 0))

	a := <-n.ch
	if a.PointID != "A" {
		t.Fatalf("expected alert for A, got %s", a.PointID)
	}
	if _, hit := s.notified["B"]; hit {
		t.Fatal("B at ~222m must stay outside a 200m radius")
	}
}

func TestSnapshotFailureIsNonFatal(t *testing.T) {
	src := &fakeSource{err: errors.New("store down")}
	n := newRecordingNotifier()
	m := NewManager(src, n, enabledSettings(t, "u1"), 200, slog.Default())

	s := newSession(m, "u1")
	s.processFix(context.Background(), fixAt("u1", 0, 0))
	if n.count() != 0 {
		t.Fatal("failed fetch must behave as zero candidates")
	}

	// Recovery on a later tick still alerts.
	src.err = nil
	src.points = []models.MapPoint{{ID: "p1", Name: "pump", Loc: models.Coord{Lat: 0, Lon: 0}}}
	s.processFix(context.Background(), fixAt("u1", 0, 0))
	select {
	case <-n.ch:
	case <-time.After(time.Second):
		t.Fatal("expected alert after the source recovered")
	}
}

func TestStartRequiresSharingEnabled(t *testing.T) {
	src := &fakeSource{}
	n := newRecordingNotifier()
	m := NewManager(src, n, storage.NewMemorySettings(), 200, slog.Default())

	if err := m.Start(context.Background(), "u1"); !errors.Is(err, ErrSharingDisabled) {
		t.Fatalf("expected ErrSharingDisabled, got %v", err)
	}
	if m.Running("u1") {
		t.Fatal("session must not be running after a failed start")
	}
}

func TestRestartClearsDedupState(t *testing.T) {
	src := &fakeSource{points: []models.MapPoint{
		{ID: "p1", Name: "pump", Loc: models.Coord{Lat: 0, Lon: 0}},
	}}
	n := newRecordingNotifier()
	m := NewManager(src, n, enabledSettings(t, "u1"), 200, slog.Default())
	ctx := context.Background()

	if err := m.Start(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	m.Deliver(fixAt("u1", 0, 0))
	select {
	case <-n.ch:
	case <-time.After(time.Second):
		t.Fatal("expected alert in first session")
	}
	if !m.Stop("u1") {
		t.Fatal("expected running session to stop")
	}

	if err := m.Start(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	defer m.Stop("u1")
	m.Deliver(fixAt("u1", 0, 0))
	select {
	case <-n.ch:
	case <-time.After(time.Second):
		t.Fatal("a new session must be able to re-notify a previously notified point")
	}
}

func TestDeliverWithoutSessionDrops(t *testing.T) {
	m := NewManager(&fakeSource{}, newRecordingNotifier(), storage.NewMemorySettings(), 200, slog.Default())
	if m.Deliver(fixAt("ghost", 0, 0)) {
		t.Fatal("delivery without a session must report a drop")
	}
}
