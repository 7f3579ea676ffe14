package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/bike-help/internal/models"
	"github.com/example/bike-help/internal/storage"
)

type fakePush struct {
	err   error
	calls int
	last  models.Alert
}

func (f *fakePush) Notify(a models.Alert) error {
	f.calls++
	f.last = a
	return f.err
}

type failingLog struct{}

func (failingLog) SaveAlert(ctx context.Context, a *models.Alert) error {
	return errors.New("alert log down")
}

func (failingLog) RecentAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	return nil, errors.New("alert log down")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() models.Alert {
	return models.Alert{
		UserID:  "bob",
		PointID: "p1",
		Title:   "Nearby point",
		Body:    "\"Water fountain\" is within 200 meters of your location.",
		At:      time.Now(),
	}
}

func TestPushDispatcherFallsBackToPush(t *testing.T) {
	log := storage.NewMemoryAlertLog()
	push := &fakePush{}
	d := NewPushDispatcher(NewWSRegistry(), push, log, discardLogger())

	a := testAlert()
	if err := d.Notify(a); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if push.calls != 1 {
		t.Fatalf("push calls = %d, want 1 when no ws session exists", push.calls)
	}
	if push.last.UserID != "bob" {
		t.Fatalf("push alert user = %s, want bob", push.last.UserID)
	}
}

func TestPushDispatcherLogFallbackWhenPushFails(t *testing.T) {
	log := storage.NewMemoryAlertLog()
	push := &fakePush{err: errors.New("fcm 503")}
	d := NewPushDispatcher(NewWSRegistry(), push, log, discardLogger())

	if err := d.Notify(testAlert()); err != nil {
		t.Fatalf("notify should succeed via log fallback: %v", err)
	}
	if push.calls != 1 {
		t.Fatalf("push calls = %d, want 1", push.calls)
	}
}

func TestPushDispatcherRecordsAlertHistory(t *testing.T) {
	log := storage.NewMemoryAlertLog()
	d := NewPushDispatcher(nil, nil, log, discardLogger())

	if err := d.Notify(testAlert()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	got, err := log.RecentAlerts(context.Background(), "bob", 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(got) != 1 || got[0].PointID != "p1" {
		t.Fatalf("alert history = %+v, want the delivered alert", got)
	}
}

func TestPushDispatcherDeliversDespiteLogFailure(t *testing.T) {
	push := &fakePush{}
	d := NewPushDispatcher(nil, push, failingLog{}, discardLogger())

	if err := d.Notify(testAlert()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if push.calls != 1 {
		t.Fatalf("push calls = %d, want 1 even when history write fails", push.calls)
	}
}
