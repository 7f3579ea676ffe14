package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/bike-help/internal/models"
)

type fakeUpdater struct {
	geoFailures  int
	hsetFailures int

	geoCalls  int
	hsetCalls int

	lastKey string
	lastLoc *redis.GeoLocation
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	f.lastKey = key
	f.lastLoc = loc
	if f.geoCalls <= f.geoFailures {
		return errors.New("geoadd unavailable")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hsetCalls++
	if f.hsetCalls <= f.hsetFailures {
		return errors.New("hset unavailable")
	}
	return nil
}

func testFix() *models.LocationFix {
	return &models.LocationFix{
		UserID:     "rider-1",
		Loc:        models.Coord{Lat: 44.8, Lon: 20.46},
		RecordedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpdatePresenceSucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{geoFailures: 2}
	err := updatePresenceWithRetry(context.Background(), f, "riders_geo", testFix(), 3, time.Millisecond)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 geo attempts, got %d", f.geoCalls)
	}
	if f.lastKey != "riders_geo" {
		t.Fatalf("expected riders_geo key, got %s", f.lastKey)
	}
	if f.lastLoc == nil || f.lastLoc.Name != "rider-1" {
		t.Fatalf("expected rider id as member name, got %+v", f.lastLoc)
	}
}

func TestUpdatePresenceFailsWhenRetriesExhausted(t *testing.T) {
	f := &fakeUpdater{geoFailures: 5}
	err := updatePresenceWithRetry(context.Background(), f, "riders_geo", testFix(), 3, time.Millisecond)
	if err == nil {
		t.Fatal("expected failure when retries exhausted")
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", f.geoCalls)
	}
}

func TestUpdatePresenceHSetFailureRetriesWholeWrite(t *testing.T) {
	f := &fakeUpdater{hsetFailures: 1}
	err := updatePresenceWithRetry(context.Background(), f, "riders_geo", testFix(), 3, time.Millisecond)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.hsetCalls != 2 {
		t.Fatalf("expected 2 hset attempts, got %d", f.hsetCalls)
	}
}
