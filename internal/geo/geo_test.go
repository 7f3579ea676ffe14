package geo

import (
	"testing"

	"github.com/example/bike-help/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineLatitudeDegree(t *testing.T) {
	// 0.0018 deg of latitude is roughly 200m on the reference sphere.
	d := Haversine(0, 0, 0.0018, 0)
	if d < 199 || d > 201 {
		t.Fatalf("expected ~200m, got %f", d)
	}
}

func TestWithinThreshold(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	// 0.002 deg of equatorial longitude is ~222m, outside a 200m radius.
	far := models.Coord{Lat: 0, Lon: 0.002}
	if Within(origin, far, 200) {
		t.Fatalf("expected %f to be outside 200m", Distance(origin, far))
	}
	near := models.Coord{Lat: 0, Lon: 0.0007}
	if !Within(origin, near, 200) {
		t.Fatalf("expected %f to be within 200m", Distance(origin, near))
	}
}
