package catalog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/example/bike-help/internal/models"
	"github.com/example/bike-help/internal/storage"
)

func TestSnapshotBeforeLoadErrors(t *testing.T) {
	c := New(storage.NewMemoryStore(), nil, nil, 0, slog.Default())
	if _, err := c.Snapshot(context.Background()); err != ErrNotLoaded {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreatePoint(ctx, &models.MapPoint{Name: "pump", Description: "d", CreatorID: "u1"}); err != nil {
		t.Fatal(err)
	}
	c := New(store, nil, nil, 0, slog.Default())
	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	snap1, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	snap1[0].Name = "mutated"
	snap2, _ := c.Snapshot(ctx)
	if snap2[0].Name != "pump" {
		t.Fatalf("snapshot mutation leaked into catalog")
	}
}
