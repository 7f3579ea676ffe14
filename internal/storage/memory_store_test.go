package storage

import (
	"context"
	"testing"
	"time"

	"github.com/example/bike-help/internal/models"
)

func newRide(t *testing.T, s *MemoryStore, creator string) *models.MapPoint {
	t.Helper()
	start := time.Now().Add(time.Hour)
	p := &models.MapPoint{
		Name:        "Morning loop",
		Description: "Easy pace around the park",
		Category:    "group ride",
		Loc:         models.Coord{Lat: 44.8, Lon: 20.46},
		CreatorID:   creator,
		Ride:        true,
		Start:       &start,
	}
	if err := s.CreatePoint(context.Background(), p); err != nil {
		t.Fatalf("create point: %v", err)
	}
	return p
}

func score(t *testing.T, s *MemoryStore, id string) int {
	t.Helper()
	u, err := s.GetProfile(context.Background(), id)
	if err != nil {
		t.Fatalf("get profile %s: %v", id, err)
	}
	return u.Score
}

func TestCreatePointAwardsCreatorScore(t *testing.T) {
	s := NewMemoryStore()
	newRide(t, s, "alice")
	if got := score(t, s, "alice"); got != ScoreCreatePoint {
		t.Fatalf("creator score = %d, want %d", got, ScoreCreatePoint)
	}
}

func TestJoinRideIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	p := newRide(t, s, "alice")
	ctx := context.Background()

	if err := s.JoinRide(ctx, p.ID, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.JoinRide(ctx, p.ID, "bob"); err != nil {
		t.Fatalf("second join: %v", err)
	}

	got, err := s.GetPoint(ctx, p.ID)
	if err != nil {
		t.Fatalf("get point: %v", err)
	}
	if len(got.Riders) != 1 {
		t.Fatalf("riders = %v, want exactly one entry", got.Riders)
	}
	if sc := score(t, s, "bob"); sc != ScoreJoinRide {
		t.Fatalf("bob score = %d, want %d (no double award)", sc, ScoreJoinRide)
	}
}

func TestLeaveRideNonMemberIsNoOp(t *testing.T) {
	s := NewMemoryStore()
	p := newRide(t, s, "alice")
	ctx := context.Background()

	if err := s.LeaveRide(ctx, p.ID, "bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := s.GetProfile(ctx, "bob"); err != ErrNotFound {
		t.Fatalf("expected no profile for non-member, got err=%v", err)
	}
}

func TestJoinThenLeaveNetsZero(t *testing.T) {
	s := NewMemoryStore()
	p := newRide(t, s, "alice")
	ctx := context.Background()

	if err := s.JoinRide(ctx, p.ID, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.LeaveRide(ctx, p.ID, "bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if sc := score(t, s, "bob"); sc != 0 {
		t.Fatalf("bob score = %d, want 0 after join+leave", sc)
	}
}

func TestJoinNonRideRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := &models.MapPoint{
		Name:        "Water fountain",
		Description: "Public fountain by the gate",
		Category:    "water",
		Loc:         models.Coord{Lat: 44.8, Lon: 20.46},
		CreatorID:   "alice",
	}
	if err := s.CreatePoint(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.JoinRide(ctx, p.ID, "bob"); err != ErrNotRide {
		t.Fatalf("join non-ride err = %v, want ErrNotRide", err)
	}
}

func TestDeleteRideCascadesScores(t *testing.T) {
	s := NewMemoryStore()
	p := newRide(t, s, "alice")
	ctx := context.Background()

	for _, rider := range []string{"bob", "carol"} {
		if err := s.JoinRide(ctx, p.ID, rider); err != nil {
			t.Fatalf("join %s: %v", rider, err)
		}
	}

	if err := s.DeletePoint(ctx, p.ID, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// riders lose the join award, the creator takes the owner penalty
	if sc := score(t, s, "bob"); sc != ScoreJoinRide+ScoreRideDeleted {
		t.Fatalf("bob score = %d, want %d", sc, ScoreJoinRide+ScoreRideDeleted)
	}
	if sc := score(t, s, "carol"); sc != ScoreJoinRide+ScoreRideDeleted {
		t.Fatalf("carol score = %d, want %d", sc, ScoreJoinRide+ScoreRideDeleted)
	}
	if sc := score(t, s, "alice"); sc != ScoreCreatePoint+ScoreRideOwner {
		t.Fatalf("alice score = %d, want %d", sc, ScoreCreatePoint+ScoreRideOwner)
	}

	if _, err := s.GetPoint(ctx, p.ID); err != ErrNotFound {
		t.Fatalf("expected deleted point to be gone, got err=%v", err)
	}
}

func TestDeleteNonRideLeavesScoresAlone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := &models.MapPoint{
		Name:        "Repair station",
		Description: "Pump and tools",
		Category:    "repair",
		Loc:         models.Coord{Lat: 44.8, Lon: 20.46},
		CreatorID:   "alice",
	}
	if err := s.CreatePoint(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeletePoint(ctx, p.ID, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if sc := score(t, s, "alice"); sc != ScoreCreatePoint {
		t.Fatalf("alice score = %d, want %d (create award only)", sc, ScoreCreatePoint)
	}
}

func TestDeleteRequiresCreator(t *testing.T) {
	s := NewMemoryStore()
	p := newRide(t, s, "alice")
	ctx := context.Background()

	if err := s.DeletePoint(ctx, p.ID, "mallory"); err != ErrNotCreator {
		t.Fatalf("delete by non-creator err = %v, want ErrNotCreator", err)
	}
	if _, err := s.GetPoint(ctx, p.ID); err != nil {
		t.Fatalf("point should survive rejected delete: %v", err)
	}
}

func TestLeaderboardSortsByScoreDescending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for id, delta := range map[string]int{"alice": 25, "bob": 40, "carol": 10} {
		if err := s.AddScore(ctx, id, delta); err != nil {
			t.Fatalf("add score: %v", err)
		}
	}

	board, err := s.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("len = %d, want 2", len(board))
	}
	if board[0].ID != "bob" || board[1].ID != "alice" {
		t.Fatalf("order = %s,%s, want bob,alice", board[0].ID, board[1].ID)
	}
}

func TestUpsertProfilePreservesScore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.AddScore(ctx, "alice", 15); err != nil {
		t.Fatalf("add score: %v", err)
	}
	if err := s.UpsertProfile(ctx, &models.UserProfile{ID: "alice", FullName: "Alice A"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	u, err := s.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Score != 15 {
		t.Fatalf("score = %d, want 15 (upsert must not reset it)", u.Score)
	}
	if u.FullName != "Alice A" {
		t.Fatalf("full name = %q, want Alice A", u.FullName)
	}
}

func TestCategoriesDeduplicatedAndSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, cat := range []string{"water", "repair", "water", "scenic"} {
		p := &models.MapPoint{
			Name:        "p-" + cat,
			Description: "d",
			Category:    cat,
			CreatorID:   "alice",
		}
		if err := s.CreatePoint(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	cats, err := s.Categories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	want := []string{"repair", "scenic", "water"}
	if len(cats) != len(want) {
		t.Fatalf("categories = %v, want %v", cats, want)
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Fatalf("categories = %v, want %v", cats, want)
		}
	}
}
