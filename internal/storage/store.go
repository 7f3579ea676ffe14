package storage

import (
	"context"
	"errors"

	"github.com/example/bike-help/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotCreator = errors.New("only the creator may delete a point")
	ErrNotRide    = errors.New("point is not a ride")
)

// Score deltas applied at the store boundary. Every mutation is a single
// atomic increment so concurrent join/unjoin cannot lose updates.
const (
	ScoreCreatePoint = 5
	ScoreJoinRide    = 10
	ScoreLeaveRide   = -10
	ScoreRideDeleted = -10 // per rider, when a ride is deleted
	ScoreRideOwner   = -5  // creator penalty when deleting a ride
)

// PointStore defines persistence operations for map points. Ride membership
// lives on the point document (the riders set) and nowhere else; a user's
// joined rides are answered by JoinedRides rather than a second collection.
type PointStore interface {
	CreatePoint(ctx context.Context, p *models.MapPoint) error
	GetPoint(ctx context.Context, id string) (*models.MapPoint, error)
	ListPoints(ctx context.Context) ([]models.MapPoint, error)
	DeletePoint(ctx context.Context, id, requesterID string) error
	JoinRide(ctx context.Context, id, userID string) error
	LeaveRide(ctx context.Context, id, userID string) error
	JoinedRides(ctx context.Context, userID string) ([]models.MapPoint, error)
	Categories(ctx context.Context) ([]string, error)
}

// UserStore defines persistence operations for profiles and scores.
type UserStore interface {
	UpsertProfile(ctx context.Context, p *models.UserProfile) error
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	AddScore(ctx context.Context, id string, delta int) error
	Leaderboard(ctx context.Context, limit int) ([]models.UserProfile, error)
}

// SettingsStore persists the per-user location-sharing toggle. The monitor
// refuses to start a session while the toggle is off.
type SettingsStore interface {
	SetSharingEnabled(ctx context.Context, userID string, enabled bool) error
	SharingEnabled(ctx context.Context, userID string) (bool, error)
}
