package models

import "time"

type Coord struct {
    Lat float64 `json:"lat"`
    Lon float64 `json:"lon"`
}

// LocationFix is a single position report pushed by a rider's device.
// Fixes arrive on no guaranteed schedule; RecordedAt is informational only,
// processing order is arrival order.
type LocationFix struct {
    UserID     string    `json:"user_id"`
    Loc        Coord     `json:"loc"`
    RecordedAt time.Time `json:"recorded_at"`
}

// MapPoint is a user-created map annotation, optionally a scheduled group ride.
type MapPoint struct {
    ID          string     `json:"id"`
    Name        string     `json:"name"`
    Description string     `json:"description"`
    Category    string     `json:"category"`
    Loc         Coord      `json:"loc"`
    Icon        int        `json:"icon"`
    ImageURL    string     `json:"image_url,omitempty"`
    CreatorID   string     `json:"creator_id"`
    Ride        bool       `json:"ride"`
    Start       *time.Time `json:"start,omitempty"` // only meaningful when Ride
    Riders      []string   `json:"riders,omitempty"`
    CreatedAt   time.Time  `json:"created_at"`
}

// HasRider reports whether userID already joined the ride.
func (p *MapPoint) HasRider(userID string) bool {
    for _, r := range p.Riders {
        if r == userID {
            return true
        }
    }
    return false
}

type UserProfile struct {
    ID          string    `json:"id"`
    FullName    string    `json:"full_name"`
    PhoneNumber string    `json:"phone_number"`
    Email       string    `json:"email"`
    PhotoURL    string    `json:"photo_url,omitempty"`
    Score       int       `json:"score"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
}

// Alert is a "nearby point" notification emitted by the proximity monitor.
type Alert struct {
    UserID  string    `json:"user_id"`
    PointID string    `json:"point_id"`
    Title   string    `json:"title"`
    Body    string    `json:"body"`
    At      time.Time `json:"at"`
}

// StartLayout is the wire format of a ride's scheduled start in the
// document store.
const StartLayout = "2006-01-02 15:04"
