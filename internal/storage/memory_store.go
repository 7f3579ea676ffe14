package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/bike-help/internal/models"
)

// MemoryStore keeps points and profiles in process memory. It mirrors the
// Mongo store's semantics (set-valued riders, score increments on membership
// change only) for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]*models.MapPoint
	order  []string // insertion order for deterministic listing
	users  map[string]*models.UserProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points: make(map[string]*models.MapPoint),
		users:  make(map[string]*models.UserProfile),
	}
}

func (m *MemoryStore) CreatePoint(ctx context.Context, p *models.MapPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	cp := *p
	m.points[p.ID] = &cp
	m.order = append(m.order, p.ID)
	m.addScoreLocked(p.CreatorID, ScoreCreatePoint)
	return nil
}

func (m *MemoryStore) GetPoint(ctx context.Context, id string) (*models.MapPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Riders = append([]string(nil), p.Riders...)
	return &cp, nil
}

func (m *MemoryStore) ListPoints(ctx context.Context) ([]models.MapPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.MapPoint, 0, len(m.points))
	for _, id := range m.order {
		if p, ok := m.points[id]; ok {
			cp := *p
			cp.Riders = append([]string(nil), p.Riders...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeletePoint(ctx context.Context, id, requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return ErrNotFound
	}
	if p.CreatorID != requesterID {
		return ErrNotCreator
	}
	if p.Ride {
		for _, rider := range p.Riders {
			m.addScoreLocked(rider, ScoreRideDeleted)
		}
		m.addScoreLocked(p.CreatorID, ScoreRideOwner)
	}
	delete(m.points, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) JoinRide(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return ErrNotFound
	}
	if !p.Ride {
		return ErrNotRide
	}
	if p.HasRider(userID) {
		return nil // already a member, no score change
	}
	p.Riders = append(p.Riders, userID)
	m.addScoreLocked(userID, ScoreJoinRide)
	return nil
}

func (m *MemoryStore) LeaveRide(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return ErrNotFound
	}
	if !p.Ride {
		return ErrNotRide
	}
	for i, r := range p.Riders {
		if r == userID {
			p.Riders = append(p.Riders[:i], p.Riders[i+1:]...)
			m.addScoreLocked(userID, ScoreLeaveRide)
			return nil
		}
	}
	return nil // not a member, no score change
}

func (m *MemoryStore) JoinedRides(ctx context.Context, userID string) ([]models.MapPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.MapPoint
	for _, id := range m.order {
		p, ok := m.points[id]
		if !ok || !p.Ride || !p.HasRider(userID) {
			continue
		}
		cp := *p
		cp.Riders = append([]string(nil), p.Riders...)
		out = append(out, cp)
	}
	return out, nil
}

func (m *MemoryStore) Categories(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, id := range m.order {
		p, ok := m.points[id]
		if !ok || p.Category == "" {
			continue
		}
		if _, dup := seen[p.Category]; dup {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if cur, ok := m.users[p.ID]; ok {
		p.Score = cur.Score
		p.CreatedAt = cur.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	m.users[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) AddScore(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addScoreLocked(id, delta)
	return nil
}

func (m *MemoryStore) Leaderboard(ctx context.Context, limit int) ([]models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.UserProfile, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// addScoreLocked creates a skeleton profile on first touch so score never
// lands nowhere (registration may race point creation).
func (m *MemoryStore) addScoreLocked(id string, delta int) {
	if id == "" {
		return
	}
	u, ok := m.users[id]
	if !ok {
		u = &models.UserProfile{ID: id, CreatedAt: time.Now()}
		m.users[id] = u
	}
	u.Score += delta
	u.UpdatedAt = time.Now()
}

// MemorySettings is an in-process SettingsStore.
type MemorySettings struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{enabled: make(map[string]bool)}
}

func (m *MemorySettings) SetSharingEnabled(ctx context.Context, userID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled[userID] = enabled
	return nil
}

func (m *MemorySettings) SharingEnabled(ctx context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[userID], nil
}
