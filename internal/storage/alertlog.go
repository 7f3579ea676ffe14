package storage

import (
	"context"
	"sync"

	"github.com/example/bike-help/internal/models"
)

// AlertLog records every proximity notification that was emitted so users can
// review their history. Logging is best-effort; the monitor never blocks on it.
type AlertLog interface {
	SaveAlert(ctx context.Context, a *models.Alert) error
	RecentAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error)
}

type MemoryAlertLog struct {
	mu     sync.RWMutex
	alerts []models.Alert
}

func NewMemoryAlertLog() *MemoryAlertLog {
	return &MemoryAlertLog{}
}

func (m *MemoryAlertLog) SaveAlert(ctx context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *MemoryAlertLog) RecentAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Alert
	// newest first
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if m.alerts[i].UserID != userID {
			continue
		}
		out = append(out, m.alerts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
