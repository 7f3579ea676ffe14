package dispatch

import (
	"log/slog"

	"github.com/example/bike-help/internal/models"
)

// Notifier presents a nearby-point alert to a user. Implementations are
// best-effort: the platform may suppress delivery (no live socket, push
// permission absent) and that is not an error the monitor cares about.
type Notifier interface {
	Notify(a models.Alert) error
}

// LogNotifier writes alerts to the log only. Used as the final fallback when
// neither a websocket session nor a push token exists for the user.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) Notify(a models.Alert) error {
	l.Logger.Info("alert",
		"user_id", a.UserID,
		"point_id", a.PointID,
		"title", a.Title,
		"body", a.Body,
	)
	return nil
}
