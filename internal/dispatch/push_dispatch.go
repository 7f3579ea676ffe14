package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/bike-help/internal/models"
	"github.com/example/bike-help/internal/storage"
)

// PushDispatcher fans an alert out to the best available channel: the live
// websocket first, FCM push second, the log as a last resort. Every alert is
// recorded in the AlertLog regardless of delivery outcome.
type PushDispatcher struct {
	WS     *WSRegistry    // optional
	Push   Notifier       // optional, e.g. *FCMDispatcher
	Log    storage.AlertLog
	Logger *slog.Logger
}

func NewPushDispatcher(ws *WSRegistry, push Notifier, log storage.AlertLog, logger *slog.Logger) *PushDispatcher {
	return &PushDispatcher{WS: ws, Push: push, Log: log, Logger: logger}
}

func (p *PushDispatcher) Notify(a models.Alert) error {
	if p.Log != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.Log.SaveAlert(ctx, &a); err != nil {
			p.Logger.Warn("alert log write failed", "user_id", a.UserID, "error", err)
		}
		cancel()
	}

	if p.WS != nil {
		if err := p.WS.Notify(a); err == nil {
			return nil
		}
	}
	if p.Push != nil {
		if err := p.Push.Notify(a); err == nil {
			return nil
		} else {
			p.Logger.Debug("push delivery failed", "user_id", a.UserID, "error", err)
		}
	}
	fallback := &LogNotifier{Logger: p.Logger}
	return fallback.Notify(a)
}
