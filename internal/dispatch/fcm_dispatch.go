package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/example/bike-help/internal/models"
)

// FCMDispatcher posts alerts to the FCM HTTPv1 endpoint using a server key or
// oauth token. Device tokens are registered by the mobile client per user.
type FCMDispatcher struct {
	Endpoint string
	Key      string
	Client   *http.Client

	mu     sync.RWMutex
	tokens map[string]string // user id -> device token
}

func NewFCMDispatcher(endpoint, key string) *FCMDispatcher {
	return &FCMDispatcher{
		Endpoint: endpoint,
		Key:      key,
		Client:   &http.Client{Timeout: 3 * time.Second},
		tokens:   make(map[string]string),
	}
}

// RegisterToken stores the device token for a user; an empty token
// unregisters the device.
func (f *FCMDispatcher) RegisterToken(userID, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "" {
		delete(f.tokens, userID)
		return
	}
	f.tokens[userID] = token
}

func (f *FCMDispatcher) Notify(a models.Alert) error {
	f.mu.RLock()
	token, ok := f.tokens[a.UserID]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no device token for user %s", a.UserID)
	}
	body := map[string]interface{}{
		"message": map[string]interface{}{
			"token": token,
			"notification": map[string]string{
				"title": a.Title,
				"body":  a.Body,
			},
			"data": map[string]string{"point_id": a.PointID},
		},
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", f.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Key != "" {
		req.Header.Set("Authorization", "Bearer "+f.Key)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fcm status %d", resp.StatusCode)
	}
	return nil
}
