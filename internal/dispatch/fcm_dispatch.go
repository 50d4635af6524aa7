package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/cab-pooling/internal/models"
)

// FCMDispatcher posts pool updates to the FCM HTTPv1 endpoint using a
// server key or oauth token, for driver apps without an open socket.
type FCMDispatcher struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewFCMDispatcher(endpoint, key string) *FCMDispatcher {
	return &FCMDispatcher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (f *FCMDispatcher) PoolUpdate(cabID string, u models.PoolUpdate) error {
	body := map[string]any{"message": map[string]any{"token": "", "data": map[string]any{"cab_id": cabID, "update": u}}}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", f.Endpoint, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if f.Key != "" {
		req.Header.Set("Authorization", "Bearer "+f.Key)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
