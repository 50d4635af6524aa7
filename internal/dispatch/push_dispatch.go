package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/example/cab-pooling/internal/models"
)

// PushDispatcher delivers pool updates to a driver: over an open
// websocket session when one exists, otherwise by posting to the
// driver-app backend endpoint. Fallback, when set, takes over for
// drivers without a session instead of the plain endpoint post.
type PushDispatcher struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
	Fallback interface {
		PoolUpdate(cabID string, u models.PoolUpdate) error
	}
}

func NewPushDispatcher(endpoint string, ws *WSRegistry) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushDispatcher) PoolUpdate(cabID string, u models.PoolUpdate) error {
	if p.WS != nil {
		err := p.WS.PoolUpdate(cabID, u)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoSession) {
			return err
		}
	}
	if p.Fallback != nil {
		return p.Fallback.PoolUpdate(cabID, u)
	}
	if p.Endpoint == "" {
		return nil
	}
	b, _ := json.Marshal(map[string]any{"cab_id": cabID, "update": u})
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
