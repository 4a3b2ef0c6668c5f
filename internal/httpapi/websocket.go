package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/srg/uwave/internal/groutine"
	"github.com/srg/uwave/internal/registry"
)

const (
	wsSendBuffer = 256
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// snapshotMessage is sent once after connecting, before any event.
type snapshotMessage struct {
	Type    string            `json:"type"`
	Devices []registry.Record `json:"devices"`
}

// events streams registry events to a WebSocket client. The first message is
// a full snapshot; every later message is a registry.Event.
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	// Subscribe before taking the snapshot so nothing falls in between.
	events, unsubscribe := a.station.Subscribe(wsSendBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: handles pongs and notices the client going away.
	groutine.Go(ctx, "ws-reader", func(ctx context.Context) {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	a.logger.WithField("remote", r.RemoteAddr).Debug("WebSocket client connected")
	defer func() {
		_ = conn.Close()
		a.logger.WithField("remote", r.RemoteAddr).Debug("WebSocket client disconnected")
	}()

	if err := a.writeWS(conn, snapshotMessage{Type: "snapshot", Devices: a.station.Snapshot()}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "station closed"), time.Now().Add(wsWriteWait))
				return
			}
			if err := a.writeWS(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *API) writeWS(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.WithError(err).Error("Failed to encode WebSocket message")
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
