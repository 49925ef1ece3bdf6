package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") {
				return true
			}

			return slices.Contains(origins, origin)
		},
	}
}

// WebSocketHandler handles GET /ws. Users receive events about their own
// wallet and orders; admins receive everything.
func (h *HandlerProvider) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	upgrader := newUpgrader(h.CORSOrigins)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)

		return
	}
	//nolint:errcheck
	defer conn.Close()

	feed, cancel := h.Hub.Subscribe(id.UserID, id.Admin())
	defer cancel()

	closed := make(chan struct{})

	// Reader loop: only pongs and close frames are expected.
	go func() {
		defer close(closed)

		conn.SetReadLimit(512)
		//nolint:errcheck
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}

			//nolint:errcheck
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

			err := conn.WriteJSON(ev)
			if err != nil {
				return
			}
		case <-ping.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			if err != nil {
				return
			}
		}
	}
}
