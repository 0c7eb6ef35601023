package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamBuffer    = 32
	streamKeepalive = 15 * time.Second
	wsWriteTimeout  = 5 * time.Second
	wsReadLimit     = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// sseHandler streams events as Server-Sent Events: "event: frame" or
// "event: advisory" with a JSON data line.
func sseHandler(events *EventBroadcaster, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		rc := http.NewResponseController(w)
		// Streams outlive the server's WriteTimeout.
		_ = rc.SetWriteDeadline(time.Time{})

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-store")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			log.Debug("sse flush unsupported", zap.Error(err))
			return
		}

		id, ch := events.Subscribe(streamBuffer)
		defer events.Unsubscribe(id)
		log.Debug("sse subscriber joined", zap.String("subscriber", id))

		keepalive := time.NewTicker(streamKeepalive)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				log.Debug("sse subscriber left", zap.String("subscriber", id))
				return
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
			case ev, ok := <-ch:
				if !ok {
					return
				}
				b, err := json.Marshal(ev.Payload())
				if err != nil {
					log.Warn("sse marshal failed", zap.Error(err))
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	})
}

// wsHandler streams events over a WebSocket as {"type":...,"frame"|"advisory":...}.
// Client messages are read and discarded so close frames are noticed.
func wsHandler(events *EventBroadcaster, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		id, ch := events.Subscribe(streamBuffer)
		defer events.Unsubscribe(id)
		log.Debug("websocket subscriber joined", zap.String("subscriber", id))

		closed := make(chan struct{})
		conn.SetReadLimit(wsReadLimit)
		// Hijacked connections keep the server's read deadline.
		_ = conn.SetReadDeadline(time.Time{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(streamKeepalive)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				log.Debug("websocket subscriber left", zap.String("subscriber", id))
				return
			case <-r.Context().Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					log.Debug("websocket write failed", zap.String("subscriber", id), zap.Error(err))
					return
				}
			}
		}
	})
}
