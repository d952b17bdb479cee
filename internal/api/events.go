package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventBufferSize   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is read-only operational telemetry on a trusted network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams bus events to a websocket client as JSON
// messages, one per event. Slow clients miss events rather than
// blocking publishers (the bus drops on full buffers).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(eventBufferSize)
	defer s.bus.Unsubscribe(ch)

	s.logger.Info("event feed client connected", "remote_addr", r.RemoteAddr)

	// Reader goroutine: consume control frames and detect disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event feed write failed", "error", err)
				return
			}
		case <-closed:
			s.logger.Info("event feed client disconnected", "remote_addr", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		}
	}
}
