package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/impetus/internal/bus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
	wsMaxReplay    = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The server binds to loopback; cross-origin browser clients are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and streams bus events as JSON.
// A ?replay=N query sends the last N retained events before live delivery
// starts. A slow client misses events rather than blocking the bus.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade: %v", err)
		return
	}

	var backlog []bus.Event
	if q := r.URL.Query().Get("replay"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			if n > wsMaxReplay {
				n = wsMaxReplay
			}
			backlog = s.bus.RecentHistory(n)
		}
	}

	send := make(chan bus.Event, wsSendBuffer)
	subID := s.bus.Subscribe("", func(ev bus.Event) {
		select {
		case send <- ev:
		default:
		}
	})
	s.log.Debug("feed client connected: %s", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		// Drain the read side so close frames and pings are processed.
		defer close(done)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.bus.Unsubscribe(subID)
		conn.Close()
		s.log.Debug("feed client disconnected: %s", r.RemoteAddr)
	}()

	for _, ev := range backlog {
		if !s.writeEvent(conn, ev) {
			return
		}
	}
	for {
		select {
		case ev := <-send:
			if !s.writeEvent(conn, ev) {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev bus.Event) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		return false
	}
	return true
}
