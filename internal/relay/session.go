package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// membership is the joined variant of a session: once a join is accepted the
// session carries the room and identity it announced. A nil membership means
// the session has not joined, and room-scoped actions are unreachable.
type membership struct {
	documentID string
	userID     string
	userName   string
}

// session represents one live relay connection. The membership pointer is
// owned by the hub goroutine; the pumps never touch it.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	joined *membership
}

// readPump forwards frames from the connection into the hub's event loop.
// It exits on the first read error, which includes normal closure, and
// announces the disconnect to the hub exactly once.
func (s *session) readPump() {
	defer func() {
		s.hub.enqueue(hubEvent{kind: eventUnregister, session: s})
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.hub.enqueue(hubEvent{kind: eventFrame, session: s, data: data})
	}
}

// writePump drains the session's send buffer onto the connection and keeps
// the connection alive with periodic pings. The hub closes the send channel
// to signal shutdown.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
