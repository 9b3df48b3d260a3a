package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chatapp/gateway-server-go/internal/config"
)

// Session is one authenticated websocket connection. A user may hold several
// concurrent sessions (multi-device); each owns its room memberships and its
// outbound queue, drained by a single writer goroutine.
type Session struct {
	ID       string
	UserID   string
	Username string

	conn *websocket.Conn
	send chan ServerFrame
	done chan struct{}
	once sync.Once
}

func newSession(userID, username string, conn *websocket.Conn) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		conn:     conn,
		send:     make(chan ServerFrame, config.WSSendQueueSize),
		done:     make(chan struct{}),
	}
}

// Send queues a frame for delivery. It never blocks: a closed session or a
// full outbound queue drops the frame, which is acceptable for this
// at-most-once in-process delivery model.
func (s *Session) Send(frame ServerFrame) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		log.Warn().
			Str("sessionId", s.ID).
			Str("userId", s.UserID).
			Str("event", frame.Event).
			Msg("session send queue full, dropping frame")
		return false
	}
}

// Close is idempotent and unblocks the writer goroutine.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// writePump serializes all writes to the connection: queued frames and
// keepalive pings. It owns the connection's write side exclusively.
func (s *Session) writePump() {
	ticker := time.NewTicker(config.WSPingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			return

		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			data, err := json.Marshal(frame)
			if err != nil {
				log.Error().Err(err).Str("event", frame.Event).Msg("failed to marshal frame")
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
