package gateway

import (
	"github.com/google/uuid"
)

// newTestSession builds a session without a network connection. Tests read
// delivered frames straight off the outbound queue instead of running a
// writePump.
func newTestSession(userID, username string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		send:     make(chan ServerFrame, 16),
		done:     make(chan struct{}),
	}
}

// queuedFrames drains everything currently sitting in the session's outbound
// queue.
func queuedFrames(s *Session) []ServerFrame {
	var frames []ServerFrame
	for {
		select {
		case f := <-s.send:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func strPtr(s string) *string {
	return &s
}
