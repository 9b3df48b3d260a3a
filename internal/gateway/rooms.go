package gateway

import (
	"sync"
)

// AddressTable maps room addresses to the live sessions subscribed to them.
// Fanout is an explicit iteration over a room's session set. Room membership
// is connection-scoped: each of a user's sessions joins independently.
type AddressTable struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Session]struct{}
	joined map[*Session]map[string]struct{}
}

func NewAddressTable() *AddressTable {
	return &AddressTable{
		rooms:  make(map[string]map[*Session]struct{}),
		joined: make(map[*Session]map[string]struct{}),
	}
}

func (t *AddressTable) Join(sess *Session, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rooms[room] == nil {
		t.rooms[room] = make(map[*Session]struct{})
	}
	t.rooms[room][sess] = struct{}{}

	if t.joined[sess] == nil {
		t.joined[sess] = make(map[string]struct{})
	}
	t.joined[sess][room] = struct{}{}
}

// Leave is idempotent; leaving a room the session never joined is a no-op.
func (t *AddressTable) Leave(sess *Session, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(sess, room)
}

// LeaveAll removes the session from every room it joined. Called at teardown.
func (t *AddressTable) LeaveAll(sess *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for room := range t.joined[sess] {
		t.leaveLocked(sess, room)
	}
}

func (t *AddressTable) leaveLocked(sess *Session, room string) {
	if sessions, ok := t.rooms[room]; ok {
		delete(sessions, sess)
		if len(sessions) == 0 {
			delete(t.rooms, room)
		}
	}
	if rooms, ok := t.joined[sess]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(t.joined, sess)
		}
	}
}

// Sessions returns a snapshot of the sessions currently in room.
func (t *AddressTable) Sessions(room string) []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sessions := make([]*Session, 0, len(t.rooms[room]))
	for sess := range t.rooms[room] {
		sessions = append(sessions, sess)
	}
	return sessions
}

// InRoom reports whether the session has joined room.
func (t *AddressTable) InRoom(sess *Session, room string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.joined[sess][room]
	return ok
}

// Broadcast sends frame to every session in room except the excluded one.
// Delivery is best-effort: sessions with full outbound queues drop the frame.
func (t *AddressTable) Broadcast(room string, frame ServerFrame, except *Session) {
	for _, sess := range t.Sessions(room) {
		if sess == except {
			continue
		}
		sess.Send(frame)
	}
}
