package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressTable(t *testing.T) {
	t.Run("join makes the session addressable", func(t *testing.T) {
		table := NewAddressTable()
		sess := newTestSession("user-1", "alice")

		table.Join(sess, "group:g1")

		assert.True(t, table.InRoom(sess, "group:g1"))
		require.Len(t, table.Sessions("group:g1"), 1)
		assert.Same(t, sess, table.Sessions("group:g1")[0])
	})

	t.Run("join is per session, not per user", func(t *testing.T) {
		table := NewAddressTable()
		phone := newTestSession("user-1", "alice")
		laptop := newTestSession("user-1", "alice")

		table.Join(phone, "group:g1")

		assert.True(t, table.InRoom(phone, "group:g1"))
		assert.False(t, table.InRoom(laptop, "group:g1"))
	})

	t.Run("leave is idempotent", func(t *testing.T) {
		table := NewAddressTable()
		sess := newTestSession("user-1", "alice")

		table.Join(sess, "group:g1")
		table.Leave(sess, "group:g1")
		table.Leave(sess, "group:g1")
		table.Leave(sess, "group:never-joined")

		assert.False(t, table.InRoom(sess, "group:g1"))
		assert.Empty(t, table.Sessions("group:g1"))
	})

	t.Run("LeaveAll clears every membership", func(t *testing.T) {
		table := NewAddressTable()
		sess := newTestSession("user-1", "alice")
		other := newTestSession("user-2", "bob")

		table.Join(sess, "user:user-1")
		table.Join(sess, "group:g1")
		table.Join(sess, "group:g2")
		table.Join(other, "group:g1")

		table.LeaveAll(sess)

		assert.False(t, table.InRoom(sess, "user:user-1"))
		assert.False(t, table.InRoom(sess, "group:g1"))
		assert.False(t, table.InRoom(sess, "group:g2"))
		assert.True(t, table.InRoom(other, "group:g1"))
	})

	t.Run("broadcast reaches everyone except the excluded session", func(t *testing.T) {
		table := NewAddressTable()
		sender := newTestSession("user-1", "alice")
		bob := newTestSession("user-2", "bob")
		carol := newTestSession("user-3", "carol")

		table.Join(sender, "group:g1")
		table.Join(bob, "group:g1")
		table.Join(carol, "group:g1")

		table.Broadcast("group:g1", ServerFrame{Event: EventTypingStart}, sender)

		assert.Empty(t, queuedFrames(sender))
		require.Len(t, queuedFrames(bob), 1)
		require.Len(t, queuedFrames(carol), 1)
	})

	t.Run("broadcast to an empty room is a no-op", func(t *testing.T) {
		table := NewAddressTable()
		table.Broadcast("group:empty", ServerFrame{Event: EventTypingStart}, nil)
	})
}
