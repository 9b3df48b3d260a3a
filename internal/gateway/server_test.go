package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
	"github.com/chatapp/gateway-server-go/internal/model"
)

// Permissive stubs for the connection lifecycle tests: connect and teardown
// call these from background goroutines, so strict mocks would be racy.

type stubVerifier struct {
	users map[string]string // token -> user id
}

func (s *stubVerifier) Verify(token string) (string, error) {
	if id, ok := s.users[token]; ok {
		return id, nil
	}
	return "", apperrors.InvalidToken("Invalid authentication token")
}

type stubDirectory struct {
	users map[string]*model.User
}

func (s *stubDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.users[id], nil
}

type stubMembership struct {
	friends map[string][]string
	groups  map[string][]string // group id -> member ids
}

func (s *stubMembership) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	for _, id := range s.groups[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubMembership) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return s.groups[groupID], nil
}

func (s *stubMembership) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	return s.friends[userID], nil
}

type stubStore struct {
	mu     sync.Mutex
	nextID int
}

func (s *stubStore) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("msg-%d", s.nextID)
	s.mu.Unlock()

	return &model.Message{
		ID:          id,
		Text:        params.Text,
		MessageType: model.KindFromAttachments(params.Attachments),
		SenderID:    params.SenderID,
		ReceiverID:  params.ReceiverID,
		GroupID:     params.GroupID,
		CreatedAt:   time.Now(),
		Attachments: []model.Attachment{},
	}, nil
}

type wsHarness struct {
	url      string
	presence *Registry
}

func newWSHarness(t *testing.T, members MembershipOracle, store MessageStore, tokens map[string]string, users map[string]*model.User) *wsHarness {
	t.Helper()

	presence := NewRegistry(nil)
	rooms := NewAddressTable()
	router := NewRouter(store, members, rooms, nil, 0)
	srv := NewServer(&stubVerifier{users: tokens}, &stubDirectory{users: users}, members, presence, rooms, router, "")

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &wsHarness{
		url:      "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		presence: presence,
	}
}

func (h *wsHarness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID *int64          `json:"ackId"`
}

// waitForEvent reads frames until one with the wanted event arrives, skipping
// unrelated presence traffic from concurrent connects.
func waitForEvent(t *testing.T, conn *websocket.Conn, event string) testFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", event)

		var frame testFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Event == event {
			return frame
		}
	}
}

// expectSilence asserts no frame arrives within the window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got %s", data)
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any, ackID *int64) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ClientFrame{Event: event, Data: payload, AckID: ackID}))
}

func int64Ptr(v int64) *int64 {
	return &v
}

func testDirectory() (map[string]string, map[string]*model.User) {
	tokens := map[string]string{
		"alice-token": "user-alice",
		"bob-token":   "user-bob",
	}
	users := map[string]*model.User{
		"user-alice": {ID: "user-alice", Username: "alice"},
		"user-bob":   {ID: "user-bob", Username: "bob"},
	}
	return tokens, users
}

func TestHandshakeRejection(t *testing.T) {
	tokens, users := testDirectory()
	h := newWSHarness(t, &stubMembership{}, &stubStore{}, tokens, users)

	t.Run("invalid token never becomes a session", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(h.url+"?token=forged", nil)
		require.Error(t, err)
		require.Nil(t, conn)
		assert.Equal(t, websocket.ErrBadHandshake, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, h.presence.OnlineUserIDs())
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(h.url, nil)
		require.Error(t, err)
		require.Nil(t, conn)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestPresenceLifecycle(t *testing.T) {
	tokens, users := testDirectory()
	members := &stubMembership{
		friends: map[string][]string{
			"user-alice": {"user-bob"},
			"user-bob":   {"user-alice"},
		},
	}
	h := newWSHarness(t, members, &stubStore{}, tokens, users)

	bob := h.dial(t, "bob-token")
	frame := waitForEvent(t, bob, EventFriendsOnline)
	var bobView FriendsOnline
	require.NoError(t, json.Unmarshal(frame.Data, &bobView))
	assert.Empty(t, bobView.UserIDs)

	alice := h.dial(t, "alice-token")
	frame = waitForEvent(t, alice, EventFriendsOnline)
	var aliceView FriendsOnline
	require.NoError(t, json.Unmarshal(frame.Data, &aliceView))
	assert.Equal(t, []string{"user-bob"}, aliceView.UserIDs)

	frame = waitForEvent(t, bob, EventUserOnline)
	var online UserPresence
	require.NoError(t, json.Unmarshal(frame.Data, &online))
	assert.Equal(t, "user-alice", online.UserID)

	// Each device connect re-announces, but closing one of several devices
	// must not produce an offline transition.
	alicePhone := h.dial(t, "alice-token")
	waitForEvent(t, alicePhone, EventFriendsOnline)
	waitForEvent(t, bob, EventUserOnline)

	alicePhone.Close()
	expectSilence(t, bob)

	alice.Close()
	frame = waitForEvent(t, bob, EventUserOffline)
	var offline UserPresence
	require.NoError(t, json.Unmarshal(frame.Data, &offline))
	assert.Equal(t, "user-alice", offline.UserID)
}

func TestDirectMessageFlow(t *testing.T) {
	tokens, users := testDirectory()
	h := newWSHarness(t, &stubMembership{}, &stubStore{}, tokens, users)

	alice := h.dial(t, "alice-token")
	bob := h.dial(t, "bob-token")
	waitForEvent(t, alice, EventFriendsOnline)
	waitForEvent(t, bob, EventFriendsOnline)

	sendFrame(t, alice, EventMessageSend, SendMessagePayload{
		Text:       strPtr("hello bob"),
		ReceiverID: strPtr("user-bob"),
		TempID:     strPtr("tmp-1"),
	}, int64Ptr(1))

	frame := waitForEvent(t, bob, EventMessageReceive)
	var received model.Message
	require.NoError(t, json.Unmarshal(frame.Data, &received))
	assert.Equal(t, "hello bob", *received.Text)
	assert.Equal(t, "user-alice", received.SenderID)
	assert.Equal(t, "user-bob", *received.ReceiverID)
	assert.Equal(t, model.KindText, received.MessageType)

	ack := waitForEvent(t, alice, EventAck)
	require.NotNil(t, ack.AckID)
	assert.Equal(t, int64(1), *ack.AckID)
	var ackPayload struct {
		Success bool           `json:"success"`
		Message *model.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(ack.Data, &ackPayload))
	assert.True(t, ackPayload.Success)
	require.NotNil(t, ackPayload.Message)
	assert.Equal(t, received.ID, ackPayload.Message.ID)

	sent := waitForEvent(t, alice, EventMessageSent)
	var sentPayload struct {
		ID     string  `json:"id"`
		TempID *string `json:"tempId"`
	}
	require.NoError(t, json.Unmarshal(sent.Data, &sentPayload))
	assert.Equal(t, received.ID, sentPayload.ID)
	require.NotNil(t, sentPayload.TempID)
	assert.Equal(t, "tmp-1", *sentPayload.TempID)

	// The sender must never see their own message as an inbound receive.
	expectSilence(t, alice)
}

func TestSendErrorPaths(t *testing.T) {
	tokens, users := testDirectory()
	h := newWSHarness(t, &stubMembership{}, &stubStore{}, tokens, users)

	alice := h.dial(t, "alice-token")
	waitForEvent(t, alice, EventFriendsOnline)

	sendFrame(t, alice, EventMessageSend, SendMessagePayload{
		Text:   strPtr("to nobody"),
		TempID: strPtr("tmp-9"),
	}, int64Ptr(7))

	ack := waitForEvent(t, alice, EventAck)
	require.NotNil(t, ack.AckID)
	assert.Equal(t, int64(7), *ack.AckID)
	var ackPayload AckPayload
	require.NoError(t, json.Unmarshal(ack.Data, &ackPayload))
	assert.False(t, ackPayload.Success)
	assert.Equal(t, "Must specify exactly one of receiverId or groupId", ackPayload.Error)

	// The failure is also pushed as message:error carrying the correlation id
	// for clients that did not wire the ack.
	errFrame := waitForEvent(t, alice, EventMessageError)
	var pushed MessageError
	require.NoError(t, json.Unmarshal(errFrame.Data, &pushed))
	require.NotNil(t, pushed.TempID)
	assert.Equal(t, "tmp-9", *pushed.TempID)
	assert.Equal(t, "Must specify exactly one of receiverId or groupId", pushed.Error)
}

func TestGroupFlow(t *testing.T) {
	tokens, users := testDirectory()
	members := &stubMembership{
		groups: map[string][]string{
			"g1": {"user-alice", "user-bob"},
		},
	}
	h := newWSHarness(t, members, &stubStore{}, tokens, users)

	alice := h.dial(t, "alice-token")
	bob := h.dial(t, "bob-token")
	waitForEvent(t, alice, EventFriendsOnline)
	waitForEvent(t, bob, EventFriendsOnline)

	t.Run("join is refused for non-members", func(t *testing.T) {
		sendFrame(t, alice, EventGroupJoin, GroupPayload{GroupID: "not-my-group"}, int64Ptr(1))
		ack := waitForEvent(t, alice, EventAck)
		var payload AckPayload
		require.NoError(t, json.Unmarshal(ack.Data, &payload))
		assert.False(t, payload.Success)
		assert.Equal(t, "You are not a member of this group", payload.Error)
	})

	t.Run("members join and receive group messages", func(t *testing.T) {
		sendFrame(t, alice, EventGroupJoin, GroupPayload{GroupID: "g1"}, int64Ptr(2))
		ack := waitForEvent(t, alice, EventAck)
		var payload AckPayload
		require.NoError(t, json.Unmarshal(ack.Data, &payload))
		assert.True(t, payload.Success)

		sendFrame(t, bob, EventGroupJoin, GroupPayload{GroupID: "g1"}, int64Ptr(3))
		waitForEvent(t, bob, EventAck)

		sendFrame(t, alice, EventMessageSend, SendMessagePayload{
			Text:    strPtr("hello group"),
			GroupID: strPtr("g1"),
		}, int64Ptr(4))

		frame := waitForEvent(t, bob, EventMessageReceive)
		var received model.Message
		require.NoError(t, json.Unmarshal(frame.Data, &received))
		assert.Equal(t, "hello group", *received.Text)
		assert.Equal(t, "g1", *received.GroupID)

		waitForEvent(t, alice, EventMessageSent)
	})

	t.Run("leave stops delivery", func(t *testing.T) {
		sendFrame(t, bob, EventGroupLeave, GroupPayload{GroupID: "g1"}, int64Ptr(5))
		waitForEvent(t, bob, EventAck)

		sendFrame(t, alice, EventMessageSend, SendMessagePayload{
			Text:    strPtr("anyone there"),
			GroupID: strPtr("g1"),
		}, int64Ptr(6))

		waitForEvent(t, alice, EventMessageSent)
		expectSilence(t, bob)
	})
}

func TestUnknownEvent(t *testing.T) {
	tokens, users := testDirectory()
	h := newWSHarness(t, &stubMembership{}, &stubStore{}, tokens, users)

	alice := h.dial(t, "alice-token")
	waitForEvent(t, alice, EventFriendsOnline)

	sendFrame(t, alice, "message:recall", map[string]string{"id": "msg-1"}, int64Ptr(1))

	ack := waitForEvent(t, alice, EventAck)
	var payload AckPayload
	require.NoError(t, json.Unmarshal(ack.Data, &payload))
	assert.False(t, payload.Success)
	assert.Equal(t, "Unknown event", payload.Error)
}
