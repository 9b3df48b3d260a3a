// Package gateway implements the real-time messaging core: authenticated
// websocket sessions, the presence registry, room-addressed fanout of direct
// and group messages, and the typing-indicator relay.
package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/chatapp/gateway-server-go/internal/model"
)

// Events sent by clients.
const (
	EventMessageSend = "message:send"
	EventGroupJoin   = "group:join"
	EventGroupLeave  = "group:leave"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Events pushed by the server.
const (
	EventAck            = "ack"
	EventMessageReceive = "message:receive"
	EventMessageSent    = "message:sent"
	EventMessageError   = "message:error"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventFriendsOnline  = "friends:online"
)

// ClientFrame is one inbound websocket message. AckID, when present, asks for
// an ack frame carrying the same id so the client can correlate the response.
type ClientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *int64          `json:"ackId,omitempty"`
}

type ServerFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	AckID *int64 `json:"ackId,omitempty"`
}

// SendMessagePayload is the message:send body. Exactly one of ReceiverID or
// GroupID must be set. TempID is the client's optimistic-UI correlation id;
// it is only ever echoed back to the sender.
type SendMessagePayload struct {
	Text        *string                 `json:"text,omitempty"`
	Attachments []model.AttachmentInput `json:"attachments,omitempty"`
	ReceiverID  *string                 `json:"receiverId,omitempty"`
	GroupID     *string                 `json:"groupId,omitempty"`
	TempID      *string                 `json:"tempId,omitempty"`
}

type GroupPayload struct {
	GroupID string `json:"groupId"`
}

type TypingPayload struct {
	ReceiverID *string `json:"receiverId,omitempty"`
	GroupID    *string `json:"groupId,omitempty"`
}

// TypingEvent is the relayed typing signal: the inbound payload plus the
// sender's identity.
type TypingEvent struct {
	UserID     string  `json:"userId"`
	Username   string  `json:"username,omitempty"`
	ReceiverID *string `json:"receiverId,omitempty"`
	GroupID    *string `json:"groupId,omitempty"`
}

// AckPayload is the synchronous result delivered for a frame that carried an
// ackId. Errors are additionally pushed as message:error events because not
// every client code path wires the ack.
type AckPayload struct {
	Success bool           `json:"success"`
	Message *model.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// SentMessage is the message:sent body: the stored record plus the sender's
// correlation id, so the optimistic local copy can be replaced exactly once.
type SentMessage struct {
	model.Message
	TempID *string `json:"tempId,omitempty"`
}

type MessageError struct {
	TempID *string `json:"tempId,omitempty"`
	Error  string  `json:"error"`
}

type UserPresence struct {
	UserID string `json:"userId"`
}

type FriendsOnline struct {
	UserIDs []string `json:"userIds"`
}

// Room addresses. A personal room is the addressing unit for direct messages
// and presence pushes; a group room fans out group messages to the sessions
// that joined it.
func UserRoom(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

func GroupRoom(groupID string) string {
	return fmt.Sprintf("group:%s", groupID)
}
