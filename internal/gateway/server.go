package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chatapp/gateway-server-go/internal/config"
	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
	"github.com/chatapp/gateway-server-go/internal/httputil"
	"github.com/chatapp/gateway-server-go/internal/model"
)

// TokenVerifier validates the handshake credential and yields the subject
// user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserDirectory resolves display names for connected users. Lookups are best
// effort; a missing user does not fail the handshake.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

const connectQueryTimeout = 5 * time.Second

// Server upgrades incoming connections, runs the authentication handshake,
// wires sessions into the presence registry and addressing table, and tears
// them down on disconnect.
type Server struct {
	verifier TokenVerifier
	users    UserDirectory
	members  MembershipOracle
	presence *Registry
	rooms    *AddressTable
	router   *Router
	upgrader websocket.Upgrader
}

func NewServer(
	verifier TokenVerifier,
	users UserDirectory,
	members MembershipOracle,
	presence *Registry,
	rooms *AddressTable,
	router *Router,
	allowedOrigin string,
) *Server {
	return &Server{
		verifier: verifier,
		users:    users,
		members:  members,
		presence: presence,
		rooms:    rooms,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// HandleWS is the websocket endpoint. The credential is verified before the
// upgrade: a connection with a bad or expired token is rejected with 401 and
// never becomes a session.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
		return
	}

	userID, err := s.verifier.Verify(token)
	if err != nil {
		log.Warn().Err(err).Msg("websocket handshake rejected")
		httputil.WriteError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := newSession(userID, s.lookupUsername(userID), conn)

	s.rooms.Join(sess, UserRoom(userID))
	s.presence.MarkOnline(userID, sess)

	log.Info().
		Str("sessionId", sess.ID).
		Str("userId", userID).
		Msg("session connected")

	go sess.writePump()
	s.announceConnect(sess)
	s.readLoop(sess)
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

func (s *Server) lookupUsername(userID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), connectQueryTimeout)
	defer cancel()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		if err != nil {
			log.Warn().Err(err).Str("userId", userID).Msg("username lookup failed")
		}
		return ""
	}
	return user.Username
}

// announceConnect notifies each friend's personal room that the user came
// online and tells the connecting client which friends are online right now.
// Failures here never fail the connection.
func (s *Server) announceConnect(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), connectQueryTimeout)
	defer cancel()

	friends, err := s.members.FriendIDs(ctx, sess.UserID)
	if err != nil {
		log.Warn().Err(err).Str("userId", sess.UserID).Msg("friend lookup failed on connect")
		return
	}

	online := ServerFrame{Event: EventUserOnline, Data: UserPresence{UserID: sess.UserID}}
	for _, friendID := range friends {
		s.rooms.Broadcast(UserRoom(friendID), online, nil)
	}

	sess.Send(ServerFrame{
		Event: EventFriendsOnline,
		Data:  FriendsOnline{UserIDs: s.presence.OnlineSubset(friends)},
	})
}

// announceDisconnect runs only when the user's last session closed. The
// friend list is re-fetched because no caching contract exists upstream.
func (s *Server) announceDisconnect(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), connectQueryTimeout)
	defer cancel()

	friends, err := s.members.FriendIDs(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("friend lookup failed on disconnect")
		return
	}

	offline := ServerFrame{Event: EventUserOffline, Data: UserPresence{UserID: userID}}
	for _, friendID := range friends {
		s.rooms.Broadcast(UserRoom(friendID), offline, nil)
	}
}

// readLoop drives the session until the connection drops, then tears it
// down. Graceful closes and abrupt drops take the same path.
func (s *Server) readLoop(sess *Session) {
	defer s.teardown(sess)

	sess.conn.SetReadLimit(config.WSMaxMessageSize)
	sess.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
		return nil
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("sessionId", sess.ID).Msg("websocket read error")
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Debug().Err(err).Str("sessionId", sess.ID).Msg("dropping malformed frame")
			continue
		}

		s.dispatch(sess, frame)
	}
}

func (s *Server) teardown(sess *Session) {
	s.rooms.LeaveAll(sess)
	wentOffline := s.presence.MarkOffline(sess.UserID, sess)
	sess.Close()

	log.Info().
		Str("sessionId", sess.ID).
		Str("userId", sess.UserID).
		Bool("lastSession", wentOffline).
		Msg("session disconnected")

	if wentOffline {
		s.announceDisconnect(sess.UserID)
	}
}

func (s *Server) dispatch(sess *Session, frame ClientFrame) {
	switch frame.Event {
	case EventMessageSend:
		var payload SendMessagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			s.replySendError(sess, frame.AckID, nil, apperrors.ValidationError("Invalid message payload"))
			return
		}
		// Handled asynchronously: an outstanding persistence call must not
		// block this session's next frames.
		go s.handleSend(sess, frame.AckID, payload)

	case EventGroupJoin:
		groupID, ok := parseGroupID(frame.Data)
		if !ok {
			s.sendAck(sess, frame.AckID, AckPayload{Success: false, Error: "Invalid group payload"})
			return
		}
		if err := s.router.JoinGroup(context.Background(), sess, groupID); err != nil {
			s.sendAck(sess, frame.AckID, AckPayload{Success: false, Error: clientErrorMessage(err)})
			return
		}
		s.sendAck(sess, frame.AckID, AckPayload{Success: true})

	case EventGroupLeave:
		if groupID, ok := parseGroupID(frame.Data); ok {
			s.router.LeaveGroup(sess, groupID)
		}
		s.sendAck(sess, frame.AckID, AckPayload{Success: true})

	case EventTypingStart, EventTypingStop:
		var payload TypingPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		s.router.RelayTyping(sess, frame.Event, payload)

	default:
		log.Debug().Str("event", frame.Event).Str("sessionId", sess.ID).Msg("unknown event")
		s.sendAck(sess, frame.AckID, AckPayload{Success: false, Error: "Unknown event"})
	}
}

func (s *Server) handleSend(sess *Session, ackID *int64, payload SendMessagePayload) {
	msg, err := s.router.SendMessage(context.Background(), sess, payload)
	if err != nil {
		s.replySendError(sess, ackID, payload.TempID, err)
		return
	}

	s.sendAck(sess, ackID, AckPayload{Success: true, Message: msg})
	sess.Send(ServerFrame{
		Event: EventMessageSent,
		Data:  SentMessage{Message: *msg, TempID: payload.TempID},
	})
}

// replySendError surfaces a send failure on both response paths: the ack for
// callers that wired it, and a message:error push for optimistic-UI rollback.
func (s *Server) replySendError(sess *Session, ackID *int64, tempID *string, err error) {
	msg := clientErrorMessage(err)

	if apperrors.GetCode(err) == apperrors.ErrCodeDatabase || !apperrors.IsAppError(err) {
		log.Error().Err(err).
			Str("sessionId", sess.ID).
			Str("userId", sess.UserID).
			Msg("message send failed")
	}

	s.sendAck(sess, ackID, AckPayload{Success: false, Error: msg})
	sess.Send(ServerFrame{
		Event: EventMessageError,
		Data:  MessageError{TempID: tempID, Error: msg},
	})
}

func (s *Server) sendAck(sess *Session, ackID *int64, payload AckPayload) {
	if ackID == nil {
		return
	}
	sess.Send(ServerFrame{Event: EventAck, AckID: ackID, Data: payload})
}

// clientErrorMessage maps an error to what the sender may see. Validation,
// authorization and rate-limit messages pass through; everything else is a
// generic failure, with details kept in the server log.
func clientErrorMessage(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeValidation,
			apperrors.ErrCodeInvalidInput,
			apperrors.ErrCodeMissingRequired,
			apperrors.ErrCodeForbidden,
			apperrors.ErrCodeRateLimitExceeded:
			return appErr.Message
		}
	}
	return "Failed to send message"
}

// parseGroupID accepts both {"groupId": "..."} objects and a bare JSON
// string, which is what older clients emit.
func parseGroupID(data json.RawMessage) (string, bool) {
	var payload GroupPayload
	if err := json.Unmarshal(data, &payload); err == nil && payload.GroupID != "" {
		return payload.GroupID, true
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil && raw != "" {
		return raw, true
	}
	return "", false
}
