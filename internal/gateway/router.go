package gateway

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/chatapp/gateway-server-go/internal/config"
	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
	"github.com/chatapp/gateway-server-go/internal/model"
)

// MessageStore is the message persistence port. The store assigns the id and
// timestamp and resolves the message kind from the attachments.
type MessageStore interface {
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
}

// MembershipOracle is the read-only authority on group membership and
// friendship facts. Queried fresh on every send and connect/disconnect.
type MembershipOracle interface {
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// SendLimiter throttles message:send per user. Satisfied by the redis
// sliding-window limiter; a nil limiter disables throttling.
type SendLimiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

// Router validates sends, persists them through the message store, and fans
// the stored record out to every reachable recipient session.
type Router struct {
	store    MessageStore
	members  MembershipOracle
	rooms    *AddressTable
	limiter  SendLimiter
	sendRate int
}

func NewRouter(store MessageStore, members MembershipOracle, rooms *AddressTable, limiter SendLimiter, sendRate int) *Router {
	if sendRate <= 0 {
		sendRate = config.DefaultSendRatePerMin
	}
	return &Router{
		store:    store,
		members:  members,
		rooms:    rooms,
		limiter:  limiter,
		sendRate: sendRate,
	}
}

// SendMessage handles one message:send. Validation happens strictly before
// any persistence write; on success the stored message is delivered to every
// recipient session currently in the addressing unit. The acknowledgement to
// the sender is the caller's concern so that it can carry the correlation id
// on every response path.
func (r *Router) SendMessage(ctx context.Context, sess *Session, p SendMessagePayload) (*model.Message, error) {
	if r.limiter != nil {
		if allowed, _, _ := r.limiter.Check(ctx, "send:"+sess.UserID, r.sendRate); !allowed {
			return nil, apperrors.RateLimitExceeded()
		}
	}

	if (p.ReceiverID == nil) == (p.GroupID == nil) {
		return nil, apperrors.ValidationError("Must specify exactly one of receiverId or groupId")
	}
	if len(p.Attachments) > config.MaxAttachmentsPerMessage {
		return nil, apperrors.ValidationError("Maximum 4 attachments allowed")
	}

	if p.GroupID != nil {
		member, err := r.members.IsMember(ctx, sess.UserID, *p.GroupID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if !member {
			return nil, apperrors.Forbidden("You are not a member of this group")
		}
	}

	msg, err := r.store.Create(ctx, model.CreateMessageParams{
		SenderID:    sess.UserID,
		ReceiverID:  p.ReceiverID,
		GroupID:     p.GroupID,
		Text:        p.Text,
		Attachments: p.Attachments,
	})
	if err != nil {
		return nil, err
	}

	if msg.ReceiverID != nil {
		r.deliverDirect(msg)
	} else {
		r.deliverGroup(ctx, sess, msg)
	}

	return msg, nil
}

// deliverDirect emits to every session in the receiver's personal room. A
// receiver with no live sessions simply gets nothing; there is no
// store-and-forward queue.
func (r *Router) deliverDirect(msg *model.Message) {
	frame := ServerFrame{Event: EventMessageReceive, Data: msg}
	r.rooms.Broadcast(UserRoom(*msg.ReceiverID), frame, nil)
}

// deliverGroup emits to the sessions in the group room whose owners are
// current members, minus every session owned by the sender — the sender gets
// message:sent instead, never its own message as an inbound receive.
// Membership is queried fresh at send time rather than trusting room state.
func (r *Router) deliverGroup(ctx context.Context, sender *Session, msg *model.Message) {
	memberIDs, err := r.members.MemberIDs(ctx, *msg.GroupID)
	if err != nil {
		log.Error().Err(err).
			Str("groupId", *msg.GroupID).
			Str("messageId", msg.ID).
			Msg("failed to resolve group members for fanout")
		return
	}

	recipients := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if id != sender.UserID {
			recipients[id] = struct{}{}
		}
	}

	frame := ServerFrame{Event: EventMessageReceive, Data: msg}
	for _, sess := range r.rooms.Sessions(GroupRoom(*msg.GroupID)) {
		if _, ok := recipients[sess.UserID]; !ok {
			continue
		}
		sess.Send(frame)
	}
}

// JoinGroup admits the connection to the group room after re-verifying
// membership. On failure no room state changes.
func (r *Router) JoinGroup(ctx context.Context, sess *Session, groupID string) error {
	if groupID == "" {
		return apperrors.MissingRequired("groupId")
	}

	member, err := r.members.IsMember(ctx, sess.UserID, groupID)
	if err != nil {
		return apperrors.Database(err)
	}
	if !member {
		return apperrors.Forbidden("You are not a member of this group")
	}

	r.rooms.Join(sess, GroupRoom(groupID))
	log.Debug().
		Str("sessionId", sess.ID).
		Str("userId", sess.UserID).
		Str("groupId", groupID).
		Msg("session joined group room")
	return nil
}

// LeaveGroup is unconditional and idempotent.
func (r *Router) LeaveGroup(sess *Session, groupID string) {
	r.rooms.Leave(sess, GroupRoom(groupID))
}

// RelayTyping passes a typing signal through to the target room, excluding
// the sender's own session. No persistence, no ack; signals without exactly
// one target are dropped.
func (r *Router) RelayTyping(sess *Session, event string, p TypingPayload) {
	if (p.ReceiverID == nil) == (p.GroupID == nil) {
		log.Debug().
			Str("sessionId", sess.ID).
			Str("event", event).
			Msg("typing signal without exactly one target, dropping")
		return
	}

	frame := ServerFrame{
		Event: event,
		Data: TypingEvent{
			UserID:     sess.UserID,
			Username:   sess.Username,
			ReceiverID: p.ReceiverID,
			GroupID:    p.GroupID,
		},
	}

	if p.ReceiverID != nil {
		r.rooms.Broadcast(UserRoom(*p.ReceiverID), frame, sess)
		return
	}
	r.rooms.Broadcast(GroupRoom(*p.GroupID), frame, sess)
}
