package repository

import (
	"context"

	"github.com/chatapp/gateway-server-go/internal/database"
)

// MembershipRepository is the read-only membership oracle: group membership
// facts and friendship facts. The gateway queries it fresh on every send and
// on connect/disconnect; no caching contract exists upstream.
type MembershipRepository interface {
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

type membershipRepo struct {
	db database.DBTX
}

func NewMembershipRepository(db database.DBTX) MembershipRepository {
	return &membershipRepo{db: db}
}

func (r *membershipRepo) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM group_members WHERE user_id = $1 AND group_id = $2
		)
	`, userID, groupID)
	return exists, err
}

func (r *membershipRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT user_id FROM group_members WHERE group_id = $1
	`, groupID)
	return ids, err
}

func (r *membershipRepo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT friend_id FROM friends WHERE user_id = $1
	`, userID)
	return ids, err
}
