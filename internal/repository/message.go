package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/chatapp/gateway-server-go/internal/config"
	"github.com/chatapp/gateway-server-go/internal/database"
	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
	"github.com/chatapp/gateway-server-go/internal/model"
)

// MessageRepository is the message persistence port. Create assigns the
// message id and timestamp server-side and resolves the message kind from
// the attachments; the returned record is immutable from the gateway's
// point of view.
type MessageRepository interface {
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	FindByID(ctx context.Context, id string) (*model.Message, error)
}

type messageRepo struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	// Defense in depth: the gateway checks these too, but the port is the
	// last gate before the write.
	if (params.ReceiverID == nil) == (params.GroupID == nil) {
		return nil, apperrors.ValidationError("Must specify exactly one of receiverId or groupId")
	}
	if len(params.Attachments) > config.MaxAttachmentsPerMessage {
		return nil, apperrors.ValidationError("Maximum 4 attachments allowed")
	}
	for _, a := range params.Attachments {
		if !a.Type.Valid() {
			return nil, apperrors.InvalidInput("attachment type", string(a.Type))
		}
	}

	kind := model.KindFromAttachments(params.Attachments)

	var msg model.Message
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &msg, `
			INSERT INTO messages (text, message_type, sender_id, receiver_id, group_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING *
		`, params.Text, kind, params.SenderID, params.ReceiverID, params.GroupID); err != nil {
			return err
		}

		for _, a := range params.Attachments {
			var att model.Attachment
			if err := tx.GetContext(ctx, &att, `
				INSERT INTO message_attachments
					(message_id, url, type, size_bytes, width, height, duration_ms, file_name)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING *
			`, msg.ID, a.URL, a.Type, a.SizeBytes, a.Width, a.Height, a.DurationMs, a.FileName); err != nil {
				return err
			}
			msg.Attachments = append(msg.Attachments, att)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if msg.Attachments == nil {
		msg.Attachments = []model.Attachment{}
	}
	return &msg, nil
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	found, err := HandleNotFound(&msg, err)
	if found == nil || err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &found.Attachments, `
		SELECT * FROM message_attachments WHERE message_id = $1 ORDER BY id ASC
	`, id); err != nil {
		return nil, err
	}
	if found.Attachments == nil {
		found.Attachments = []model.Attachment{}
	}
	return found, nil
}
