package model

import (
	"time"
)

// MessageKind mirrors the persisted message_type enum. A message's kind is
// derived from its first attachment; a message with no attachments is TEXT.
type MessageKind string

const (
	KindText  MessageKind = "TEXT"
	KindImage MessageKind = "IMAGE"
	KindVideo MessageKind = "VIDEO"
	KindFile  MessageKind = "FILE"
	KindAudio MessageKind = "AUDIO"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindFile, KindAudio:
		return true
	}
	return false
}

// Message is the canonical stored record returned by the persistence port.
// Exactly one of ReceiverID / GroupID is set. The gateway never mutates a
// message after creation.
type Message struct {
	ID          string       `db:"id" json:"id"`
	Text        *string      `db:"text" json:"text,omitempty"`
	MessageType MessageKind  `db:"message_type" json:"messageType"`
	SenderID    string       `db:"sender_id" json:"senderId"`
	ReceiverID  *string      `db:"receiver_id" json:"receiverId,omitempty"`
	GroupID     *string      `db:"group_id" json:"groupId,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	Attachments []Attachment `db:"-" json:"attachments"`
}

type Attachment struct {
	ID         string      `db:"id" json:"id"`
	MessageID  string      `db:"message_id" json:"-"`
	URL        string      `db:"url" json:"url"`
	Type       MessageKind `db:"type" json:"type"`
	SizeBytes  *int64      `db:"size_bytes" json:"sizeBytes,omitempty"`
	Width      *int        `db:"width" json:"width,omitempty"`
	Height     *int        `db:"height" json:"height,omitempty"`
	DurationMs *int64      `db:"duration_ms" json:"durationMs,omitempty"`
	FileName   *string     `db:"file_name" json:"fileName,omitempty"`
}

// AttachmentInput is the already-uploaded descriptor carried in a send
// payload. The gateway only ever sees descriptors, never raw bytes.
type AttachmentInput struct {
	URL        string      `json:"url"`
	Type       MessageKind `json:"type"`
	SizeBytes  *int64      `json:"sizeBytes,omitempty"`
	Width      *int        `json:"width,omitempty"`
	Height     *int        `json:"height,omitempty"`
	DurationMs *int64      `json:"durationMs,omitempty"`
	FileName   *string     `json:"fileName,omitempty"`
}

type CreateMessageParams struct {
	SenderID    string
	ReceiverID  *string
	GroupID     *string
	Text        *string
	Attachments []AttachmentInput
}

// KindFromAttachments resolves the message kind from the first attachment,
// or TEXT when there are none.
func KindFromAttachments(attachments []AttachmentInput) MessageKind {
	if len(attachments) > 0 {
		return attachments[0].Type
	}
	return KindText
}
