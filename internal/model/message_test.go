package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageKindValid(t *testing.T) {
	for _, kind := range []MessageKind{KindText, KindImage, KindVideo, KindFile, KindAudio} {
		assert.True(t, kind.Valid(), string(kind))
	}

	assert.False(t, MessageKind("STICKER").Valid())
	assert.False(t, MessageKind("").Valid())
	assert.False(t, MessageKind("text").Valid())
}

func TestKindFromAttachments(t *testing.T) {
	t.Run("no attachments means text", func(t *testing.T) {
		assert.Equal(t, KindText, KindFromAttachments(nil))
		assert.Equal(t, KindText, KindFromAttachments([]AttachmentInput{}))
	})

	t.Run("first attachment decides the kind", func(t *testing.T) {
		attachments := []AttachmentInput{
			{URL: "https://cdn.example.com/a.mp4", Type: KindVideo},
			{URL: "https://cdn.example.com/b.png", Type: KindImage},
		}
		assert.Equal(t, KindVideo, KindFromAttachments(attachments))
	})
}
