package storage

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"

	"github.com/chatapp/gateway-server-go/internal/config"
	"github.com/chatapp/gateway-server-go/internal/model"
)

// KindFromContentType infers the attachment kind from the MIME type prefix.
// Anything unrecognized is a generic file.
func KindFromContentType(contentType string) model.MessageKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return model.KindImage
	case strings.HasPrefix(contentType, "video/"):
		return model.KindVideo
	case strings.HasPrefix(contentType, "audio/"):
		return model.KindAudio
	default:
		return model.KindFile
	}
}

type ProcessedUpload struct {
	Data        []byte
	ContentType string
	Kind        model.MessageKind
	Width       *int
	Height      *int
}

// ProcessUpload prepares an uploaded payload for storage. Images are decoded
// for their dimensions and downscaled to the configured bound, re-encoded as
// JPEG; a decode failure falls back to storing the original bytes untouched.
// Non-image payloads pass through as-is.
func ProcessUpload(data []byte, contentType string) ProcessedUpload {
	result := ProcessedUpload{
		Data:        data,
		ContentType: contentType,
		Kind:        KindFromContentType(contentType),
	}

	if result.Kind != model.KindImage {
		return result
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warn().Err(err).Str("contentType", contentType).Msg("image decode failed, storing original")
		return result
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > config.MaxImageDimension || height > config.MaxImageDimension {
		img = resize.Thumbnail(config.MaxImageDimension, config.MaxImageDimension, img, resize.Lanczos3)
		bounds = img.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: config.JPEGQuality}); err != nil {
		log.Warn().Err(err).Msg("image re-encode failed, storing original")
		result.Width, result.Height = &width, &height
		return result
	}

	result.Data = buf.Bytes()
	result.ContentType = "image/jpeg"
	result.Width, result.Height = &width, &height
	return result
}
