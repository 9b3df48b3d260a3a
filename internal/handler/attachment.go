package handler

import (
	"bytes"
	"io"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
	"github.com/chatapp/gateway-server-go/internal/httputil"
	"github.com/chatapp/gateway-server-go/internal/middleware"
	"github.com/chatapp/gateway-server-go/internal/model"
	"github.com/chatapp/gateway-server-go/internal/storage"
)

// AttachmentHandler accepts attachment uploads ahead of a message:send. The
// returned descriptor is what the client puts in the send payload; the
// gateway never transports raw bytes.
type AttachmentHandler struct {
	blobs *storage.BlobStore
}

func NewAttachmentHandler(blobs *storage.BlobStore) *AttachmentHandler {
	return &AttachmentHandler{blobs: blobs}
}

func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, apperrors.MissingRequired("file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Failed to read uploaded file"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	processed := storage.ProcessUpload(data, contentType)

	objectName := "messages/" + uuid.NewString() + path.Ext(header.Filename)
	url, err := h.blobs.Put(r.Context(), objectName, bytes.NewReader(processed.Data), int64(len(processed.Data)), processed.ContentType)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("attachment upload failed")
		httputil.WriteError(w, apperrors.External("storage", err))
		return
	}

	size := int64(len(processed.Data))
	fileName := header.Filename

	log.Info().
		Str("userId", userID).
		Str("object", objectName).
		Str("type", string(processed.Kind)).
		Int64("sizeBytes", size).
		Msg("attachment uploaded")

	httputil.WriteJSON(w, http.StatusCreated, model.AttachmentInput{
		URL:       url,
		Type:      processed.Kind,
		SizeBytes: &size,
		Width:     processed.Width,
		Height:    processed.Height,
		FileName:  &fileName,
	})
}
