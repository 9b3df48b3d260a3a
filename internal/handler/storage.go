package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
	"github.com/chatapp/gateway-server-go/internal/httputil"
	"github.com/chatapp/gateway-server-go/internal/storage"
)

// StorageHandler streams stored attachments back by object name.
type StorageHandler struct {
	blobs *storage.BlobStore
}

func NewStorageHandler(blobs *storage.BlobStore) *StorageHandler {
	return &StorageHandler{blobs: blobs}
}

func (h *StorageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	objectName := chi.URLParam(r, "*")
	if objectName == "" {
		httputil.WriteError(w, apperrors.NotFound("File"))
		return
	}

	obj, err := h.blobs.Get(r.Context(), objectName)
	if err != nil {
		httputil.WriteError(w, apperrors.NotFound("File"))
		return
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		httputil.WriteError(w, apperrors.NotFound("File"))
		return
	}

	w.Header().Set("Content-Type", stat.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if _, err := io.Copy(w, obj); err != nil {
		log.Debug().Err(err).Str("object", objectName).Msg("attachment stream interrupted")
	}
}
