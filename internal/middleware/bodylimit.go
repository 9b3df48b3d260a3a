package middleware

import (
	"net/http"

	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
	"github.com/chatapp/gateway-server-go/internal/httputil"
)

const (
	DefaultMaxBodySize = 1 << 20 // 1MB
)

// BodyLimitMiddleware caps request body size; the attachment upload route
// uses it with the configured upload limit.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.ContentLength > m.maxSize {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
				Error: "Request body too large",
				Code:  apperrors.ErrCodeValidation,
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
