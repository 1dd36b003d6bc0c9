package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

const apiPrefix = "/api/"

// Media types accepted on API writes. PATCH bodies are merge patches, so
// clients may label them as such.
const (
	mediaTypeJSON       = "application/json"
	mediaTypeMergePatch = "application/merge-patch+json"
)

// RequireJSON rejects API writes whose body is not JSON with 415.
// Bodyless writes such as logout pass through.
func RequireJSON(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !carriesAPIBody(r) || acceptsMediaType(r) {
				next.ServeHTTP(w, r)
				return
			}
			log.Warn("rejected non-JSON request body",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("content_type", r.Header.Get("Content-Type")),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		})
	}
}

func carriesAPIBody(r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, apiPrefix) || r.ContentLength == 0 {
		return false
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func acceptsMediaType(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == mediaTypeJSON || (r.Method == http.MethodPatch && mediaType == mediaTypeMergePatch)
}
