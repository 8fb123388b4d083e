package dispatch

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// ResponseWriter is the four reply shapes a Handler can produce (spec
// §4.6): a streamed byte response, a JSON document, a whole file served
// from disk, or an error.
type ResponseWriter interface {
	// StartResponse begins a streamed response with the given content type
	// and cache policy, before any SendData calls.
	StartResponse(mimeType string, cachePolicy cachelayout.CachePolicy) error
	// SendData writes a chunk of the response body.
	SendData(chunk []byte) error
	// Done finishes a streamed response started with StartResponse.
	Done()
	// RespondWithJSON writes v as the entire JSON response body.
	RespondWithJSON(v any) error
	// RespondWithFile serves the whole file at path with the given content
	// type.
	RespondWithFile(path, mimeType string) error
	// RespondWithError writes err as the response, choosing an HTTP status
	// from its locoerrors.Error kind if classified, else 500.
	RespondWithError(err error)
}

// HTTPResponseWriter adapts an http.ResponseWriter to ResponseWriter,
// grounded on the original implementation's LOContentResponse, which
// wraps the host platform's native response object behind the same four
// operations.
type HTTPResponseWriter struct {
	w http.ResponseWriter
}

// NewHTTPResponseWriter wraps w as a ResponseWriter.
func NewHTTPResponseWriter(w http.ResponseWriter) *HTTPResponseWriter {
	return &HTTPResponseWriter{w: w}
}

var _ ResponseWriter = (*HTTPResponseWriter)(nil)

func (h *HTTPResponseWriter) StartResponse(mimeType string, cachePolicy cachelayout.CachePolicy) error {
	h.w.Header().Set("Content-Type", mimeType)
	h.w.Header().Set("X-Locomote-Cache-Policy", string(cachePolicy))
	h.w.WriteHeader(http.StatusOK)

	return nil
}

func (h *HTTPResponseWriter) SendData(chunk []byte) error {
	_, err := h.w.Write(chunk)
	return err
}

func (h *HTTPResponseWriter) Done() {}

func (h *HTTPResponseWriter) RespondWithJSON(v any) error {
	h.w.Header().Set("Content-Type", "application/json")
	h.w.WriteHeader(http.StatusOK)

	return json.NewEncoder(h.w).Encode(v)
}

func (h *HTTPResponseWriter) RespondWithFile(path, mimeType string) error {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path)
	}

	f, err := os.Open(path)
	if err != nil {
		h.RespondWithError(locoerrors.Wrap(locoerrors.ErrCacheIO, err, "opening %s", path))
		return err
	}
	defer f.Close()

	h.w.Header().Set("Content-Type", mimeType)
	h.w.WriteHeader(http.StatusOK)

	_, err = io.Copy(h.w, f)
	return err
}

func (h *HTTPResponseWriter) RespondWithError(err error) {
	http.Error(h.w, err.Error(), statusFor(err))
}

// statusFor maps a classified locoerrors kind to an HTTP status code.
func statusFor(err error) int {
	switch {
	case locoerrors.IsKind(err, locoerrors.ErrNotFound):
		return http.StatusNotFound
	case locoerrors.IsKind(err, locoerrors.ErrAuth):
		return http.StatusUnauthorized
	case locoerrors.IsKind(err, locoerrors.ErrInvalidPath), locoerrors.IsKind(err, locoerrors.ErrInvalidCategory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
