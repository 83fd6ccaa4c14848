package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"legalscan/pkg/fillerr"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

type requestIDKey struct{}

// RequestID returns the id assigned by WithRequestID, or a fresh one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return NewRequestID()
}

// WithRequestID assigns a request id to every request and echoes it in the
// X-Request-Id response header.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := NewRequestID()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// WriteRequestError writes the error envelope under the request's id.
func WriteRequestError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": RequestID(r.Context()),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteFillError maps a fill failure to its status and error code. Errors
// without a kind are reported as INTERNAL.
func WriteFillError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *fillerr.Error
	if !errors.As(err, &fe) {
		WriteRequestError(w, r, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	var details any
	if fe.Input != "" {
		details = map[string]any{"input": fe.Input}
	}
	WriteRequestError(w, r, fillerr.Status(fe.Kind), string(fe.Kind), err.Error(), details)
}
