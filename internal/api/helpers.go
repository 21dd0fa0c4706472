package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes a success envelope merged with fields.
func writeOK(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeError writes a failure envelope. FlowErrors keep their code and details.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"success": false, "error": err.Error()}
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		body["error"] = fe.Message
		body["code"] = fe.Code
		if len(fe.Details) > 0 {
			body["details"] = fe.Details
		}
	}
	writeJSON(w, statusFor(err), body)
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch schema.CodeOf(err) {
	case schema.ErrCodeEmptyInput, schema.ErrCodeInvalidInput, schema.ErrCodeValidation, schema.ErrCodeExpression:
		return http.StatusBadRequest
	case schema.ErrCodeNoNodesFound:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "invalid JSON: %v", err).WithCause(err)
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, schema.NewError(schema.ErrCodeInvalidInput, fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return n, nil
}

// publish sends an event to the hub. Failures are logged, not returned:
// the store write already succeeded.
func (s *Server) publish(ctx context.Context, e streaming.Event) {
	if err := s.deps.Hub.Publish(ctx, e); err != nil {
		s.deps.Logger.WarnContext(ctx, "publish event failed",
			slog.String("type", e.Kind),
			slog.String("error", err.Error()),
		)
	}
}
