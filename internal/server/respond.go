package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/platform/reqctx"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error         string   `json:"error"`
	RequiredRoles []string `json:"required_roles,omitempty"`
	RequestID     string   `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorWriter returns an rbac.ErrorWriter that maps apperr kinds to status codes. Internal errors are
// logged and replaced by a generic message.
func errorWriter(logger *slog.Logger) func(w http.ResponseWriter, r *http.Request, err error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := apperr.HTTPStatus(err)
		body := errorBody{Error: apperr.PublicMessage(err), RequestID: reqctx.RequestID(r.Context())}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			body.RequiredRoles = ae.RequiredRoles
		}
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "http: request failed",
				"method", r.Method, "path", r.URL.Path, "request_id", body.RequestID, "error", err)
		}
		writeJSON(w, status, body)
	}
}

// decodeJSON reads a JSON body into dst. Unknown fields and trailing data are rejected.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if dec.More() {
		return apperr.BadRequest("invalid request body")
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.BadRequest("invalid " + name)
	}
	return n, nil
}
