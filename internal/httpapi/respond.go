package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/obs"
)

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorBody struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Status: "success", Message: msg})
}

// writeError renders {"status":"fail"|"error","error":msg,"request_id":id}.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	status := "fail"
	if code >= http.StatusInternalServerError {
		status = "error"
	}
	writeJSON(w, code, errorBody{
		Status:    status,
		Error:     msg,
		RequestID: obs.RequestIDFromContext(r.Context()),
	})
}

// writeServiceError maps the auth error kinds to status codes. Anything
// unrecognised is logged in full and reported generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, r, http.StatusBadRequest, auth.Message(err, "Invalid input data"))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusBadRequest, auth.Message(err, "Duplicate value. Please use another value."))
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusBadRequest, auth.Message(err, "Token is invalid or has expired"))
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="opsfloww"`)
		writeError(w, r, http.StatusUnauthorized, auth.Message(err, "You are not logged in! Please log in to get access."))
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, auth.Message(err, "You do not have permission to perform this action"))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, auth.Message(err, "Resource not found"))
	case errors.Is(err, auth.ErrDelivery):
		obs.FromContext(r.Context()).WithError(err).Error("delivery failed")
		writeError(w, r, http.StatusInternalServerError, auth.Message(err, "Something went wrong"))
	default:
		obs.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("unhandled error")
		writeError(w, r, http.StatusInternalServerError, "Something went wrong")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return &auth.Error{Kind: auth.ErrValidation, Message: "Request body is required"}
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &auth.Error{Kind: auth.ErrValidation, Message: "Request body is required"}
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &auth.Error{Kind: auth.ErrValidation, Message: "Request body too large"}
		}
		return &auth.Error{Kind: auth.ErrValidation, Message: "Invalid JSON body"}
	}
	return nil
}
