package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradingroom/src/trading"
)

type errorResponse struct {
	Error  string      `json:"error"`
	Result interface{} `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// statusFor maps the trading error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, trading.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, trading.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trading.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trading.ErrOrderNotActive), errors.Is(err, trading.ErrPositionAlreadyClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorWithResult(w, r, err, nil)
}

func writeErrorWithResult(w http.ResponseWriter, r *http.Request, err error, result interface{}) {
	status := statusFor(err)
	message := err.Error()

	entry := logger.WithFields(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}).WithError(err)
	if status == http.StatusInternalServerError {
		entry.Error("request failed")
		message = "Internal Server Error"
	} else {
		entry.Debug("request rejected")
	}

	writeJSON(w, status, errorResponse{Error: message, Result: result})
}

// decodeBody decodes a required JSON body.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		logger.WithError(err).Warn("invalid payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload"})
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints where an empty body is valid.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return true
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		logger.WithError(err).Warn("invalid payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
