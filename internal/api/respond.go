package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/foxzi/mailpost/internal/campaign"
	"github.com/foxzi/mailpost/internal/mail"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/subscriber"
	"github.com/foxzi/mailpost/internal/template"
)

// maxBodyBytes limits JSON request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is returned by operations without a body of their own
type MessageResponse struct {
	Message string `json:"message"`
}

// sendJSON sends JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendError sends error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendServiceError maps a service error to its HTTP status
func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.sendError(w, status, "Internal server error")
		return
	}
	s.sendError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, subscriber.ErrSubscriberNotFound),
		errors.Is(err, subscriber.ErrListNotFound),
		errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, template.ErrVersionNotFound),
		errors.Is(err, template.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrInvalidState),
		errors.Is(err, subscriber.ErrDuplicateEmail),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrInvalidInput),
		errors.Is(err, subscriber.ErrInvalidInput),
		errors.Is(err, template.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, mail.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, mail.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, mail.ErrDispatchFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryInt parses an integer query parameter; missing or malformed values
// fall back to def
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
