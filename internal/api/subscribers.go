package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/subscriber"
)

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Subscribers.List(r.Context(), models.SubscriberFilter{
		Status: models.SubscriberStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var in subscriber.CreateSubscriberInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.svc.Subscribers.Create(r.Context(), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleSubscriberStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Subscribers.Stats(r.Context())
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetSubscriber(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.Subscribers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUpdateSubscriber(w http.ResponseWriter, r *http.Request) {
	var in subscriber.UpdateSubscriberInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.svc.Subscribers.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Subscribers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribeRequest is the public unsubscribe body
type UnsubscribeRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason,omitempty"`
}

// handleUnsubscribe answers the same way whether or not the email is known
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}

	s.unsubscribe(r, req.Email, req.Reason)
	s.sendJSON(w, http.StatusOK, MessageResponse{Message: "You have been unsubscribed"})
}

const unsubscribePage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body><p>You have been unsubscribed and will no longer receive these emails.</p></body></html>
`

// handleUnsubscribePage serves the link placed in every campaign email
func (s *Server) handleUnsubscribePage(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	s.unsubscribe(r, email, "unsubscribe link")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(unsubscribePage))
}

func (s *Server) unsubscribe(r *http.Request, email, reason string) {
	_, err := s.svc.Subscribers.Unsubscribe(r.Context(), email, reason)
	switch {
	case err == nil:
	case errorStatus(err) == http.StatusNotFound:
		s.logger.Debug("unsubscribe for unknown email")
	default:
		s.logger.Error("failed to unsubscribe", "error", err)
	}
}
