package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/mailpost/internal/subscriber"
)

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Subscribers.ListLists(r.Context(),
		r.URL.Query().Get("search"), queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var in subscriber.CreateListInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.svc.Subscribers.CreateList(r.Context(), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, list)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Subscribers.GetList(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	var in subscriber.UpdateListInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.svc.Subscribers.UpdateList(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Subscribers.DeleteList(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Subscribers.SubscribersByList(r.Context(),
		chi.URLParam(r, "id"), queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

// AddMemberRequest names the subscriber to add to a list
type AddMemberRequest struct {
	SubscriberID string `json:"subscriber_id"`
}

// AddMemberResponse reports whether the subscriber was already a member
type AddMemberResponse struct {
	AlreadyInList bool `json:"already_in_list"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SubscriberID == "" {
		s.sendError(w, http.StatusBadRequest, "subscriber_id is required")
		return
	}

	already, err := s.svc.Subscribers.AddSubscriber(r.Context(), chi.URLParam(r, "id"), req.SubscriberID)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if already {
		status = http.StatusOK
	}
	s.sendJSON(w, status, AddMemberResponse{AlreadyInList: already})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Subscribers.RemoveSubscriber(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "subscriberID"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
