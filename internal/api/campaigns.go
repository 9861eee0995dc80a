package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/mailpost/internal/campaign"
	"github.com/foxzi/mailpost/internal/models"
)

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Campaigns.List(r.Context(), models.CampaignListFilter{
		Status: models.CampaignStatus(r.URL.Query().Get("status")),
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

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.svc.Campaigns.Create(r.Context(), in, createdBy)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.svc.Campaigns.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScheduleRequest carries the future send time
type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (s *Server) handleScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ScheduledAt.IsZero() {
		s.sendError(w, http.StatusBadRequest, "scheduled_at is required")
		return
	}

	c, err := s.svc.Campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), req.ScheduledAt)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Campaigns.CancelSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleSendCampaign dispatches synchronously and returns the tally
func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Campaigns.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleCampaignRecipients(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Campaigns.Recipients(r.Context(), chi.URLParam(r, "id"), models.RecipientFilter{
		Status: models.RecipientStatus(r.URL.Query().Get("status")),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}
