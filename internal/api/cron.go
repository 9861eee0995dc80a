package api

import (
	"net/http"
	"time"

	"github.com/foxzi/mailpost/internal/mail"
	"github.com/foxzi/mailpost/internal/validation"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Provider string `json:"provider,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.svc.Mail != nil {
		resp.Provider = s.svc.Mail.Provider()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleRunScheduler sends every scheduled campaign that is due
func (s *Server) handleRunScheduler(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Trigger.ProcessDue(r.Context(), time.Now())
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

// TestEmailRequest names the address for a provider test message
type TestEmailRequest struct {
	To string `json:"to"`
}

func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	var req TestEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Var(req.To, "required,email"); err != nil {
		s.sendError(w, http.StatusBadRequest, "to must be a valid email address")
		return
	}
	if s.svc.Mail == nil {
		s.sendServiceError(w, r, mail.ErrProviderUnavailable)
		return
	}

	result, err := s.svc.Mail.TestConfiguration(r.Context(), req.To)
	if err != nil {
		s.sendJSON(w, errorStatus(err), result)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}
