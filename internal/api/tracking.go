package api

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// pixel is a transparent 1x1 GIF
var pixel, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// handleTrackOpen always answers with the pixel so mail clients never show
// a broken image
func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if sid := r.URL.Query().Get("sid"); sid != "" {
		if err := s.svc.Campaigns.TrackOpen(r.Context(), campaignID, sid); err != nil {
			s.logger.Debug("open not recorded", "campaign_id", campaignID, "subscriber_id", sid, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixel)
}

// handleTrackClick records the click and redirects to the original link
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	u, err := url.Parse(target)
	if target == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		s.sendError(w, http.StatusBadRequest, "Invalid url")
		return
	}

	campaignID := chi.URLParam(r, "campaignID")
	if sid := r.URL.Query().Get("sid"); sid != "" {
		if err := s.svc.Campaigns.TrackClick(r.Context(), campaignID, sid); err != nil {
			s.logger.Debug("click not recorded", "campaign_id", campaignID, "subscriber_id", sid, "error", err)
		}
	}

	http.Redirect(w, r, u.String(), http.StatusFound)
}
