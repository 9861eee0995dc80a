package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/template"
)

// createdBy is recorded on objects created through the API key
const createdBy = "api"

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.svc.Templates.List(r.Context(), models.TemplateFilter{
		Category:        q.Get("category"),
		Search:          q.Get("search"),
		IncludeArchived: q.Get("include_archived") == "true",
		Page:            queryInt(r, "page", 1),
		Limit:           queryInt(r, "limit", 0),
	})
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl, err := s.svc.Templates.Create(r.Context(), in, createdBy)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.svc.Templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl, err := s.svc.Templates.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Templates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchiveTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Templates.Archive(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, MessageResponse{Message: "Template archived"})
}

func (s *Server) handleTemplateVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		s.sendError(w, http.StatusBadRequest, "Invalid version")
		return
	}

	v, err := s.svc.Templates.Version(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, v)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Templates.ListCategories(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in template.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	cat, err := s.svc.Templates.CreateCategory(r.Context(), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, cat)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := s.svc.Templates.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, cat)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in template.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	cat, err := s.svc.Templates.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Templates.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
