package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"campusnet/internal/community"
)

type createProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    *string  `json:"category"`
	SkillsNeed  []string `json:"skillsNeeded"`
	IsOpen      *bool    `json:"isOpen"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}

	project := &community.Project{
		OwnerID:     ident.User.ID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		SkillsNeed:  req.SkillsNeed,
		IsOpen:      req.IsOpen == nil || *req.IsOpen,
	}
	if err := s.Community.CreateProject(r.Context(), project); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	projects, err := s.Community.ListProjects(r.Context(), community.ProjectFilter{
		Category: q.Get("category"),
		OpenOnly: q.Get("open") == "true",
		OwnerID:  q.Get("owner"),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	if projects == nil {
		projects = []community.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.Community.FindProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}
	if project == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

type updateProjectRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	SkillsNeed  []string `json:"skillsNeeded"`
	IsOpen      *bool    `json:"isOpen"`
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title cannot be empty")
		return
	}

	project, err := s.Community.UpdateProject(r.Context(), chi.URLParam(r, "id"), ident.User.ID, community.ProjectChanges{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		SkillsNeed:  req.SkillsNeed,
		IsOpen:      req.IsOpen,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}
	if project == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	deleted, err := s.Community.DeleteProject(r.Context(), chi.URLParam(r, "id"), ident.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createStartupRequest struct {
	Name     string  `json:"name"`
	Pitch    string  `json:"pitch"`
	Industry *string `json:"industry"`
	Website  *string `json:"website"`
	Stage    *string `json:"stage"`
	IsHiring *bool   `json:"isHiring"`
}

func (s *Server) handleCreateStartup(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	var req createStartupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	startup := &community.Startup{
		OwnerID:  ident.User.ID,
		Name:     req.Name,
		Pitch:    req.Pitch,
		Industry: req.Industry,
		Website:  req.Website,
		Stage:    req.Stage,
		IsHiring: req.IsHiring != nil && *req.IsHiring,
	}
	if err := s.Community.CreateStartup(r.Context(), startup); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create startup")
		return
	}

	writeJSON(w, http.StatusCreated, startup)
}

func (s *Server) handleListStartups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	startups, err := s.Community.ListStartups(r.Context(), community.StartupFilter{
		Industry:   q.Get("industry"),
		HiringOnly: q.Get("hiring") == "true",
		OwnerID:    q.Get("owner"),
		Limit:      limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list startups")
		return
	}
	if startups == nil {
		startups = []community.Startup{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"startups": startups})
}

func (s *Server) handleGetStartup(w http.ResponseWriter, r *http.Request) {
	startup, err := s.Community.FindStartup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load startup")
		return
	}
	if startup == nil {
		writeError(w, http.StatusNotFound, "Startup not found")
		return
	}
	writeJSON(w, http.StatusOK, startup)
}

type updateStartupRequest struct {
	Name     *string `json:"name"`
	Pitch    *string `json:"pitch"`
	Industry *string `json:"industry"`
	Website  *string `json:"website"`
	Stage    *string `json:"stage"`
	IsHiring *bool   `json:"isHiring"`
}

func (s *Server) handleUpdateStartup(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	var req updateStartupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name cannot be empty")
		return
	}

	startup, err := s.Community.UpdateStartup(r.Context(), chi.URLParam(r, "id"), ident.User.ID, community.StartupChanges{
		Name:     req.Name,
		Pitch:    req.Pitch,
		Industry: req.Industry,
		Website:  req.Website,
		Stage:    req.Stage,
		IsHiring: req.IsHiring,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update startup")
		return
	}
	if startup == nil {
		writeError(w, http.StatusNotFound, "Startup not found")
		return
	}
	writeJSON(w, http.StatusOK, startup)
}

func (s *Server) handleDeleteStartup(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	deleted, err := s.Community.DeleteStartup(r.Context(), chi.URLParam(r, "id"), ident.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete startup")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Startup not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
