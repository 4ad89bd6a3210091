package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"campusnet/internal/auth"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	if ident.Profile == nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	payload := profilePayload(ident.Profile)
	payload["profileComplete"] = ident.ProfileComplete
	writeJSON(w, http.StatusOK, payload)
}

type updateProfileRequest struct {
	FullName       *string  `json:"fullName"`
	Bio            *string  `json:"bio"`
	University     *string  `json:"university"`
	Program        *string  `json:"program"`
	GraduationYear *int     `json:"graduationYear"`
	CompanyName    *string  `json:"companyName"`
	Website        *string  `json:"website"`
	Skills         []string `json:"skills"`
}

// handleUpdateProfile applies a partial edit. Any accepted edit drops the
// profile back to pending_approval and clears the approver columns; the
// store enforces that in the same statement.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FullName != nil && strings.TrimSpace(*req.FullName) == "" {
		writeError(w, http.StatusBadRequest, "Name cannot be empty")
		return
	}
	if req.GraduationYear != nil && (*req.GraduationYear < 1950 || *req.GraduationYear > 2100) {
		writeError(w, http.StatusBadRequest, "Invalid graduation year")
		return
	}

	profile, err := s.Store.UpdateProfile(r.Context(), ident.User.ID, auth.ProfileChanges{
		FullName:       req.FullName,
		Bio:            req.Bio,
		University:     req.University,
		Program:        req.Program,
		GraduationYear: req.GraduationYear,
		CompanyName:    req.CompanyName,
		Website:        req.Website,
		Skills:         req.Skills,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	payload := profilePayload(profile)
	payload["profileComplete"] = profile.Complete(ident.User.UserType)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated. Changes are pending approval.",
		"profile": payload,
	})
}

func (s *Server) handleUpdateImage(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > 3*1024*1024 {
		writeError(w, http.StatusBadRequest, "File too large. Max 3MB.")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	imagePath, err := s.Images.Save(header.Filename, contentType, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image format.")
		return
	}

	if ident.Profile != nil && ident.Profile.ImagePath != nil {
		s.Images.Remove(*ident.Profile.ImagePath)
	}

	profile, err := s.Store.UpdateProfile(r.Context(), ident.User.ID, auth.ProfileChanges{ImagePath: &imagePath})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update image")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Uploaded successfully",
		"imageUrl": imagePath,
		"status":   profile.ProfileStatus,
	})
}

// handleGetPublicProfile exposes approved profiles to any signed-in user;
// owners and admins can also see their own unapproved state.
func (s *Server) handleGetPublicProfile(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	userID := chi.URLParam(r, "id")

	profile, err := s.Store.FindProfileByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if profile.ProfileStatus != auth.ProfileStatusApproved && userID != ident.User.ID && !ident.User.IsAdmin {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}

	writeJSON(w, http.StatusOK, profilePayload(profile))
}

func (s *Server) handleAdminListProfiles(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = auth.ProfileStatusPending
	}
	switch status {
	case auth.ProfileStatusPending, auth.ProfileStatusApproved, auth.ProfileStatusRejected:
	default:
		writeError(w, http.StatusBadRequest, "Unknown status")
		return
	}

	profiles, err := s.Store.ListProfilesByStatus(r.Context(), status, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	out := make([]map[string]interface{}, 0, len(profiles))
	for i := range profiles {
		out = append(out, profilePayload(&profiles[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": out})
}

func (s *Server) handleAdminApproveProfile(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	userID := chi.URLParam(r, "id")

	profile, err := s.Store.ApproveProfile(r.Context(), userID, ident.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to approve profile")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile approved.",
		"profile": profilePayload(profile),
	})
}

func profilePayload(p *auth.Profile) map[string]interface{} {
	return map[string]interface{}{
		"userId":         p.UserID,
		"fullName":       p.FullName,
		"bio":            p.Bio,
		"university":     p.University,
		"program":        p.Program,
		"graduationYear": p.GraduationYear,
		"companyName":    p.CompanyName,
		"website":        p.Website,
		"skills":         p.Skills,
		"imageUrl":       p.ImagePath,
		"status":         p.ProfileStatus,
	}
}
