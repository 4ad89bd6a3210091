package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"campusnet/internal/auth"
	"campusnet/internal/email"
)

const verificationLinkHours = 24
const resetLinkHours = 1

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	UserType string `json:"userType,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if locked, ttl, err := s.RateLimiter.RegisterRegisterAttempt(ctx, req.Email, ip); err != nil {
		log.Printf("register: rate limit check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration throttled")
		return
	} else if locked {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"message":  "Too many signup attempts. Try again later.",
			"cooldown": int64(ttl.Seconds()),
		})
		return
	}

	user, rawToken, err := s.Auth.Register(ctx, auth.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		UserType: req.UserType,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.sendVerificationEmail(ctx, user, rawToken)
	s.auditEvent(ctx, r, auth.AuditRegister, user.ID, nil)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Registration successful! Please check your email to verify your account.",
		"user": map[string]string{
			"id":       user.ID,
			"email":    user.Email,
			"userType": user.UserType,
		},
	})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.Auth.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.auditEvent(r.Context(), r, auth.AuditEmailVerified, user.ID, nil)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Email successfully verified."})
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}

	ctx := r.Context()
	cooldownKey := fmt.Sprintf("resend_cooldown:%s", strings.ToLower(req.Email))
	if ttl := s.RateLimiter.CooldownTTL(ctx, cooldownKey); ttl > 0 {
		writeJSON(w, http.StatusTooManyRequests, map[string]int64{"cooldown": int64(ttl.Seconds())})
		return
	}
	if locked, ttl, err := s.RateLimiter.RegisterRegisterAttempt(ctx, req.Email, clientIP(r, s.trustedProxies)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	} else if locked {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"cooldown": int64(ttl.Seconds()),
			"message":  "Too many attempts. Try again later.",
		})
		return
	}

	user, rawToken, err := s.Auth.ResendVerification(ctx, req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}
	if user != nil {
		s.sendVerificationEmail(ctx, user, rawToken)
	}
	s.RateLimiter.SetCooldown(ctx, cooldownKey, auth.EmailCooldown)

	writeJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a verification email has been sent."})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validateEmail(req.Email) || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if s.RateLimiter.IsIPBanned(ctx, ip) {
		writeError(w, http.StatusForbidden, "IP_BANNED")
		return
	}

	session, err := s.Auth.Login(ctx, req.Email, req.Password, s.sessionMeta(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = s.RateLimiter.RegisterLoginFailure(ctx, ip)
		}
		writeServiceError(w, err)
		return
	}

	s.RateLimiter.ResetLogin(ctx, ip)
	s.Cookies.SetSessionCookies(w, session.AccessToken, session.AccessExpires, session.RefreshToken, session.RefreshExpires)
	s.auditEvent(ctx, r, auth.AuditLogin, session.User.ID, nil)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":          userPayload(session.User),
		"accessExpires": session.AccessExpires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.RefreshCookieName); err == nil && cookie.Value != "" {
		s.Auth.Logout(r.Context(), cookie.Value)
	}
	if ident := identityFromContext(r.Context()); ident != nil {
		s.auditEvent(r.Context(), r, auth.AuditLogout, ident.User.ID, nil)
	}
	s.Cookies.ClearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh is the explicit rotation endpoint. The middleware performs
// the same rotation transparently when an access token expires mid-session.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "Missing refresh token")
		return
	}

	session, err := s.Auth.RefreshSession(r.Context(), cookie.Value, s.sessionMeta(r))
	if err != nil {
		s.Cookies.ClearSessionCookies(w)
		writeServiceError(w, err)
		return
	}

	s.Cookies.SetSessionCookies(w, session.AccessToken, session.AccessExpires, session.RefreshToken, session.RefreshExpires)
	s.auditEvent(r.Context(), r, auth.AuditRefreshRotation, session.User.ID, nil)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessExpires": session.AccessExpires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	payload := userPayload(ident.User)
	payload["profileComplete"] = ident.ProfileComplete
	if ident.Profile != nil {
		payload["profile"] = profilePayload(ident.Profile)
	}
	writeJSON(w, http.StatusOK, payload)
}

func userPayload(u *auth.User) map[string]interface{} {
	return map[string]interface{}{
		"id":            u.ID,
		"email":         u.Email,
		"userType":      u.UserType,
		"authProvider":  u.AuthProvider,
		"emailVerified": u.EmailVerified,
		"isAdmin":       u.IsAdmin,
		"hasPassword":   u.PasswordHash != nil,
		"googleLinked":  u.GoogleID != nil,
	}
}

func (s *Server) sendVerificationEmail(ctx context.Context, user *auth.User, rawToken string) {
	if rawToken == "" {
		return
	}
	link := fmt.Sprintf("%s/verify-email?token=%s", s.Config.BaseURL, rawToken)
	content := email.VerificationEmail(link, verificationLinkHours)
	if err := s.Mailer.Send(ctx, user.Email, content.Subject, content.Text, content.HTML); err != nil {
		// The log is the fallback delivery channel; support can hand the
		// token to the user when the mail path is down.
		log.Printf("email: verification send failed for %s: %v (token: %s)", user.Email, err, rawToken)
	}
}

func (s *Server) auditEvent(ctx context.Context, r *http.Request, eventType, userID string, meta map[string]interface{}) {
	err := s.Audit.Log(ctx, auth.AuditEvent{
		EventType: eventType,
		UserID:    userID,
		IP:        clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
		Meta:      meta,
	})
	if err != nil {
		log.Printf("audit: %s log failed: %v", eventType, err)
	}
}
