package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"campusnet/internal/auth"
)

type ctxKey string

const identityContextKey ctxKey = "identity"

// Identity is the resolved caller attached to the request context. Profile
// may be nil when the row has not been created yet (it normally exists from
// registration onward).
type Identity struct {
	User            *auth.User
	Profile         *auth.Profile
	ProfileComplete bool
}

// withIdentity resolves the caller from the access cookie (or Bearer header)
// when possible and otherwise lets the request through anonymously. An
// expired or unverifiable access token with a live refresh cookie triggers a
// transparent rotation: both cookies are re-issued on the response and the
// request proceeds authenticated.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := s.resolveIdentity(w, r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to resolve session")
			return
		}
		if ident == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth rejects anonymous requests. It must run inside withIdentity.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin distinguishes "not signed in" (401) from "signed in without
// the admin flag" (403).
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := identityFromContext(r.Context())
		if ident == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !ident.User.IsAdmin {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireCSRF enforces the double-submit check on every mutating request it
// wraps. Safe methods pass through so the same group can hold GETs.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !s.CSRF.ValidateRequest(r) {
			writeError(w, http.StatusForbidden, "CSRF token missing or invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) resolveIdentity(w http.ResponseWriter, r *http.Request) (*Identity, error) {
	var userID string
	hadAccessCookie := false

	if token := accessTokenFromRequest(r, &hadAccessCookie); token != "" {
		claims, err := s.Auth.Codec.VerifyAccess(token)
		if err == nil {
			userID = claims.Subject
		}
		// Expired and malformed both fall through to the refresh path; a
		// tampered access token is no worse than a missing one as long as
		// the refresh token still has to check out.
	}

	if userID == "" {
		refresh, err := r.Cookie(auth.RefreshCookieName)
		if err != nil || refresh.Value == "" {
			if hadAccessCookie {
				s.Cookies.ClearSessionCookies(w)
			}
			return nil, nil
		}
		session, err := s.Auth.RefreshSession(r.Context(), refresh.Value, s.sessionMeta(r))
		if err != nil {
			if errors.Is(err, auth.ErrInvalidRefreshToken) {
				s.Cookies.ClearSessionCookies(w)
				return nil, nil
			}
			return nil, err
		}
		s.Cookies.SetSessionCookies(w, session.AccessToken, session.AccessExpires, session.RefreshToken, session.RefreshExpires)
		if err := s.Audit.Log(r.Context(), auth.AuditEvent{
			EventType: auth.AuditRefreshRotation,
			UserID:    session.User.ID,
			IP:        clientIP(r, s.trustedProxies),
			UserAgent: r.UserAgent(),
		}); err != nil {
			log.Printf("audit: refresh rotation log failed: %v", err)
		}
		userID = session.User.ID
	}

	user, err := s.Store.FindUserByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.Cookies.ClearSessionCookies(w)
		return nil, nil
	}
	profile, err := s.Store.FindProfileByUserID(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	return &Identity{
		User:            user,
		Profile:         profile,
		ProfileComplete: profile.Complete(user.UserType),
	}, nil
}

// accessTokenFromRequest prefers the access cookie and falls back to an
// Authorization: Bearer header for non-browser clients.
func accessTokenFromRequest(r *http.Request, hadCookie *bool) string {
	if cookie, err := r.Cookie(auth.AccessCookieName); err == nil && cookie.Value != "" {
		*hadCookie = true
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func identityFromContext(ctx context.Context) *Identity {
	if val, ok := ctx.Value(identityContextKey).(*Identity); ok {
		return val
	}
	return nil
}
