package server

import (
	"log"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"campusnet/internal/auth"
	"campusnet/internal/community"
	"campusnet/internal/config"
	"campusnet/internal/email"
	"campusnet/internal/storage"
)

type Server struct {
	Auth           *auth.Service
	Store          auth.Store
	Community      *community.Repository
	RateLimiter    *auth.RateLimiter
	Audit          *auth.AuditLogger
	Mailer         *email.Sender
	Images         storage.ImageStore
	Redis          *redis.Client
	Config         config.Config
	Cookies        auth.CookieManager
	CSRF           auth.CSRFGuard
	trustedProxies []net.IPNet
}

func NewServer(cfg config.Config, svc *auth.Service, store auth.Store, comm *community.Repository, rl *auth.RateLimiter, audit *auth.AuditLogger, redisClient *redis.Client, mailer *email.Sender, images storage.ImageStore) *Server {
	return &Server{
		Auth:           svc,
		Store:          store,
		Community:      comm,
		RateLimiter:    rl,
		Audit:          audit,
		Mailer:         mailer,
		Images:         images,
		Redis:          redisClient,
		Config:         cfg,
		Cookies:        auth.CookieManager{Secure: cfg.SecureCookies},
		CSRF:           auth.CSRFGuard{Secure: cfg.SecureCookies},
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	formatter := &middleware.DefaultLogFormatter{
		Logger:  log.New(log.Writer(), "", log.Flags()),
		NoColor: true,
	}
	r.Use(middleware.RequestLogger(formatter))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/csrf", s.handleCSRFToken)

	// OAuth redirects come from top-level navigations and carry no CSRF
	// header; the provider round-trip is protected by the state parameter.
	r.Get("/api/oauth/google/start", s.handleGoogleStart)
	r.Get("/api/oauth/google/callback", s.handleGoogleCallback)

	// Explicit refresh stays outside withIdentity: the identity middleware's
	// transparent fallback would rotate the refresh cookie first and the
	// handler would then replay an already-revoked token.
	r.With(s.requireCSRF).Post("/api/auth/refresh", s.handleRefresh)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireCSRF)
		pr.Use(s.withIdentity)

		pr.Post("/api/register", s.handleRegister)
		pr.Post("/api/verify-email", s.handleVerifyEmail)
		pr.Post("/api/resend-verification", s.handleResendVerification)
		pr.Post("/api/forgot-password", s.handleForgotPassword)
		pr.Post("/api/reset-password", s.handleResetPassword)

		pr.Post("/api/auth/login", s.handleLogin)
		pr.Post("/api/auth/logout", s.handleLogout)

		pr.Get("/api/projects", s.handleListProjects)
		pr.Get("/api/projects/{id}", s.handleGetProject)
		pr.Get("/api/startups", s.handleListStartups)
		pr.Get("/api/startups/{id}", s.handleGetStartup)

		pr.Group(func(ar chi.Router) {
			ar.Use(s.requireAuth)

			ar.Get("/api/auth/me", s.handleMe)

			ar.Get("/api/profile", s.handleGetProfile)
			ar.Put("/api/profile", s.handleUpdateProfile)
			ar.Post("/api/profile/image", s.handleUpdateImage)
			ar.Get("/api/profiles/{id}", s.handleGetPublicProfile)

			ar.Post("/api/projects", s.handleCreateProject)
			ar.Put("/api/projects/{id}", s.handleUpdateProject)
			ar.Delete("/api/projects/{id}", s.handleDeleteProject)

			ar.Post("/api/startups", s.handleCreateStartup)
			ar.Put("/api/startups/{id}", s.handleUpdateStartup)
			ar.Delete("/api/startups/{id}", s.handleDeleteStartup)

			ar.Post("/api/messages", s.handleSendMessage)
			ar.Get("/api/messages", s.handleListConversations)
			ar.Get("/api/messages/{peerId}", s.handleThread)
		})

		pr.Group(func(admin chi.Router) {
			admin.Use(s.requireAdmin)

			admin.Get("/api/admin/profiles", s.handleAdminListProfiles)
			admin.Post("/api/admin/profiles/{id}/approve", s.handleAdminApproveProfile)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCSRFToken seeds the double-submit cookie. The token is also returned
// in the body for clients that cannot read cookies cross-origin.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.CSRF.Issue(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}
