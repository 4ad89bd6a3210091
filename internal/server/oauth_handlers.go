package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campusnet/internal/auth"
)

const oauthStatePrefix = "oauth_state:"
const oauthStateTTL = 10 * time.Minute

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type oauthState struct {
	ReturnTo string `json:"returnTo"`
	UserType string `json:"userType,omitempty"`
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	returnTo := sanitizeReturnTo(r.URL.Query().Get("returnTo"))
	if !s.Config.Google.Enabled() {
		log.Printf("oauth start: google provider not configured")
		s.oauthErrorRedirect(w, r, returnTo, "provider_unavailable")
		return
	}

	state, err := auth.RandomToken(32)
	if err != nil {
		s.oauthErrorRedirect(w, r, returnTo, "state_persist_failed")
		return
	}
	raw, _ := json.Marshal(oauthState{
		ReturnTo: returnTo,
		UserType: r.URL.Query().Get("userType"),
	})
	if err := s.Redis.Set(r.Context(), oauthStatePrefix+state, raw, oauthStateTTL).Err(); err != nil {
		log.Printf("oauth start: failed to persist state: %v", err)
		s.oauthErrorRedirect(w, r, returnTo, "state_persist_failed")
		return
	}

	u, _ := url.Parse(googleAuthURL)
	q := u.Query()
	q.Set("client_id", s.Config.Google.ClientID)
	q.Set("redirect_uri", s.Config.Google.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	returnTo := "/"
	if !s.Config.Google.Enabled() {
		s.oauthErrorRedirect(w, r, returnTo, "provider_unavailable")
		return
	}

	stateParam := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if stateParam == "" || code == "" {
		log.Printf("oauth callback: missing state/code")
		s.oauthErrorRedirect(w, r, returnTo, "missing_state")
		return
	}

	rawState, err := s.Redis.Get(r.Context(), oauthStatePrefix+stateParam).Bytes()
	if err != nil {
		log.Printf("oauth callback: state lookup failed: %v", err)
		s.oauthErrorRedirect(w, r, returnTo, "state_invalid")
		return
	}
	_ = s.Redis.Del(r.Context(), oauthStatePrefix+stateParam).Err()

	var st oauthState
	_ = json.Unmarshal(rawState, &st)
	returnTo = sanitizeReturnTo(st.ReturnTo)

	token, err := s.exchangeGoogleCode(r.Context(), code)
	if err != nil {
		log.Printf("oauth callback: token exchange failed: %v", err)
		s.oauthErrorRedirect(w, r, returnTo, "token_exchange_failed")
		return
	}
	info, err := fetchGoogleUser(r.Context(), token.AccessToken)
	if err != nil {
		log.Printf("oauth callback: fetch user failed: %v", err)
		s.oauthErrorRedirect(w, r, returnTo, "profile_fetch_failed")
		return
	}
	if info.Email == "" || !info.VerifiedEmail {
		log.Printf("oauth callback: google account without a verified email")
		s.oauthErrorRedirect(w, r, returnTo, "email_required")
		return
	}

	ctx := r.Context()

	// Pre-read for audit labeling only; the merge itself is transactional.
	eventType := auth.AuditGoogleLogin
	if known, _ := s.Store.FindUserByGoogleID(ctx, info.ID); known == nil {
		if byEmail, _ := s.Store.FindUserByEmail(ctx, auth.NormalizeEmail(info.Email)); byEmail != nil {
			eventType = auth.AuditGoogleLink
		}
	}

	session, err := s.Auth.GoogleLogin(ctx, info.ID, info.Email, info.Name, st.UserType, s.sessionMeta(r))
	if err != nil {
		log.Printf("oauth callback: google login failed: %v", err)
		s.oauthErrorRedirect(w, r, returnTo, "login_failed")
		return
	}

	s.RateLimiter.ResetLogin(ctx, clientIP(r, s.trustedProxies))
	s.Cookies.SetSessionCookies(w, session.AccessToken, session.AccessExpires, session.RefreshToken, session.RefreshExpires)
	s.auditEvent(ctx, r, eventType, session.User.ID, nil)

	http.Redirect(w, r, returnTo, http.StatusFound)
}

func (s *Server) exchangeGoogleCode(ctx context.Context, code string) (*googleTokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", s.Config.Google.ClientID)
	form.Set("client_secret", s.Config.Google.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", s.Config.Google.RedirectURL)
	form.Set("grant_type", "authorization_code")

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tok googleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("missing access token")
	}
	return &tok, nil
}

func fetchGoogleUser(ctx context.Context, accessToken string) (*googleUser, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info googleUser
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Server) oauthErrorRedirect(w http.ResponseWriter, r *http.Request, returnTo, reason string) {
	target := sanitizeReturnTo(returnTo)
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("toast", "oauth_error")
	if reason != "" {
		q.Set("reason", reason)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// sanitizeReturnTo only ever yields a same-site path. Anything absolute or
// protocol-relative collapses to "/".
func sanitizeReturnTo(raw string) string {
	if raw == "" {
		return "/"
	}
	if strings.HasPrefix(raw, "//") {
		return "/"
	}
	if strings.HasPrefix(raw, "/") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() {
		return "/"
	}

	path := u.Path
	if path == "" || !strings.HasPrefix(path, "/") {
		path = "/" + strings.TrimPrefix(path, "/")
	}
	if u.RawQuery != "" {
		path = path + "?" + u.RawQuery
	}
	return path
}
