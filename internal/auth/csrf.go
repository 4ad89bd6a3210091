package auth

import (
	"crypto/subtle"
	"net/http"
)

const CSRFHeaderName = "X-CSRF-Token"

// CSRFGuard implements double-submit protection: a random token lives in a
// readable cookie and must be echoed back in a request header on every
// mutating call. Nothing is persisted server-side.
type CSRFGuard struct {
	Secure bool
}

// Issue generates a fresh token and writes it to the readable csrf cookie.
func (g CSRFGuard) Issue(w http.ResponseWriter) (string, error) {
	token, err := RandomToken(32)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   g.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// Validate fails closed: both sides must be present and equal.
func (g CSRFGuard) Validate(cookieValue, headerValue string) bool {
	if cookieValue == "" || headerValue == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) == 1
}

// ValidateRequest reads the cookie/header pair off an incoming request.
func (g CSRFGuard) ValidateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return false
	}
	return g.Validate(cookie.Value, r.Header.Get(CSRFHeaderName))
}
