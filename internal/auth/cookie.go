package auth

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
	CSRFCookieName    = "csrf_token"
)

// CookieManager writes and clears the two HTTP-only session cookies. The
// access cookie is Lax so it survives top-level navigations back from the
// OAuth provider; the refresh cookie is only ever read by the silent
// renewal path and gets the stricter Strict policy.
type CookieManager struct {
	Secure bool
}

func (m CookieManager) SetSessionCookies(w http.ResponseWriter, accessToken string, accessExpiry time.Time, refreshToken string, refreshExpiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   cookieMaxAge(accessExpiry),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   cookieMaxAge(refreshExpiry),
	})
}

func (m CookieManager) ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.Secure,
		})
	}
}

func cookieMaxAge(expiry time.Time) int {
	age := int(time.Until(expiry).Seconds())
	if age < 0 {
		return 0
	}
	return age
}
