package httpx

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the opaque session identifier.
const SessionCookieName = "session_id"

// isForwardedHTTPS checks if the request was forwarded over HTTPS.
// Handles comma-separated values in X-Forwarded-Proto header.
func isForwardedHTTPS(r *http.Request) bool {
	xfProto := r.Header.Get("X-Forwarded-Proto")
	if xfProto == "" {
		return false
	}
	for _, proto := range strings.Split(xfProto, ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

// setSessionCookie writes the session identifier cookie. The cookie is a pure
// reference; lifetimes are enforced server-side, so no MaxAge is set and the
// cookie lives for the browser session.
func setSessionCookie(w http.ResponseWriter, r *http.Request, domain, id string) {
	isSecure := r.TLS != nil || isForwardedHTTPS(r)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie on the client. It mirrors key
// attributes (Secure, Path, Domain, SameSite) used when setting the cookie to
// maximize compatibility across browsers during deletion.
func clearSessionCookie(w http.ResponseWriter, r *http.Request, domain string) {
	isSecure := r.TLS != nil || isForwardedHTTPS(r)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
