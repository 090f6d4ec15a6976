package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alumniverein/intranet-api/internal/service"
)

const (
	// DefaultCSRFHeaderName is the header checked for the anti-forgery token (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"
	// DefaultCSRFFormField is the form field checked for the anti-forgery token.
	DefaultCSRFFormField = "csrf_token"
)

// CSRFConfig holds configuration for the CSRF protection middleware.
type CSRFConfig struct {
	// Manager verifies presented tokens against the session payload.
	Manager *service.SessionManager
	// HeaderName is the name of the CSRF header to check (default: "X-Csrf-Token")
	HeaderName string
	// FormFieldName is the name of the form field to check (default: "csrf_token")
	FormFieldName string
}

// CSRFProtection returns a middleware that validates the per-session
// anti-forgery token on state-changing requests (POST, PUT, DELETE, PATCH).
// The token lives in the server-side session payload, never in a client
// cookie, so a forged cross-site request cannot supply it. The guard fails
// closed: no session, no token, or a mismatch all abort the request before
// any handler runs.
//
// GET, HEAD, OPTIONS, and TRACE requests are exempt from CSRF validation.
// The Session middleware must run first.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultCSRFHeaderName
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultCSRFFormField
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresCSRFValidation(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			sess := GetSessionFromContext(r.Context())
			if sess == nil {
				writeCSRFFailure(w)
				return
			}

			presented := presentedToken(r, cfg)
			if !cfg.Manager.VerifyCSRF(*sess, presented) {
				writeCSRFFailure(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requiresCSRFValidation returns true if the HTTP method requires CSRF validation.
// Safe methods (GET, HEAD, OPTIONS, TRACE) are exempt.
func requiresCSRFValidation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// presentedToken extracts the anti-forgery token from the request: the CSRF
// header first (AJAX clients), then the form field for form-encoded bodies.
func presentedToken(r *http.Request, cfg CSRFConfig) string {
	if headerToken := r.Header.Get(cfg.HeaderName); headerToken != "" {
		return headerToken
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.FormValue(cfg.FormFieldName)
	}

	return ""
}

func writeCSRFFailure(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusForbidden,
		ErrCode: "csrf_validation_failed",
		Err:     errors.New("CSRF token validation failed"),
	})
}
