package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	"github.com/alumniverein/intranet-api/internal/service"
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Sessions     *service.SessionManager
	Credentials  *service.CredentialService
	Federated    *service.FederatedService
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// PasswordLogin handles email/password sign-in.
// POST /auth/login.
func (h *AuthHandlers) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		writeAuthRequired(w, r)
		return
	}

	var req passwordLoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("email and password are required"),
		})
		return
	}

	result, err := h.Credentials.Login(r.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		OTP:       req.OTP,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "password login failed", "err", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal",
			Err:     errors.New("login is temporarily unavailable"),
		})
		return
	}

	switch result.Status {
	case service.LoginSuccess:
		established, estErr := h.Sessions.Establish(r.Context(), *sess, result.User.ID, result.User.Role)
		if estErr != nil {
			h.logger().ErrorContext(r.Context(), "session establish failed", "err", estErr)
			WriteError(w, ErrorParams{
				Code:    http.StatusInternalServerError,
				ErrCode: "internal",
				Err:     errors.New("login is temporarily unavailable"),
			})
			return
		}
		setSessionCookie(w, r, h.CookieDomain, established.ID)
		WriteJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"user": map[string]any{
				"id":         result.User.ID,
				"email":      result.User.Email,
				"first_name": result.User.FirstName,
				"last_name":  result.User.LastName,
				"role":       result.User.Role,
			},
		})

	case service.LoginSecondFactorRequired:
		WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"status": string(service.LoginSecondFactorRequired),
		})

	case service.LoginLocked:
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
		WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"status":              string(service.LoginLocked),
			"retry_after_seconds": int(result.RetryAfter.Seconds()),
		})

	default:
		// Invalid credentials and invalid second factor are reported the
		// same way so the response never confirms which part was wrong.
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "invalid_credentials",
			Err:     errors.New("invalid email or password"),
		})
	}
}

// SSOLogin starts the federated sign-in flow and redirects to the IdP.
// GET /auth/sso/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		writeAuthRequired(w, r)
		return
	}

	authURL, updated, err := h.Federated.Begin(r.Context(), *sess)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "federated begin failed", "err", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("sign-in is temporarily unavailable"),
		})
		return
	}
	*sess = updated

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles the IdP redirect.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		writeAuthRequired(w, r)
		return
	}

	q := r.URL.Query()
	established, _, err := h.Federated.Callback(r.Context(), *sess, service.CallbackInput{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		ErrorParam:       q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		IP:               clientIP(r),
		UserAgent:        r.UserAgent(),
	})
	if err != nil {
		h.writeCallbackError(w, r, err)
		return
	}

	setSessionCookie(w, r, h.CookieDomain, established.ID)
	http.Redirect(w, r, safeRedirectPath(q.Get("redirect_uri")), http.StatusFound)
}

// writeCallbackError translates callback failures into client responses. The
// response stays generic; the full cause goes to the log only.
func (h *AuthHandlers) writeCallbackError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger().WarnContext(r.Context(), "federated callback failed",
		"code", apperrors.GetCode(err), "err", err)

	status := http.StatusBadRequest
	errCode := string(apperrors.GetCode(err))
	switch {
	case apperrors.IsUnresolvableClaims(err):
		status = http.StatusForbidden
	case apperrors.IsProviderError(err):
		status = http.StatusBadGateway
	case errCode == "":
		status = http.StatusInternalServerError
		errCode = "internal"
	}

	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: errCode,
		Err:     errors.New("sign-in could not be completed"),
	})
}

// Logout destroys the server-side session and clears the cookie.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := GetSessionFromContext(r.Context()); sess != nil {
		if err := h.Sessions.Destroy(r.Context(), sess.ID); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "err", err)
		}
	}
	clearSessionCookie(w, r, h.CookieDomain)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Status returns the current authentication status along with the
// anti-forgery token clients must echo on state-changing requests.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	payload := map[string]any{
		"authenticated": sess.Authenticated(),
		"csrf_token":    sess.CSRFToken,
	}
	if SessionTimedOut(r.Context()) {
		payload["session_expired"] = true
	}
	if sess.Authenticated() {
		payload["user"] = map[string]any{
			"id":   sess.SubjectID,
			"role": sess.Role,
		}
	}
	WriteJSON(w, http.StatusOK, payload)
}

// clientIP extracts the originating client address, honouring the first
// entry of X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
