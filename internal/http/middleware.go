package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	"github.com/alumniverein/intranet-api/internal/observability/metrics"
	"github.com/alumniverein/intranet-api/internal/observability/statsd"
	"github.com/alumniverein/intranet-api/internal/ports"
	"github.com/alumniverein/intranet-api/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionConfig groups dependencies for the Session middleware.
type SessionConfig struct {
	Manager      *service.SessionManager
	CookieDomain string
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// Session returns the middleware that attaches a live session to every
// request. It loads the session named by the cookie, enforces the idle
// timeout, applies periodic identifier rotation, and starts a fresh anonymous
// session when none exists. A store failure is fatal for the request: serving
// without session state would silently disable the CSRF guard.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var (
				sess     domainauth.Session
				have     bool
				timedOut bool
			)

			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				stored, getErr := cfg.Manager.Get(ctx, cookie.Value)
				switch {
				case getErr == nil:
					sess, have = stored, true
				case isSessionNotFound(getErr):
					// Stale cookie; fall through to a fresh session.
				default:
					logger.ErrorContext(ctx, "session store unavailable", "err", getErr)
					http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
					return
				}
			}

			if have {
				touched, touchErr := cfg.Manager.Touch(ctx, sess)
				switch {
				case touchErr == nil:
					sess = touched
				case apperrors.IsSessionTimeout(touchErr):
					have = false
					timedOut = true
					metrics.EmitSessionTimeout(cfg.Metrics)
				default:
					logger.ErrorContext(ctx, "session touch failed", "err", touchErr)
					http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
					return
				}
			}

			if have {
				rotatedSess, rotated, rotErr := cfg.Manager.RotateIfStale(ctx, sess)
				if rotErr != nil {
					logger.ErrorContext(ctx, "session rotation failed", "err", rotErr)
					http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
					return
				}
				if rotated {
					setSessionCookie(w, r, cfg.CookieDomain, rotatedSess.ID)
					metrics.EmitSessionRotation(cfg.Metrics)
				}
				sess = rotatedSess
			} else {
				fresh, startErr := cfg.Manager.Start(ctx)
				if startErr != nil {
					logger.ErrorContext(ctx, "session start failed", "err", startErr)
					http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
					return
				}
				sess = fresh
				setSessionCookie(w, r, cfg.CookieDomain, sess.ID)
			}

			ctx = SetSessionInContext(ctx, &sess)
			if timedOut {
				ctx = markSessionTimedOut(ctx)
				w.Header().Set("X-Session-Expired", "true")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isSessionNotFound(err error) bool {
	return errors.Is(err, ports.ErrSessionNotFound)
}

// RequireAuth returns a middleware that rejects requests without a signed-in
// session. The Session middleware must run first.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := GetSessionFromContext(r.Context())
			if sess == nil || sess.Anonymous() {
				writeAuthRequired(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLevel returns a middleware that requires at least the given access
// level (1 member, 2 leadership, 3 board).
func RequireLevel(level int) func(http.Handler) http.Handler {
	return requireSession(func(sess *domainauth.Session) bool {
		return sess.MeetsLevel(level)
	})
}

// RequireExactRole returns a middleware that requires a concrete role or one
// of the accepted aliases ("admin", "board" match any board-level role).
func RequireExactRole(role string) func(http.Handler) http.Handler {
	return requireSession(func(sess *domainauth.Session) bool {
		return sess.HasExactRole(role)
	})
}

// RequireBoard returns a middleware restricted to board-level sessions.
func RequireBoard() func(http.Handler) http.Handler {
	return requireSession(func(sess *domainauth.Session) bool {
		return sess.IsBoard()
	})
}

func requireSession(allowed func(*domainauth.Session) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := GetSessionFromContext(r.Context())
			if sess == nil || sess.Anonymous() {
				writeAuthRequired(w, r)
				return
			}
			if !allowed(sess) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthRequired(w http.ResponseWriter, r *http.Request) {
	code := "authentication_required"
	if SessionTimedOut(r.Context()) {
		code = "session_timeout"
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: code,
		Err:     errors.New("authentication required"),
	})
}
