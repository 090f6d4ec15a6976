package httpx

import (
	"log/slog"
	"net/http"

	"github.com/alumniverein/intranet-api/internal/observability/statsd"
	"github.com/alumniverein/intranet-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions     *service.SessionManager
	Credentials  *service.CredentialService
	Federated    *service.FederatedService
	CookieDomain string
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// NewRouter creates and configures the HTTP router. The middleware order is
// load-bearing: logging and recovery wrap everything, the session middleware
// attaches a live session, and the CSRF guard rejects forged state-changing
// requests before any handler runs.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Sessions:     services.Sessions,
		Credentials:  services.Credentials,
		Federated:    services.Federated,
		CookieDomain: services.CookieDomain,
		Logger:       services.Logger,
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	mux.Handle("POST /auth/login", http.HandlerFunc(authHandlers.PasswordLogin))
	mux.Handle("GET /auth/sso/login", http.HandlerFunc(authHandlers.SSOLogin))
	mux.Handle("GET /auth/callback", http.HandlerFunc(authHandlers.Callback))
	mux.Handle("POST /auth/logout", http.HandlerFunc(authHandlers.Logout))
	mux.Handle("GET /auth/status", http.HandlerFunc(authHandlers.Status))

	mux.Handle("GET /api/me", RequireAuth()(http.HandlerFunc(meHandler)))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = CSRFProtection(CSRFConfig{Manager: services.Sessions})(handler)
	handler = Session(SessionConfig{
		Manager:      services.Sessions,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
		Metrics:      services.Metrics,
	})(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)

	return handler
}

// meHandler reports the signed-in subject and its capabilities so clients can
// tailor navigation without re-implementing the permission model.
func meHandler(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"id":   sess.SubjectID,
		"role": sess.Role,
		"capabilities": map[string]bool{
			"board":           sess.IsBoard(),
			"manage_invoices": sess.CanManageInvoices(),
			"manage_users":    sess.CanManageUsers(),
			"see_stats":       sess.CanSeeStats(),
		},
	})
}
