package httpx

import (
	"io"
	"net/http"
)

const healthResponse = `{"status":"ok","service":"intranet-api"}`

// healthHandler answers readiness/liveness probes. It deliberately touches no
// backing store; probe traffic must not depend on Postgres or Redis health.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, healthResponse)
}
