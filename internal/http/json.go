package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// maxJSONBody caps request bodies. Every JSON payload this API accepts is a
// small credential or preference object, so 64 KiB is generous.
const maxJSONBody = 64 << 10

// DecodeJSON decodes the request body into dst, rejecting unknown fields and
// oversized payloads. Returns false after writing the error response itself.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code and data. The
// payload is encoded up front so an encoding failure can still become a 500
// instead of a truncated body.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// Client disconnects surface here; there is nothing left to recover.
	_, _ = buf.WriteTo(w)
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes the JSON error envelope used across the API: a stable
// machine-readable code plus a human-readable message.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := ""
	if p.Err != nil {
		msg = p.Err.Error()
	}
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": msg})
}
