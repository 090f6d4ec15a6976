// Package totp validates time-based one-time codes for the second factor.
package totp

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultToleranceSteps is the accepted clock drift in 30s time steps on
// either side of the current step.
const DefaultToleranceSteps = 2

// Verifier checks TOTP codes against a stored secret. It is stateless: the
// result is a pure function of (secret, code, at).
type Verifier struct {
	ToleranceSteps uint
}

// NewVerifier constructs a Verifier with the default drift tolerance.
func NewVerifier() *Verifier {
	return &Verifier{ToleranceSteps: DefaultToleranceSteps}
}

// Verify reports whether code is valid for secret at the given instant.
// Malformed codes (wrong length, non-numeric) return false, never an error.
func (v *Verifier) Verify(secret, code string, at time.Time) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      v.ToleranceSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}
