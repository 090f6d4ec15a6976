package metrics

import "github.com/alumniverein/intranet-api/internal/observability/statsd"

// Login outcomes for metric tagging.
const (
	OutcomeSuccess             = "success"
	OutcomeInvalidCredentials  = "invalid_credentials"
	OutcomeLocked              = "locked"
	OutcomeSecondFactorMissing = "second_factor_required"
	OutcomeSecondFactorInvalid = "second_factor_invalid"
	OutcomeError               = "error"
)

// Login methods for metric tagging.
const (
	MethodPassword  = "password"
	MethodFederated = "federated"
)

// LoginMetric captures one login attempt for metric emission.
type LoginMetric struct {
	Method  string
	Outcome string
}

// EmitLogin emits standardised login counters.
func EmitLogin(sink statsd.Sink, in LoginMetric) {
	if sink == nil {
		return
	}
	sink.Count("auth.login", 1, map[string]string{
		"method":  in.Method,
		"outcome": in.Outcome,
	})
}

// EmitSessionRotation counts session identifier rotations.
func EmitSessionRotation(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count("auth.session.rotated", 1, nil)
}

// EmitSessionTimeout counts idle-timeout session destructions.
func EmitSessionTimeout(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count("auth.session.timeout", 1, nil)
}
