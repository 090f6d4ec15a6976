package totp

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	gototp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP" // base32, test fixture only

func codeAt(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := gototp.GenerateCodeCustom(testSecret, at, gototp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestVerify_CurrentStep(t *testing.T) {
	v := NewVerifier()
	now := time.Unix(1700000000, 0)

	assert.True(t, v.Verify(testSecret, codeAt(t, now), now))
}

func TestVerify_DriftWithinTolerance(t *testing.T) {
	v := NewVerifier()
	now := time.Unix(1700000000, 0)

	// Codes from two steps in the past or future still validate.
	assert.True(t, v.Verify(testSecret, codeAt(t, now.Add(-60*time.Second)), now))
	assert.True(t, v.Verify(testSecret, codeAt(t, now.Add(60*time.Second)), now))

	// Three steps out is rejected.
	assert.False(t, v.Verify(testSecret, codeAt(t, now.Add(-91*time.Second)), now))
}

func TestVerify_MalformedCodes(t *testing.T) {
	v := NewVerifier()
	now := time.Unix(1700000000, 0)

	assert.False(t, v.Verify(testSecret, "", now))
	assert.False(t, v.Verify(testSecret, "abc123", now))
	assert.False(t, v.Verify(testSecret, "12345", now))
	assert.False(t, v.Verify(testSecret, "1234567890", now))
	assert.False(t, v.Verify("", "123456", now))
}
