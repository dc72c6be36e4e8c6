package auth_test

import (
	"testing"
	"time"

	auth "github.com/felapi/fel-auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenService(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		ts, err := auth.NewTokenService([]byte("test-signing-key"), "", 0)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, ts.Expiration())
	})

	t.Run("rejects missing key", func(t *testing.T) {
		_, err := auth.NewTokenService(nil, "HS256", time.Hour)
		assert.Error(t, err)
	})

	t.Run("rejects asymmetric algorithms", func(t *testing.T) {
		_, err := auth.NewTokenService([]byte("k"), "RS256", time.Hour)
		assert.Error(t, err)
	})

	t.Run("from config", func(t *testing.T) {
		ts, err := auth.NewTokenServiceFromConfig(testConfig{expiry: 120})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, ts.Expiration())
	})
}

func TestTokenService_RoundTrip(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		t.Run(alg, func(t *testing.T) {
			ts, err := auth.NewTokenService([]byte("test-signing-key"), alg, time.Hour)
			require.NoError(t, err)

			for _, id := range []int64{1, 42, 1 << 40} {
				token, err := ts.Issue(id)
				require.NoError(t, err)

				got, err := ts.Validate(token)
				require.NoError(t, err)
				assert.Equal(t, id, got)
			}
		})
	}
}

func TestTokenService_Claims(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ts, err := auth.NewTokenService([]byte("test-signing-key"), "HS256", time.Hour,
		auth.WithTokenClock(func() time.Time { return now }))
	require.NoError(t, err)

	token, err := ts.Issue(7)
	require.NoError(t, err)

	claims := &auth.TokenClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)

	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestTokenService_InvalidTokens(t *testing.T) {
	key := []byte("test-signing-key")
	ts, err := auth.NewTokenService(key, "HS256", time.Hour)
	require.NoError(t, err)

	past, err := auth.NewTokenService(key, "HS256", time.Hour,
		auth.WithTokenClock(func() time.Time { return time.Now().Add(-3 * time.Hour) }))
	require.NoError(t, err)
	expired, err := past.Issue(1)
	require.NoError(t, err)

	other, err := auth.NewTokenService([]byte("another-key"), "HS256", time.Hour)
	require.NoError(t, err)
	wrongKey, err := other.Issue(1)
	require.NoError(t, err)

	hs512, err := auth.NewTokenService(key, "HS512", time.Hour)
	require.NoError(t, err)
	wrongAlg, err := hs512.Issue(1)
	require.NoError(t, err)

	valid, err := ts.Issue(1)
	require.NoError(t, err)
	tampered := valid[:len(valid)-2] + "xx"

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &auth.TokenClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.TokenClaims{UserID: 1}).SignedString(key)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"wrong alg": wrongAlg,
		"tampered":  tampered,
		"none alg":  unsigned,
		"no exp":    noExp,
		"garbage":   "not.a.token",
		"empty":     "",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			id, err := ts.Validate(token)
			assert.Zero(t, id)
			assert.True(t, auth.IsErrorCode(err, auth.TextCodeInvalidToken))
			assert.Equal(t, 401, auth.StatusCode(err))
		})
	}
}
