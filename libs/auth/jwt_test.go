package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClaims(sub string, role Role, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestVerifyHS256(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{HMACSecret: "test-secret"})
	require.NoError(t, err)

	token, err := SignHS256(testClaims("user-1", RoleProvider, time.Hour), "test-secret")
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, RoleProvider, claims.Role)

	forged, err := SignHS256(testClaims("user-1", RoleAdmin, time.Hour), "wrong-secret")
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{HMACSecret: "s"})
	require.NoError(t, err)

	cases := map[string]Claims{
		"expired":      testClaims("user-1", RoleHomeowner, -time.Hour),
		"missing sub":  testClaims("", RoleHomeowner, time.Hour),
		"unknown role": testClaims("user-1", Role("owner"), time.Hour),
		"no expiry":    {Role: RoleHomeowner, RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			token, err := SignHS256(c, "s")
			require.NoError(t, err)
			_, err = v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewVerifierRequiresKeyMaterial(t *testing.T) {
	_, err := NewVerifier(VerifierConfig{})
	assert.Error(t, err)
}

func TestVerifyRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v, err := NewVerifier(VerifierConfig{JWKS: NewJWKSClient(srv.URL, time.Minute)})
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("user-2", RoleHomeowner, time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.Subject)

	tok.Header["kid"] = "kid-unknown"
	signed, err = tok.SignedString(key)
	require.NoError(t, err)
	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// HS256 must not be accepted when only JWKS is configured.
	hs, err := SignHS256(testClaims("user-2", RoleAdmin, time.Hour), "anything")
	require.NoError(t, err)
	_, err = v.Verify(hs)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{HMACSecret: "s"})
	require.NoError(t, err)

	var got Identity
	h := Authenticate(v)(RequireRole(RoleProvider, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	})))

	send := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/provider/availability", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusUnauthorized, send("Bearer garbage"))

	homeowner, _ := SignHS256(testClaims("h-1", RoleHomeowner, time.Hour), "s")
	assert.Equal(t, http.StatusForbidden, send("Bearer "+homeowner))

	provider, _ := SignHS256(testClaims("p-1", RoleProvider, time.Hour), "s")
	assert.Equal(t, http.StatusOK, send("bearer "+provider))
	assert.Equal(t, Identity{Subject: "p-1", Role: RoleProvider}, got)
}
