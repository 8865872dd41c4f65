package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsunagi/internal/auth"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyAPIKeyMalformedHash(t *testing.T) {
	_, err := auth.VerifyAPIKey("k", "no-separator")
	assert.Error(t, err)

	_, err = auth.VerifyAPIKey("k", "!!!$AAAA")
	assert.Error(t, err)
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	b, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, auth.APIKeyPrefix))
	assert.NotEqual(t, a, b)
}

// newTestVerifier writes a fresh Ed25519 public key to a temp PEM file and
// returns a verifier for it plus the private key for signing tokens.
func newTestVerifier(t *testing.T) (*auth.JWTVerifier, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0600))

	v, err := auth.NewJWTVerifier(pubPath)
	require.NoError(t, err)
	return v, priv
}

// forgeToken signs a JWT with the given private key and claims.
func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func TestIssueAndValidate(t *testing.T) {
	v, priv := newTestVerifier(t)

	token, expiresAt, err := auth.IssueToken(priv, "reporting-job", []string{"query"}, time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reporting-job", claims.Subject)
	assert.True(t, claims.Allows("query"))
	assert.False(t, claims.Allows("echo"))
}

func TestClaimsWithoutFunctionsAllowAll(t *testing.T) {
	c := &auth.Claims{}
	assert.True(t, c.Allows("query"))
	assert.True(t, c.Allows("anything"))
}

func TestValidateTokenRejects(t *testing.T) {
	v, priv := newTestVerifier(t)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	now := time.Now().UTC()
	valid := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "svc",
			Issuer:    auth.Issuer,
			Audience:  jwt.ClaimStrings{auth.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
	}

	tests := []struct {
		name   string
		key    ed25519.PrivateKey
		mutate func(*jwt.RegisteredClaims)
	}{
		{"wrong issuer", priv, func(c *jwt.RegisteredClaims) { c.Issuer = "someone-else" }},
		{"wrong audience", priv, func(c *jwt.RegisteredClaims) { c.Audience = jwt.ClaimStrings{"other"} }},
		{"expired", priv, func(c *jwt.RegisteredClaims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute)) }},
		{"no expiry", priv, func(c *jwt.RegisteredClaims) { c.ExpiresAt = nil }},
		{"no subject", priv, func(c *jwt.RegisteredClaims) { c.Subject = "" }},
		{"other signer", otherPriv, func(*jwt.RegisteredClaims) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := valid()
			tt.mutate(&rc)
			_, err := v.ValidateToken(forgeToken(t, tt.key, &auth.Claims{RegisteredClaims: rc}))
			assert.Error(t, err)
		})
	}
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	v, _ := newTestVerifier(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "svc",
		Issuer:    auth.Issuer,
		Audience:  jwt.ClaimStrings{auth.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected signing method")
}

func TestParsePublicKeyPEM(t *testing.T) {
	_, err := auth.ParsePublicKeyPEM([]byte("not pem"))
	assert.Error(t, err)

	_, err = auth.NewJWTVerifier(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}
