// Package auth verifies callers of the function endpoints.
//
// Two credentials are supported. Bearer tokens are Ed25519-signed (EdDSA)
// JWTs checked against a configured public key. API keys are compared
// against a single Argon2id hash. Either may be enabled on its own.
package auth

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer and audience stamped into and required of every token.
const (
	Issuer   = "tsunagi"
	Audience = "tsunagi"
)

// Claims extends jwt.RegisteredClaims with the functions the bearer may call.
type Claims struct {
	jwt.RegisteredClaims
	// Functions restricts the token to the named functions. Empty means all.
	Functions []string `json:"functions,omitempty"`
}

// Allows reports whether the token may invoke the named function.
func (c *Claims) Allows(function string) bool {
	return len(c.Functions) == 0 || slices.Contains(c.Functions, function)
}

// JWTVerifier validates tokens signed with the matching Ed25519 private key.
type JWTVerifier struct {
	publicKey ed25519.PublicKey
}

// NewJWTVerifier loads an Ed25519 public key from a PEM file.
func NewJWTVerifier(publicKeyPath string) (*JWTVerifier, error) {
	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // path comes from config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, err
	}
	return &JWTVerifier{publicKey: pub}, nil
}

// NewJWTVerifierFromKey wraps an already-parsed public key.
func NewJWTVerifierFromKey(pub ed25519.PublicKey) *JWTVerifier {
	return &JWTVerifier{publicKey: pub}
}

// ParsePublicKeyPEM decodes a PKIX "PUBLIC KEY" block holding an Ed25519 key.
func ParsePublicKeyPEM(data []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}
	return pub, nil
}

// IssueToken signs a token for subject. It is used by scripts/genkey to mint
// development tokens; the server itself only verifies.
func IssueToken(priv ed25519.PrivateKey, subject string, functions []string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Functions: functions,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (v *JWTVerifier) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return v.publicKey, nil
		},
		jwt.WithAudience(Audience),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	return claims, nil
}
