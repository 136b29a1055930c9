// Package credentials resolves an AgentConfiguration's Authentication
// field into the material a spawned agent process actually needs: a
// short-lived signed token when Kind is "jwt" (JWTMinter, this file), or
// a literal secret fetched from a secret store when Kind is "secret_ref"
// (SecretResolver, secretref.go).
package credentials

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// JWTMinter issues short-lived scoped tokens for agent configurations
// whose Authentication.Kind is "jwt", signed with one RSA private key
// shared across every such configuration (e.g. a fleet signing key).
type JWTMinter struct {
	issuer     string
	privateKey *rsa.PrivateKey
}

// NewJWTMinter builds a minter from a PEM-encoded RSA private key.
func NewJWTMinter(issuer string, privateKeyPEM []byte) (*JWTMinter, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer cannot be empty")
	}
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &JWTMinter{issuer: issuer, privateKey: key}, nil
}

// DefaultTokenLifetime is used when an AgentAuthentication doesn't name
// its own TokenLifetime.
const DefaultTokenLifetime = 10 * time.Minute

// MintFor issues a token scoped to one agent configuration id, valid for
// lifetime (or DefaultTokenLifetime if zero).
func (m *JWTMinter) MintFor(configID string, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   configID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
