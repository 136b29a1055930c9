package credentials

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func generateTestKeyPair(t *testing.T) []byte {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
}

func TestNewJWTMinter(t *testing.T) {
	pemData := generateTestKeyPair(t)

	tests := []struct {
		name       string
		issuer     string
		pemData    []byte
		wantErr    bool
		errContain string
	}{
		{name: "valid key", issuer: "prpctl", pemData: pemData},
		{name: "empty issuer", issuer: "", pemData: pemData, wantErr: true, errContain: "issuer cannot be empty"},
		{name: "invalid PEM data", issuer: "prpctl", pemData: []byte("not a valid pem"), wantErr: true, errContain: "failed to decode PEM block"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTMinter(tt.issuer, tt.pemData)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContain) {
					t.Fatalf("expected error containing %q, got %q", tt.errContain, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMintFor(t *testing.T) {
	pemData := generateTestKeyPair(t)
	minter, err := NewJWTMinter("prpctl", pemData)
	if err != nil {
		t.Fatalf("NewJWTMinter: %v", err)
	}

	token, err := minter.MintFor("robo-implementer-1", 5*time.Minute)
	if err != nil {
		t.Fatalf("MintFor: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	parsed, _, err := new(jwt.Parser).ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "robo-implementer-1" {
		t.Fatalf("expected sub=robo-implementer-1, got %v", claims["sub"])
	}
	if claims["iss"] != "prpctl" {
		t.Fatalf("expected iss=prpctl, got %v", claims["iss"])
	}
}

func TestMintForDefaultLifetime(t *testing.T) {
	pemData := generateTestKeyPair(t)
	minter, err := NewJWTMinter("prpctl", pemData)
	if err != nil {
		t.Fatalf("NewJWTMinter: %v", err)
	}
	token, err := minter.MintFor("agent-x", 0)
	if err != nil {
		t.Fatalf("MintFor: %v", err)
	}
	parsed, _, err := new(jwt.Parser).ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	if exp-iat != int64(DefaultTokenLifetime.Seconds()) {
		t.Fatalf("expected default lifetime %v, got %ds", DefaultTokenLifetime, exp-iat)
	}
}
