// Package authtest provides throwaway signers for tests.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/rickgao/kalshi-go/internal/auth"
)

// KeyPEM generates a 2048-bit RSA key and returns it PKCS#8 PEM-encoded.
func KeyPEM(t testing.TB) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// NewSigner returns a signer over a freshly generated key.
func NewSigner(t testing.TB, keyID string) *auth.Signer {
	t.Helper()
	s, err := auth.New(keyID, KeyPEM(t))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}
