// Package auth provides Kalshi API authentication using RSA-PSS signatures.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/kalshi-go/internal/kerr"
)

// Header names attached to every authenticated request.
const (
	HeaderAccessKey       = "KALSHI-ACCESS-KEY"
	HeaderAccessSignature = "KALSHI-ACCESS-SIGNATURE"
	HeaderAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

// WebSocketPath is the path used for WebSocket signature generation.
const WebSocketPath = "/trade-api/ws/v2"

// AuthHeaders are the per-request authentication values.
type AuthHeaders struct {
	AccessKey string
	Signature string // base64 of the raw RSA-PSS signature
	Timestamp string // epoch milliseconds
}

// Apply sets the three authentication headers on h.
func (a AuthHeaders) Apply(h http.Header) {
	h.Set(HeaderAccessKey, a.AccessKey)
	h.Set(HeaderAccessSignature, a.Signature)
	h.Set(HeaderAccessTimestamp, a.Timestamp)
}

// Signer holds an API key ID and its RSA private key. The key is never
// exposed; share a *Signer rather than copying key material around.
// Signing is safe for concurrent use.
type Signer struct {
	keyID      string
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// New parses a PEM-encoded RSA private key (PKCS#8 or PKCS#1).
func New(keyID string, pemBytes []byte) (*Signer, error) {
	key, err := parsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}

	return &Signer{
		keyID:      keyID,
		privateKey: key,
		now:        time.Now,
	}, nil
}

// NewFromFile loads the private key from a PEM file.
func NewFromFile(keyID, path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerr.Signing("read key file", err)
	}
	return New(keyID, data)
}

// KeyID returns the API key ID sent as KALSHI-ACCESS-KEY.
func (s *Signer) KeyID() string {
	return s.keyID
}

// Sign generates authentication headers using the current time.
func (s *Signer) Sign(method, path string) (AuthHeaders, error) {
	return s.SignWithTimestamp(method, path, s.now().UnixMilli())
}

// SignWithTimestamp generates authentication headers for an explicit
// millisecond timestamp.
func (s *Signer) SignWithTimestamp(method, path string, timestampMs int64) (AuthHeaders, error) {
	if s == nil || s.privateKey == nil {
		return AuthHeaders{}, kerr.Signing("signer has no private key", nil)
	}

	hashed := sha256.Sum256([]byte(Message(method, path, timestampMs)))

	signature, err := rsa.SignPSS(
		rand.Reader,
		s.privateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return AuthHeaders{}, kerr.Signing("sign message", err)
	}

	return AuthHeaders{
		AccessKey: s.keyID,
		Signature: base64.StdEncoding.EncodeToString(signature),
		Timestamp: strconv.FormatInt(timestampMs, 10),
	}, nil
}

// Verify checks headers against the signer's public key for method and path.
func (s *Signer) Verify(headers AuthHeaders, method, path string) error {
	ts, err := strconv.ParseInt(headers.Timestamp, 10, 64)
	if err != nil {
		return kerr.Signing("parse timestamp", err)
	}
	sig, err := base64.StdEncoding.DecodeString(headers.Signature)
	if err != nil {
		return kerr.Signing("decode signature", err)
	}

	hashed := sha256.Sum256([]byte(Message(method, path, ts)))
	err = rsa.VerifyPSS(
		&s.privateKey.PublicKey,
		crypto.SHA256,
		hashed[:],
		sig,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return kerr.Signing("verify signature", err)
	}
	return nil
}

// Message builds the canonical string: timestamp_ms + METHOD + path.
// The query string is not part of the signed path.
func Message(method, path string, timestampMs int64) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return fmt.Sprintf("%d%s%s", timestampMs, strings.ToUpper(method), path)
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, kerr.Signing("failed to decode PEM block", nil)
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, kerr.Signing("key is not an RSA private key", nil)
		}
		return rsaKey, nil
	}

	// Fall back to PKCS#1 (older format)
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, kerr.Signing("parse private key", err)
	}

	return rsaKey, nil
}
