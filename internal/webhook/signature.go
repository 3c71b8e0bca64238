package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	signaturePrefix = "sha256="
	secretPrefix    = "agsec_"
)

// ComputeHMAC signs body with secret. The result is sent in
// X-Activitygate-Signature as "sha256=<hex>".
func ComputeHMAC(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Activitygate-Signature value in
// constant time. Receivers can use it to authenticate deliveries.
func VerifySignature(body []byte, signature, secret string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(ComputeHMAC(body, secret)))
}

// GenerateSecret returns a random signing secret for SIGNING_SECRET.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return secretPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
