package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignaturePrefix precedes the hex digest in the X-Signature header.
const SignaturePrefix = "sha256="

// SignPayload computes the delivery signature for a payload:
// "sha256=<hex(HMAC-SHA256(secret, payload))>".
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the payload signature and compares it against
// the provided one in constant time. Receivers use this to authenticate
// inbound deliveries.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := SignPayload(payload, secret)

	return hmac.Equal([]byte(expected), []byte(signature))
}
