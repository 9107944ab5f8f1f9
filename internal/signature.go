package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme marker GitHub prepends to the hex digest in
// the X-Hub-Signature-256 header.
const SignaturePrefix = "sha256="

// Verifier authenticates raw webhook deliveries against a shared secret.
// A Verifier without a secret accepts every delivery; callers are expected to
// surface that as a degraded-security warning rather than silently trust it.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier for the given shared secret. An empty secret
// disables authentication.
func NewVerifier(secret string) *Verifier {
	v := &Verifier{}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

// Enabled reports whether a shared secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify reports whether signature authenticates payload. The signature is
// the raw header value, with or without the sha256= prefix; it is hex-decoded
// and compared against the expected HMAC-SHA256 digest in constant time, so
// the comparison cost does not depend on where the digests first differ.
// Malformed hex and wrong-length digests are non-matches, never errors.
func (v *Verifier) Verify(payload []byte, signature string) bool {
	if !v.Enabled() {
		return true
	}
	if signature == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(signature, SignaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)

	return subtle.ConstantTimeCompare(mac.Sum(nil), provided) == 1
}

// Sign renders the signature header value for payload: sha256= followed by
// the lowercase hex HMAC-SHA256 digest keyed with secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
