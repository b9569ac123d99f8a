package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// SignatureVerifier authenticates webhook payloads.
//
// Two schemes are supported, matching what the gateway actually sends:
//  1. hex(HMAC-SHA256(rawBody, secret)): signs the payload bytes.
//  2. hex(HMAC-SHA256(secret, secret)): a fixed value for a given secret,
//     used as a coarse shared-secret check.
//
// A webhook is accepted if any supplied signature matches either scheme.
// Comparison is constant-time.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Verify checks the supplied signature header values against both schemes.
// It returns ErrInvalidSignature when none match; the payload must then be
// rejected without mutating any wallet.
func (v *SignatureVerifier) Verify(rawBody []byte, signatures ...string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}

	expected := [2]string{
		hmacHex(rawBody, v.secret),
		hmacHex(v.secret, v.secret),
	}
	for _, got := range signatures {
		if got == "" {
			continue
		}
		for _, want := range expected {
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
				return nil
			}
		}
	}
	return ErrInvalidSignature
}

func hmacHex(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
