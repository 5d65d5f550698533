package oracle

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const SignatureHeader = "x-oracle-signature"

// HMACVerifier authenticates callbacks with a shared secret: the custodian
// signs the raw body with HMAC-SHA256 and sends the hex digest in the
// signature header.
type HMACVerifier struct {
	Secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{Secret: []byte(strings.TrimSpace(secret))}
}

func (v *HMACVerifier) Verify(_ context.Context, req CallbackRequest) error {
	if v == nil || len(v.Secret) == 0 {
		return fmt.Errorf("oracle: verifier secret is not configured")
	}
	provided := headerValue(req.Headers, SignatureHeader)
	if provided == "" {
		return fmt.Errorf("oracle: callback signature is missing")
	}
	providedRaw, err := hex.DecodeString(provided)
	if err != nil {
		return fmt.Errorf("oracle: callback signature is not valid hex")
	}

	mac := hmac.New(sha256.New, v.Secret)
	mac.Write(req.Body)
	if !hmac.Equal(providedRaw, mac.Sum(nil)) {
		return fmt.Errorf("oracle: callback signature mismatch")
	}
	return nil
}

var _ Verifier = (*HMACVerifier)(nil)
