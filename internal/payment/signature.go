// Package payment adapts the payment collaborator: webhook authentication,
// event decoding and the charge confirmation API.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dtroode/accessgate/internal/model"
)

const signaturePrefix = "sha256="

// VerifySignature checks the hex HMAC-SHA256 of body, with or without a
// "sha256=" prefix. Failures wrap ErrWebhookUnverified and never include the
// expected digest.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: secret is empty", model.ErrWebhookUnverified)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: body is empty", model.ErrWebhookUnverified)
	}
	if signature == "" {
		return fmt.Errorf("%w: signature is empty", model.ErrWebhookUnverified)
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return fmt.Errorf("%w: invalid hex signature", model.ErrWebhookUnverified)
	}

	if subtle.ConstantTimeCompare(digest(secret, body), got) != 1 {
		return fmt.Errorf("%w: signature mismatch", model.ErrWebhookUnverified)
	}
	return nil
}

// Sign returns the prefixed signature header value for body.
func Sign(secret, body []byte) string {
	return signaturePrefix + hex.EncodeToString(digest(secret, body))
}

func digest(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
