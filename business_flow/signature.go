package businessflow

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// verifyWebhookHMAC checks the processor's IPN signature: the hex-encoded
// HMAC-SHA512 of the raw request body keyed with the shared IPN secret. The
// body must be the exact bytes received; re-serializing the JSON changes the
// digest. Decoding the claimed signature and comparing raw digests through
// hmac.Equal keeps the comparison constant-time.
func verifyWebhookHMAC(raw []byte, sigHeader, secret string) bool {
	if sigHeader == "" || secret == "" {
		return false
	}
	claimed, err := hex.DecodeString(strings.ToLower(sigHeader))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(raw)
	return hmac.Equal(claimed, mac.Sum(nil))
}
