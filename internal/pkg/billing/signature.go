package billing

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"
	"strings"
)

// verifyHexHMAC checks a hex encoded HMAC header against payload.
func verifyHexHMAC(payload []byte, signatureHeader, secret string, hashFunc func() hash.Hash) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	return verifyHMAC(payload, decodedSig, []byte(secret), hashFunc)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}

// SignHex returns the hex encoded HMAC of payload.
func SignHex(payload []byte, secret string, hashFunc func() hash.Hash) string {
	mac := hmac.New(hashFunc, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
