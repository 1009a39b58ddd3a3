package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifyMercadoPagoSignature checks the x-signature header ("ts=...,v1=...")
// against the manifest "id:{data.id};request-id:{x-request-id};ts:{ts};".
// Parts of the manifest whose value is missing are left out, as the gateway does.
func VerifyMercadoPagoSignature(signatureHeader, requestID, dataID, webhookSecret string) bool {
	secret := strings.TrimSpace(webhookSecret)
	ts, v1 := parseSignatureHeader(signatureHeader)
	if secret == "" || ts == "" || v1 == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return false
	}

	manifest := signatureManifest(dataID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

func signatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if id := strings.TrimSpace(dataID); id != "" {
		// Alphanumeric ids are signed lowercased.
		fmt.Fprintf(&b, "id:%s;", strings.ToLower(id))
	}
	if rid := strings.TrimSpace(requestID); rid != "" {
		fmt.Fprintf(&b, "request-id:%s;", rid)
	}
	fmt.Fprintf(&b, "ts:%s;", ts)
	return b.String()
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}
