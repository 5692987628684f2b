package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ProdamusSignatureField is the form field carrying the webhook signature.
const ProdamusSignatureField = "signature"

// SignProdamus computes the hex HMAC-SHA256 of the fields sorted by key and
// joined as k=v pairs with "&". The signature field itself is skipped.
func SignProdamus(secret string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == ProdamusSignatureField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyProdamus checks signature against the fields. An empty secret or
// signature never verifies.
func VerifyProdamus(secret string, fields map[string]string, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignProdamus(secret, fields)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
