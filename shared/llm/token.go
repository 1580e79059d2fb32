package llm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// tokenTTL is the signed-credential lifetime the provider expects.
const tokenTTL = time.Hour

// SignedToken exchanges a compound "id.secret" API key for the short-lived
// signed credential some providers require: an HMAC-SHA256 signature over a
// base64url-encoded header and claim set, expiring one hour from now.
func SignedToken(compoundKey string, now time.Time) (string, error) {
	id, secret, ok := strings.Cut(compoundKey, ".")
	if !ok || id == "" || secret == "" {
		return "", fmt.Errorf("compound api key must be \"id.secret\"")
	}

	header, _ := json.Marshal(map[string]string{
		"alg":       "HS256",
		"sign_type": "SIGN",
	})
	claims, _ := json.Marshal(map[string]any{
		"api_key":   id,
		"exp":       now.Add(tokenTTL).UnixMilli(),
		"timestamp": now.UnixMilli(),
	})

	b64 := base64.RawURLEncoding
	signingInput := b64.EncodeToString(header) + "." + b64.EncodeToString(claims)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))

	return signingInput + "." + b64.EncodeToString(mac.Sum(nil)), nil
}
