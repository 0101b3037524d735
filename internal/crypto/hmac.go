package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Authentication header names sent with every signed exchange request.
const (
	HeaderKey       = "X-API-KEY"
	HeaderTimestamp = "X-API-TIMESTAMP"
	HeaderSignature = "X-API-SIGNATURE"
)

// HMACAuth signs exchange requests with an API key pair.
type HMACAuth struct {
	Key    string
	Secret string
}

// Headers returns the authentication headers for a request. The signature
// is base64(HMAC-SHA256(secret, timestamp+method+path+body)) with the
// timestamp in Unix milliseconds.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().UnixMilli())
}

// HeadersAt is like Headers with a caller-supplied timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixMs int64) map[string]string {
	ts := strconv.FormatInt(unixMs, 10)
	return map[string]string{
		HeaderKey:       h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign(h.Secret, ts+method+path+body),
	}
}

// Verify reports whether sig is the signature of the given request fields.
func (h *HMACAuth) Verify(method, path, body, ts, sig string) bool {
	want := Sign(h.Secret, ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Fingerprint returns a short stable identifier for the key that is safe to
// log and to use in lock names.
func (h *HMACAuth) Fingerprint() string {
	sum := sha256.Sum256([]byte(h.Key))
	return hex.EncodeToString(sum[:6])
}

// Sign computes HMAC-SHA256 of message with secret, base64 encoded.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
