package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// HMACAuth holds an API key pair for HMAC-authenticated venue requests.
type HMACAuth struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// URISignature returns hex(HMAC-SHA512(secret, uri)). Bittrex signs the full
// request URI, query string included, and expects it in the apisign header.
func (h *HMACAuth) URISignature(uri string) string {
	mac := hmac.New(sha512.New, []byte(h.Secret))
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}

// PathSignature returns the Kraken API-Sign value:
//
//	base64(HMAC-SHA512(base64dec(secret), path + SHA256(nonce + postData)))
//
// The secret must be base64 encoded as issued by the venue.
func (h *HMACAuth) PathSignature(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		return "", fmt.Errorf("crypto: decode secret: %w", err)
	}

	digest := sha256.Sum256([]byte(nonce + postData))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
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

// Nonce hands out strictly increasing nonces derived from the wall clock in
// microseconds. Safe for concurrent use.
type Nonce struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// Next returns the next nonce as a decimal string.
func (n *Nonce) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now
	if n.now != nil {
		now = n.now
	}
	v := now().UnixMicro()
	if v <= n.last {
		v = n.last + 1
	}
	n.last = v
	return strconv.FormatInt(v, 10)
}
