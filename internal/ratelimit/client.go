package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// UnknownClient identifies requests that carry no client address headers.
const UnknownClient = "unknown"

// visitorIDLength is the number of hex characters kept from the hash.
const visitorIDLength = 16

// ClientID returns the caller's address as reported by the proxy in front
// of the gateway: the first X-Forwarded-For hop, else X-Real-IP, else
// CF-Connecting-IP.
func ClientID(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}

	for _, name := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}

	return UnknownClient
}

// VisitorID derives a stable pseudonymous id from the client address and
// user agent.
func VisitorID(h http.Header) string {
	sum := sha256.Sum256([]byte(ClientID(h) + ":" + h.Get("User-Agent")))
	return hex.EncodeToString(sum[:])[:visitorIDLength]
}
