package dashboard

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// SignatureHeader carries the HMAC-SHA256 of the request method, path and
// body.
const SignatureHeader = "X-Lokus-Signature-256"

// MaxSignedBody bounds the body read to check a signature.
const MaxSignedBody = 1 << 20

// Sign returns the signature header value for a request. The MAC covers
// "METHOD\nPATH\n" followed by the body, so a signature for one plugin's
// reload cannot be replayed against another.
func Sign(method, path string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + "\n" + path + "\n"))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks the request signature against secret. Bodies
// larger than MaxSignedBody are rejected. The body stays readable for later
// handlers.
func ValidateSignature(w http.ResponseWriter, r *http.Request, secret string) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSignedBody))
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	return hmac.Equal([]byte(signature), []byte(Sign(r.Method, r.URL.Path, body, secret)))
}
