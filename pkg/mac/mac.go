package mac

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Field is the key under which the message authentication code travels.
// Inbound payloads carry it inside "meta"; outbound responses carry it
// at the top level.
const Field = "mac"

// Authenticator verifies and produces message authentication codes over
// webhook payloads using a pre-shared secret.
//
// The code is an HMAC-SHA256 hex digest over the canonical JSON encoding
// of the payload with the mac field removed. Canonical form is Go's
// encoding/json marshalling of maps, which orders object keys
// lexicographically, so both sides produce byte-identical input.
type Authenticator struct {
	secret []byte
}

// New creates an Authenticator from the shared webhook secret.
func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Verify recomputes the code over payload (excluding meta.mac) and compares
// it to the supplied value in constant time. A payload without a mac, with a
// non-string mac, or without a meta object never verifies.
func (a *Authenticator) Verify(payload map[string]any) bool {
	if payload == nil {
		return false
	}

	meta, ok := payload["meta"].(map[string]any)
	if !ok {
		return false
	}

	supplied, ok := meta[Field].(string)
	if !ok || supplied == "" {
		return false
	}

	// Strip the mac field without mutating the caller's payload.
	strippedMeta := make(map[string]any, len(meta))
	for k, v := range meta {
		if k != Field {
			strippedMeta[k] = v
		}
	}
	stripped := make(map[string]any, len(payload))
	for k, v := range payload {
		stripped[k] = v
	}
	stripped["meta"] = strippedMeta

	expected, err := a.compute(stripped)
	if err != nil {
		return false
	}

	return hmac.Equal([]byte(expected), []byte(supplied))
}

// Sign computes the code over body and returns a copy with the mac attached
// as a top-level field. A nil body is returned as-is and never signed.
func (a *Authenticator) Sign(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}

	stripped := make(map[string]any, len(body)+1)
	for k, v := range body {
		if k != Field {
			stripped[k] = v
		}
	}

	digest, err := a.compute(stripped)
	if err != nil {
		// Body came from our own handlers and is always marshallable;
		// if it is not, returning it unsigned fails verification
		// downstream instead of panicking mid-response.
		return body
	}

	signed := make(map[string]any, len(stripped)+1)
	for k, v := range stripped {
		signed[k] = v
	}
	signed[Field] = digest

	return signed
}

func (a *Authenticator) compute(v map[string]any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, a.secret)
	h.Write(encoded)

	return hex.EncodeToString(h.Sum(nil)), nil
}
