package odl

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes a normalized IR to its byte-stable canonical
// form: fixed key order (struct field order), map keys sorted by
// encoding/json, two-space indent, LF line endings, trailing newline,
// UTF-8 throughout. The same IR always serializes to the same bytes.
func CanonicalJSON(ir *IR) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ir); err != nil {
		return nil, fmt.Errorf("failed to serialize canonical ODL: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentHash returns the version's content hash: SHA-256 over the
// canonical serialization of the normalized IR, hex-encoded.
func ContentHash(ir *IR) (string, error) {
	canonical, err := CanonicalJSON(Normalize(ir))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize validates, normalizes and serializes a raw payload in one
// step, returning the canonical bytes, the content hash, and the
// normalized IR. This is the write path every stored version goes through.
func Canonicalize(payload []byte) (*IR, []byte, string, error) {
	ir, err := ParseAndValidate(payload)
	if err != nil {
		return nil, nil, "", err
	}
	normalized := Normalize(ir)
	canonical, err := CanonicalJSON(normalized)
	if err != nil {
		return nil, nil, "", err
	}
	sum := sha256.Sum256(canonical)
	return normalized, canonical, hex.EncodeToString(sum[:]), nil
}
