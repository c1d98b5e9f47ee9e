package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeText collapses all whitespace runs to single spaces. Two
// extractions of the same content that differ only in layout whitespace
// normalise to the same string regardless of extraction method.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint returns the deterministic content hash used for duplicate
// detection: sha256 over the normalised text, hex encoded.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}
