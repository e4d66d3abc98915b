package selection

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// normalized fixes the field order of the canonical encoding.
type normalized struct {
	Bacteria   string   `json:"bacteria"`
	Antibiotic string   `json:"antibiotic"`
	FieldA     []string `json:"fieldA"`
	FieldB     []string `json:"fieldB"`
	FieldC     []string `json:"fieldC"`
	FieldD     []string `json:"fieldD"`
}

// Normalize returns the canonical key for s. Two selections with the same
// bacteria, antibiotic and marker sets yield the same key no matter the
// order markers were picked in. Strings are compared exactly; HTML
// characters are left unescaped. Callers validate first: invalid UTF-8
// is replaced during encoding.
func Normalize(s Selection) string {
	n := normalized{
		Bacteria:   s.Bacteria,
		Antibiotic: s.Antibiotic,
		FieldA:     s.PointMutations.Sorted(),
		FieldB:     s.CompleteGenes.Sorted(),
		FieldC:     s.PartialGenes.Sorted(),
		FieldD:     s.PartialEndOfContigGenes.Sorted(),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// A struct of strings and string slices always encodes.
	_ = enc.Encode(n)
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// Fingerprint is the hex sha256 of Normalize(s).
func Fingerprint(s Selection) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}
