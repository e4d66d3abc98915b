package cache

import (
	"strings"

	"amr-predictor/internal/selection"
)

// BuildPredictionKey builds a PredictionKey from:
//   - the Selection, fingerprinted so marker order does not matter,
//   - versionID (keyspace generation, lets a shared store start fresh).
//
// Bacteria and antibiotic are used as given; only the version is trimmed.
func BuildPredictionKey(sel selection.Selection, versionID string) PredictionKey {
	return PredictionKey{
		VersionID: strings.TrimSpace(versionID),
		Hash:      selection.Fingerprint(sel),
	}
}
