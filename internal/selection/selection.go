// Package selection holds the typed query a user submits for an AMR
// prediction and the canonical key derived from it.
package selection

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Category identifies one of the four marker panels.
type Category int

const (
	PointMutations Category = iota
	CompleteGenes
	PartialGenes
	PartialEndOfContigGenes
)

// Categories lists every marker category in key order.
var Categories = []Category{PointMutations, CompleteGenes, PartialGenes, PartialEndOfContigGenes}

// String returns the display name used in validation messages.
func (c Category) String() string {
	switch c {
	case PointMutations:
		return "POINT Mutations"
	case CompleteGenes:
		return "COMPLETE Genes"
	case PartialGenes:
		return "PARTIAL Genes"
	case PartialEndOfContigGenes:
		return "PARTIAL_END_OF_CONTIG Genes"
	default:
		return "unknown"
	}
}

// Field returns the wire name of the category ("fieldA".."fieldD").
func (c Category) Field() string {
	if c < PointMutations || c > PartialEndOfContigGenes {
		return ""
	}
	return "field" + string(rune('A'+int(c)))
}

// Selection is everything a user picked for one prediction.
type Selection struct {
	Bacteria                string    `json:"bacteria"`
	Antibiotic              string    `json:"antibiotic"`
	PointMutations          MarkerSet `json:"fieldA"`
	CompleteGenes           MarkerSet `json:"fieldB"`
	PartialGenes            MarkerSet `json:"fieldC"`
	PartialEndOfContigGenes MarkerSet `json:"fieldD"`
}

// Markers returns a pointer to the set for c, or nil for an unknown category.
func (s *Selection) Markers(c Category) *MarkerSet {
	switch c {
	case PointMutations:
		return &s.PointMutations
	case CompleteGenes:
		return &s.CompleteGenes
	case PartialGenes:
		return &s.PartialGenes
	case PartialEndOfContigGenes:
		return &s.PartialEndOfContigGenes
	}
	return nil
}

// CanExtend reports whether the partial-marker panel may be opened.
func (s Selection) CanExtend() bool {
	return s.Bacteria != "" && s.Antibiotic != ""
}

// ValidationError lists every field that is required but empty, and every
// field holding text that is not valid UTF-8.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid UTF-8 in: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Message renders the error the way the form reports it to users.
func (e *ValidationError) Message() string {
	if len(e.Missing) == 0 {
		return "Please correct values for: " + strings.Join(e.Invalid, ", ")
	}
	return "Please select values for: " + strings.Join(e.Missing, ", ")
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// Validate checks the required fields. With extended set, every marker
// category must hold at least one marker too. Values are not trimmed.
// Text must be valid UTF-8: the key encoding replaces invalid bytes, which
// would let distinct selections share a key.
func (s Selection) Validate(extended bool) error {
	var missing, invalid []string
	if s.Bacteria == "" {
		missing = append(missing, "bacteria")
	} else if !utf8.ValidString(s.Bacteria) {
		invalid = append(invalid, "bacteria")
	}
	if s.Antibiotic == "" {
		missing = append(missing, "antibiotic")
	} else if !utf8.ValidString(s.Antibiotic) {
		invalid = append(invalid, "antibiotic")
	}
	for _, c := range Categories {
		set := s.Markers(c)
		if extended && set.Len() == 0 {
			missing = append(missing, c.String())
		}
		for _, m := range set.order {
			if !utf8.ValidString(m) {
				invalid = append(invalid, c.String())
				break
			}
		}
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{Missing: missing, Invalid: invalid}
	}
	return nil
}
