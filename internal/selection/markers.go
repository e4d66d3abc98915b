package selection

import (
	"encoding/json"
	"slices"
)

// MarkerSet is an unordered collection of unique marker identifiers.
// It remembers insertion order only so that it can echo a selection back
// the way the user built it; equality and keys ignore that order.
type MarkerSet struct {
	order []string
	index map[string]struct{}
}

// NewMarkerSet builds a set from values. Duplicates collapse.
func NewMarkerSet(values ...string) MarkerSet {
	var s MarkerSet
	for _, v := range values {
		s.add(v)
	}
	return s
}

func (s *MarkerSet) add(v string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Toggle selects marker if absent and deselects it otherwise.
// It reports whether marker is selected afterwards.
func (s *MarkerSet) Toggle(marker string) bool {
	if s.add(marker) {
		return true
	}
	delete(s.index, marker)
	if i := slices.Index(s.order, marker); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return false
}

func (s MarkerSet) Has(marker string) bool {
	_, ok := s.index[marker]
	return ok
}

func (s MarkerSet) Len() int {
	return len(s.order)
}

// Values returns the markers in insertion order.
func (s MarkerSet) Values() []string {
	return slices.Clone(s.order)
}

// Sorted returns a lexicographically sorted copy. Never nil.
func (s MarkerSet) Sorted() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	slices.Sort(out)
	return out
}

// Equal reports whether both sets hold the same markers.
func (s MarkerSet) Equal(other MarkerSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, v := range s.order {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

func (s MarkerSet) MarshalJSON() ([]byte, error) {
	if s.order == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.order)
}

func (s *MarkerSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewMarkerSet(values...)
	return nil
}
