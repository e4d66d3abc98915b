// Package prediction defines the resistance verdict and the record kept
// for every resolved selection.
package prediction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Prediction is the binary AMR verdict.
type Prediction string

const (
	Yes Prediction = "YES"
	No  Prediction = "NO"
)

// FromBool maps resistant=true to YES.
func FromBool(resistant bool) Prediction {
	if resistant {
		return Yes
	}
	return No
}

// Parse accepts "YES"/"NO" in any case, surrounding space ignored.
func Parse(s string) (Prediction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Yes):
		return Yes, nil
	case string(No):
		return No, nil
	}
	return "", fmt.Errorf("unknown prediction %q", s)
}

func (p Prediction) Valid() bool {
	return p == Yes || p == No
}

// Message is the sentence shown to users for p.
func (p Prediction) Message() string {
	return string(p) + " Antimicrobial Resistance Detected"
}

// Source names the resolver that produced a record.
type Source string

const (
	SourceRandom Source = "random"
	SourceRemote Source = "remote"
)

// Record is what the store keeps per resolved key. It is written once.
type Record struct {
	ID          string          `json:"id"`
	Prediction  Prediction      `json:"prediction"`
	Source      Source          `json:"source"`
	Probability *float64        `json:"probability,omitempty"`
	Model       json.RawMessage `json:"model,omitempty"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

// Encode serializes r for storage.
func (r Record) Encode() ([]byte, error) {
	if !r.Prediction.Valid() {
		return nil, fmt.Errorf("record %s: invalid prediction %q", r.ID, r.Prediction)
	}
	return json.Marshal(r)
}

// DecodeRecord parses a stored record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if !r.Prediction.Valid() {
		return Record{}, fmt.Errorf("decode record %s: invalid prediction %q", r.ID, r.Prediction)
	}
	return r, nil
}
