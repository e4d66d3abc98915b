package modelclient

import (
	"encoding/json"
	"errors"
	"fmt"

	"amr-predictor/internal/prediction"
	"amr-predictor/internal/selection"
)

// Request shape we send to the model server: the form payload with every
// marker list sorted.
type providerPredictRequest struct {
	Bacteria   string   `json:"bacteria"`
	Antibiotic string   `json:"antibiotic"`
	FieldA     []string `json:"fieldA"`
	FieldB     []string `json:"fieldB"`
	FieldC     []string `json:"fieldC"`
	FieldD     []string `json:"fieldD"`
}

func newProviderRequest(sel selection.Selection) providerPredictRequest {
	return providerPredictRequest{
		Bacteria:   sel.Bacteria,
		Antibiotic: sel.Antibiotic,
		FieldA:     sel.PointMutations.Sorted(),
		FieldB:     sel.CompleteGenes.Sorted(),
		FieldC:     sel.PartialGenes.Sorted(),
		FieldD:     sel.PartialEndOfContigGenes.Sorted(),
	}
}

// Model servers disagree on the verdict field; any one of these is accepted.
type providerPredictResponse struct {
	Prediction  json.RawMessage `json:"prediction"`
	Result      json.RawMessage `json:"result"`
	Resistant   *bool           `json:"resistant"`
	Probability *float64        `json:"probability"`
}

type providerErrorResponse struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// message extracts a human readable error from either
// {"error":"..."}, {"error":{"message":"..."}} or {"message":"..."}.
func (p providerErrorResponse) message() string {
	if len(p.Error) > 0 {
		var s string
		if err := json.Unmarshal(p.Error, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(p.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return p.Message
}

var errNoVerdict = errors.New("response carries no prediction")

func (p providerPredictResponse) verdict() (prediction.Prediction, error) {
	for _, raw := range []json.RawMessage{p.Prediction, p.Result} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		return decodeVerdict(raw)
	}
	if p.Resistant != nil {
		return prediction.FromBool(*p.Resistant), nil
	}
	return "", errNoVerdict
}

// decodeVerdict accepts "YES"/"NO" strings, booleans and 0/1.
func decodeVerdict(raw json.RawMessage) (prediction.Prediction, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return prediction.Parse(t)
	case bool:
		return prediction.FromBool(t), nil
	case float64:
		switch t {
		case 1:
			return prediction.Yes, nil
		case 0:
			return prediction.No, nil
		}
	}
	return "", fmt.Errorf("unsupported prediction value %s", raw)
}
