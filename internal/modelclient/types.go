package modelclient

import (
	"context"
	"encoding/json"
	"fmt"

	"amr-predictor/internal/prediction"
	"amr-predictor/internal/selection"
)

// Response is the model's verdict for one selection.
type Response struct {
	Prediction  prediction.Prediction
	Probability *float64
	// Raw is the upstream body as received, for callers that render it.
	Raw json.RawMessage
}

// StatusError is returned when the model answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("modelclient: upstream %d: %s", e.StatusCode, e.Message)
}

type Client interface {
	Predict(ctx context.Context, sel selection.Selection) (*Response, error)
}
