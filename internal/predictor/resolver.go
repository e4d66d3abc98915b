package predictor

import (
	"context"
	"encoding/json"
	"math/rand/v2"

	"go.uber.org/zap"

	"amr-predictor/internal/modelclient"
	"amr-predictor/internal/prediction"
	"amr-predictor/internal/selection"
)

// Verdict is what a Resolver produces for a selection seen for the first time.
type Verdict struct {
	Prediction  prediction.Prediction
	Source      prediction.Source
	Probability *float64
	Model       json.RawMessage
}

// Resolver produces a verdict on a store miss.
type Resolver interface {
	Resolve(ctx context.Context, sel selection.Selection) (Verdict, error)
}

// CoinFlip resolves YES or NO with equal probability.
type CoinFlip struct {
	draw func() float64
}

// NewCoinFlip returns a CoinFlip drawing from rnd, a source of values in
// [0, 1). A nil rnd uses math/rand/v2.
func NewCoinFlip(rnd func() float64) *CoinFlip {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &CoinFlip{draw: rnd}
}

func (c *CoinFlip) Resolve(_ context.Context, _ selection.Selection) (Verdict, error) {
	return Verdict{
		Prediction: prediction.FromBool(c.draw() >= 0.5),
		Source:     prediction.SourceRandom,
	}, nil
}

// Remote resolves through a model server.
type Remote struct {
	client modelclient.Client
}

func NewRemote(client modelclient.Client) *Remote {
	return &Remote{client: client}
}

func (r *Remote) Resolve(ctx context.Context, sel selection.Selection) (Verdict, error) {
	resp, err := r.client.Predict(ctx, sel)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{
		Prediction:  resp.Prediction,
		Source:      prediction.SourceRemote,
		Probability: resp.Probability,
		Model:       resp.Raw,
	}, nil
}

// Fallback tries primary and, when it fails, secondary. Timeouts raised
// inside primary fall back too; only a done ctx is returned as is.
type Fallback struct {
	primary   Resolver
	secondary Resolver
	logger    *zap.Logger
}

func NewFallback(primary, secondary Resolver, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger.Named("fallback")}
}

func (f *Fallback) Resolve(ctx context.Context, sel selection.Selection) (Verdict, error) {
	v, err := f.primary.Resolve(ctx, sel)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return Verdict{}, err
	}

	f.logger.Warn("primary resolver failed, using fallback", zap.Error(err))
	return f.secondary.Resolve(ctx, sel)
}
