package predictor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"amr-predictor/internal/cache"
	"amr-predictor/internal/metrics"
	"amr-predictor/internal/prediction"
	"amr-predictor/internal/selection"
	"amr-predictor/pkg/logging/logging"
)

var (
	// ErrStore wraps prediction store failures.
	ErrStore = errors.New("prediction store unavailable")
	// ErrResolve wraps resolver failures on a miss.
	ErrResolve = errors.New("prediction could not be resolved")
)

// Outcome is the answer to one Predict call.
type Outcome struct {
	Key    cache.PredictionKey
	Record prediction.Record
	// Cached is true when the record existed before this call resolved it.
	Cached bool
}

// Predictor is what the HTTP layer depends on.
type Predictor interface {
	Predict(ctx context.Context, sel selection.Selection, extended bool) (Outcome, error)
	Len(ctx context.Context) (int, error)
}

// Memo is the memoized predictor. It is created once at startup with the
// store it owns; the store is never persisted by Memo itself.
type Memo struct {
	store     cache.PredictionStore
	resolver  Resolver
	versionID string

	// collapses concurrent misses on one key within this process
	group singleflight.Group

	now   func() time.Time
	newID func() string
}

func NewMemo(store cache.PredictionStore, resolver Resolver, versionID string) *Memo {
	return &Memo{
		store:     store,
		resolver:  resolver,
		versionID: versionID,
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
	}
}

// Predict validates sel, then returns the stored verdict for it or
// resolves, stores and returns a new one. Invalid selections return a
// *selection.ValidationError and leave the store untouched.
func (m *Memo) Predict(ctx context.Context, sel selection.Selection, extended bool) (Outcome, error) {
	if err := sel.Validate(extended); err != nil {
		metrics.ValidationFailuresTotal.Inc()
		return Outcome{}, err
	}

	key := cache.BuildPredictionKey(sel, m.versionID)
	storeKey := key.String()

	rec, hit, err := m.lookup(ctx, storeKey)
	if err != nil {
		return Outcome{}, err
	}
	if hit {
		return Outcome{Key: key, Record: rec, Cached: true}, nil
	}

	// The shared call must not die with whichever request started it.
	// The closure only runs for the caller leading the flight.
	led := false
	v, err, _ := m.group.Do(storeKey, func() (any, error) {
		led = true
		return m.resolveAndStore(context.WithoutCancel(ctx), storeKey, sel)
	})
	if err != nil {
		return Outcome{}, err
	}

	// Callers that joined another request's flight did not resolve anything.
	res := v.(stored)
	return Outcome{Key: key, Record: res.record, Cached: !(led && res.inserted)}, nil
}

type stored struct {
	record   prediction.Record
	inserted bool
}

func (m *Memo) lookup(ctx context.Context, storeKey string) (prediction.Record, bool, error) {
	data, hit, err := m.store.Get(ctx, storeKey)
	if err != nil {
		return prediction.Record{}, false, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if !hit {
		return prediction.Record{}, false, nil
	}
	rec, err := prediction.DecodeRecord(data)
	if err != nil {
		return prediction.Record{}, false, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return rec, true, nil
}

func (m *Memo) resolveAndStore(ctx context.Context, storeKey string, sel selection.Selection) (stored, error) {
	// A previous flight for this key may have finished between our
	// lookup and joining the group.
	if rec, hit, err := m.lookup(ctx, storeKey); err != nil {
		return stored{}, err
	} else if hit {
		return stored{record: rec}, nil
	}

	verdict, err := m.resolver.Resolve(ctx, sel)
	if err != nil {
		return stored{}, fmt.Errorf("%w: %w", ErrResolve, err)
	}

	rec := prediction.Record{
		ID:          m.newID(),
		Prediction:  verdict.Prediction,
		Source:      verdict.Source,
		Probability: verdict.Probability,
		Model:       verdict.Model,
		ResolvedAt:  m.now().UTC(),
	}
	data, err := rec.Encode()
	if err != nil {
		return stored{}, fmt.Errorf("%w: %w", ErrResolve, err)
	}

	winner, inserted, err := m.store.PutIfAbsent(ctx, storeKey, data)
	if err != nil {
		return stored{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if !inserted {
		// another replica stored first; its verdict stands
		rec, err = prediction.DecodeRecord(winner)
		if err != nil {
			return stored{}, fmt.Errorf("%w: %w", ErrStore, err)
		}
		logging.L(ctx).Info("prediction resolved elsewhere", zap.String("record_id", rec.ID))
		return stored{record: rec}, nil
	}

	metrics.PredictionsTotal.WithLabelValues(string(rec.Prediction), string(rec.Source)).Inc()
	return stored{record: rec, inserted: true}, nil
}

// Len returns the number of resolved selections in the store.
func (m *Memo) Len(ctx context.Context) (int, error) {
	n, err := m.store.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return n, nil
}
