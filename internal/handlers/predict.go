package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"amr-predictor/internal/cache"
	"amr-predictor/internal/predictor"
	"amr-predictor/internal/selection"
	"amr-predictor/pkg/logging/logging"
)

// PredictHandler holds dependencies for the /v1 prediction endpoints.
type PredictHandler struct {
	Predictor predictor.Predictor
	Backend   string // store backend name reported by Stats
	VersionID string
}

func NewPredictHandler(p predictor.Predictor, backend, versionID string) *PredictHandler {
	return &PredictHandler{
		Predictor: p,
		Backend:   backend,
		VersionID: versionID,
	}
}

// predictRequest is the form payload. Extended is true when the partial
// marker panel is open, which makes every marker category required.
type predictRequest struct {
	selection.Selection
	Extended bool `json:"extended"`
}

type predictResponse struct {
	ID          string          `json:"id"`
	Prediction  string          `json:"prediction"`
	Message     string          `json:"message"`
	Cached      bool            `json:"cached"`
	Source      string          `json:"source"`
	Probability *float64        `json:"probability,omitempty"`
	Key         string          `json:"key"`
	ResolvedAt  time.Time       `json:"resolved_at"`
	Model       json.RawMessage `json:"model,omitempty"`
}

type validationResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing"`
	Invalid []string `json:"invalid,omitempty"`
	Message string   `json:"message"`
}

// Predict handles POST /v1/predict.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req predictRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.Predictor.Predict(ctx, req.Selection, req.Extended)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logger.Info("prediction_decision",
		zap.String("cache_tier", "prediction"),
		zap.String("hash_key", out.Key.Hash),
		zap.String("version_id", out.Key.VersionID),
		zap.String("record_id", out.Record.ID),
		zap.String("prediction", string(out.Record.Prediction)),
		zap.String("source", string(out.Record.Source)),
		zap.Bool("cache_hit", out.Cached),
		zap.Bool("extended", req.Extended),
		zap.Duration("total_latency", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, predictResponse{
		ID:          out.Record.ID,
		Prediction:  string(out.Record.Prediction),
		Message:     out.Record.Prediction.Message(),
		Cached:      out.Cached,
		Source:      string(out.Record.Source),
		Probability: out.Record.Probability,
		Key:         out.Key.Hash,
		ResolvedAt:  out.Record.ResolvedAt,
		Model:       out.Record.Model,
	})
}

// SelectionKey handles POST /v1/selection/key. It returns the normalized
// key and store key of a selection without predicting anything.
func (h *PredictHandler) SelectionKey(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	key := cache.BuildPredictionKey(req.Selection, h.VersionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"normalized": selection.Normalize(req.Selection),
		"key":        key.Hash,
		"store_key":  key.String(),
		"can_extend": req.Selection.CanExtend(),
	})
}

// Stats handles GET /v1/predictions/stats.
func (h *PredictHandler) Stats(w http.ResponseWriter, r *http.Request) {
	n, err := h.Predictor.Len(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    n,
		"backend":    h.Backend,
		"version_id": h.VersionID,
	})
}

func (h *PredictHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.L(r.Context())

	var verr *selection.ValidationError
	switch {
	case errors.As(err, &verr):
		logger.Info("selection rejected",
			zap.Strings("missing", verr.Missing),
			zap.Strings("invalid", verr.Invalid),
		)
		missing := verr.Missing
		if missing == nil {
			missing = []string{}
		}
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:   "validation_failed",
			Missing: missing,
			Invalid: verr.Invalid,
			Message: verr.Message(),
		})
	case errors.Is(err, predictor.ErrResolve):
		logger.Error("prediction failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody("prediction_unavailable"))
	case errors.Is(err, predictor.ErrStore):
		logger.Error("prediction store failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("store_unavailable"))
	default:
		logger.Error("unexpected error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_server_error"))
	}
}
